package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/config"
	"github.com/dwsmith1983/riskreactor/internal/worker"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

const (
	demoDir    = "../../demo/local"
	demoTenant = "6f1c3b9e-2a41-4a6e-9d59-0d5b3c7a1e01"
	demoTask   = "80debf96-f381-44c7-a5a0-8b9cbdcedf01"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvRedisAddr, "")
	t.Setenv(config.EnvPostgresDSN, "")
	t.Cleanup(func() { configDir = "." })

	root := &cobra.Command{Use: "riskreactor", SilenceUsage: true, SilenceErrors: true}
	BindFlags(root)
	root.AddCommand(
		NewTriggerCmd(),
		NewCalcCmd(),
		NewRunCmd(),
		NewExplainCmd(),
		NewRankCmd(),
		NewStatusCmd(),
		NewRebuildQueueCmd(),
		NewConfigCmd(),
	)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"-C", demoDir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("boom"), ExitFailure},
		{"missing dependency", fmt.Errorf("load: %w", types.ErrMissingDependency), ExitMissingDependency},
		{"missing metric", &worker.MissingInputsError{}, ExitMissingDependency},
		{"missing configuration", fmt.Errorf("x: %w", types.ErrMissingConfiguration), ExitMissingConfiguration},
		{"encoding", types.Encodingf("bad"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestParseTrigger(t *testing.T) {
	id := uuid.New()

	ev, err := parseTrigger([]string{"UpdateTaskRisk", id.String(), "2026-06-01"})
	require.NoError(t, err)
	assert.Equal(t, types.UpdateTaskRisk(id, types.MustDate("2026-06-01")), ev)

	ev, err = parseTrigger([]string{"TaskChanged", id.String()})
	require.NoError(t, err)
	assert.Equal(t, types.NewTrigger(types.TriggerTaskChanged, id), ev)

	for _, args := range [][]string{
		{"TaskChanged", "nope"},
		{"UpdateTaskRisk", id.String()},
		{"UpdateTaskRisk", id.String(), "June"},
		{"TaskChanged", id.String(), "2026-06-01"},
		{"Nope", id.String()},
	} {
		_, err := parseTrigger(args)
		assert.ErrorIs(t, err, types.ErrEncoding, "%v", args)
	}
}

func TestTriggerAdd(t *testing.T) {
	out, err := execute(t, "trigger", "add", "UpdateTaskRisk", demoTask, "2026-06-01")
	require.NoError(t, err)
	assert.Contains(t, out, "job(s) queued")

	_, err = execute(t, "trigger", "add", "ActivityChanged", uuid.NewString())
	assert.Equal(t, ExitMissingDependency, ExitCode(err))
}

func TestCalcAdd(t *testing.T) {
	out, err := execute(t, "calc", "add", "CrewRisk", "4c9a7e52-bf4d-4083-a16c-4e5d7f8a9b01")
	require.NoError(t, err)
	assert.Contains(t, out, "queued")

	_, err = execute(t, "calc", "add", "NotAKind", demoTask)
	assert.Error(t, err)
}

func TestCalcRun(t *testing.T) {
	key := demoTask + "/2026-06-01"

	out, err := execute(t, "calc", "run", "TaskSpecificRisk", key)
	require.Error(t, err)
	assert.Equal(t, ExitMissingDependency, ExitCode(err))
	assert.Contains(t, out, "missing inputs")

	out, err = execute(t, "calc", "run", "TaskSpecificRisk", key, "--depth", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "TaskSpecificRisk")
	assert.Contains(t, out, "TaskSpecificSiteConditionsMultiplier")
}

func TestRun(t *testing.T) {
	key := demoTask + "/2026-06-01"

	out, err := execute(t, "run", "TaskSpecificRisk", key, "--depth", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "TaskSpecificSiteConditionsMultiplier")

	_, err = execute(t, "run", "TaskSpecificRisk", key)
	assert.Equal(t, ExitMissingDependency, ExitCode(err))
}

func TestRankWorkPackages(t *testing.T) {
	out, err := execute(t, "rank", "work-packages", demoTenant, "--date", "2026-06-01")
	require.NoError(t, err)
	assert.Contains(t, out, "substation upgrade")
	assert.Contains(t, out, string(types.RiskUnknown), "fresh store has no totals")

	out, err = execute(t, "rank", "work-packages", demoTenant, "--date", "2025-06-01")
	require.NoError(t, err)
	assert.Contains(t, out, "No active work packages")

	_, err = execute(t, "rank", "work-packages", "acme")
	assert.ErrorIs(t, err, types.ErrEncoding)
}

func TestStatusAndRebuildQueue(t *testing.T) {
	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending: 0")

	_, err = execute(t, "rebuild-queue")
	assert.ErrorContains(t, err, "--yes")

	out, err = execute(t, "rebuild-queue", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "queue wiped")
}

func TestConfigCommands(t *testing.T) {
	out, err := execute(t, "config", "labels")
	require.NoError(t, err)
	assert.Contains(t, out, "RISK_MODEL.CREW_RISK_SCORE_METRIC.TYPE")

	label := "RISK_MODEL.PROJECT_TOTAL_RISK_SCORE_METRIC.THRESHOLDS"
	out, err = execute(t, "config", "put", label, `{"low":15,"medium":30}`, "--tenant", demoTenant)
	require.NoError(t, err)
	assert.Contains(t, out, "tenant "+demoTenant)

	_, err = execute(t, "config", "put", label, `{"low":`)
	assert.ErrorIs(t, err, types.ErrEncoding)

	_, err = execute(t, "config", "put", label, `{"low":40,"medium":30}`)
	assert.Error(t, err, "low above medium")

	out, err = execute(t, "config", "describe", label, "--tenant", demoTenant)
	require.NoError(t, err)
	assert.Contains(t, out, `"label": "`+label+`"`)
}
