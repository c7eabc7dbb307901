package lambda

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/config"
)

func clearOverrides(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvRedisAddr, "")
	t.Setenv(config.EnvPostgresDSN, "")
}

func TestInit_MissingConfig(t *testing.T) {
	clearOverrides(t)
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Init(t.Context())
	assert.ErrorContains(t, err, "missing.yaml")
}

func TestInit_SecretsNeedRegion(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "riskreactor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metricStore: postgres\npostgres:\n  dsnSecretArn: arn:aws:secretsmanager:us-east-1:1:secret:dsn\n"), 0o644))
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvRegion, "")

	_, err := Init(t.Context())
	assert.ErrorContains(t, err, EnvRegion)
}

func TestInit_Memory(t *testing.T) {
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "riskreactor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: lambda\n"), 0o644))
	t.Setenv(EnvConfigPath, path)

	d, err := Init(t.Context())
	require.NoError(t, err)
	defer d.App.Close()
	assert.NotNil(t, d.Intake)
	assert.NotNil(t, d.App.Reactor)
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "custom")
	assert.Equal(t, "custom", envOrDefault("TEST_KEY", "fallback"))

	t.Setenv("TEST_KEY", "")
	assert.Equal(t, "fallback", envOrDefault("TEST_KEY", "fallback"))
}
