package configstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func newStore() *Store { return New(NewMemory(), nil) }

func TestGet_TenantShadowsDefault(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	tenant, other := uuid.New(), uuid.New()
	label := FamilySupervisor.TypeLabel()

	v, err := s.Get(ctx, label, tenant)
	require.NoError(t, err)
	assert.Nil(t, v, "no rows and no application default applied by Get")

	require.NoError(t, s.Put(ctx, label, nil, types.StochasticModel))
	require.NoError(t, s.Put(ctx, label, &tenant, types.Disabled))

	v, err = s.Get(ctx, label, tenant)
	require.NoError(t, err)
	assert.JSONEq(t, `"DISABLED"`, string(v))

	v, err = s.Get(ctx, label, other)
	require.NoError(t, err)
	assert.JSONEq(t, `"STOCHASTIC_MODEL"`, string(v))
}

func TestPut_Validation(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	tenant := uuid.New()

	tests := []struct {
		name    string
		label   string
		value   any
		wantErr bool
	}{
		{"unknown label", "RISK_MODEL.NOPE", 1, true},
		{"bad implementation", FamilyTaskSpecific.TypeLabel(), "SOMETHING", true},
		{"contractor has no stochastic", FamilyContractor.TypeLabel(), types.StochasticModel, true},
		{"crew has no rule engine", FamilyCrew.TypeLabel(), types.RuleBasedEngine, true},
		{"thresholds ok", FamilyTaskSpecific.ThresholdsLabel(), Thresholds{Low: 85, Medium: 210}, false},
		{"thresholds equal ok", FamilyTaskSpecific.ThresholdsLabel(), Thresholds{Low: 5, Medium: 5}, false},
		{"thresholds inverted", FamilyTaskSpecific.ThresholdsLabel(), Thresholds{Low: 210, Medium: 85}, true},
		{"thresholds unknown field", FamilyTaskSpecific.ThresholdsLabel(), map[string]any{"low": 1, "high": 2}, true},
		{"weight not a number", FamilyContractor.WeightLabel(), "heavy", true},
		{"weight ok", FamilyContractor.WeightLabel(), 0.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Put(ctx, tt.label, &tenant, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolve_ApplicationDefault(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	tenant := uuid.New()

	impl, err := s.Implementation(ctx, FamilyTaskSpecific, tenant)
	require.NoError(t, err)
	assert.Equal(t, types.RuleBasedEngine, impl)

	impl, err = s.Implementation(ctx, FamilyCrew, tenant)
	require.NoError(t, err)
	assert.Equal(t, types.Disabled, impl)

	_, err = s.Thresholds(ctx, FamilyTaskSpecific, tenant)
	assert.ErrorIs(t, err, types.ErrMissingConfiguration)
}

func TestImplementation_InvalidStoredValueIsDisabled(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	s := New(backend, nil)
	tenant := uuid.New()
	require.NoError(t, backend.Put(ctx, FamilyContractor.TypeLabel(), &tenant, json.RawMessage(`"STOCHASTIC_MODEL"`)))

	impl, err := s.Implementation(ctx, FamilyContractor, tenant)
	require.NoError(t, err)
	assert.Equal(t, types.Disabled, impl)
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	tenant := uuid.New()
	label := FamilyContractor.WeightLabel()

	d, err := s.Describe(ctx, label, tenant)
	require.NoError(t, err)
	assert.JSONEq(t, `0`, string(d.Actual))
	assert.JSONEq(t, `0`, string(d.ApplicationDefaults))
	assert.Nil(t, d.TenantOverrides)

	require.NoError(t, s.Put(ctx, label, &tenant, 0.25))
	d, err = s.Describe(ctx, label, tenant)
	require.NoError(t, err)
	assert.JSONEq(t, `0.25`, string(d.Actual))
	assert.JSONEq(t, `0.25`, string(d.TenantOverrides))
	assert.JSONEq(t, `0`, string(d.ApplicationDefaults))
}

type supervisorSchema struct {
	Type       types.Implementation       `config:"RISK_MODEL.SUPERVISOR_RISK_SCORE_METRIC.TYPE"`
	Weight     float64                    `config:"RISK_MODEL.SUPERVISOR_RISK_SCORE_METRIC.WEIGHT"`
	Engagement SupervisorEngagementParams `config:"RISK_MODEL.SUPERVISOR_ENGAGEMENT_FACTOR.PARAMETERS"`
	Thresholds *Thresholds                `config:"RISK_MODEL.SUPERVISOR_RISK_SCORE_METRIC.THRESHOLDS"`
	Ignored    string
}

type requiredSchema struct {
	Thresholds Thresholds `config:"RISK_MODEL.CREW_RISK_SCORE_METRIC.THRESHOLDS,required"`
}

func TestLoad_TypedView(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	tenant := uuid.New()
	require.NoError(t, s.Put(ctx, FamilySupervisor.WeightLabel(), &tenant, 0.3))

	got, err := Load[supervisorSchema](ctx, s, tenant)
	require.NoError(t, err)
	assert.Equal(t, types.RuleBasedEngine, got.Type)
	assert.Equal(t, 0.3, got.Weight)
	assert.Equal(t, 5.0, got.Engagement.MaxLocations)
	assert.Nil(t, got.Thresholds)

	_, err = Load[requiredSchema](ctx, s, tenant)
	assert.ErrorIs(t, err, types.ErrMissingConfiguration)

	require.NoError(t, s.Put(ctx, FamilyCrew.ThresholdsLabel(), nil, Thresholds{Low: 1, Medium: 2}))
	req, err := Load[requiredSchema](ctx, s, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2.0, req.Thresholds.Medium)
}

func TestLoadFamily(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	tenant := uuid.New()
	require.NoError(t, s.Put(ctx, FamilyProjectTotal.ThresholdsLabel(), &tenant, Thresholds{Low: 1, Medium: 3}))

	fs, err := s.LoadFamily(ctx, FamilyProjectTotal, tenant)
	require.NoError(t, err)
	assert.Equal(t, types.RuleBasedEngine, fs.Type)
	require.NotNil(t, fs.Thresholds)
	assert.Equal(t, 3.0, fs.Thresholds.Medium)
}

func TestOverrides_DefaultFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	tenant := uuid.New()
	label := FamilyCrew.TypeLabel()
	require.NoError(t, s.Put(ctx, label, &tenant, types.StochasticModel))
	require.NoError(t, s.Put(ctx, label, nil, types.Disabled))

	entries, err := s.Overrides(ctx, label)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].TenantID)
	assert.Equal(t, tenant, *entries[1].TenantID)
}
