package riskmodel_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/domain"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/internal/riskmodel"
	"github.com/dwsmith1983/riskreactor/internal/testutil"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := riskmodel.NewRegistry()
	require.NoError(t, err)
	return reg
}

// compute runs the tenant's active variant of kind for key.
func compute(t *testing.T, w *testutil.World, reg *registry.Registry, kind types.MetricKind, key types.EntityKey) (registry.Result, error) {
	t.Helper()
	ctx := context.Background()
	tenant, err := reg.Tenant(ctx, w.Env, types.NewJob(kind, key))
	require.NoError(t, err)
	res, err := reg.Resolve(ctx, w.Config, kind, tenant)
	require.NoError(t, err)
	require.True(t, res.Active, "%s inactive", kind)
	def, ok := reg.Definition(res.Kind)
	require.True(t, ok)
	params := map[string]any{}
	for k, v := range def.DefaultParams {
		params[k] = v
	}
	in := reg.NewInputs(w.Env, types.NewJob(res.Kind, key), res, nil, params)
	return def.New().Calc(ctx, in)
}

func TestRegistry_DefinesEveryKind(t *testing.T) {
	reg := newRegistry(t)
	assert.Equal(t, types.AllKinds(), reg.Kinds())

	label, ok := reg.Selector(types.KindSupervisorRelativePrecursorRisk)
	require.True(t, ok)
	assert.Equal(t, "RISK_MODEL.SUPERVISOR_RISK_SCORE_METRIC.TYPE", label)

	_, ok = reg.Selector(types.KindTaskSpecificSafetyClimateMultiplier)
	assert.False(t, ok)

	assert.Equal(t, types.KindTaskSpecificRisk, reg.Canonical(types.KindStochasticTaskSpecific))
	assert.Equal(t, types.KindCrewRisk, reg.Canonical(types.KindCrewRisk))
}

func TestRegistry_ResolvePerTenant(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	ctx := context.Background()

	res, err := reg.Resolve(ctx, w.Config, types.KindTaskSpecificRisk, w.Tenant)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, types.KindTaskSpecificRisk, res.Kind)

	w.SetImplementation(t, configstore.FamilyTaskSpecific, w.Tenant, types.StochasticModel)
	res, err = reg.Resolve(ctx, w.Config, types.KindTaskSpecificRisk, w.Tenant)
	require.NoError(t, err)
	assert.Equal(t, types.KindStochasticTaskSpecific, res.Kind)

	// A variant resolves through its canonical slot.
	res, err = reg.Resolve(ctx, w.Config, types.KindStochasticTaskSpecific, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, types.KindTaskSpecificRisk, res.Kind)

	// Crew defaults to disabled.
	res, err = reg.Resolve(ctx, w.Config, types.KindCrewRisk, w.Tenant)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, types.Disabled, res.Impl)

	// Stochastic-only kinds are inactive under the rule engine.
	res, err = reg.Resolve(ctx, w.Config, types.KindStochasticActivitySiteConditionRelativePrecursorRisk, w.Tenant)
	require.NoError(t, err)
	assert.False(t, res.Active)

	res, err = reg.Resolve(ctx, w.Config, types.KindLibraryTaskRelativePrecursorRisk, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, res.Active)
}

func TestTaskSpecificRisk(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	key := w.TaskKey(w.Task1)

	_, err := compute(t, w, reg, types.KindTaskSpecificRisk, key)
	var missing *types.MissingMetricError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, types.KindTaskSpecificSafetyClimateMultiplier, missing.Kind)

	w.Store(t, types.KindTaskSpecificSafetyClimateMultiplier, types.EntityTenantKey(w.LibraryTask, w.Tenant), 0.1)
	w.Store(t, types.KindTaskSpecificSiteConditionsMultiplier, key, 0.2)

	got, err := compute(t, w, reg, types.KindTaskSpecificRisk, key)
	require.NoError(t, err)
	assert.InDelta(t, 13.0, got.Value, 1e-9)
	assert.Equal(t, 10.0, got.Inputs["hesp"])

	w.SetImplementation(t, configstore.FamilyTaskSpecific, w.Tenant, types.StochasticModel)
	w.Store(t, types.KindLibraryTaskRelativePrecursorRisk, types.EntityKeyOf(w.LibraryTask), 0.4)
	got, err = compute(t, w, reg, types.KindTaskSpecificRisk, key)
	require.NoError(t, err)
	assert.InDelta(t, 0.52, got.Value, 1e-9)
}

func TestSafetyClimateMultiplier(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	key := types.EntityTenantKey(w.LibraryTask, w.Tenant)

	got, err := compute(t, w, reg, types.KindTaskSpecificSafetyClimateMultiplier, key)
	require.NoError(t, err)
	assert.Zero(t, got.Value)

	for _, sev := range []types.IncidentSeverity{types.SeverityRecordable, types.SeveritySIF} {
		w.Domain.PutIncident(types.Incident{
			ID: uuid.New(), TenantID: w.Tenant, Severity: sev, OccurredAt: time.Now(),
			LibraryTaskIDs: []uuid.UUID{w.LibraryTask},
		})
	}
	// Another tenant's incident does not count.
	w.Domain.PutIncident(types.Incident{
		ID: uuid.New(), TenantID: uuid.New(), Severity: types.SeveritySIF,
		LibraryTaskIDs: []uuid.UUID{w.LibraryTask},
	})
	got, err = compute(t, w, reg, types.KindTaskSpecificSafetyClimateMultiplier, key)
	require.NoError(t, err)
	assert.InDelta(t, 0.233, got.Value, 1e-9)

	for i := 0; i < 10; i++ {
		w.Domain.PutIncident(types.Incident{
			ID: uuid.New(), TenantID: w.Tenant, Severity: types.SeveritySIF,
			LibraryTaskIDs: []uuid.UUID{w.LibraryTask},
		})
	}
	got, err = compute(t, w, reg, types.KindTaskSpecificSafetyClimateMultiplier, key)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Value)
}

func TestSiteConditionsMultiplier(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	w.Domain.AddSiteCondition(domain.LocationSiteCondition{
		LocationID: w.Location, Date: w.Day,
		Result: types.SiteConditionResult{LibrarySiteConditionID: uuid.New(), Applies: true, Multiplier: 0.25},
	})
	w.Domain.AddSiteCondition(domain.LocationSiteCondition{
		LocationID: w.Location,
		Result:     types.SiteConditionResult{LibrarySiteConditionID: uuid.New(), Applies: false, Multiplier: 5},
	})

	got, err := compute(t, w, reg, types.KindTaskSpecificSiteConditionsMultiplier, w.TaskKey(w.Task1))
	require.NoError(t, err)
	assert.Equal(t, 0.25, got.Value)

	got, err = compute(t, w, reg, types.KindProjectLocationSiteConditionsMultiplier, types.DatedKey(w.Location, w.Day))
	require.NoError(t, err)
	assert.Equal(t, 0.25, got.Value)

	got, err = compute(t, w, reg, types.KindProjectLocationSiteConditionsMultiplier, types.DatedKey(w.Location, w.Day.AddDays(1)))
	require.NoError(t, err)
	assert.Zero(t, got.Value)
}

func TestActivityTotalTaskRisk_ExcludesArchivedTasks(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	key := types.DatedKey(w.Activity, w.Day)
	w.Store(t, types.KindTaskSpecificRisk, w.TaskKey(w.Task1), 4)
	w.Store(t, types.KindTaskSpecificRisk, w.TaskKey(w.Task2), 6)

	got, err := compute(t, w, reg, types.KindActivityTotalTaskRisk, key)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Value)

	w.Domain.ArchiveTask(w.Task2)
	got, err = compute(t, w, reg, types.KindActivityTotalTaskRisk, key)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Value)

	// Outside the activity's dates the total is zero without reading tasks.
	got, err = compute(t, w, reg, types.KindActivityTotalTaskRisk, types.DatedKey(w.Activity, w.Day.AddDays(5)))
	require.NoError(t, err)
	assert.Zero(t, got.Value)
}

func TestTotalLocationRisk_Weights(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	ctx := context.Background()
	key := types.DatedKey(w.Location, w.Day)
	w.Store(t, types.KindActivityTotalTaskRisk, types.DatedKey(w.Activity, w.Day), 10)
	w.Store(t, types.KindProjectLocationSiteConditionsMultiplier, key, 0.5)

	got, err := compute(t, w, reg, types.KindTotalLocationRisk, key)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.Value)

	require.NoError(t, w.Config.Put(ctx, configstore.FamilyContractor.WeightLabel(), nil, 0.5))
	require.NoError(t, w.Config.Put(ctx, configstore.FamilySupervisor.WeightLabel(), nil, 1.0))

	// Weighted factors without stored scores are absent.
	got, err = compute(t, w, reg, types.KindTotalLocationRisk, key)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.Value)

	w.Store(t, types.KindContractorSafetyScore, types.EntityKeyOf(w.Contractor), 2)
	w.Store(t, types.KindSupervisorEngagementFactor, types.EntityKeyOf(w.Supervisor), 0.4)
	got, err = compute(t, w, reg, types.KindTotalLocationRisk, key)
	require.NoError(t, err)
	assert.InDelta(t, 15.0*(1+0.5*2+1.0*0.4), got.Value, 1e-9)

	// Negative contractor scores never reduce risk.
	w.Store(t, types.KindContractorSafetyScore, types.EntityKeyOf(w.Contractor), -3)
	got, err = compute(t, w, reg, types.KindTotalLocationRisk, key)
	require.NoError(t, err)
	assert.InDelta(t, 15.0*1.4, got.Value, 1e-9)
}

func TestTotalWorkPackageRisk(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	second := uuid.New()
	w.Domain.PutLocation(types.Location{ID: second, TenantID: w.Tenant, WorkPackageID: w.WorkPackage, Name: "south yard"})
	w.Store(t, types.KindTotalLocationRisk, types.DatedKey(w.Location, w.Day), 10)
	w.Store(t, types.KindTotalLocationRisk, types.DatedKey(second, w.Day), 20)

	key := types.DatedKey(w.WorkPackage, w.Day)
	got, err := compute(t, w, reg, types.KindTotalWorkPackageRisk, key)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.Value)

	w.SetImplementation(t, configstore.FamilyProjectTotal, w.Tenant, types.StochasticModel)
	w.SetImplementation(t, configstore.FamilyProjectLocationTotal, w.Tenant, types.StochasticModel)
	w.Store(t, types.KindStochasticTotalLocation, types.DatedKey(w.Location, w.Day), 1)
	w.Store(t, types.KindStochasticTotalLocation, types.DatedKey(second, w.Day), 2)
	got, err = compute(t, w, reg, types.KindTotalWorkPackageRisk, key)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Value)
}

func TestContractorSafetyScore(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	c := types.EntityKeyOf(w.Contractor)
	other := uuid.New()
	w.Domain.PutContractor(types.Contractor{ID: other, TenantID: w.Tenant, Name: "pipe co"})
	w.Domain.PutIncident(types.Incident{ID: uuid.New(), TenantID: w.Tenant, Severity: types.SeverityLostTime, ContractorID: &w.Contractor})

	history, err := compute(t, w, reg, types.KindContractorSafetyHistory, c)
	require.NoError(t, err)
	assert.InDelta(t, 0.067, history.Value, 1e-9)
	w.Store(t, types.KindContractorSafetyHistory, c, history.Value)
	w.Store(t, types.KindContractorSafetyHistory, types.EntityKeyOf(other), 0)

	rating, err := compute(t, w, reg, types.KindContractorSafetyRating, c)
	require.NoError(t, err)
	assert.Equal(t, 1.2, rating.Value)
	w.Store(t, types.KindContractorSafetyRating, c, rating.Value)

	baseline, err := compute(t, w, reg, types.KindGlobalContractorProjectHistoryBaseline, types.TenantKey(w.Tenant))
	require.NoError(t, err)
	assert.InDelta(t, 0.0335, baseline.Value, 1e-9)
	require.NotNil(t, baseline.StdDev)
	assert.InDelta(t, 0.0335, *baseline.StdDev, 1e-9)
	_, err = w.Metrics.Store(context.Background(), types.MetricRecord{
		Kind: types.KindGlobalContractorProjectHistoryBaseline, Key: types.TenantKey(w.Tenant),
		Value: baseline.Value, StdDev: baseline.StdDev,
	})
	require.NoError(t, err)

	score, err := compute(t, w, reg, types.KindContractorSafetyScore, c)
	require.NoError(t, err)
	assert.InDelta(t, 1.0+0.2, score.Value, 1e-9)
}

func TestSupervisorVariants(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	s := types.EntityKeyOf(w.Supervisor)

	got, err := compute(t, w, reg, types.KindSupervisorEngagementFactor, s)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got.Value, 1e-9)

	w.SetImplementation(t, configstore.FamilySupervisor, w.Tenant, types.StochasticModel)
	w.Domain.PutIncident(types.Incident{ID: uuid.New(), TenantID: w.Tenant, Severity: types.SeverityFirstAid, SupervisorID: &w.Supervisor})
	got, err = compute(t, w, reg, types.KindSupervisorEngagementFactor, s)
	require.NoError(t, err)
	assert.InDelta(t, 0.007, got.Value, 1e-9)

	w.Store(t, types.KindSupervisorRelativePrecursorRisk, s, 0.007)
	global, err := compute(t, w, reg, types.KindGlobalSupervisorEngagementFactor, types.TenantKey(w.Tenant))
	require.NoError(t, err)
	assert.InDelta(t, 0.007, global.Value, 1e-9)
	require.NotNil(t, global.StdDev)
	assert.Zero(t, *global.StdDev)
}

func TestDependents(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	ctx := context.Background()

	deps, err := reg.Dependents(ctx, w.Env, types.NewJob(types.KindStochasticTaskSpecific, w.TaskKey(w.Task1)))
	require.NoError(t, err)
	assert.Equal(t, []types.CalculationJob{types.NewJob(types.KindActivityTotalTaskRisk, types.DatedKey(w.Activity, w.Day))}, deps)

	deps, err = reg.Dependents(ctx, w.Env, types.NewJob(types.KindTaskSpecificSafetyClimateMultiplier, types.EntityTenantKey(w.LibraryTask, w.Tenant)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.CalculationJob{
		types.NewJob(types.KindTaskSpecificRisk, w.TaskKey(w.Task1)),
		types.NewJob(types.KindTaskSpecificRisk, w.TaskKey(w.Task2)),
	}, deps)

	w.Env.Window = types.PlanningWindow{PastDays: 1, FutureDays: 3}
	deps, err = reg.Dependents(ctx, w.Env, types.NewJob(types.KindTaskSpecificSafetyClimateMultiplier, types.EntityTenantKey(w.LibraryTask, w.Tenant)))
	require.NoError(t, err)
	// The activity spans day-1 through day+1.
	assert.Len(t, deps, 6)

	deps, err = reg.Dependents(ctx, w.Env, types.NewJob(types.KindTotalWorkPackageRisk, types.DatedKey(w.WorkPackage, w.Day)))
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestDeterministicErrors(t *testing.T) {
	w := testutil.NewWorld(t)
	reg := newRegistry(t)
	lt := uuid.New()
	w.Domain.PutLibraryTask(types.LibraryTask{ID: lt, Name: "bad", PrecursorRisk: -1})

	_, err := compute(t, w, reg, types.KindLibraryTaskRelativePrecursorRisk, types.EntityKeyOf(lt))
	assert.ErrorIs(t, err, types.ErrDeterministicCalc)

	_, err = compute(t, w, reg, types.KindLibraryTaskRelativePrecursorRisk, types.EntityKeyOf(uuid.New()))
	assert.ErrorIs(t, err, types.ErrMissingDependency)
}
