package riskmodel

import (
	"context"
	"math"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/domain"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func taskDefinitions() []registry.Definition {
	return []registry.Definition{
		{
			Kind:        types.KindTaskSpecificRisk,
			Family:      configstore.FamilyTaskSpecific,
			Impl:        types.RuleBasedEngine,
			Tenant:      taskTenant,
			Inputs:      taskSpecificInputs(false),
			Dependents:  taskSpecificDependents,
			NonNegative: true,
			New:         calc(taskSpecificRisk(false)),
		},
		{
			Kind:        types.KindStochasticTaskSpecific,
			Family:      configstore.FamilyTaskSpecific,
			Impl:        types.StochasticModel,
			Canonical:   types.KindTaskSpecificRisk,
			Tenant:      taskTenant,
			Inputs:      taskSpecificInputs(true),
			Dependents:  taskSpecificDependents,
			NonNegative: true,
			New:         calc(taskSpecificRisk(true)),
		},
		{
			Kind:          types.KindTaskSpecificSafetyClimateMultiplier,
			Tenant:        keyTenant,
			Dependents:    climateDependents,
			Params:        ParamsIncidentWeights,
			DefaultParams: DefaultIncidentWeights(),
			NonNegative:   true,
			New:           calc(safetyClimateMultiplier),
		},
		{
			Kind:        types.KindTaskSpecificSiteConditionsMultiplier,
			Tenant:      taskTenant,
			Dependents:  taskSiteDependents,
			NonNegative: true,
			New:         calc(taskSiteConditionsMultiplier),
		},
		{
			Kind:        types.KindActivityTotalTaskRisk,
			Family:      configstore.FamilyActivityTotalTask,
			Impl:        types.RuleBasedEngine,
			Tenant:      activityTenant,
			Inputs:      activityInputs(false),
			Dependents:  activityDependents,
			NonNegative: true,
			New:         calc(activityTotalTaskRisk(false)),
		},
		{
			Kind:        types.KindStochasticActivityTotalTask,
			Family:      configstore.FamilyActivityTotalTask,
			Impl:        types.StochasticModel,
			Canonical:   types.KindActivityTotalTaskRisk,
			Tenant:      activityTenant,
			Inputs:      activityInputs(true),
			Dependents:  activityDependents,
			NonNegative: true,
			New:         calc(activityTotalTaskRisk(true)),
		},
		{
			Kind:        types.KindStochasticActivitySiteConditionRelativePrecursorRisk,
			Family:      configstore.FamilyActivityTotalTask,
			Impl:        types.StochasticModel,
			Tenant:      activityTenant,
			Inputs:      activitySiteConditionInputs,
			Dependents:  activitySiteConditionDependents,
			NonNegative: true,
			New:         calc(activitySiteConditionPrecursorRisk),
		},
	}
}

func taskSpecificInputs(stochastic bool) registry.JobsFunc {
	return func(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
		task, err := env.Domain.Task(ctx, key.ID)
		if err != nil {
			return nil, err
		}
		out := []types.CalculationJob{
			job(types.KindTaskSpecificSafetyClimateMultiplier, types.EntityTenantKey(task.LibraryTaskID, task.TenantID)),
			job(types.KindTaskSpecificSiteConditionsMultiplier, key),
		}
		if stochastic {
			out = append(out, job(types.KindLibraryTaskRelativePrecursorRisk, types.EntityKeyOf(task.LibraryTaskID)))
		}
		return out, nil
	}
}

func taskSpecificDependents(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	task, err := env.Domain.Task(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	return []types.CalculationJob{job(types.KindActivityTotalTaskRisk, types.DatedKey(task.ActivityID, key.Date))}, nil
}

// taskSpecificRisk is base × (1 + climate + site) where base is the library
// task HESP, or its relative precursor risk for the stochastic model.
func taskSpecificRisk(stochastic bool) registry.CalcFunc {
	return func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
		key := in.Job.Key
		task, err := in.Env.Domain.Task(ctx, key.ID)
		if err != nil {
			return registry.Result{}, err
		}
		climate, err := in.Value(ctx, types.KindTaskSpecificSafetyClimateMultiplier, types.EntityTenantKey(task.LibraryTaskID, task.TenantID))
		if err != nil {
			return registry.Result{}, err
		}
		site, err := in.Value(ctx, types.KindTaskSpecificSiteConditionsMultiplier, key)
		if err != nil {
			return registry.Result{}, err
		}
		inputs := map[string]any{
			"safety_climate_multiplier":  climate,
			"site_conditions_multiplier": site,
		}
		var base float64
		if stochastic {
			base, err = in.Value(ctx, types.KindLibraryTaskRelativePrecursorRisk, types.EntityKeyOf(task.LibraryTaskID))
			if err != nil {
				return registry.Result{}, err
			}
			inputs["library_task_precursor_risk"] = base
		} else {
			lt, err := in.Env.Domain.LibraryTask(ctx, task.LibraryTaskID)
			if err != nil {
				return registry.Result{}, err
			}
			if lt.HESP < 0 || math.IsNaN(lt.HESP) {
				return registry.Result{}, types.Deterministicf("library task %s has invalid hesp %v", lt.ID, lt.HESP)
			}
			base = lt.HESP
			inputs["hesp"] = base
		}
		return registry.Result{Value: base * (1 + climate + site), Inputs: inputs}, nil
	}
}

func climateDependents(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	tasks, err := env.Domain.TasksOfLibraryTask(ctx, key.TenantID, key.ID)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	for _, t := range tasks {
		act, err := env.Domain.Activity(ctx, t.ActivityID)
		if err != nil {
			return nil, err
		}
		if act.Archived {
			continue
		}
		for _, d := range env.WindowDates(act.StartDate, act.EndDate) {
			out = append(out, job(types.KindTaskSpecificRisk, types.DatedKey(t.ID, d)))
		}
	}
	return out, nil
}

// safetyClimateMultiplier is the capped sum of severity weights over the
// tenant's incidents linked to the library task.
func safetyClimateMultiplier(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	lt := in.Job.Key.ID
	incidents, err := in.Env.Domain.Incidents(ctx, domain.IncidentFilter{TenantID: in.TenantID, LibraryTaskID: &lt})
	if err != nil {
		return registry.Result{}, err
	}
	settings, err := loadSettings(ctx, in)
	if err != nil {
		return registry.Result{}, err
	}
	sum, counts := incidentSum(in, incidents)
	return registry.Result{
		Value:  math.Min(settings.Climate.Cap, sum),
		Inputs: map[string]any{"incidents": counts, "weighted_sum": sum},
		Params: map[string]any{"cap": settings.Climate.Cap, "weights": in.Params},
	}, nil
}

func taskSiteDependents(_ context.Context, _ *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	return []types.CalculationJob{job(types.KindTaskSpecificRisk, key)}, nil
}

func siteConditionSum(ctx context.Context, env *registry.Env, locationID types.EntityKey) (float64, []string, error) {
	results, err := env.Sites.Evaluate(ctx, locationID.ID, locationID.Date)
	if err != nil {
		return 0, nil, err
	}
	var sum float64
	var applied []string
	for _, r := range results {
		if !r.Applies {
			continue
		}
		if r.Multiplier < 0 || math.IsNaN(r.Multiplier) {
			return 0, nil, types.Deterministicf("site condition %s has invalid multiplier %v", r.LibrarySiteConditionID, r.Multiplier)
		}
		sum += r.Multiplier
		applied = append(applied, r.LibrarySiteConditionID.String())
	}
	return sum, applied, nil
}

func taskSiteConditionsMultiplier(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	task, err := in.Env.Domain.Task(ctx, in.Job.Key.ID)
	if err != nil {
		return registry.Result{}, err
	}
	act, err := in.Env.Domain.Activity(ctx, task.ActivityID)
	if err != nil {
		return registry.Result{}, err
	}
	sum, applied, err := siteConditionSum(ctx, in.Env, types.DatedKey(act.LocationID, in.Job.Key.Date))
	if err != nil {
		return registry.Result{}, err
	}
	return registry.Result{Value: sum, Inputs: map[string]any{"location_id": act.LocationID.String(), "applied": applied}}, nil
}

func activityInputs(stochastic bool) registry.JobsFunc {
	return func(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
		act, err := env.Domain.Activity(ctx, key.ID)
		if err != nil {
			return nil, err
		}
		if !act.ActiveOn(key.Date) {
			return nil, nil
		}
		tasks, err := env.Domain.TasksOfActivity(ctx, act.ID)
		if err != nil {
			return nil, err
		}
		out := make([]types.CalculationJob, 0, len(tasks)+1)
		for _, t := range tasks {
			out = append(out, job(types.KindTaskSpecificRisk, types.DatedKey(t.ID, key.Date)))
		}
		if stochastic {
			out = append(out, job(types.KindStochasticActivitySiteConditionRelativePrecursorRisk, key))
		}
		return out, nil
	}
}

func activityDependents(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	act, err := env.Domain.Activity(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	return []types.CalculationJob{job(types.KindTotalLocationRisk, types.DatedKey(act.LocationID, key.Date))}, nil
}

// activityTotalTaskRisk sums the scores of the activity's non-archived tasks.
// An activity not in scope on the day totals zero.
func activityTotalTaskRisk(stochastic bool) registry.CalcFunc {
	return func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
		key := in.Job.Key
		act, err := in.Env.Domain.Activity(ctx, key.ID)
		if err != nil {
			return registry.Result{}, err
		}
		scores := map[string]float64{}
		inputs := map[string]any{"tasks": scores}
		if !act.ActiveOn(key.Date) {
			return registry.Result{Value: 0, Inputs: inputs}, nil
		}
		tasks, err := in.Env.Domain.TasksOfActivity(ctx, act.ID)
		if err != nil {
			return registry.Result{}, err
		}
		var sum float64
		for _, t := range tasks {
			v, err := in.Value(ctx, types.KindTaskSpecificRisk, types.DatedKey(t.ID, key.Date))
			if err != nil {
				return registry.Result{}, err
			}
			scores[t.ID.String()] = v
			sum += v
		}
		if stochastic {
			site, err := in.Value(ctx, types.KindStochasticActivitySiteConditionRelativePrecursorRisk, key)
			if err != nil {
				return registry.Result{}, err
			}
			inputs["site_condition_precursor_risk"] = site
			sum += site
		}
		return registry.Result{Value: sum, Inputs: inputs}, nil
	}
}

func applicableConditions(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.SiteConditionResult, error) {
	act, err := env.Domain.Activity(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	results, err := env.Sites.Evaluate(ctx, act.LocationID, key.Date)
	if err != nil {
		return nil, err
	}
	out := results[:0:0]
	for _, r := range results {
		if r.Applies {
			out = append(out, r)
		}
	}
	return out, nil
}

func activitySiteConditionInputs(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	results, err := applicableConditions(ctx, env, key)
	if err != nil {
		return nil, err
	}
	out := make([]types.CalculationJob, 0, len(results))
	for _, r := range results {
		out = append(out, job(types.KindLibrarySiteConditionRelativePrecursorRisk, types.EntityKeyOf(r.LibrarySiteConditionID)))
	}
	return out, nil
}

func activitySiteConditionDependents(_ context.Context, _ *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	return []types.CalculationJob{job(types.KindActivityTotalTaskRisk, key)}, nil
}

func activitySiteConditionPrecursorRisk(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	results, err := applicableConditions(ctx, in.Env, in.Job.Key)
	if err != nil {
		return registry.Result{}, err
	}
	risks := map[string]float64{}
	var sum float64
	for _, r := range results {
		v, err := in.Value(ctx, types.KindLibrarySiteConditionRelativePrecursorRisk, types.EntityKeyOf(r.LibrarySiteConditionID))
		if err != nil {
			return registry.Result{}, err
		}
		risks[r.LibrarySiteConditionID.String()] = v
		sum += v
	}
	return registry.Result{Value: sum, Inputs: map[string]any{"site_conditions": risks}}, nil
}
