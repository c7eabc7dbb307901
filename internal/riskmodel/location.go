package riskmodel

import (
	"context"
	"math"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func locationDefinitions() []registry.Definition {
	return []registry.Definition{
		{
			Kind:        types.KindProjectLocationSiteConditionsMultiplier,
			Tenant:      locationTenant,
			Dependents:  locationSiteDependents,
			NonNegative: true,
			New:         calc(locationSiteConditionsMultiplier),
		},
		{
			Kind:        types.KindTotalLocationRisk,
			Family:      configstore.FamilyProjectLocationTotal,
			Impl:        types.RuleBasedEngine,
			Tenant:      locationTenant,
			Inputs:      locationInputs,
			Dependents:  locationDependents,
			NonNegative: true,
			New:         calc(totalLocationRisk(true)),
		},
		{
			Kind:        types.KindStochasticTotalLocation,
			Family:      configstore.FamilyProjectLocationTotal,
			Impl:        types.StochasticModel,
			Canonical:   types.KindTotalLocationRisk,
			Tenant:      locationTenant,
			Inputs:      locationInputs,
			Dependents:  locationDependents,
			NonNegative: true,
			New:         calc(totalLocationRisk(false)),
		},
		{
			Kind:        types.KindTotalWorkPackageRisk,
			Family:      configstore.FamilyProjectTotal,
			Impl:        types.RuleBasedEngine,
			Tenant:      workPackageTenant,
			Inputs:      workPackageInputs,
			NonNegative: true,
			New:         calc(totalWorkPackageRisk(false)),
		},
		{
			Kind:        types.KindStochasticTotalWorkPackage,
			Family:      configstore.FamilyProjectTotal,
			Impl:        types.StochasticModel,
			Canonical:   types.KindTotalWorkPackageRisk,
			Tenant:      workPackageTenant,
			Inputs:      workPackageInputs,
			NonNegative: true,
			New:         calc(totalWorkPackageRisk(true)),
		},
	}
}

// LocationChain emits TotalLocationRisk for every planning-window day the
// locations' work packages are in scope.
func LocationChain(ctx context.Context, env *registry.Env, locations []types.Location) ([]types.CalculationJob, error) {
	var out []types.CalculationJob
	for _, loc := range locations {
		if loc.Archived {
			continue
		}
		wp, err := env.Domain.WorkPackage(ctx, loc.WorkPackageID)
		if err != nil {
			return nil, err
		}
		if wp.Archived {
			continue
		}
		for _, d := range env.WindowDates(wp.StartDate, wp.EndDate) {
			out = append(out, job(types.KindTotalLocationRisk, types.DatedKey(loc.ID, d)))
		}
	}
	return out, nil
}

func locationSiteDependents(_ context.Context, _ *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	return []types.CalculationJob{job(types.KindTotalLocationRisk, key)}, nil
}

func locationSiteConditionsMultiplier(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	sum, applied, err := siteConditionSum(ctx, in.Env, in.Job.Key)
	if err != nil {
		return registry.Result{}, err
	}
	return registry.Result{Value: sum, Inputs: map[string]any{"applied": applied}}, nil
}

func locationInputs(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	acts, err := env.Domain.ActivitiesOfLocation(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	out := make([]types.CalculationJob, 0, len(acts)+1)
	for _, a := range acts {
		if a.ActiveOn(key.Date) {
			out = append(out, job(types.KindActivityTotalTaskRisk, types.DatedKey(a.ID, key.Date)))
		}
	}
	return append(out, job(types.KindProjectLocationSiteConditionsMultiplier, key)), nil
}

func locationDependents(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	loc, err := env.Domain.Location(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	return []types.CalculationJob{job(types.KindTotalWorkPackageRisk, types.DatedKey(loc.WorkPackageID, key.Date))}, nil
}

// totalLocationRisk is Σ activity totals × (1 + site multiplier) scaled by
// the weighted contractor and supervisor factors. Missing factors count as
// absent.
func totalLocationRisk(withContractor bool) registry.CalcFunc {
	return func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
		key := in.Job.Key
		loc, err := in.Env.Domain.Location(ctx, key.ID)
		if err != nil {
			return registry.Result{}, err
		}
		wp, err := in.Env.Domain.WorkPackage(ctx, loc.WorkPackageID)
		if err != nil {
			return registry.Result{}, err
		}
		acts, err := in.Env.Domain.ActivitiesOfLocation(ctx, loc.ID)
		if err != nil {
			return registry.Result{}, err
		}
		totals := map[string]float64{}
		var sum float64
		for _, a := range acts {
			if !a.ActiveOn(key.Date) {
				continue
			}
			v, err := in.Value(ctx, types.KindActivityTotalTaskRisk, types.DatedKey(a.ID, key.Date))
			if err != nil {
				return registry.Result{}, err
			}
			totals[a.ID.String()] = v
			sum += v
		}
		site, err := in.Value(ctx, types.KindProjectLocationSiteConditionsMultiplier, key)
		if err != nil {
			return registry.Result{}, err
		}
		settings, err := loadSettings(ctx, in)
		if err != nil {
			return registry.Result{}, err
		}
		inputs := map[string]any{"activities": totals, "site_conditions_multiplier": site}
		factor := 1.0

		if withContractor && settings.ContractorWeight > 0 && wp.ContractorID != nil {
			rec, err := in.OptionalMetric(ctx, types.KindContractorSafetyScore, types.EntityKeyOf(*wp.ContractorID))
			if err != nil {
				return registry.Result{}, err
			}
			if rec != nil {
				inputs["contractor_safety_score"] = rec.Value
				factor += settings.ContractorWeight * math.Max(0, rec.Value)
			}
		}
		if settings.SupervisorWeight > 0 && len(loc.SupervisorIDs) > 0 {
			var found []float64
			for _, s := range loc.SupervisorIDs {
				rec, err := in.OptionalMetric(ctx, types.KindSupervisorEngagementFactor, types.EntityKeyOf(s))
				if err != nil {
					return registry.Result{}, err
				}
				if rec != nil {
					found = append(found, rec.Value)
				}
			}
			if len(found) > 0 {
				mean, _ := meanStdDev(found)
				inputs["supervisor_factor"] = mean
				factor += settings.SupervisorWeight * math.Max(0, mean)
			}
		}
		return registry.Result{
			Value:  sum * (1 + site) * factor,
			Inputs: inputs,
			Params: map[string]any{
				"contractor_weight": settings.ContractorWeight,
				"supervisor_weight": settings.SupervisorWeight,
			},
		}, nil
	}
}

func workPackageInputs(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	wp, err := env.Domain.WorkPackage(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	if !wp.ActiveOn(key.Date) {
		return nil, nil
	}
	locs, err := env.Domain.LocationsOfWorkPackage(ctx, wp.ID)
	if err != nil {
		return nil, err
	}
	out := make([]types.CalculationJob, 0, len(locs))
	for _, l := range locs {
		out = append(out, job(types.KindTotalLocationRisk, types.DatedKey(l.ID, key.Date)))
	}
	return out, nil
}

// totalWorkPackageRisk is the mean of location totals, or their sum for the
// stochastic model.
func totalWorkPackageRisk(sum bool) registry.CalcFunc {
	return func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
		jobs, err := workPackageInputs(ctx, in.Env, in.Job.Key)
		if err != nil {
			return registry.Result{}, err
		}
		totals := map[string]float64{}
		values := make([]float64, 0, len(jobs))
		for _, j := range jobs {
			v, err := in.Value(ctx, j.Kind, j.Key)
			if err != nil {
				return registry.Result{}, err
			}
			totals[j.Key.ID.String()] = v
			values = append(values, v)
		}
		value, _ := meanStdDev(values)
		if sum {
			value *= float64(len(values))
		}
		return registry.Result{Value: value, Inputs: map[string]any{"locations": totals}}, nil
	}
}
