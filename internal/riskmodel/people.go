package riskmodel

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/domain"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func contractorDefinitions() []registry.Definition {
	rule := func(d registry.Definition) registry.Definition {
		d.Family, d.Impl = configstore.FamilyContractor, types.RuleBasedEngine
		return d
	}
	return []registry.Definition{
		rule(registry.Definition{
			Kind:          types.KindContractorSafetyHistory,
			Tenant:        contractorTenant,
			Dependents:    contractorScoreDependent,
			Params:        ParamsIncidentWeights,
			DefaultParams: DefaultIncidentWeights(),
			NonNegative:   true,
			New:           calc(contractorSafetyHistory),
		}),
		rule(registry.Definition{
			Kind:          types.KindContractorSafetyRating,
			Tenant:        contractorTenant,
			Dependents:    contractorScoreDependent,
			Params:        "CONTRACTOR_SAFETY_RATING",
			DefaultParams: map[string]any{"default_emr": 1.0},
			NonNegative:   true,
			New:           calc(contractorSafetyRating),
		}),
		rule(registry.Definition{
			Kind:        types.KindGlobalContractorProjectHistoryBaseline,
			Tenant:      keyTenant,
			Inputs:      tenantContractors(types.KindContractorSafetyHistory),
			Dependents:  tenantContractors(types.KindContractorSafetyScore),
			NonNegative: true,
			New: calc(func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
				return tenantAggregate(ctx, in, types.KindContractorSafetyHistory)
			}),
		}),
		rule(registry.Definition{
			Kind:       types.KindContractorSafetyScore,
			Tenant:     contractorTenant,
			Inputs:     contractorScoreInputs,
			Dependents: contractorScoreDependents,
			New:        calc(contractorSafetyScore),
		}),
		rule(registry.Definition{
			Kind:   types.KindGlobalContractorSafetyScore,
			Tenant: keyTenant,
			Inputs: tenantContractors(types.KindContractorSafetyScore),
			New: calc(func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
				return tenantAggregate(ctx, in, types.KindContractorSafetyScore)
			}),
		}),
	}
}

func contractorIDs(ctx context.Context, env *registry.Env, tenantID uuid.UUID) ([]uuid.UUID, error) {
	cs, err := env.Domain.Contractors(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ids(cs, func(c types.Contractor) uuid.UUID { return c.ID }), nil
}

func supervisorIDs(ctx context.Context, env *registry.Env, tenantID uuid.UUID) ([]uuid.UUID, error) {
	ss, err := env.Domain.Supervisors(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ids(ss, func(s types.Supervisor) uuid.UUID { return s.ID }), nil
}

func crewIDs(ctx context.Context, env *registry.Env, tenantID uuid.UUID) ([]uuid.UUID, error) {
	cs, err := env.Domain.Crews(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ids(cs, func(c types.Crew) uuid.UUID { return c.ID }), nil
}

// tenantMembers lists the entity ids an aggregate kind averages over.
func tenantMembers(ctx context.Context, env *registry.Env, kind types.MetricKind, tenantID uuid.UUID) ([]uuid.UUID, error) {
	switch kind {
	case types.KindContractorSafetyHistory, types.KindContractorSafetyScore:
		return contractorIDs(ctx, env, tenantID)
	case types.KindSupervisorEngagementFactor, types.KindSupervisorRelativePrecursorRisk:
		return supervisorIDs(ctx, env, tenantID)
	case types.KindCrewRisk:
		return crewIDs(ctx, env, tenantID)
	}
	return nil, nil
}

func tenantContractors(kind types.MetricKind) registry.JobsFunc {
	return func(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
		ids, err := contractorIDs(ctx, env, key.TenantID)
		if err != nil {
			return nil, err
		}
		return entityJobs(kind, ids), nil
	}
}

func tenantAggregate(ctx context.Context, in *registry.Inputs, kind types.MetricKind) (registry.Result, error) {
	members, err := tenantMembers(ctx, in.Env, kind, in.TenantID)
	if err != nil {
		return registry.Result{}, err
	}
	return aggregate(ctx, in, kind, members)
}

func contractorScoreDependent(_ context.Context, _ *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	return []types.CalculationJob{job(types.KindContractorSafetyScore, key)}, nil
}

// contractorSafetyHistory is the weighted incident sum per work package.
func contractorSafetyHistory(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	c := in.Job.Key.ID
	incidents, err := in.Env.Domain.Incidents(ctx, domain.IncidentFilter{TenantID: in.TenantID, ContractorID: &c})
	if err != nil {
		return registry.Result{}, err
	}
	wps, err := in.Env.Domain.WorkPackagesOfContractor(ctx, c)
	if err != nil {
		return registry.Result{}, err
	}
	sum, counts := incidentSum(in, incidents)
	n := math.Max(1, float64(len(wps)))
	return registry.Result{
		Value:  sum / n,
		Inputs: map[string]any{"incidents": counts, "work_packages": len(wps)},
	}, nil
}

func contractorSafetyRating(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	c, err := in.Env.Domain.Contractor(ctx, in.Job.Key.ID)
	if err != nil {
		return registry.Result{}, err
	}
	emr := in.Float("default_emr", 1.0)
	if c.ExperienceModRate != nil {
		emr = *c.ExperienceModRate
	}
	if emr < 0 || math.IsNaN(emr) {
		return registry.Result{}, types.Deterministicf("contractor %s has invalid experience modification rate %v", c.ID, emr)
	}
	return registry.Result{Value: emr, Inputs: map[string]any{"experience_mod_rate": emr}}, nil
}

func contractorScoreInputs(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	c, err := env.Domain.Contractor(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	return []types.CalculationJob{
		job(types.KindContractorSafetyHistory, key),
		job(types.KindContractorSafetyRating, key),
		job(types.KindGlobalContractorProjectHistoryBaseline, types.TenantKey(c.TenantID)),
	}, nil
}

func contractorScoreDependents(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	c, err := env.Domain.Contractor(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	out := []types.CalculationJob{job(types.KindGlobalContractorSafetyScore, types.TenantKey(c.TenantID))}
	chain, err := ContractorChain(ctx, env, c.ID)
	if err != nil {
		return nil, err
	}
	return append(out, chain...), nil
}

// ContractorChain emits the location totals of every work package the
// contractor holds.
func ContractorChain(ctx context.Context, env *registry.Env, contractorID uuid.UUID) ([]types.CalculationJob, error) {
	wps, err := env.Domain.WorkPackagesOfContractor(ctx, contractorID)
	if err != nil {
		return nil, err
	}
	var out []types.CalculationJob
	for _, wp := range wps {
		locs, err := env.Domain.LocationsOfWorkPackage(ctx, wp.ID)
		if err != nil {
			return nil, err
		}
		chain, err := LocationChain(ctx, env, locs)
		if err != nil {
			return nil, err
		}
		out = append(out, chain...)
	}
	return out, nil
}

// contractorSafetyScore is the history's z-score against the tenant baseline
// plus the rating's distance from 1.
func contractorSafetyScore(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	key := in.Job.Key
	history, err := in.Value(ctx, types.KindContractorSafetyHistory, key)
	if err != nil {
		return registry.Result{}, err
	}
	rating, err := in.Value(ctx, types.KindContractorSafetyRating, key)
	if err != nil {
		return registry.Result{}, err
	}
	baseline, err := in.Metric(ctx, types.KindGlobalContractorProjectHistoryBaseline, types.TenantKey(in.TenantID))
	if err != nil {
		return registry.Result{}, err
	}
	var z, sd float64
	if baseline.StdDev != nil {
		sd = *baseline.StdDev
	}
	if sd > 0 {
		z = (history - baseline.Value) / sd
	}
	return registry.Result{
		Value: z + (rating - 1),
		Inputs: map[string]any{
			"history":         history,
			"rating":          rating,
			"baseline_mean":   baseline.Value,
			"baseline_stddev": sd,
		},
	}, nil
}

func supervisorDefinitions() []registry.Definition {
	family := func(d registry.Definition) registry.Definition {
		d.Family = configstore.FamilySupervisor
		return d
	}
	return []registry.Definition{
		family(registry.Definition{
			Kind:        types.KindSupervisorEngagementFactor,
			Impl:        types.RuleBasedEngine,
			Tenant:      supervisorTenant,
			Dependents:  supervisorDependents,
			NonNegative: true,
			New:         calc(supervisorEngagementFactor),
		}),
		family(registry.Definition{
			Kind:          types.KindSupervisorRelativePrecursorRisk,
			Impl:          types.StochasticModel,
			Canonical:     types.KindSupervisorEngagementFactor,
			Tenant:        supervisorTenant,
			Dependents:    supervisorDependents,
			Params:        ParamsIncidentWeights,
			DefaultParams: DefaultIncidentWeights(),
			NonNegative:   true,
			New:           calc(supervisorPrecursorRisk),
		}),
		family(registry.Definition{
			Kind:        types.KindGlobalSupervisorEngagementFactor,
			Impl:        types.RuleBasedEngine,
			Tenant:      keyTenant,
			Inputs:      tenantSupervisors,
			NonNegative: true,
			New: calc(func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
				return tenantAggregate(ctx, in, types.KindSupervisorEngagementFactor)
			}),
		}),
		family(registry.Definition{
			Kind:        types.KindGlobalSupervisorRelativePrecursorRisk,
			Impl:        types.StochasticModel,
			Canonical:   types.KindGlobalSupervisorEngagementFactor,
			Tenant:      keyTenant,
			Inputs:      tenantSupervisors,
			NonNegative: true,
			New: calc(func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
				return tenantAggregate(ctx, in, types.KindSupervisorEngagementFactor)
			}),
		}),
	}
}

func tenantSupervisors(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	ids, err := supervisorIDs(ctx, env, key.TenantID)
	if err != nil {
		return nil, err
	}
	return entityJobs(types.KindSupervisorEngagementFactor, ids), nil
}

func supervisorDependents(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	s, err := env.Domain.Supervisor(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	out := []types.CalculationJob{job(types.KindGlobalSupervisorEngagementFactor, types.TenantKey(s.TenantID))}
	locs, err := env.Domain.LocationsOfSupervisor(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	chain, err := LocationChain(ctx, env, locs)
	if err != nil {
		return nil, err
	}
	return append(out, chain...), nil
}

// activeLocations counts the supervisor's locations whose work package is
// in scope today.
func activeLocations(ctx context.Context, in *registry.Inputs) (int, error) {
	locs, err := in.Env.Domain.LocationsOfSupervisor(ctx, in.Job.Key.ID)
	if err != nil {
		return 0, err
	}
	today := in.Env.Today()
	n := 0
	for _, l := range locs {
		wp, err := in.Env.Domain.WorkPackage(ctx, l.WorkPackageID)
		if err != nil {
			return 0, err
		}
		if wp.ActiveOn(today) {
			n++
		}
	}
	return n, nil
}

func supervisorEngagementFactor(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	n, err := activeLocations(ctx, in)
	if err != nil {
		return registry.Result{}, err
	}
	settings, err := loadSettings(ctx, in)
	if err != nil {
		return registry.Result{}, err
	}
	maxLocations := settings.Engagement.MaxLocations
	if maxLocations <= 0 {
		return registry.Result{}, types.Deterministicf("maxLocations must be positive, got %v", maxLocations)
	}
	return registry.Result{
		Value:  math.Min(1, float64(n)/maxLocations),
		Inputs: map[string]any{"active_locations": n},
		Params: map[string]any{"maxLocations": maxLocations},
	}, nil
}

func supervisorPrecursorRisk(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	s := in.Job.Key.ID
	incidents, err := in.Env.Domain.Incidents(ctx, domain.IncidentFilter{TenantID: in.TenantID, SupervisorID: &s})
	if err != nil {
		return registry.Result{}, err
	}
	n, err := activeLocations(ctx, in)
	if err != nil {
		return registry.Result{}, err
	}
	sum, counts := incidentSum(in, incidents)
	return registry.Result{
		Value:  sum / math.Max(1, float64(n)),
		Inputs: map[string]any{"incidents": counts, "active_locations": n},
	}, nil
}

func crewDefinitions() []registry.Definition {
	return []registry.Definition{
		{
			Kind:          types.KindCrewRisk,
			Family:        configstore.FamilyCrew,
			Impl:          types.StochasticModel,
			Tenant:        crewTenant,
			Dependents:    crewDependents,
			Params:        ParamsIncidentWeights,
			DefaultParams: DefaultIncidentWeights(),
			NonNegative:   true,
			New:           calc(crewRisk),
		},
		{
			Kind:   types.KindGlobalCrewRisk,
			Family: configstore.FamilyCrew,
			Impl:   types.StochasticModel,
			Tenant: keyTenant,
			Inputs: func(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
				ids, err := crewIDs(ctx, env, key.TenantID)
				if err != nil {
					return nil, err
				}
				return entityJobs(types.KindCrewRisk, ids), nil
			},
			NonNegative: true,
			New: calc(func(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
				return tenantAggregate(ctx, in, types.KindCrewRisk)
			}),
		},
	}
}

func crewDependents(ctx context.Context, env *registry.Env, key types.EntityKey) ([]types.CalculationJob, error) {
	c, err := env.Domain.Crew(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	return []types.CalculationJob{job(types.KindGlobalCrewRisk, types.TenantKey(c.TenantID))}, nil
}

func crewRisk(ctx context.Context, in *registry.Inputs) (registry.Result, error) {
	c := in.Job.Key.ID
	incidents, err := in.Env.Domain.Incidents(ctx, domain.IncidentFilter{TenantID: in.TenantID, CrewID: &c})
	if err != nil {
		return registry.Result{}, err
	}
	sum, counts := incidentSum(in, incidents)
	return registry.Result{Value: sum, Inputs: map[string]any{"incidents": counts}}, nil
}
