// Package riskmodel defines every metric kind of the risk model: its
// tenant, its inputs, the dependents it invalidates and its formula.
package riskmodel

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// ParamsIncidentWeights names the parameter bundle mapping incident severity
// to its contribution.
const ParamsIncidentWeights = "INCIDENT_SEVERITY_WEIGHTS"

// DefaultIncidentWeights are used when no bundle is stored.
func DefaultIncidentWeights() map[string]any {
	return map[string]any{
		string(types.SeverityNearMiss):   0.003,
		string(types.SeverityFirstAid):   0.007,
		string(types.SeverityRecordable): 0.033,
		string(types.SeverityRestricted): 0.033,
		string(types.SeverityLostTime):   0.067,
		string(types.SeverityPSIF):       0.134,
		string(types.SeveritySIF):        0.2,
	}
}

// modelSettings are the tenant-scoped labels calculations read directly.
type modelSettings struct {
	Climate          configstore.SafetyClimateParams        `config:"RISK_MODEL.TASK_SPECIFIC_SAFETY_CLIMATE_MULTIPLIER.PARAMETERS"`
	Engagement       configstore.SupervisorEngagementParams `config:"RISK_MODEL.SUPERVISOR_ENGAGEMENT_FACTOR.PARAMETERS"`
	ContractorWeight float64                                `config:"RISK_MODEL.CONTRACTOR_RISK_SCORE_METRIC.WEIGHT"`
	SupervisorWeight float64                                `config:"RISK_MODEL.SUPERVISOR_RISK_SCORE_METRIC.WEIGHT"`
}

func loadSettings(ctx context.Context, in *registry.Inputs) (modelSettings, error) {
	return configstore.Load[modelSettings](ctx, in.Env.Config, in.TenantID)
}

// NewRegistry builds the static registry of every metric kind.
func NewRegistry() (*registry.Registry, error) {
	return registry.New(Definitions()...)
}

// Definitions returns the definition of every metric kind.
func Definitions() []registry.Definition {
	var defs []registry.Definition
	defs = append(defs, taskDefinitions()...)
	defs = append(defs, locationDefinitions()...)
	defs = append(defs, contractorDefinitions()...)
	defs = append(defs, supervisorDefinitions()...)
	defs = append(defs, crewDefinitions()...)
	defs = append(defs, libraryDefinitions()...)
	return defs
}

func calc(fn registry.CalcFunc) func() registry.Calculation {
	return func() registry.Calculation { return fn }
}

func job(kind types.MetricKind, key types.EntityKey) types.CalculationJob {
	return types.NewJob(kind, key)
}

// Tenant resolvers.

func keyTenant(_ context.Context, _ *registry.Env, key types.EntityKey) (uuid.UUID, error) {
	return key.TenantID, nil
}

func libraryTenant(context.Context, *registry.Env, types.EntityKey) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func taskTenant(ctx context.Context, env *registry.Env, key types.EntityKey) (uuid.UUID, error) {
	t, err := env.Domain.Task(ctx, key.ID)
	return t.TenantID, err
}

func activityTenant(ctx context.Context, env *registry.Env, key types.EntityKey) (uuid.UUID, error) {
	a, err := env.Domain.Activity(ctx, key.ID)
	return a.TenantID, err
}

func locationTenant(ctx context.Context, env *registry.Env, key types.EntityKey) (uuid.UUID, error) {
	l, err := env.Domain.Location(ctx, key.ID)
	return l.TenantID, err
}

func workPackageTenant(ctx context.Context, env *registry.Env, key types.EntityKey) (uuid.UUID, error) {
	w, err := env.Domain.WorkPackage(ctx, key.ID)
	return w.TenantID, err
}

func contractorTenant(ctx context.Context, env *registry.Env, key types.EntityKey) (uuid.UUID, error) {
	c, err := env.Domain.Contractor(ctx, key.ID)
	return c.TenantID, err
}

func supervisorTenant(ctx context.Context, env *registry.Env, key types.EntityKey) (uuid.UUID, error) {
	s, err := env.Domain.Supervisor(ctx, key.ID)
	return s.TenantID, err
}

func crewTenant(ctx context.Context, env *registry.Env, key types.EntityKey) (uuid.UUID, error) {
	c, err := env.Domain.Crew(ctx, key.ID)
	return c.TenantID, err
}

// incidentSum adds the severity weights of incidents.
func incidentSum(in *registry.Inputs, incidents []types.Incident) (float64, map[string]int) {
	var sum float64
	counts := map[string]int{}
	for _, inc := range incidents {
		sum += in.Float(string(inc.Severity), 0)
		counts[string(inc.Severity)]++
	}
	return sum, counts
}

// meanStdDev returns the population mean and standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// aggregate computes mean and standard deviation over one input per entity.
func aggregate(ctx context.Context, in *registry.Inputs, kind types.MetricKind, ids []uuid.UUID) (registry.Result, error) {
	values := make([]float64, 0, len(ids))
	byID := make(map[string]float64, len(ids))
	for _, id := range ids {
		v, err := in.Value(ctx, kind, types.EntityKeyOf(id))
		if err != nil {
			return registry.Result{}, err
		}
		values = append(values, v)
		byID[id.String()] = v
	}
	mean, sd := meanStdDev(values)
	return registry.Result{Value: mean, StdDev: &sd, Inputs: map[string]any{string(kind): byID}}, nil
}

// entityJobs emits kind for each id keyed by entity.
func entityJobs(kind types.MetricKind, ids []uuid.UUID) []types.CalculationJob {
	out := make([]types.CalculationJob, 0, len(ids))
	for _, id := range ids {
		out = append(out, job(kind, types.EntityKeyOf(id)))
	}
	return out
}

func ids[T any](items []T, id func(T) uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}
