package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Inputs is the read view handed to a Calculation. Metric reads resolve
// canonical kinds to the tenant's active variant and are served from the
// preloaded set before falling back to the store at AsOf.
type Inputs struct {
	Env      *Env
	Job      types.CalculationJob
	TenantID uuid.UUID
	Impl     types.Implementation
	AsOf     *time.Time
	Params   map[string]any

	reg      *Registry
	loaded   map[types.CalculationJob]types.MetricRecord
	resolved map[types.MetricKind]Resolution
}

// NewInputs builds the input view for a resolved job.
func (r *Registry) NewInputs(env *Env, job types.CalculationJob, res Resolution, asOf *time.Time, params map[string]any) *Inputs {
	return &Inputs{
		Env:      env,
		Job:      job,
		TenantID: res.TenantID,
		Impl:     res.Impl,
		AsOf:     asOf,
		Params:   params,
		reg:      r,
		loaded:   map[types.CalculationJob]types.MetricRecord{},
		resolved: map[types.MetricKind]Resolution{},
	}
}

func (in *Inputs) resolve(ctx context.Context, kind types.MetricKind) (Resolution, error) {
	if res, ok := in.resolved[kind]; ok {
		return res, nil
	}
	res, err := in.reg.Resolve(ctx, in.Env.Config, kind, in.TenantID)
	if err != nil {
		return Resolution{}, err
	}
	in.resolved[kind] = res
	return res, nil
}

// ResolveJobs maps canonical jobs to the tenant's active variants, dropping
// jobs whose family is disabled.
func (in *Inputs) ResolveJobs(ctx context.Context, jobs []types.CalculationJob) ([]types.CalculationJob, error) {
	out := make([]types.CalculationJob, 0, len(jobs))
	for _, j := range jobs {
		res, err := in.resolve(ctx, j.Kind)
		if err != nil {
			return nil, err
		}
		if res.Active {
			out = append(out, types.NewJob(res.Kind, j.Key))
		}
	}
	return out, nil
}

// Preload bulk-loads the given canonical jobs and returns the resolved jobs
// that have no record at AsOf.
func (in *Inputs) Preload(ctx context.Context, jobs []types.CalculationJob) ([]types.CalculationJob, error) {
	resolved, err := in.ResolveJobs(ctx, jobs)
	if err != nil {
		return nil, err
	}
	byKind := map[types.MetricKind][]types.EntityKey{}
	var order []types.MetricKind
	for _, j := range resolved {
		if _, seen := byKind[j.Kind]; !seen {
			order = append(order, j.Kind)
		}
		byKind[j.Kind] = append(byKind[j.Kind], j.Key)
	}
	var missing []types.CalculationJob
	for _, kind := range order {
		keys := byKind[kind]
		got, err := in.Env.Metrics.LoadBulk(ctx, kind, keys, in.AsOf)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			rec, ok := got[k]
			if !ok {
				missing = append(missing, types.NewJob(kind, k))
				continue
			}
			in.loaded[types.NewJob(kind, k)] = rec
		}
	}
	return missing, nil
}

// Metric returns a required input. A disabled family is a deterministic
// error; an absent record is a *types.MissingMetricError.
func (in *Inputs) Metric(ctx context.Context, kind types.MetricKind, key types.EntityKey) (types.MetricRecord, error) {
	res, err := in.resolve(ctx, kind)
	if err != nil {
		return types.MetricRecord{}, err
	}
	if !res.Active {
		return types.MetricRecord{}, types.Deterministicf("%s is required by %s but disabled for tenant %s", kind, in.Job.Kind, in.TenantID)
	}
	job := types.NewJob(res.Kind, key)
	if rec, ok := in.loaded[job]; ok {
		return rec, nil
	}
	rec, err := in.Env.Metrics.Load(ctx, res.Kind, key, in.AsOf)
	if err != nil {
		return types.MetricRecord{}, err
	}
	in.loaded[job] = rec
	return rec, nil
}

// Value is Metric returning only the stored value.
func (in *Inputs) Value(ctx context.Context, kind types.MetricKind, key types.EntityKey) (float64, error) {
	rec, err := in.Metric(ctx, kind, key)
	if err != nil {
		return 0, err
	}
	return rec.Value, nil
}

// OptionalMetric returns nil when the input is disabled or has no record.
func (in *Inputs) OptionalMetric(ctx context.Context, kind types.MetricKind, key types.EntityKey) (*types.MetricRecord, error) {
	res, err := in.resolve(ctx, kind)
	if err != nil {
		return nil, err
	}
	if !res.Active {
		return nil, nil
	}
	rec, err := in.Metric(ctx, kind, key)
	switch {
	case err == nil:
		return &rec, nil
	case errors.Is(err, types.ErrMissingMetric):
		return nil, nil
	}
	return nil, err
}

// Float reads a numeric parameter.
func (in *Inputs) Float(name string, fallback float64) float64 {
	switch v := in.Params[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// Map reads a nested parameter object.
func (in *Inputs) Map(name string) map[string]any {
	m, _ := in.Params[name].(map[string]any)
	return m
}
