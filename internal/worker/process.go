package worker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Outcome describes what processing one job did.
type Outcome struct {
	Job types.CalculationJob
	// Resolved is the variant actually computed for the tenant.
	Resolved types.CalculationJob
	Impl     types.Implementation
	// Skipped is set when the tenant has the family disabled.
	Skipped    bool
	Record     *types.MetricRecord
	Dependents []types.CalculationJob
}

// MissingInputsError lists every input that had no record when a job ran.
type MissingInputsError struct {
	Job     types.CalculationJob
	Missing []types.CalculationJob
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("%s: %d input(s) missing, first %s", e.Job, len(e.Missing), e.Missing[0])
}

// Is matches types.ErrMissingMetric.
func (e *MissingInputsError) Is(target error) bool { return target == types.ErrMissingMetric }

// MissingJobs returns the producing jobs named by a missing-metric error.
func MissingJobs(err error) []types.CalculationJob {
	var mi *MissingInputsError
	if errors.As(err, &mi) {
		return mi.Missing
	}
	var mm *types.MissingMetricError
	if errors.As(err, &mm) {
		return []types.CalculationJob{mm.Job()}
	}
	return nil
}

// Processor computes single jobs against an Env. It does not touch the queue.
type Processor struct {
	reg *registry.Registry
	env *registry.Env
}

// NewProcessor creates a Processor.
func NewProcessor(reg *registry.Registry, env *registry.Env) *Processor {
	return &Processor{reg: reg, env: env}
}

// Process resolves the tenant's implementation for job, loads its inputs,
// runs the calculation, resolves the dependents, stores the result and
// returns the dependents to enqueue. Dependents are not enqueued here.
func (p *Processor) Process(ctx context.Context, job types.CalculationJob) (Outcome, error) {
	out := Outcome{Job: job, Resolved: job}
	if err := job.Validate(); err != nil {
		return out, types.Encodingf("%v", err)
	}

	tenant, err := p.reg.Tenant(ctx, p.env, job)
	if err != nil {
		return out, fmt.Errorf("resolve tenant of %s: %w", job, err)
	}
	res, err := p.reg.Resolve(ctx, p.env.Config, job.Kind, tenant)
	if err != nil {
		return out, fmt.Errorf("resolve implementation of %s: %w", job, err)
	}
	out.Impl = res.Impl
	if !res.Active {
		out.Skipped = true
		return out, nil
	}
	resolved := types.NewJob(res.Kind, job.Key)
	out.Resolved = resolved

	def, ok := p.reg.Definition(res.Kind)
	if !ok {
		return out, fmt.Errorf("no definition for %s", res.Kind)
	}
	params, err := p.params(ctx, def, tenant)
	if err != nil {
		return out, err
	}

	asOf := p.env.Clock.Now()
	in := p.reg.NewInputs(p.env, resolved, res, &asOf, params)
	inputs, err := p.reg.Inputs(ctx, p.env, resolved)
	if err != nil {
		return out, fmt.Errorf("inputs of %s: %w", resolved, err)
	}
	missing, err := in.Preload(ctx, inputs)
	if err != nil {
		return out, fmt.Errorf("load inputs of %s: %w", resolved, err)
	}
	if len(missing) > 0 {
		return out, &MissingInputsError{Job: resolved, Missing: missing}
	}

	result, err := def.New().Calc(ctx, in)
	if err != nil {
		return out, fmt.Errorf("calc %s: %w", resolved, err)
	}
	if err := checkValue(def, result.Value); err != nil {
		return out, fmt.Errorf("calc %s: %w", resolved, err)
	}
	if result.Params == nil {
		result.Params = params
	}

	// Nothing may fail after the store.
	deps, err := p.reg.Dependents(ctx, p.env, resolved)
	if err != nil {
		return out, fmt.Errorf("dependents of %s: %w", resolved, err)
	}

	rec, err := p.env.Metrics.Store(ctx, types.MetricRecord{
		Kind:   res.Kind,
		Key:    job.Key,
		Value:  result.Value,
		StdDev: result.StdDev,
		Inputs: result.Inputs,
		Params: result.Params,
	})
	if err != nil {
		return out, fmt.Errorf("store %s: %w", resolved, err)
	}
	out.Record = &rec
	out.Dependents = deps
	return out, nil
}

func (p *Processor) params(ctx context.Context, def *registry.Definition, tenant uuid.UUID) (map[string]any, error) {
	out := make(map[string]any, len(def.DefaultParams))
	maps.Copy(out, def.DefaultParams)
	if def.Params == "" {
		return out, nil
	}
	stored, err := p.env.Metrics.LoadParameters(ctx, tenant, def.Params)
	if err != nil {
		return nil, fmt.Errorf("load parameters %s: %w", def.Params, err)
	}
	maps.Copy(out, stored)
	return out, nil
}

func checkValue(def *registry.Definition, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return types.Deterministicf("non-finite value %v", v)
	}
	if def.NonNegative && v < 0 {
		return types.Deterministicf("negative value %v", v)
	}
	return nil
}

// Compute runs job synchronously, first computing any missing inputs up to
// depth levels deep. Dependents are returned on each outcome, not enqueued.
func (p *Processor) Compute(ctx context.Context, job types.CalculationJob, depth int) ([]Outcome, error) {
	var outcomes []Outcome
	for {
		out, err := p.Process(ctx, job)
		if err == nil {
			return append(outcomes, out), nil
		}
		missing := MissingJobs(err)
		if len(missing) == 0 || depth <= 0 {
			return outcomes, err
		}
		for _, m := range missing {
			sub, err := p.Compute(ctx, types.NewJob(p.reg.Canonical(m.Kind), m.Key), depth-1)
			outcomes = append(outcomes, sub...)
			if err != nil {
				return outcomes, err
			}
		}
		depth--
	}
}
