// Package reactor is the application-facing entry point: it turns domain
// change events into calculation jobs on the shared queue and exposes the
// read-side ranking and explain facilities over the same collaborators.
package reactor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/riskreactor/internal/explain"
	"github.com/dwsmith1983/riskreactor/internal/metrics"
	"github.com/dwsmith1983/riskreactor/internal/queue"
	"github.com/dwsmith1983/riskreactor/internal/ranking"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/internal/trigger"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Reactor accepts trigger events and direct calculation requests.
type Reactor struct {
	reg      *registry.Registry
	env      *registry.Env
	queue    *queue.Queue
	expander *trigger.Expander
	ranking  *ranking.Engine
	explain  *explain.Explainer
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithLogger sets the reactor logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the instrument recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Reactor) { r.metrics = m }
}

// New creates a Reactor.
func New(reg *registry.Registry, env *registry.Env, q *queue.Queue, opts ...Option) *Reactor {
	r := &Reactor{reg: reg, env: env, queue: q, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	r.expander = trigger.NewExpander(env, trigger.WithLogger(r.logger))
	r.ranking = ranking.New(reg, env, r.logger)
	r.explain = explain.New(reg, env, 0)
	return r
}

// Add expands ev against the current domain and enqueues the resulting jobs.
// It returns how many were newly queued; the rest coalesced into pending
// entries. Replaying an event is harmless.
func (r *Reactor) Add(ctx context.Context, ev types.TriggerEvent) (int, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}
	jobs, err := r.expander.Expand(ctx, ev)
	if err != nil {
		return 0, fmt.Errorf("expand %s: %w", ev, err)
	}
	n, err := r.queue.AddAll(ctx, jobs)
	r.metrics.Trigger(ctx, string(ev.Type), len(jobs))
	if err != nil {
		return n, fmt.Errorf("enqueue %s: %w", ev, err)
	}
	r.logger.Info("trigger accepted", "trigger", ev.String(), "jobs", len(jobs), "queued", n)
	return n, nil
}

// AddCalc enqueues a single job. Variant kinds are queued under their
// canonical kind so the worker applies the tenant's current selection.
func (r *Reactor) AddCalc(ctx context.Context, job types.CalculationJob) (bool, error) {
	if err := job.Validate(); err != nil {
		return false, err
	}
	if _, ok := r.reg.Definition(job.Kind); !ok {
		return false, fmt.Errorf("no definition for %s", job.Kind)
	}
	job = types.NewJob(r.reg.Canonical(job.Kind), job.Key)
	added, err := r.queue.Add(ctx, job)
	if err != nil {
		return false, err
	}
	r.metrics.QueueAdd(ctx, string(job.Kind), added)
	r.logger.Debug("calculation queued", "job", job.Identity(), "added", added)
	return added, nil
}

// Registry returns the metric registry.
func (r *Reactor) Registry() *registry.Registry { return r.reg }

// Env returns the collaborators jobs run against.
func (r *Reactor) Env() *registry.Env { return r.env }

// Queue returns the shared queue.
func (r *Reactor) Queue() *queue.Queue { return r.queue }

// Ranking returns the ranking engine.
func (r *Reactor) Ranking() *ranking.Engine { return r.ranking }

// Explainer returns the explain facility.
func (r *Reactor) Explainer() *explain.Explainer { return r.explain }
