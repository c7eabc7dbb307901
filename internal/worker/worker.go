// Package worker runs the pool that drains the reactor queue: each worker
// fetches a job, computes it for the tenant's active implementation, stores
// the result and enqueues the dependents.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/riskreactor/internal/metrics"
	"github.com/dwsmith1983/riskreactor/internal/queue"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/internal/schedule"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Config tunes the pool.
type Config struct {
	Concurrency  int
	FetchTimeout time.Duration
	// SoftDeadline bounds a single job. A job that exceeds it is re-enqueued
	// once and then dropped.
	SoftDeadline time.Duration
	// MaxRequeues bounds how often one job identity is put back on the queue
	// for missing inputs or exhausted retries within this process.
	MaxRequeues int
	Retry       types.RetryPolicy
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:  runtime.NumCPU() * 4,
		FetchTimeout: 5 * time.Second,
		SoftDeadline: 30 * time.Second,
		MaxRequeues:  10,
		Retry:        schedule.DefaultRetryPolicy(),
	}
}

// ConfigFrom parses the YAML worker section over the defaults.
func ConfigFrom(wc types.WorkerConfig) (Config, error) {
	cfg := DefaultConfig()
	if wc.Concurrency > 0 {
		cfg.Concurrency = wc.Concurrency
	}
	if wc.MaxRequeues > 0 {
		cfg.MaxRequeues = wc.MaxRequeues
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"fetchTimeout", wc.FetchTimeout, &cfg.FetchTimeout},
		{"softDeadline", wc.SoftDeadline, &cfg.SoftDeadline},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("worker.%s: %w", d.name, err)
		}
		*d.dst = v
	}
	cfg.Retry = schedule.WithDefaults(wc.Retry)
	return cfg, nil
}

// Pool is a set of workers sharing one queue.
type Pool struct {
	proc    *Processor
	reg     *registry.Registry
	queue   *queue.Queue
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer

	mu       sync.Mutex
	requeues map[types.CalculationJob]int
	timeouts map[types.CalculationJob]int
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the instrument recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pool) { p.metrics = r }
}

// New creates a pool over q.
func New(reg *registry.Registry, env *registry.Env, q *queue.Queue, cfg Config, opts ...Option) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SoftDeadline <= 0 {
		cfg.SoftDeadline = DefaultConfig().SoftDeadline
	}
	cfg.Retry = schedule.WithDefaults(cfg.Retry)
	p := &Pool{
		proc:     NewProcessor(reg, env),
		reg:      reg,
		queue:    q,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer(metrics.MeterName),
		requeues: make(map[types.CalculationJob]int),
		timeouts: make(map[types.CalculationJob]int),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Processor returns the pool's single-job processor.
func (p *Pool) Processor() *Processor { return p.proc }

// Run starts Concurrency workers and blocks until ctx is cancelled. A worker
// that holds a job when ctx is cancelled finishes it, bounded by the soft
// deadline, before returning.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range p.cfg.Concurrency {
		id := ulid.Make().String()
		g.Go(func() error { return p.loop(gctx, id) })
	}
	p.logger.Info("worker pool started", "workers", p.cfg.Concurrency)
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, workerID string) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := p.queue.Fetch(ctx, p.cfg.FetchTimeout)
		switch {
		case err == nil:
			p.Handle(ctx, workerID, d)
		case errors.Is(err, types.ErrEmpty):
		case ctx.Err() != nil:
			return nil
		default:
			p.logger.Error("fetch failed", "worker", workerID, "error", err)
			if schedule.Sleep(ctx, schedule.JitteredBackoff(p.cfg.Retry, 1)) != nil {
				return nil
			}
		}
	}
}

// Drain processes jobs on the calling goroutine until the queue is empty and
// returns how many deliveries were handled.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	const workerID = "drain"
	n := 0
	for {
		d, err := p.queue.Fetch(ctx, 0)
		if errors.Is(err, types.ErrEmpty) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		p.Handle(ctx, workerID, d)
		n++
	}
}

// Handle processes one delivery and always acknowledges it. Follow-up jobs
// (dependents, missing inputs, retries) are enqueued before the ack.
func (p *Pool) Handle(ctx context.Context, workerID string, d queue.Delivery) {
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SoftDeadline)
	defer cancel()
	jobCtx, span := p.tracer.Start(jobCtx, "riskreactor.job", trace.WithAttributes(
		attribute.String("job.kind", string(d.Job.Kind)),
		attribute.String("job.key", d.Job.Key.Format(d.Job.Kind.Shape())),
		attribute.String("worker.id", workerID),
	))
	defer span.End()

	out, err := p.processWithRetry(jobCtx, workerID, d.Job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	settleCtx := context.WithoutCancel(ctx)
	outcome := p.settle(settleCtx, workerID, d.Job, out, err)
	span.SetAttributes(attribute.String("job.outcome", outcome))

	if err := p.queue.Ack(settleCtx, d); err != nil {
		p.logger.Error("ack failed", "job", d.Job.Identity(), "worker", workerID, "error", err)
	}
	p.metrics.Job(settleCtx, string(d.Job.Kind), outcome, time.Since(start))
}

func (p *Pool) processWithRetry(ctx context.Context, workerID string, job types.CalculationJob) (Outcome, error) {
	for attempt := 1; ; attempt++ {
		out, err := p.proc.Process(ctx, job)
		if err == nil || !schedule.IsRetryable(schedule.ClassifyFailure(err)) || attempt >= p.cfg.Retry.MaxAttempts {
			return out, err
		}
		wait := schedule.JitteredBackoff(p.cfg.Retry, attempt)
		p.logger.Warn("transient failure, retrying",
			"job", job.Identity(), "worker", workerID, "attempt", attempt, "backoff", wait, "error", err)
		p.metrics.Job(ctx, string(job.Kind), metrics.OutcomeRetried, 0)
		if serr := schedule.Sleep(ctx, wait); serr != nil {
			return out, fmt.Errorf("%w (retry interrupted: %w)", err, serr)
		}
	}
}

// settle enqueues follow-up work for a processed job and returns the outcome
// label.
func (p *Pool) settle(ctx context.Context, workerID string, job types.CalculationJob, out Outcome, err error) string {
	if err == nil {
		p.reset(job)
		if out.Skipped {
			p.logger.Debug("implementation inactive, skipping", "job", job.Identity(), "implementation", out.Impl)
			return metrics.OutcomeSkipped
		}
		n := p.enqueue(ctx, workerID, out.Dependents)
		p.metrics.FanOut(ctx, string(out.Resolved.Kind), n)
		p.logger.Debug("stored metric", "job", out.Resolved.Identity(), "worker", workerID,
			"value", out.Record.Value, "dependents", len(out.Dependents))
		return metrics.OutcomeStored
	}

	category := schedule.ClassifyFailure(err)
	switch category {
	case schedule.FailureMissingInput:
		n := p.bump(p.requeues, job)
		if n > p.cfg.MaxRequeues {
			p.reset(job)
			p.logger.Error("giving up on job with missing inputs",
				"job", job.Identity(), "worker", workerID, "attempt", n, "error", err)
			return metrics.OutcomeFailed
		}
		missing := MissingJobs(err)
		follow := make([]types.CalculationJob, 0, len(missing)+1)
		for _, m := range missing {
			follow = append(follow, types.NewJob(p.reg.Canonical(m.Kind), m.Key))
		}
		follow = append(follow, job)
		p.enqueue(ctx, workerID, follow)
		p.logger.Info("inputs missing, requeued",
			"job", job.Identity(), "worker", workerID, "attempt", n, "missing", len(missing))
		return metrics.OutcomeRequeued

	case schedule.FailureTimeout:
		if p.bump(p.timeouts, job) > 1 {
			p.resetTimeout(job)
			p.logger.Error("job exceeded soft deadline twice, dropping",
				"job", job.Identity(), "worker", workerID, "deadline", p.cfg.SoftDeadline, "error", err)
			return metrics.OutcomeFailed
		}
		p.enqueue(ctx, workerID, []types.CalculationJob{job})
		p.logger.Warn("job exceeded soft deadline, requeued",
			"job", job.Identity(), "worker", workerID, "deadline", p.cfg.SoftDeadline)
		return metrics.OutcomeTimedOut

	case schedule.FailureTransient:
		n := p.bump(p.requeues, job)
		if n > p.cfg.MaxRequeues {
			p.reset(job)
			p.logger.Error("transient failures exhausted",
				"job", job.Identity(), "worker", workerID, "attempt", n, "error", err)
			return metrics.OutcomeFailed
		}
		p.enqueue(ctx, workerID, []types.CalculationJob{job})
		p.logger.Warn("transient failure, requeued for a later cycle",
			"job", job.Identity(), "worker", workerID, "attempt", n, "error", err)
		return metrics.OutcomeRequeued
	}

	p.reset(job)
	p.logger.Error("job failed", "job", job.Identity(), "worker", workerID,
		"category", category, "error", err)
	return metrics.OutcomeFailed
}

func (p *Pool) enqueue(ctx context.Context, workerID string, jobs []types.CalculationJob) int {
	n := 0
	for _, j := range jobs {
		added, err := p.queue.Add(ctx, j)
		if err != nil {
			p.logger.Error("enqueue failed", "job", j.Identity(), "worker", workerID, "error", err)
			continue
		}
		p.metrics.QueueAdd(ctx, string(j.Kind), added)
		if added {
			n++
		}
	}
	return n
}

func (p *Pool) bump(m map[types.CalculationJob]int, job types.CalculationJob) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	m[job]++
	return m[job]
}

func (p *Pool) reset(job types.CalculationJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.requeues, job)
	delete(p.timeouts, job)
}

func (p *Pool) resetTimeout(job types.CalculationJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.timeouts, job)
}
