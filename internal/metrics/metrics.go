// Package metrics exposes worker and queue instruments through OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every instrument here.
const MeterName = "github.com/dwsmith1983/riskreactor"

// Job outcomes recorded on JobsTotal.
const (
	OutcomeStored       = "stored"
	OutcomeSkipped      = "skipped"
	OutcomeRequeued     = "requeued"
	OutcomeRetried      = "retried"
	OutcomeFailed       = "failed"
	OutcomeTimedOut     = "timed_out"
	OutcomeDeadLettered = "dead_lettered"
)

// Recorder holds the reactor's instruments. A nil *Recorder records nothing.
type Recorder struct {
	JobsTotal     metric.Int64Counter
	JobDuration   metric.Float64Histogram
	QueueAdds     metric.Int64Counter
	FanOutJobs    metric.Int64Counter
	TriggersTotal metric.Int64Counter
	LeasesReaped  metric.Int64Counter
}

// New registers the instruments on meter.
func New(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	if r.JobsTotal, err = meter.Int64Counter("riskreactor_jobs_total",
		metric.WithDescription("Calculation jobs handled, by kind and outcome"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("create jobs_total: %w", err)
	}
	if r.JobDuration, err = meter.Float64Histogram("riskreactor_job_duration_seconds",
		metric.WithDescription("Calculation job duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30)); err != nil {
		return nil, fmt.Errorf("create job_duration: %w", err)
	}
	if r.QueueAdds, err = meter.Int64Counter("riskreactor_queue_adds_total",
		metric.WithDescription("Queue adds, by whether they were coalesced"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("create queue_adds_total: %w", err)
	}
	if r.FanOutJobs, err = meter.Int64Counter("riskreactor_fanout_jobs_total",
		metric.WithDescription("Dependent jobs emitted after a store"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("create fanout_jobs_total: %w", err)
	}
	if r.TriggersTotal, err = meter.Int64Counter("riskreactor_triggers_total",
		metric.WithDescription("Trigger events expanded, by type"),
		metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("create triggers_total: %w", err)
	}
	if r.LeasesReaped, err = meter.Int64Counter("riskreactor_leases_reaped_total",
		metric.WithDescription("Expired in-flight leases returned to the queue"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("create leases_reaped_total: %w", err)
	}
	return r, nil
}

// Default registers the instruments on the global meter provider, which is
// a no-op until telemetry is configured.
func Default() *Recorder {
	r, err := New(otel.Meter(MeterName))
	if err != nil {
		return nil
	}
	return r
}

// Job records one handled job.
func (r *Recorder) Job(ctx context.Context, kind, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("outcome", outcome))
	r.JobsTotal.Add(ctx, 1, attrs)
	r.JobDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// QueueAdd records an add and whether it was coalesced into a pending job.
func (r *Recorder) QueueAdd(ctx context.Context, kind string, added bool) {
	if r == nil {
		return
	}
	r.QueueAdds.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind), attribute.Bool("coalesced", !added)))
}

// FanOut records dependents emitted by a stored metric.
func (r *Recorder) FanOut(ctx context.Context, kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.FanOutJobs.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// Trigger records an expanded trigger event.
func (r *Recorder) Trigger(ctx context.Context, triggerType string, jobs int) {
	if r == nil {
		return
	}
	r.TriggersTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", triggerType), attribute.Int("jobs", jobs)))
}

// Reaped records leases returned by the watchdog.
func (r *Recorder) Reaped(ctx context.Context, n int) {
	if r == nil || n == 0 {
		return
	}
	r.LeasesReaped.Add(ctx, int64(n))
}
