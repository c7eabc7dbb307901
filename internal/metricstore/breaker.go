package metricstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

var _ Store = (*Breaker)(nil)

// BreakerSettings tunes the circuit breaker around a backend.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// Breaker wraps a Store so repeated I/O failures fail fast. Failures surface
// as types.ErrTransientStore so the worker retries them later. Missing
// metrics and validation errors do not count against the breaker.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Store, s BreakerSettings, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "metricstore",
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, types.ErrTransientStore)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State reports the breaker state for health endpoints.
func (b *Breaker) State() string { return b.cb.State().String() }

func run[T any](b *Breaker, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, types.Transient(err)
	}
	if out == nil {
		var zero T
		return zero, err
	}
	return out.(T), err
}

// Store implements Store.
func (b *Breaker) Store(ctx context.Context, rec types.MetricRecord) (types.MetricRecord, error) {
	return run(b, func() (types.MetricRecord, error) { return b.next.Store(ctx, rec) })
}

// Load implements Store.
func (b *Breaker) Load(ctx context.Context, kind types.MetricKind, key types.EntityKey, asOf *time.Time) (types.MetricRecord, error) {
	return run(b, func() (types.MetricRecord, error) { return b.next.Load(ctx, kind, key, asOf) })
}

// LoadBulk implements Store.
func (b *Breaker) LoadBulk(ctx context.Context, kind types.MetricKind, keys []types.EntityKey, asOf *time.Time) (map[types.EntityKey]types.MetricRecord, error) {
	return run(b, func() (map[types.EntityKey]types.MetricRecord, error) {
		return b.next.LoadBulk(ctx, kind, keys, asOf)
	})
}

// History implements Store.
func (b *Breaker) History(ctx context.Context, kind types.MetricKind, key types.EntityKey) ([]types.MetricRecord, error) {
	return run(b, func() ([]types.MetricRecord, error) { return b.next.History(ctx, kind, key) })
}

// LoadParameters implements Store.
func (b *Breaker) LoadParameters(ctx context.Context, tenantID uuid.UUID, name string) (map[string]any, error) {
	return run(b, func() (map[string]any, error) { return b.next.LoadParameters(ctx, tenantID, name) })
}

// StoreParameters implements Store.
func (b *Breaker) StoreParameters(ctx context.Context, tenantID uuid.UUID, name string, values map[string]any) error {
	_, err := run(b, func() (struct{}, error) {
		return struct{}{}, b.next.StoreParameters(ctx, tenantID, name, values)
	})
	return err
}
