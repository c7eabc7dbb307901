// Package queue implements the reactor's shared job queue: a deduplicating
// FIFO with in-flight leases and a dead-letter list, over a pluggable backend.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

const (
	defaultLease          = 5 * time.Minute
	defaultInitialBackoff = 100 * time.Millisecond
	deadLetterCap         = 1000
)

// Backend is the shared store behind a Queue. Push and Pop must each be
// atomic across processes.
type Backend interface {
	// Push appends payload unless it is already pending; reports whether it was added.
	Push(ctx context.Context, payload string) (bool, error)
	// Pop removes the head payload, clears its pending mark and leases it
	// until leaseUntil under a token unique to this delivery. ok is false
	// when nothing is pending.
	Pop(ctx context.Context, leaseUntil time.Time) (lease Lease, ok bool, err error)
	// Ack releases the lease held under token. Other deliveries of the same
	// payload keep theirs.
	Ack(ctx context.Context, token string) error
	// Reap re-pushes up to limit payloads whose lease expired before now.
	Reap(ctx context.Context, now time.Time, limit int) (int, error)
	DeadLetter(ctx context.Context, letter DeadLetter) error
	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
	Stats(ctx context.Context) (Stats, error)
	// Wipe removes pending, in-flight and dead-lettered entries.
	Wipe(ctx context.Context) error
}

// Stats is a point-in-time view of the queue sizes.
type Stats struct {
	Pending  int64 `json:"pending"`
	InFlight int64 `json:"inFlight"`
	Dead     int64 `json:"dead"`
}

// DeadLetter is an undecodable payload set aside for inspection.
type DeadLetter struct {
	ID      string    `json:"id"`
	Payload string    `json:"payload"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// Lease is one delivery of a payload. A payload re-added while in flight may
// be leased again under a second token.
type Lease struct {
	Token   string
	Payload string
}

// Delivery is a fetched job together with the lease that acknowledges it.
type Delivery struct {
	Job     types.CalculationJob
	Payload string
	Token   string
}

// Queue encodes jobs onto a Backend and decodes them back for workers.
type Queue struct {
	backend        Backend
	injectables    []string
	bound          map[string]bool
	lease          time.Duration
	initialBackoff time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for dead letters and reaping.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithInjectables names the worker-local collaborators jobs expect to be
// re-bound on decode, and the ones this process has bound.
func WithInjectables(names []string, bound map[string]bool) Option {
	return func(q *Queue) {
		q.injectables = names
		q.bound = bound
	}
}

// WithLease sets how long a fetched job stays leased before it may be reaped.
func WithLease(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// WithClock overrides the clock used for lease deadlines.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithInitialBackoff sets the first idle poll interval.
func WithInitialBackoff(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.initialBackoff = d
		}
	}
}

// New creates a Queue over backend.
func New(backend Backend, opts ...Option) *Queue {
	q := &Queue{
		backend:        backend,
		bound:          map[string]bool{},
		lease:          defaultLease,
		initialBackoff: defaultInitialBackoff,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Add enqueues job. It returns false when an equal job was already pending.
func (q *Queue) Add(ctx context.Context, job types.CalculationJob) (bool, error) {
	payload, err := Encode(job, q.injectables)
	if err != nil {
		return false, err
	}
	added, err := q.backend.Push(ctx, payload)
	if err != nil {
		return false, types.Transient(fmt.Errorf("queue add %s: %w", job, err))
	}
	return added, nil
}

// AddAll enqueues jobs in order and returns how many were newly added.
func (q *Queue) AddAll(ctx context.Context, jobs []types.CalculationJob) (int, error) {
	n := 0
	for _, j := range jobs {
		added, err := q.Add(ctx, j)
		if err != nil {
			return n, err
		}
		if added {
			n++
		}
	}
	return n, nil
}

// Fetch waits up to timeout for the next job, polling with exponential
// backoff from the initial interval up to timeout. It returns types.ErrEmpty
// when nothing arrived. Undecodable payloads are dead-lettered and skipped.
func (q *Queue) Fetch(ctx context.Context, timeout time.Duration) (Delivery, error) {
	deadline := time.Now().Add(timeout)
	wait := q.initialBackoff
	for {
		lease, ok, err := q.backend.Pop(ctx, q.now().Add(q.lease))
		if err != nil {
			return Delivery{}, types.Transient(fmt.Errorf("queue fetch: %w", err))
		}
		if ok {
			job, err := Decode(lease.Payload, q.bound)
			if err == nil {
				return Delivery{Job: job, Payload: lease.Payload, Token: lease.Token}, nil
			}
			if dlErr := q.deadLetter(ctx, lease, err); dlErr != nil {
				return Delivery{}, dlErr
			}
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Delivery{}, types.ErrEmpty
		}
		timer := time.NewTimer(min(wait, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Delivery{}, ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, max(timeout, q.initialBackoff))
	}
}

// Ack releases a delivery's lease.
func (q *Queue) Ack(ctx context.Context, d Delivery) error {
	if err := q.backend.Ack(ctx, d.Token); err != nil {
		return types.Transient(fmt.Errorf("queue ack %s: %w", d.Job, err))
	}
	return nil
}

// IsEmpty reports whether nothing is pending. The answer may be stale by the
// time the caller acts on it.
func (q *Queue) IsEmpty(ctx context.Context) bool {
	s, err := q.backend.Stats(ctx)
	return err == nil && s.Pending == 0
}

// Idle reports whether nothing is pending or leased.
func (q *Queue) Idle(ctx context.Context) bool {
	s, err := q.backend.Stats(ctx)
	return err == nil && s.Pending == 0 && s.InFlight == 0
}

// Reap returns expired leases to the queue.
func (q *Queue) Reap(ctx context.Context, limit int) (int, error) {
	n, err := q.backend.Reap(ctx, q.now(), limit)
	if err != nil {
		return n, types.Transient(fmt.Errorf("queue reap: %w", err))
	}
	if n > 0 {
		q.logger.Warn("requeued expired leases", "count", n)
	}
	return n, nil
}

// Stats returns the current queue sizes.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	s, err := q.backend.Stats(ctx)
	if err != nil {
		return Stats{}, types.Transient(fmt.Errorf("queue stats: %w", err))
	}
	return s, nil
}

// DeadLetters lists up to limit of the most recent dead letters.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	return q.backend.DeadLetters(ctx, limit)
}

// Wipe clears the queue entirely.
func (q *Queue) Wipe(ctx context.Context) error {
	if err := q.backend.Wipe(ctx); err != nil {
		return fmt.Errorf("queue wipe: %w", err)
	}
	return nil
}

func (q *Queue) deadLetter(ctx context.Context, lease Lease, cause error) error {
	letter := DeadLetter{
		ID:      ulid.Make().String(),
		Payload: lease.Payload,
		Reason:  cause.Error(),
		At:      q.now(),
	}
	q.logger.Error("dead-lettering payload", "id", letter.ID, "reason", letter.Reason, "payload", lease.Payload)
	if err := q.backend.DeadLetter(ctx, letter); err != nil {
		return types.Transient(fmt.Errorf("queue dead-letter: %w", err))
	}
	if err := q.backend.Ack(ctx, lease.Token); err != nil {
		return types.Transient(fmt.Errorf("queue ack dead letter: %w", err))
	}
	return nil
}

// IsEmpty reports whether err is the empty-queue sentinel.
func IsEmpty(err error) bool { return errors.Is(err, types.ErrEmpty) }
