// Package schedule classifies job failures and computes retry backoff.
package schedule

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

const maxBackoff = time.Minute

// FailureCategory groups job errors by how the worker reacts to them.
type FailureCategory string

const (
	// FailureMissingInput means an input metric has no record yet; the
	// producing job is enqueued and the job retried later.
	FailureMissingInput FailureCategory = "MISSING_INPUT"
	// FailureTransient covers store and queue I/O errors wrapped as
	// types.ErrTransientStore, and interrupted work.
	FailureTransient FailureCategory = "TRANSIENT"
	// FailureTimeout means the job exceeded its soft deadline.
	FailureTimeout FailureCategory = "TIMEOUT"
	// FailurePermanent covers missing domain entities, missing configuration,
	// deterministic calculation errors and anything unrecognised.
	FailurePermanent FailureCategory = "PERMANENT"
	// FailureEncoding means the payload could not be decoded.
	FailureEncoding FailureCategory = "ENCODING"
)

// ClassifyFailure maps a job error to a FailureCategory.
func ClassifyFailure(err error) FailureCategory {
	switch {
	case errors.Is(err, types.ErrMissingMetric):
		return FailureMissingInput
	case errors.Is(err, types.ErrEncoding):
		return FailureEncoding
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, types.ErrMissingDependency),
		errors.Is(err, types.ErrMissingConfiguration),
		errors.Is(err, types.ErrDeterministicCalc):
		return FailurePermanent
	case errors.Is(err, types.ErrTransientStore),
		errors.Is(err, context.Canceled):
		return FailureTransient
	}
	return FailurePermanent
}

// IsRetryable reports whether a category is retried in place with backoff.
func IsRetryable(category FailureCategory) bool {
	return category == FailureTransient
}

// DefaultRetryPolicy returns the default in-job retry configuration.
func DefaultRetryPolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:       3,
		BackoffMillis:     100,
		BackoffMultiplier: 2.0,
		MaxBackoffMillis:  5000,
	}
}

// WithDefaults fills unset fields of p from DefaultRetryPolicy.
func WithDefaults(p types.RetryPolicy) types.RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BackoffMillis <= 0 {
		p.BackoffMillis = d.BackoffMillis
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = d.BackoffMultiplier
	}
	if p.MaxBackoffMillis <= 0 {
		p.MaxBackoffMillis = d.MaxBackoffMillis
	}
	return p
}

// CalculateBackoff returns the wait before the given attempt (1-based):
// base * multiplier^(attempt-1), capped at the policy maximum.
func CalculateBackoff(policy types.RetryPolicy, attempt int) time.Duration {
	base := float64(policy.BackoffMillis)
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	backoff := base
	if attempt > 1 {
		backoff = base * math.Pow(multiplier, float64(attempt-1))
	}
	limit := maxBackoff
	if policy.MaxBackoffMillis > 0 {
		limit = time.Duration(policy.MaxBackoffMillis) * time.Millisecond
	}
	d := time.Duration(backoff * float64(time.Millisecond))
	if d > limit || d < 0 {
		return limit
	}
	return d
}

// JitteredBackoff returns CalculateBackoff scaled uniformly into [d/2, d].
func JitteredBackoff(policy types.RetryPolicy, attempt int) time.Duration {
	d := CalculateBackoff(policy, attempt)
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
