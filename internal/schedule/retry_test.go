package schedule

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

func TestCalculateBackoff(t *testing.T) {
	policy := types.RetryPolicy{
		BackoffMillis:     100,
		BackoffMultiplier: 2.0,
		MaxBackoffMillis:  1000,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
	}

	for _, tc := range tests {
		result := CalculateBackoff(policy, tc.attempt)
		assert.Equal(t, tc.expected, result, "attempt %d", tc.attempt)
	}
}

func TestCalculateBackoff_DefaultMultiplier(t *testing.T) {
	policy := types.RetryPolicy{BackoffMillis: 10}
	assert.Equal(t, 20*time.Millisecond, CalculateBackoff(policy, 2))
}

func TestCalculateBackoff_CapsWithoutPolicyMax(t *testing.T) {
	policy := types.RetryPolicy{BackoffMillis: 30_000, BackoffMultiplier: 4}
	assert.Equal(t, time.Minute, CalculateBackoff(policy, 3))
}

func TestJitteredBackoff_Bounds(t *testing.T) {
	policy := DefaultRetryPolicy()
	for attempt := 1; attempt <= 4; attempt++ {
		full := CalculateBackoff(policy, attempt)
		for range 50 {
			d := JitteredBackoff(policy, attempt)
			assert.GreaterOrEqual(t, d, full/2)
			assert.LessOrEqual(t, d, full)
		}
	}
	assert.Zero(t, JitteredBackoff(types.RetryPolicy{}, 1))
}

func TestClassifyFailure(t *testing.T) {
	key := types.EntityKeyOf(uuid.New())
	tests := []struct {
		name string
		err  error
		want FailureCategory
	}{
		{"missing metric", fmt.Errorf("calc: %w", types.MissingMetric(types.KindContractorSafetyHistory, key, nil)), FailureMissingInput},
		{"missing dependency", types.MissingDependency("task", uuid.New()), FailurePermanent},
		{"missing configuration", types.MissingConfiguration("RISK_MODEL.X.TYPE", uuid.New()), FailurePermanent},
		{"deterministic", types.Deterministicf("negative value %v", -1), FailurePermanent},
		{"encoding", types.Encodingf("bad"), FailureEncoding},
		{"timeout", fmt.Errorf("load: %w", context.DeadlineExceeded), FailureTimeout},
		{"transient", types.Transient(errors.New("connection reset")), FailureTransient},
		{"cancelled", fmt.Errorf("load: %w", context.Canceled), FailureTransient},
		{"transient missing configuration", types.Transient(types.MissingConfiguration("RISK_MODEL.X.TYPE", uuid.New())), FailurePermanent},
		{"unknown", errors.New("no definition for kind Nope"), FailurePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFailure(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(FailureTransient))
	assert.False(t, IsRetryable(FailureTimeout))
	assert.False(t, IsRetryable(FailurePermanent))
	assert.False(t, IsRetryable(FailureMissingInput))
	assert.False(t, IsRetryable(FailureEncoding))
}

func TestWithDefaults(t *testing.T) {
	p := WithDefaults(types.RetryPolicy{MaxAttempts: 7})
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, 100, p.BackoffMillis)
	assert.Equal(t, 2.0, p.BackoffMultiplier)
	assert.Equal(t, 5000, p.MaxBackoffMillis)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
