// Package storetest provides shared conformance tests for metricstore.Store
// implementations. Call RunAll from a test function to verify a store
// satisfies the full behavioral contract.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// RunAll runs the complete metric store conformance suite as subtests.
func RunAll(t *testing.T, store metricstore.Store) {
	t.Helper()

	t.Run("StoreLoadLatest", func(t *testing.T) { TestStoreLoadLatest(t, store) })
	t.Run("PointInTime", func(t *testing.T) { TestPointInTime(t, store) })
	t.Run("MonotonicCalculatedAt", func(t *testing.T) { TestMonotonicCalculatedAt(t, store) })
	t.Run("ConcurrentWriters", func(t *testing.T) { TestConcurrentWriters(t, store) })
	t.Run("LoadBulk", func(t *testing.T) { TestLoadBulk(t, store) })
	t.Run("AggregateStdDev", func(t *testing.T) { TestAggregateStdDev(t, store) })
	t.Run("Parameters", func(t *testing.T) { TestParameters(t, store) })
	t.Run("RejectsMalformedKey", func(t *testing.T) { TestRejectsMalformedKey(t, store) })
}

func taskKey() types.EntityKey {
	return types.DatedKey(uuid.New(), types.MustDate("2024-01-15"))
}

// TestStoreLoadLatest validates that Load without as-of returns the newest version.
func TestStoreLoadLatest(t *testing.T, store metricstore.Store) {
	ctx := context.Background()
	key := taskKey()

	_, err := store.Load(ctx, types.KindTaskSpecificRisk, key, nil)
	require.ErrorIs(t, err, types.ErrMissingMetric)

	_, err = store.Store(ctx, types.MetricRecord{
		Kind: types.KindTaskSpecificRisk, Key: key, Value: 10,
		Inputs: map[string]any{"hesp": 10.0},
	})
	require.NoError(t, err)
	_, err = store.Store(ctx, types.MetricRecord{Kind: types.KindTaskSpecificRisk, Key: key, Value: 12})
	require.NoError(t, err)

	rec, err := store.Load(ctx, types.KindTaskSpecificRisk, key, nil)
	require.NoError(t, err)
	assert.Equal(t, 12.0, rec.Value)
	assert.Equal(t, key, rec.Key)

	hist, err := store.History(ctx, types.KindTaskSpecificRisk, key)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 10.0, hist[0].Value)
	assert.Equal(t, 10.0, hist[0].Inputs["hesp"])
}

// TestPointInTime validates as-of reads.
func TestPointInTime(t *testing.T, store metricstore.Store) {
	ctx := context.Background()
	key := taskKey()
	base := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

	for i, v := range []float64{1, 2, 3} {
		_, err := store.Store(ctx, types.MetricRecord{
			Kind: types.KindTaskSpecificRisk, Key: key, Value: v,
			CalculatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	before := base.Add(-time.Second)
	_, err := store.Load(ctx, types.KindTaskSpecificRisk, key, &before)
	require.ErrorIs(t, err, types.ErrMissingMetric)

	exact := base.Add(time.Hour)
	rec, err := store.Load(ctx, types.KindTaskSpecificRisk, key, &exact)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.Value)

	between := base.Add(90 * time.Minute)
	rec, err = store.Load(ctx, types.KindTaskSpecificRisk, key, &between)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.Value)

	later := base.Add(24 * time.Hour)
	rec, err = store.Load(ctx, types.KindTaskSpecificRisk, key, &later)
	require.NoError(t, err)
	assert.Equal(t, 3.0, rec.Value)
}

// TestMonotonicCalculatedAt validates that stale or tied timestamps are advanced.
func TestMonotonicCalculatedAt(t *testing.T, store metricstore.Store) {
	ctx := context.Background()
	key := taskKey()
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	first, err := store.Store(ctx, types.MetricRecord{Kind: types.KindTaskSpecificRisk, Key: key, Value: 1, CalculatedAt: at})
	require.NoError(t, err)
	tie, err := store.Store(ctx, types.MetricRecord{Kind: types.KindTaskSpecificRisk, Key: key, Value: 2, CalculatedAt: at})
	require.NoError(t, err)
	stale, err := store.Store(ctx, types.MetricRecord{Kind: types.KindTaskSpecificRisk, Key: key, Value: 3, CalculatedAt: at.Add(-time.Hour)})
	require.NoError(t, err)

	assert.True(t, tie.CalculatedAt.After(first.CalculatedAt))
	assert.True(t, stale.CalculatedAt.After(tie.CalculatedAt))

	rec, err := store.Load(ctx, types.KindTaskSpecificRisk, key, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, rec.Value, "insertion order breaks ties")
}

// TestConcurrentWriters validates strictly increasing versions under concurrent stores.
func TestConcurrentWriters(t *testing.T, store metricstore.Store) {
	ctx := context.Background()
	key := taskKey()
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, err := store.Store(ctx, types.MetricRecord{Kind: types.KindTaskSpecificRisk, Key: key, Value: v, CalculatedAt: at})
			errs <- err
		}(float64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hist, err := store.History(ctx, types.KindTaskSpecificRisk, key)
	require.NoError(t, err)
	require.Len(t, hist, n)
	for i := 1; i < len(hist); i++ {
		assert.True(t, hist[i].CalculatedAt.After(hist[i-1].CalculatedAt), "version %d not after %d", i, i-1)
	}
}

// TestLoadBulk validates vectorized reads skip missing keys.
func TestLoadBulk(t *testing.T, store metricstore.Store) {
	ctx := context.Background()
	a, b, missing := taskKey(), taskKey(), taskKey()

	for k, v := range map[types.EntityKey]float64{a: 1, b: 2} {
		_, err := store.Store(ctx, types.MetricRecord{Kind: types.KindTaskSpecificRisk, Key: k, Value: v})
		require.NoError(t, err)
	}

	got, err := store.LoadBulk(ctx, types.KindTaskSpecificRisk, []types.EntityKey{a, b, missing}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1.0, got[a].Value)
	assert.Equal(t, 2.0, got[b].Value)

	err = metricstore.RequireAll(types.KindTaskSpecificRisk, []types.EntityKey{a, missing}, got, nil)
	var mm *types.MissingMetricError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, missing, mm.Key)
}

// TestAggregateStdDev validates that aggregate kinds keep their deviation.
func TestAggregateStdDev(t *testing.T, store metricstore.Store) {
	ctx := context.Background()
	key := types.TenantKey(uuid.New())
	sd := 0.25

	_, err := store.Store(ctx, types.MetricRecord{Kind: types.KindGlobalContractorSafetyScore, Key: key, Value: 1.5, StdDev: &sd})
	require.NoError(t, err)

	rec, err := store.Load(ctx, types.KindGlobalContractorSafetyScore, key, nil)
	require.NoError(t, err)
	require.NotNil(t, rec.StdDev)
	assert.Equal(t, 0.25, *rec.StdDev)
}

// TestParameters validates tenant shadowing of parameter bundles.
func TestParameters(t *testing.T, store metricstore.Store) {
	ctx := context.Background()
	tenant := uuid.New()
	name := "TEST_PARAMS_" + uuid.NewString()

	got, err := store.LoadParameters(ctx, tenant, name)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.StoreParameters(ctx, uuid.Nil, name, map[string]any{"cap": 1.0}))
	got, err = store.LoadParameters(ctx, tenant, name)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got["cap"])

	require.NoError(t, store.StoreParameters(ctx, tenant, name, map[string]any{"cap": 2.0}))
	got, err = store.LoadParameters(ctx, tenant, name)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got["cap"])

	got, err = store.LoadParameters(ctx, uuid.New(), name)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got["cap"])
}

// TestRejectsMalformedKey validates key shape checking on write.
func TestRejectsMalformedKey(t *testing.T, store metricstore.Store) {
	_, err := store.Store(context.Background(), types.MetricRecord{
		Kind: types.KindTaskSpecificRisk, Key: types.EntityKeyOf(uuid.New()), Value: 1,
	})
	assert.Error(t, err)
}
