package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForRecords polls until the metric instance has at least n versions.
func WaitForRecords(t *testing.T, store metricstore.Store, kind types.MetricKind, key types.EntityKey, n int, timeout time.Duration) []types.MetricRecord {
	t.Helper()
	var recs []types.MetricRecord
	WaitFor(t, timeout, func() bool {
		got, err := store.History(context.Background(), kind, key)
		if err != nil {
			return false
		}
		recs = got
		return len(recs) >= n
	}, "records for "+types.NewJob(kind, key).Identity())
	return recs
}

// Versions returns how many records exist for the metric instance.
func Versions(t *testing.T, store metricstore.Store, kind types.MetricKind, key types.EntityKey) int {
	t.Helper()
	recs, err := store.History(context.Background(), kind, key)
	if err != nil {
		t.Fatalf("history %s: %v", types.NewJob(kind, key), err)
	}
	return len(recs)
}
