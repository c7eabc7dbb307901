// Package metricstore persists versioned metric records and calculation
// parameters. Records are append-only; readers select the latest version at
// or before a point in time.
package metricstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Resolution is the timestamp granularity every backend stores. Monotonic
// bumps advance calculated_at by one Resolution.
const Resolution = time.Microsecond

// Store is the metric persistence contract.
type Store interface {
	// Store appends rec. A zero CalculatedAt is set to now; a CalculatedAt not
	// after the latest stored version is advanced past it. The stored record
	// is returned.
	Store(ctx context.Context, rec types.MetricRecord) (types.MetricRecord, error)
	// Load returns the version with the greatest calculated_at <= asOf, or the
	// latest version when asOf is nil. It fails with *types.MissingMetricError.
	Load(ctx context.Context, kind types.MetricKind, key types.EntityKey, asOf *time.Time) (types.MetricRecord, error)
	// LoadBulk is the vectorized Load. Keys without a version are absent from
	// the result rather than an error.
	LoadBulk(ctx context.Context, kind types.MetricKind, keys []types.EntityKey, asOf *time.Time) (map[types.EntityKey]types.MetricRecord, error)
	// History returns every version of an instance, oldest first.
	History(ctx context.Context, kind types.MetricKind, key types.EntityKey) ([]types.MetricRecord, error)
	// LoadParameters returns the stored parameter bundle for name, preferring
	// the tenant's bundle over the default (uuid.Nil) one. It returns nil when
	// neither exists.
	LoadParameters(ctx context.Context, tenantID uuid.UUID, name string) (map[string]any, error)
	// StoreParameters upserts a parameter bundle. uuid.Nil stores the default.
	StoreParameters(ctx context.Context, tenantID uuid.UUID, name string, values map[string]any) error
}

// NextCalculatedAt returns the timestamp to store given the requested one and
// the latest stored one (zero when none).
func NextCalculatedAt(requested, latest time.Time, now func() time.Time) time.Time {
	at := requested
	if at.IsZero() {
		at = now()
	}
	at = at.UTC().Truncate(Resolution)
	if !latest.IsZero() && !at.After(latest) {
		at = latest.Add(Resolution)
	}
	return at
}

// RequireAll returns a MissingMetricError for the first key absent from got.
func RequireAll(kind types.MetricKind, keys []types.EntityKey, got map[types.EntityKey]types.MetricRecord, asOf *time.Time) error {
	for _, k := range keys {
		if _, ok := got[k]; !ok {
			return types.MissingMetric(kind, k, asOf)
		}
	}
	return nil
}

func validate(rec types.MetricRecord) error {
	return types.NewJob(rec.Kind, rec.Key).Validate()
}
