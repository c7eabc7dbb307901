package dynamodb

import (
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// PK/SK prefix constants.
const (
	prefixMetric  = "METRIC#"
	prefixVersion = "V#"
	prefixParams  = "PARAMS#"
	prefixName    = "NAME#"

	skHead = "HEAD"
)

// versionLayout sorts lexicographically in time order.
const versionLayout = "2006-01-02T15:04:05.000000Z"

func metricPK(kind types.MetricKind, key types.EntityKey) string {
	return prefixMetric + string(kind) + "#" + key.Format(kind.Shape())
}

func versionSK(at time.Time) string { return prefixVersion + at.UTC().Format(versionLayout) }

// versionUpperBound is the largest SK visible at asOf (all versions when nil).
func versionUpperBound(asOf *time.Time) string {
	if asOf == nil {
		return prefixVersion + "~"
	}
	return versionSK(asOf.UTC().Truncate(time.Microsecond))
}

func paramsPK(tenantID uuid.UUID) string { return prefixParams + tenantID.String() }
func paramsSK(name string) string        { return prefixName + name }

func parseVersion(s string) (time.Time, error) {
	return time.Parse(versionLayout, s)
}
