// Package types defines the public domain types for the risk model reactor.
package types

// Implementation selects which engine provides a metric for a tenant.
type Implementation string

// Implementation values enumerate the configurable metric engines.
const (
	RuleBasedEngine Implementation = "RULE_BASED_ENGINE"
	StochasticModel Implementation = "STOCHASTIC_MODEL"
	Disabled        Implementation = "DISABLED"
)

// Valid reports whether i is one of the known implementations.
func (i Implementation) Valid() bool {
	switch i {
	case RuleBasedEngine, StochasticModel, Disabled:
		return true
	}
	return false
}

// RiskLevel is the ordinal ranking of a stored score.
type RiskLevel string

// RiskLevel values in ascending order of severity; Unknown sorts first.
const (
	RiskUnknown RiskLevel = "UNKNOWN"
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
)

// Ordinal returns 0 for Unknown and 1..3 for Low..High.
func (l RiskLevel) Ordinal() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// IncidentSeverity classifies a recorded incident.
type IncidentSeverity string

// IncidentSeverity values, least to most severe.
const (
	SeverityNearMiss   IncidentSeverity = "near_miss"
	SeverityFirstAid   IncidentSeverity = "first_aid"
	SeverityRecordable IncidentSeverity = "recordable"
	SeverityRestricted IncidentSeverity = "restricted"
	SeverityLostTime   IncidentSeverity = "lost_time"
	SeverityPSIF       IncidentSeverity = "p_sif"
	SeveritySIF        IncidentSeverity = "sif"
)

// MetricStoreBackend names the persistence layer for metric records.
type MetricStoreBackend string

// MetricStoreBackend values.
const (
	BackendMemory   MetricStoreBackend = "memory"
	BackendPostgres MetricStoreBackend = "postgres"
	BackendDynamoDB MetricStoreBackend = "dynamodb"
)
