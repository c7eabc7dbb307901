package types

import (
	"fmt"
	"sort"
	"time"
)

// MetricKind identifies a concrete, stored metric.
type MetricKind string

// Dated work-package hierarchy.
const (
	KindTotalWorkPackageRisk                    MetricKind = "TotalWorkPackageRisk"
	KindTotalLocationRisk                       MetricKind = "TotalLocationRisk"
	KindActivityTotalTaskRisk                   MetricKind = "ActivityTotalTaskRisk"
	KindTaskSpecificRisk                        MetricKind = "TaskSpecificRisk"
	KindTaskSpecificSafetyClimateMultiplier     MetricKind = "TaskSpecificSafetyClimateMultiplier"
	KindTaskSpecificSiteConditionsMultiplier    MetricKind = "TaskSpecificSiteConditionsMultiplier"
	KindProjectLocationSiteConditionsMultiplier MetricKind = "ProjectLocationSiteConditionsMultiplier"
)

// Contractor, supervisor and crew scores.
const (
	KindContractorSafetyHistory                MetricKind = "ContractorSafetyHistory"
	KindContractorSafetyRating                 MetricKind = "ContractorSafetyRating"
	KindGlobalContractorProjectHistoryBaseline MetricKind = "GlobalContractorProjectHistoryBaseline"
	KindContractorSafetyScore                  MetricKind = "ContractorSafetyScore"
	KindGlobalContractorSafetyScore            MetricKind = "GlobalContractorSafetyScore"
	KindSupervisorEngagementFactor             MetricKind = "SupervisorEngagementFactor"
	KindGlobalSupervisorEngagementFactor       MetricKind = "GlobalSupervisorEngagementFactor"
	KindSupervisorRelativePrecursorRisk        MetricKind = "SupervisorRelativePrecursorRisk"
	KindGlobalSupervisorRelativePrecursorRisk  MetricKind = "GlobalSupervisorRelativePrecursorRisk"
	KindCrewRisk                               MetricKind = "CrewRisk"
	KindGlobalCrewRisk                         MetricKind = "GlobalCrewRisk"
)

// Stochastic model kinds.
const (
	KindLibraryTaskRelativePrecursorRisk                    MetricKind = "LibraryTaskRelativePrecursorRisk"
	KindLibrarySiteConditionRelativePrecursorRisk           MetricKind = "LibrarySiteConditionRelativePrecursorRisk"
	KindStochasticActivitySiteConditionRelativePrecursorRisk MetricKind = "StochasticActivitySiteConditionRelativePrecursorRisk"
	KindStochasticTaskSpecific                              MetricKind = "StochasticTaskSpecific"
	KindStochasticActivityTotalTask                         MetricKind = "StochasticActivityTotalTask"
	KindStochasticTotalLocation                             MetricKind = "StochasticTotalLocation"
	KindStochasticTotalWorkPackage                          MetricKind = "StochasticTotalWorkPackage"
)

// KeyShape describes which EntityKey fields a kind uses.
type KeyShape int

// KeyShape values.
const (
	// ShapeTenant keys by tenant only.
	ShapeTenant KeyShape = iota + 1
	// ShapeEntity keys by a single entity id.
	ShapeEntity
	// ShapeEntityTenant keys by entity id and tenant.
	ShapeEntityTenant
	// ShapeEntityDate keys by entity id and calendar day.
	ShapeEntityDate
)

// Columns returns the storage column names for the shape, in key order.
func (s KeyShape) Columns() []string {
	switch s {
	case ShapeTenant:
		return []string{"tenant_id"}
	case ShapeEntity:
		return []string{"entity_id"}
	case ShapeEntityTenant:
		return []string{"entity_id", "tenant_id"}
	case ShapeEntityDate:
		return []string{"entity_id", "date"}
	}
	return nil
}

// KindSpec is the static description of a metric kind.
type KindSpec struct {
	Kind  MetricKind
	Shape KeyShape
	// Table is the storage table (or item prefix) for the kind.
	Table string
	// Aggregate kinds record an average with a standard deviation.
	Aggregate bool
}

var kindSpecs = map[MetricKind]KindSpec{}

func defineKind(kind MetricKind, shape KeyShape, table string, aggregate bool) {
	kindSpecs[kind] = KindSpec{Kind: kind, Shape: shape, Table: table, Aggregate: aggregate}
}

func init() {
	defineKind(KindTotalWorkPackageRisk, ShapeEntityDate, "rm_total_work_package_risk", false)
	defineKind(KindTotalLocationRisk, ShapeEntityDate, "rm_total_location_risk", false)
	defineKind(KindActivityTotalTaskRisk, ShapeEntityDate, "rm_activity_total_task_risk", false)
	defineKind(KindTaskSpecificRisk, ShapeEntityDate, "rm_task_specific_risk", false)
	defineKind(KindTaskSpecificSafetyClimateMultiplier, ShapeEntityTenant, "rm_task_safety_climate_multiplier", false)
	defineKind(KindTaskSpecificSiteConditionsMultiplier, ShapeEntityDate, "rm_task_site_conditions_multiplier", false)
	defineKind(KindProjectLocationSiteConditionsMultiplier, ShapeEntityDate, "rm_location_site_conditions_multiplier", false)

	defineKind(KindContractorSafetyHistory, ShapeEntity, "rm_contractor_safety_history", false)
	defineKind(KindContractorSafetyRating, ShapeEntity, "rm_contractor_safety_rating", false)
	defineKind(KindGlobalContractorProjectHistoryBaseline, ShapeTenant, "rm_global_contractor_history_baseline", true)
	defineKind(KindContractorSafetyScore, ShapeEntity, "rm_contractor_safety_score", false)
	defineKind(KindGlobalContractorSafetyScore, ShapeTenant, "rm_global_contractor_safety_score", true)
	defineKind(KindSupervisorEngagementFactor, ShapeEntity, "rm_supervisor_engagement_factor", false)
	defineKind(KindGlobalSupervisorEngagementFactor, ShapeTenant, "rm_global_supervisor_engagement_factor", true)
	defineKind(KindSupervisorRelativePrecursorRisk, ShapeEntity, "rm_supervisor_precursor_risk", false)
	defineKind(KindGlobalSupervisorRelativePrecursorRisk, ShapeTenant, "rm_global_supervisor_precursor_risk", true)
	defineKind(KindCrewRisk, ShapeEntity, "rm_crew_risk", false)
	defineKind(KindGlobalCrewRisk, ShapeTenant, "rm_global_crew_risk", true)

	defineKind(KindLibraryTaskRelativePrecursorRisk, ShapeEntity, "rm_library_task_precursor_risk", false)
	defineKind(KindLibrarySiteConditionRelativePrecursorRisk, ShapeEntity, "rm_library_site_condition_precursor_risk", false)
	defineKind(KindStochasticActivitySiteConditionRelativePrecursorRisk, ShapeEntityDate, "rm_activity_site_condition_precursor_risk", false)
	defineKind(KindStochasticTaskSpecific, ShapeEntityDate, "rm_stochastic_task_specific", false)
	defineKind(KindStochasticActivityTotalTask, ShapeEntityDate, "rm_stochastic_activity_total_task", false)
	defineKind(KindStochasticTotalLocation, ShapeEntityDate, "rm_stochastic_total_location", false)
	defineKind(KindStochasticTotalWorkPackage, ShapeEntityDate, "rm_stochastic_total_work_package", false)
}

// Spec returns the static description of the kind.
func (k MetricKind) Spec() (KindSpec, bool) {
	s, ok := kindSpecs[k]
	return s, ok
}

// Valid reports whether k is a known kind.
func (k MetricKind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// Shape returns the key shape, or 0 for unknown kinds.
func (k MetricKind) Shape() KeyShape { return kindSpecs[k].Shape }

// AllKinds returns every known kind sorted by name.
func AllKinds() []MetricKind {
	out := make([]MetricKind, 0, len(kindSpecs))
	for k := range kindSpecs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseMetricKind validates a kind name.
func ParseMetricKind(s string) (MetricKind, error) {
	k := MetricKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown metric kind %q", s)
	}
	return k, nil
}

// MetricRecord is one stored version of a metric instance.
type MetricRecord struct {
	Kind         MetricKind     `json:"kind"`
	Key          EntityKey      `json:"key"`
	CalculatedAt time.Time      `json:"calculatedAt"`
	Value        float64        `json:"value"`
	StdDev       *float64       `json:"stddev,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

// CalculationJob names one metric instance to recompute. Jobs are comparable
// and two jobs with equal kind and key are the same unit of work.
type CalculationJob struct {
	Kind MetricKind `json:"kind"`
	Key  EntityKey  `json:"key"`
}

// NewJob builds a job for kind and key.
func NewJob(kind MetricKind, key EntityKey) CalculationJob {
	return CalculationJob{Kind: kind, Key: key}
}

// Identity is the stable string form used for dedup and logging.
func (j CalculationJob) Identity() string {
	return string(j.Kind) + "(" + j.Key.Format(j.Kind.Shape()) + ")"
}

func (j CalculationJob) String() string { return j.Identity() }

// Validate checks that the key carries every field the kind needs.
func (j CalculationJob) Validate() error {
	spec, ok := j.Kind.Spec()
	if !ok {
		return fmt.Errorf("unknown metric kind %q", j.Kind)
	}
	return j.Key.Validate(spec.Shape)
}

// ParseJob parses a kind name and a key in the kind's Format layout.
func ParseJob(kind, key string) (CalculationJob, error) {
	k, err := ParseMetricKind(kind)
	if err != nil {
		return CalculationJob{}, err
	}
	ek, err := ParseKey(k.Shape(), key)
	if err != nil {
		return CalculationJob{}, err
	}
	return NewJob(k, ek), nil
}
