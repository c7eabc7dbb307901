// Package configstore holds tenant-scoped risk model configuration. Entries
// are (label, tenant, value); a tenant entry shadows the default entry
// stored with no tenant.
package configstore

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Family is a selectable metric family; each has TYPE, THRESHOLDS and WEIGHT labels.
type Family string

// Family values.
const (
	FamilyTaskSpecific         Family = "TASK_SPECIFIC_RISK_SCORE_METRIC"
	FamilyActivityTotalTask    Family = "ACTIVITY_TOTAL_TASK_RISK_SCORE_METRIC"
	FamilyProjectLocationTotal Family = "PROJECT_LOCATION_TOTAL_RISK_SCORE_METRIC"
	FamilyProjectTotal         Family = "PROJECT_TOTAL_RISK_SCORE_METRIC"
	FamilyContractor           Family = "CONTRACTOR_RISK_SCORE_METRIC"
	FamilySupervisor           Family = "SUPERVISOR_RISK_SCORE_METRIC"
	FamilyCrew                 Family = "CREW_RISK_SCORE_METRIC"
)

// Families lists every family in a stable order.
func Families() []Family {
	return []Family{
		FamilyTaskSpecific, FamilyActivityTotalTask, FamilyProjectLocationTotal,
		FamilyProjectTotal, FamilyContractor, FamilySupervisor, FamilyCrew,
	}
}

// TypeLabel selects the implementation for a family.
func (f Family) TypeLabel() string { return "RISK_MODEL." + string(f) + ".TYPE" }

// ThresholdsLabel holds the ranking thresholds for a family.
func (f Family) ThresholdsLabel() string { return "RISK_MODEL." + string(f) + ".THRESHOLDS" }

// WeightLabel holds the weight of a family's score in location totals.
func (f Family) WeightLabel() string { return "RISK_MODEL." + string(f) + ".WEIGHT" }

// Parameter bundle labels.
const (
	LabelSupervisorEngagement = "RISK_MODEL.SUPERVISOR_ENGAGEMENT_FACTOR.PARAMETERS"
	LabelSafetyClimate        = "RISK_MODEL.TASK_SPECIFIC_SAFETY_CLIMATE_MULTIPLIER.PARAMETERS"
)

// ValueKind is the JSON shape a label accepts.
type ValueKind int

// ValueKind values.
const (
	KindImplementation ValueKind = iota + 1
	KindThresholds
	KindNumber
	KindObject
)

// LabelDef describes one registered label.
type LabelDef struct {
	Label string
	Kind  ValueKind
	// Default is the application default; nil means none.
	Default json.RawMessage
	// Allowed restricts KindImplementation labels.
	Allowed []types.Implementation
}

// Thresholds are ranking cut-offs. Invariant: Low <= Medium.
type Thresholds struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
}

// SupervisorEngagementParams tunes SupervisorEngagementFactor.
type SupervisorEngagementParams struct {
	MaxLocations float64 `json:"maxLocations"`
}

// SafetyClimateParams tunes TaskSpecificSafetyClimateMultiplier.
type SafetyClimateParams struct {
	Cap float64 `json:"cap"`
}

var labels = map[string]LabelDef{}

func register(def LabelDef) { labels[def.Label] = def }

func rawJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func init() {
	both := []types.Implementation{types.RuleBasedEngine, types.StochasticModel, types.Disabled}
	for _, f := range Families() {
		def := LabelDef{Label: f.TypeLabel(), Kind: KindImplementation, Allowed: both,
			Default: rawJSON(types.RuleBasedEngine)}
		switch f {
		case FamilyContractor:
			def.Allowed = []types.Implementation{types.RuleBasedEngine, types.Disabled}
		case FamilyCrew:
			def.Allowed = []types.Implementation{types.StochasticModel, types.Disabled}
			def.Default = rawJSON(types.Disabled)
		}
		register(def)
		register(LabelDef{Label: f.ThresholdsLabel(), Kind: KindThresholds})
		register(LabelDef{Label: f.WeightLabel(), Kind: KindNumber, Default: rawJSON(0.0)})
	}
	register(LabelDef{Label: LabelSupervisorEngagement, Kind: KindObject,
		Default: rawJSON(SupervisorEngagementParams{MaxLocations: 5})})
	register(LabelDef{Label: LabelSafetyClimate, Kind: KindObject,
		Default: rawJSON(SafetyClimateParams{Cap: 1})})
}

// Lookup returns the definition of a registered label.
func Lookup(label string) (LabelDef, bool) {
	def, ok := labels[label]
	return def, ok
}

// Labels returns every registered label sorted by name.
func Labels() []LabelDef {
	out := make([]LabelDef, 0, len(labels))
	for _, d := range labels {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Validate checks value against the label's kind.
func (d LabelDef) Validate(value json.RawMessage) error {
	switch d.Kind {
	case KindImplementation:
		var impl types.Implementation
		if err := json.Unmarshal(value, &impl); err != nil {
			return fmt.Errorf("%s: expected implementation name: %w", d.Label, err)
		}
		for _, a := range d.Allowed {
			if a == impl {
				return nil
			}
		}
		return fmt.Errorf("%s: %q is not one of %v", d.Label, impl, d.Allowed)
	case KindThresholds:
		var th Thresholds
		if err := strictUnmarshal(value, &th); err != nil {
			return fmt.Errorf("%s: expected {low, medium}: %w", d.Label, err)
		}
		if th.Low > th.Medium {
			return fmt.Errorf("%s: low %v exceeds medium %v", d.Label, th.Low, th.Medium)
		}
		return nil
	case KindNumber:
		var f float64
		if err := json.Unmarshal(value, &f); err != nil {
			return fmt.Errorf("%s: expected number: %w", d.Label, err)
		}
		return nil
	case KindObject:
		var m map[string]any
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("%s: expected object: %w", d.Label, err)
		}
		return nil
	}
	return fmt.Errorf("%s: unknown value kind", d.Label)
}
