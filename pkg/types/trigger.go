package types

import (
	"fmt"

	"github.com/google/uuid"
)

// TriggerType tags a TriggerEvent variant.
type TriggerType string

// TriggerType values enumerate the domain changes the reactor reacts to.
const (
	TriggerWorkPackageChanged               TriggerType = "WorkPackageChanged"
	TriggerLocationChanged                  TriggerType = "LocationChanged"
	TriggerActivityChanged                  TriggerType = "ActivityChanged"
	TriggerActivityDeleted                  TriggerType = "ActivityDeleted"
	TriggerTaskChanged                      TriggerType = "TaskChanged"
	TriggerTaskDeleted                      TriggerType = "TaskDeleted"
	TriggerUpdateTaskRisk                   TriggerType = "UpdateTaskRisk"
	TriggerContractorDataChanged            TriggerType = "ContractorDataChanged"
	TriggerContractorDataChangedForTenant   TriggerType = "ContractorDataChangedForTenant"
	TriggerSupervisorDataChanged            TriggerType = "SupervisorDataChanged"
	TriggerSupervisorDataChangedForTenant   TriggerType = "SupervisorDataChangedForTenant"
	TriggerSupervisorsChangedForWorkPackage TriggerType = "SupervisorsChangedForWorkPackage"
	TriggerSupervisorChangedForLocation     TriggerType = "SupervisorChangedForLocation"
	TriggerContractorChangedForWorkPackage  TriggerType = "ContractorChangedForWorkPackage"
	TriggerCrewDataChangedForTenant         TriggerType = "CrewDataChangedForTenant"
	TriggerIncidentChanged                  TriggerType = "IncidentChanged"
	TriggerLibraryTaskDataChanged           TriggerType = "LibraryTaskDataChanged"
	TriggerLocationSiteConditionsChanged    TriggerType = "LocationSiteConditionsChanged"
)

var triggerTypes = map[TriggerType]bool{
	TriggerWorkPackageChanged: true, TriggerLocationChanged: true, TriggerActivityChanged: true,
	TriggerActivityDeleted: true, TriggerTaskChanged: true, TriggerTaskDeleted: true,
	TriggerUpdateTaskRisk: true, TriggerContractorDataChanged: true,
	TriggerContractorDataChangedForTenant: true, TriggerSupervisorDataChanged: true,
	TriggerSupervisorDataChangedForTenant: true, TriggerSupervisorsChangedForWorkPackage: true,
	TriggerSupervisorChangedForLocation: true, TriggerContractorChangedForWorkPackage: true,
	TriggerCrewDataChangedForTenant: true, TriggerIncidentChanged: true,
	TriggerLibraryTaskDataChanged: true, TriggerLocationSiteConditionsChanged: true,
}

// TriggerEvent is a domain change. ID names the changed entity (or tenant for
// the *ForTenant variants); Date is only set for UpdateTaskRisk.
type TriggerEvent struct {
	Type TriggerType `json:"type" yaml:"type"`
	ID   uuid.UUID   `json:"id" yaml:"id"`
	Date Date        `json:"date,omitempty" yaml:"date,omitempty"`
}

// Validate checks the variant tag and its payload.
func (e TriggerEvent) Validate() error {
	if !triggerTypes[e.Type] {
		return fmt.Errorf("unknown trigger type %q", e.Type)
	}
	if e.ID == uuid.Nil {
		return fmt.Errorf("trigger %s: id is required", e.Type)
	}
	if e.Type == TriggerUpdateTaskRisk && e.Date.IsZero() {
		return fmt.Errorf("trigger %s: date is required", e.Type)
	}
	if e.Type != TriggerUpdateTaskRisk && !e.Date.IsZero() {
		return fmt.Errorf("trigger %s: date is not allowed", e.Type)
	}
	return nil
}

func (e TriggerEvent) String() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("%s(%s)", e.Type, e.ID)
	}
	return fmt.Sprintf("%s(%s, %s)", e.Type, e.ID, e.Date)
}

// NewTrigger builds an undated trigger of type t.
func NewTrigger(t TriggerType, id uuid.UUID) TriggerEvent { return TriggerEvent{Type: t, ID: id} }

// UpdateTaskRisk builds the targeted task recompute trigger.
func UpdateTaskRisk(taskID uuid.UUID, d Date) TriggerEvent {
	return TriggerEvent{Type: TriggerUpdateTaskRisk, ID: taskID, Date: d}
}
