package types

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the top-level isolation boundary.
type Tenant struct {
	ID   uuid.UUID `yaml:"id" json:"id"`
	Name string    `yaml:"name" json:"name"`
}

// WorkPackage is a project scheduled between StartDate and EndDate.
type WorkPackage struct {
	ID           uuid.UUID  `yaml:"id" json:"id"`
	TenantID     uuid.UUID  `yaml:"tenantId" json:"tenantId"`
	Name         string     `yaml:"name" json:"name"`
	StartDate    Date       `yaml:"startDate" json:"startDate"`
	EndDate      Date       `yaml:"endDate" json:"endDate"`
	ContractorID *uuid.UUID `yaml:"contractorId,omitempty" json:"contractorId,omitempty"`
	Archived     bool       `yaml:"archived,omitempty" json:"archived,omitempty"`
}

// ActiveOn reports whether the work package is in scope on d.
func (w WorkPackage) ActiveOn(d Date) bool { return !w.Archived && d.Within(w.StartDate, w.EndDate) }

// Location is a site within a work package.
type Location struct {
	ID            uuid.UUID   `yaml:"id" json:"id"`
	TenantID      uuid.UUID   `yaml:"tenantId" json:"tenantId"`
	WorkPackageID uuid.UUID   `yaml:"workPackageId" json:"workPackageId"`
	Name          string      `yaml:"name" json:"name"`
	SupervisorIDs []uuid.UUID `yaml:"supervisorIds,omitempty" json:"supervisorIds,omitempty"`
	Archived      bool        `yaml:"archived,omitempty" json:"archived,omitempty"`
}

// Activity groups tasks at a location over a date range.
type Activity struct {
	ID         uuid.UUID  `yaml:"id" json:"id"`
	TenantID   uuid.UUID  `yaml:"tenantId" json:"tenantId"`
	LocationID uuid.UUID  `yaml:"locationId" json:"locationId"`
	Name       string     `yaml:"name" json:"name"`
	StartDate  Date       `yaml:"startDate" json:"startDate"`
	EndDate    Date       `yaml:"endDate" json:"endDate"`
	CrewID     *uuid.UUID `yaml:"crewId,omitempty" json:"crewId,omitempty"`
	Archived   bool       `yaml:"archived,omitempty" json:"archived,omitempty"`
}

// ActiveOn reports whether the activity is in scope on d.
func (a Activity) ActiveOn(d Date) bool { return !a.Archived && d.Within(a.StartDate, a.EndDate) }

// Task is an instance of a library task within an activity.
type Task struct {
	ID            uuid.UUID `yaml:"id" json:"id"`
	TenantID      uuid.UUID `yaml:"tenantId" json:"tenantId"`
	ActivityID    uuid.UUID `yaml:"activityId" json:"activityId"`
	LibraryTaskID uuid.UUID `yaml:"libraryTaskId" json:"libraryTaskId"`
	Archived      bool      `yaml:"archived,omitempty" json:"archived,omitempty"`
}

// Contractor performs work packages.
type Contractor struct {
	ID       uuid.UUID `yaml:"id" json:"id"`
	TenantID uuid.UUID `yaml:"tenantId" json:"tenantId"`
	Name     string    `yaml:"name" json:"name"`
	// ExperienceModRate is the insurance EMR; nil means not reported.
	ExperienceModRate *float64 `yaml:"experienceModRate,omitempty" json:"experienceModRate,omitempty"`
}

// Supervisor oversees locations.
type Supervisor struct {
	ID       uuid.UUID `yaml:"id" json:"id"`
	TenantID uuid.UUID `yaml:"tenantId" json:"tenantId"`
	Name     string    `yaml:"name" json:"name"`
}

// Crew performs activities.
type Crew struct {
	ID       uuid.UUID `yaml:"id" json:"id"`
	TenantID uuid.UUID `yaml:"tenantId" json:"tenantId"`
	Name     string    `yaml:"name" json:"name"`
}

// Incident is a recorded safety event.
type Incident struct {
	ID             uuid.UUID        `yaml:"id" json:"id"`
	TenantID       uuid.UUID        `yaml:"tenantId" json:"tenantId"`
	Severity       IncidentSeverity `yaml:"severity" json:"severity"`
	OccurredAt     time.Time        `yaml:"occurredAt" json:"occurredAt"`
	LibraryTaskIDs []uuid.UUID      `yaml:"libraryTaskIds,omitempty" json:"libraryTaskIds,omitempty"`
	ContractorID   *uuid.UUID       `yaml:"contractorId,omitempty" json:"contractorId,omitempty"`
	SupervisorID   *uuid.UUID       `yaml:"supervisorId,omitempty" json:"supervisorId,omitempty"`
	CrewID         *uuid.UUID       `yaml:"crewId,omitempty" json:"crewId,omitempty"`
	Archived       bool             `yaml:"archived,omitempty" json:"archived,omitempty"`
}

// LibraryTask is a tenant-independent task template.
type LibraryTask struct {
	ID   uuid.UUID `yaml:"id" json:"id"`
	Name string    `yaml:"name" json:"name"`
	// HESP is the high-energy severity potential base score.
	HESP float64 `yaml:"hesp" json:"hesp"`
	// PrecursorRisk is the observed precursor rate used by the stochastic model.
	PrecursorRisk float64 `yaml:"precursorRisk" json:"precursorRisk"`
}

// LibrarySiteCondition is a tenant-independent site hazard template.
type LibrarySiteCondition struct {
	ID            uuid.UUID `yaml:"id" json:"id"`
	Name          string    `yaml:"name" json:"name"`
	PrecursorRisk float64   `yaml:"precursorRisk" json:"precursorRisk"`
}

// SiteConditionResult is one evaluated site condition at a location and day.
type SiteConditionResult struct {
	LibrarySiteConditionID uuid.UUID `yaml:"librarySiteConditionId" json:"librarySiteConditionId"`
	Applies                bool      `yaml:"applies" json:"applies"`
	Multiplier             float64   `yaml:"multiplier" json:"multiplier"`
	Alert                  bool      `yaml:"alert,omitempty" json:"alert,omitempty"`
}
