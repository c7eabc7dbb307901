// Package domain declares the read-only collaborators the risk model consumes
// and an in-memory implementation backed by a YAML snapshot.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Reader looks up domain entities. Single-entity lookups return archived
// entities too and fail with *types.MissingDependencyError when absent;
// relationship queries return only non-archived entities.
type Reader interface {
	Tenants(ctx context.Context) ([]types.Tenant, error)

	WorkPackage(ctx context.Context, id uuid.UUID) (types.WorkPackage, error)
	Location(ctx context.Context, id uuid.UUID) (types.Location, error)
	Activity(ctx context.Context, id uuid.UUID) (types.Activity, error)
	Task(ctx context.Context, id uuid.UUID) (types.Task, error)
	Contractor(ctx context.Context, id uuid.UUID) (types.Contractor, error)
	Supervisor(ctx context.Context, id uuid.UUID) (types.Supervisor, error)
	Crew(ctx context.Context, id uuid.UUID) (types.Crew, error)
	Incident(ctx context.Context, id uuid.UUID) (types.Incident, error)
	LibraryTask(ctx context.Context, id uuid.UUID) (types.LibraryTask, error)
	LibrarySiteCondition(ctx context.Context, id uuid.UUID) (types.LibrarySiteCondition, error)

	WorkPackages(ctx context.Context, tenantID uuid.UUID) ([]types.WorkPackage, error)
	LocationsOfWorkPackage(ctx context.Context, workPackageID uuid.UUID) ([]types.Location, error)
	ActivitiesOfLocation(ctx context.Context, locationID uuid.UUID) ([]types.Activity, error)
	TasksOfActivity(ctx context.Context, activityID uuid.UUID) ([]types.Task, error)
	TasksOfLibraryTask(ctx context.Context, tenantID, libraryTaskID uuid.UUID) ([]types.Task, error)
	WorkPackagesOfContractor(ctx context.Context, contractorID uuid.UUID) ([]types.WorkPackage, error)
	LocationsOfSupervisor(ctx context.Context, supervisorID uuid.UUID) ([]types.Location, error)
	ActivitiesOfCrew(ctx context.Context, crewID uuid.UUID) ([]types.Activity, error)

	Contractors(ctx context.Context, tenantID uuid.UUID) ([]types.Contractor, error)
	Supervisors(ctx context.Context, tenantID uuid.UUID) ([]types.Supervisor, error)
	Crews(ctx context.Context, tenantID uuid.UUID) ([]types.Crew, error)
	Incidents(ctx context.Context, filter IncidentFilter) ([]types.Incident, error)
}

// IncidentFilter selects non-archived incidents of a tenant. Nil fields match all.
type IncidentFilter struct {
	TenantID      uuid.UUID
	LibraryTaskID *uuid.UUID
	ContractorID  *uuid.UUID
	SupervisorID  *uuid.UUID
	CrewID        *uuid.UUID
}

// SiteConditionEvaluator evaluates the site conditions at a location on a day.
type SiteConditionEvaluator interface {
	Evaluate(ctx context.Context, locationID uuid.UUID, d types.Date) ([]types.SiteConditionResult, error)
}

// Clock is the wall clock used for calculated_at and the planning window.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
