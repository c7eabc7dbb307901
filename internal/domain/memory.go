package domain

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

var (
	_ Reader                 = (*Memory)(nil)
	_ SiteConditionEvaluator = (*Memory)(nil)
)

// Memory is an in-process Reader and SiteConditionEvaluator. Mutators exist
// so tests and the fixture loader can drive domain changes.
type Memory struct {
	mu sync.RWMutex

	tenants               map[uuid.UUID]types.Tenant
	workPackages          map[uuid.UUID]types.WorkPackage
	locations             map[uuid.UUID]types.Location
	activities            map[uuid.UUID]types.Activity
	tasks                 map[uuid.UUID]types.Task
	contractors           map[uuid.UUID]types.Contractor
	supervisors           map[uuid.UUID]types.Supervisor
	crews                 map[uuid.UUID]types.Crew
	incidents             map[uuid.UUID]types.Incident
	libraryTasks          map[uuid.UUID]types.LibraryTask
	librarySiteConditions map[uuid.UUID]types.LibrarySiteCondition
	siteConditions        []LocationSiteCondition
}

// NewMemory builds a Memory from snap; a nil snap is empty.
func NewMemory(snap *Snapshot) *Memory {
	m := &Memory{
		tenants:               map[uuid.UUID]types.Tenant{},
		workPackages:          map[uuid.UUID]types.WorkPackage{},
		locations:             map[uuid.UUID]types.Location{},
		activities:            map[uuid.UUID]types.Activity{},
		tasks:                 map[uuid.UUID]types.Task{},
		contractors:           map[uuid.UUID]types.Contractor{},
		supervisors:           map[uuid.UUID]types.Supervisor{},
		crews:                 map[uuid.UUID]types.Crew{},
		incidents:             map[uuid.UUID]types.Incident{},
		libraryTasks:          map[uuid.UUID]types.LibraryTask{},
		librarySiteConditions: map[uuid.UUID]types.LibrarySiteCondition{},
	}
	if snap == nil {
		return m
	}
	for _, v := range snap.Tenants {
		m.tenants[v.ID] = v
	}
	for _, v := range snap.WorkPackages {
		m.workPackages[v.ID] = v
	}
	for _, v := range snap.Locations {
		m.locations[v.ID] = v
	}
	for _, v := range snap.Activities {
		m.activities[v.ID] = v
	}
	for _, v := range snap.Tasks {
		m.tasks[v.ID] = v
	}
	for _, v := range snap.Contractors {
		m.contractors[v.ID] = v
	}
	for _, v := range snap.Supervisors {
		m.supervisors[v.ID] = v
	}
	for _, v := range snap.Crews {
		m.crews[v.ID] = v
	}
	for _, v := range snap.Incidents {
		m.incidents[v.ID] = v
	}
	for _, v := range snap.LibraryTasks {
		m.libraryTasks[v.ID] = v
	}
	for _, v := range snap.LibrarySiteConditions {
		m.librarySiteConditions[v.ID] = v
	}
	m.siteConditions = append(m.siteConditions, snap.SiteConditions...)
	return m
}

func lookup[T any](m *Memory, items map[uuid.UUID]T, entity string, id uuid.UUID) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := items[id]
	if !ok {
		var zero T
		return zero, types.MissingDependency(entity, id)
	}
	return v, nil
}

func filter[T any](m *Memory, items map[uuid.UUID]T, keep func(T) bool, id func(T) uuid.UUID) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []T
	for _, v := range items {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]).String() < id(out[j]).String() })
	return out
}

// Tenants implements Reader.
func (m *Memory) Tenants(_ context.Context) ([]types.Tenant, error) {
	return filter(m, m.tenants, func(types.Tenant) bool { return true },
		func(t types.Tenant) uuid.UUID { return t.ID }), nil
}

// WorkPackage implements Reader.
func (m *Memory) WorkPackage(_ context.Context, id uuid.UUID) (types.WorkPackage, error) {
	return lookup(m, m.workPackages, "work package", id)
}

// Location implements Reader.
func (m *Memory) Location(_ context.Context, id uuid.UUID) (types.Location, error) {
	return lookup(m, m.locations, "location", id)
}

// Activity implements Reader.
func (m *Memory) Activity(_ context.Context, id uuid.UUID) (types.Activity, error) {
	return lookup(m, m.activities, "activity", id)
}

// Task implements Reader.
func (m *Memory) Task(_ context.Context, id uuid.UUID) (types.Task, error) {
	return lookup(m, m.tasks, "task", id)
}

// Contractor implements Reader.
func (m *Memory) Contractor(_ context.Context, id uuid.UUID) (types.Contractor, error) {
	return lookup(m, m.contractors, "contractor", id)
}

// Supervisor implements Reader.
func (m *Memory) Supervisor(_ context.Context, id uuid.UUID) (types.Supervisor, error) {
	return lookup(m, m.supervisors, "supervisor", id)
}

// Crew implements Reader.
func (m *Memory) Crew(_ context.Context, id uuid.UUID) (types.Crew, error) {
	return lookup(m, m.crews, "crew", id)
}

// Incident implements Reader.
func (m *Memory) Incident(_ context.Context, id uuid.UUID) (types.Incident, error) {
	return lookup(m, m.incidents, "incident", id)
}

// LibraryTask implements Reader.
func (m *Memory) LibraryTask(_ context.Context, id uuid.UUID) (types.LibraryTask, error) {
	return lookup(m, m.libraryTasks, "library task", id)
}

// LibrarySiteCondition implements Reader.
func (m *Memory) LibrarySiteCondition(_ context.Context, id uuid.UUID) (types.LibrarySiteCondition, error) {
	return lookup(m, m.librarySiteConditions, "library site condition", id)
}

// WorkPackages implements Reader.
func (m *Memory) WorkPackages(_ context.Context, tenantID uuid.UUID) ([]types.WorkPackage, error) {
	return filter(m, m.workPackages, func(w types.WorkPackage) bool {
		return !w.Archived && w.TenantID == tenantID
	}, func(w types.WorkPackage) uuid.UUID { return w.ID }), nil
}

// LocationsOfWorkPackage implements Reader.
func (m *Memory) LocationsOfWorkPackage(_ context.Context, workPackageID uuid.UUID) ([]types.Location, error) {
	return filter(m, m.locations, func(l types.Location) bool {
		return !l.Archived && l.WorkPackageID == workPackageID
	}, func(l types.Location) uuid.UUID { return l.ID }), nil
}

// ActivitiesOfLocation implements Reader.
func (m *Memory) ActivitiesOfLocation(_ context.Context, locationID uuid.UUID) ([]types.Activity, error) {
	return filter(m, m.activities, func(a types.Activity) bool {
		return !a.Archived && a.LocationID == locationID
	}, func(a types.Activity) uuid.UUID { return a.ID }), nil
}

// TasksOfActivity implements Reader.
func (m *Memory) TasksOfActivity(_ context.Context, activityID uuid.UUID) ([]types.Task, error) {
	return filter(m, m.tasks, func(t types.Task) bool {
		return !t.Archived && t.ActivityID == activityID
	}, func(t types.Task) uuid.UUID { return t.ID }), nil
}

// TasksOfLibraryTask implements Reader.
func (m *Memory) TasksOfLibraryTask(_ context.Context, tenantID, libraryTaskID uuid.UUID) ([]types.Task, error) {
	return filter(m, m.tasks, func(t types.Task) bool {
		return !t.Archived && t.TenantID == tenantID && t.LibraryTaskID == libraryTaskID
	}, func(t types.Task) uuid.UUID { return t.ID }), nil
}

// WorkPackagesOfContractor implements Reader.
func (m *Memory) WorkPackagesOfContractor(_ context.Context, contractorID uuid.UUID) ([]types.WorkPackage, error) {
	return filter(m, m.workPackages, func(w types.WorkPackage) bool {
		return !w.Archived && w.ContractorID != nil && *w.ContractorID == contractorID
	}, func(w types.WorkPackage) uuid.UUID { return w.ID }), nil
}

// LocationsOfSupervisor implements Reader.
func (m *Memory) LocationsOfSupervisor(_ context.Context, supervisorID uuid.UUID) ([]types.Location, error) {
	return filter(m, m.locations, func(l types.Location) bool {
		if l.Archived {
			return false
		}
		for _, s := range l.SupervisorIDs {
			if s == supervisorID {
				return true
			}
		}
		return false
	}, func(l types.Location) uuid.UUID { return l.ID }), nil
}

// ActivitiesOfCrew implements Reader.
func (m *Memory) ActivitiesOfCrew(_ context.Context, crewID uuid.UUID) ([]types.Activity, error) {
	return filter(m, m.activities, func(a types.Activity) bool {
		return !a.Archived && a.CrewID != nil && *a.CrewID == crewID
	}, func(a types.Activity) uuid.UUID { return a.ID }), nil
}

// Contractors implements Reader.
func (m *Memory) Contractors(_ context.Context, tenantID uuid.UUID) ([]types.Contractor, error) {
	return filter(m, m.contractors, func(c types.Contractor) bool { return c.TenantID == tenantID },
		func(c types.Contractor) uuid.UUID { return c.ID }), nil
}

// Supervisors implements Reader.
func (m *Memory) Supervisors(_ context.Context, tenantID uuid.UUID) ([]types.Supervisor, error) {
	return filter(m, m.supervisors, func(s types.Supervisor) bool { return s.TenantID == tenantID },
		func(s types.Supervisor) uuid.UUID { return s.ID }), nil
}

// Crews implements Reader.
func (m *Memory) Crews(_ context.Context, tenantID uuid.UUID) ([]types.Crew, error) {
	return filter(m, m.crews, func(c types.Crew) bool { return c.TenantID == tenantID },
		func(c types.Crew) uuid.UUID { return c.ID }), nil
}

// Incidents implements Reader.
func (m *Memory) Incidents(_ context.Context, f IncidentFilter) ([]types.Incident, error) {
	matches := func(want *uuid.UUID, got *uuid.UUID) bool {
		return want == nil || (got != nil && *got == *want)
	}
	return filter(m, m.incidents, func(i types.Incident) bool {
		if i.Archived || i.TenantID != f.TenantID {
			return false
		}
		if !matches(f.ContractorID, i.ContractorID) || !matches(f.SupervisorID, i.SupervisorID) || !matches(f.CrewID, i.CrewID) {
			return false
		}
		if f.LibraryTaskID != nil {
			for _, lt := range i.LibraryTaskIDs {
				if lt == *f.LibraryTaskID {
					return true
				}
			}
			return false
		}
		return true
	}, func(i types.Incident) uuid.UUID { return i.ID }), nil
}

// Evaluate implements SiteConditionEvaluator.
func (m *Memory) Evaluate(_ context.Context, locationID uuid.UUID, d types.Date) ([]types.SiteConditionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.SiteConditionResult
	for _, sc := range m.siteConditions {
		if sc.LocationID == locationID && (sc.Date.IsZero() || sc.Date == d) {
			out = append(out, sc.Result)
		}
	}
	return out, nil
}
