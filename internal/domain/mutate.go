package domain

import (
	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// PutTenant inserts or replaces a tenant.
func (m *Memory) PutTenant(v types.Tenant) { m.put(func() { m.tenants[v.ID] = v }) }

// PutWorkPackage inserts or replaces a work package.
func (m *Memory) PutWorkPackage(v types.WorkPackage) { m.put(func() { m.workPackages[v.ID] = v }) }

// PutLocation inserts or replaces a location.
func (m *Memory) PutLocation(v types.Location) { m.put(func() { m.locations[v.ID] = v }) }

// PutActivity inserts or replaces an activity.
func (m *Memory) PutActivity(v types.Activity) { m.put(func() { m.activities[v.ID] = v }) }

// PutTask inserts or replaces a task.
func (m *Memory) PutTask(v types.Task) { m.put(func() { m.tasks[v.ID] = v }) }

// PutContractor inserts or replaces a contractor.
func (m *Memory) PutContractor(v types.Contractor) { m.put(func() { m.contractors[v.ID] = v }) }

// PutSupervisor inserts or replaces a supervisor.
func (m *Memory) PutSupervisor(v types.Supervisor) { m.put(func() { m.supervisors[v.ID] = v }) }

// PutCrew inserts or replaces a crew.
func (m *Memory) PutCrew(v types.Crew) { m.put(func() { m.crews[v.ID] = v }) }

// PutIncident inserts or replaces an incident.
func (m *Memory) PutIncident(v types.Incident) { m.put(func() { m.incidents[v.ID] = v }) }

// PutLibraryTask inserts or replaces a library task.
func (m *Memory) PutLibraryTask(v types.LibraryTask) { m.put(func() { m.libraryTasks[v.ID] = v }) }

// PutLibrarySiteCondition inserts or replaces a library site condition.
func (m *Memory) PutLibrarySiteCondition(v types.LibrarySiteCondition) {
	m.put(func() { m.librarySiteConditions[v.ID] = v })
}

// AddSiteCondition records a site condition result.
func (m *Memory) AddSiteCondition(v LocationSiteCondition) {
	m.put(func() { m.siteConditions = append(m.siteConditions, v) })
}

// ArchiveTask marks a task archived.
func (m *Memory) ArchiveTask(id uuid.UUID) {
	m.put(func() {
		if t, ok := m.tasks[id]; ok {
			t.Archived = true
			m.tasks[id] = t
		}
	})
}

// ArchiveActivity marks an activity archived.
func (m *Memory) ArchiveActivity(id uuid.UUID) {
	m.put(func() {
		if a, ok := m.activities[id]; ok {
			a.Archived = true
			m.activities[id] = a
		}
	})
}

func (m *Memory) put(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}
