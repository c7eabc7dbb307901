// Package testutil provides shared fixtures for risk model tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
	"github.com/dwsmith1983/riskreactor/internal/domain"
	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/internal/registry"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Clock is a test clock that advances by Step on every read.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewClock starts a clock at start that ticks by one millisecond per read.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start, Step: time.Millisecond}
}

// Now implements domain.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.Step)
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// World is a single-tenant domain with one work package, location and
// activity holding two tasks of one library task, backed by in-memory stores.
type World struct {
	Day types.Date

	Tenant      uuid.UUID
	LibraryTask uuid.UUID
	WorkPackage uuid.UUID
	Location    uuid.UUID
	Activity    uuid.UUID
	Task1       uuid.UUID
	Task2       uuid.UUID
	Contractor  uuid.UUID
	Supervisor  uuid.UUID
	Crew        uuid.UUID

	Domain  *domain.Memory
	Metrics *metricstore.Memory
	Config  *configstore.Store
	Clock   *Clock
	Env     *registry.Env
}

// NewWorld builds the fixture with the clock at noon on 2024-01-15 and a
// planning window of that single day.
func NewWorld(t testing.TB) *World {
	t.Helper()
	day := types.MustDate("2024-01-15")
	w := &World{
		Day:         day,
		Tenant:      uuid.New(),
		LibraryTask: uuid.New(),
		WorkPackage: uuid.New(),
		Location:    uuid.New(),
		Activity:    uuid.New(),
		Task1:       uuid.New(),
		Task2:       uuid.New(),
		Contractor:  uuid.New(),
		Supervisor:  uuid.New(),
		Crew:        uuid.New(),
		Clock:       NewClock(day.Time().Add(12 * time.Hour)),
	}
	emr := 1.2
	w.Domain = domain.NewMemory(&domain.Snapshot{
		Tenants:      []types.Tenant{{ID: w.Tenant, Name: "acme"}},
		LibraryTasks: []types.LibraryTask{{ID: w.LibraryTask, Name: "excavation", HESP: 10, PrecursorRisk: 0.4}},
		WorkPackages: []types.WorkPackage{{
			ID: w.WorkPackage, TenantID: w.Tenant, Name: "substation",
			StartDate: day.AddDays(-30), EndDate: day.AddDays(30), ContractorID: &w.Contractor,
		}},
		Locations: []types.Location{{
			ID: w.Location, TenantID: w.Tenant, WorkPackageID: w.WorkPackage, Name: "north yard",
			SupervisorIDs: []uuid.UUID{w.Supervisor},
		}},
		Activities: []types.Activity{{
			ID: w.Activity, TenantID: w.Tenant, LocationID: w.Location, Name: "trenching",
			StartDate: day.AddDays(-1), EndDate: day.AddDays(1), CrewID: &w.Crew,
		}},
		Tasks: []types.Task{
			{ID: w.Task1, TenantID: w.Tenant, ActivityID: w.Activity, LibraryTaskID: w.LibraryTask},
			{ID: w.Task2, TenantID: w.Tenant, ActivityID: w.Activity, LibraryTaskID: w.LibraryTask},
		},
		Contractors: []types.Contractor{{ID: w.Contractor, TenantID: w.Tenant, Name: "dig co", ExperienceModRate: &emr}},
		Supervisors: []types.Supervisor{{ID: w.Supervisor, TenantID: w.Tenant, Name: "pat"}},
		Crews:       []types.Crew{{ID: w.Crew, TenantID: w.Tenant, Name: "crew a"}},
	})
	w.Metrics = metricstore.NewMemory(w.Clock.Now)
	w.Config = configstore.New(configstore.NewMemory(), nil)
	w.Env = &registry.Env{
		Domain:  w.Domain,
		Sites:   w.Domain,
		Metrics: w.Metrics,
		Config:  w.Config,
		Clock:   w.Clock,
	}
	return w
}

// SetImplementation stores a tenant TYPE override.
func (w *World) SetImplementation(t testing.TB, f configstore.Family, tenantID uuid.UUID, impl types.Implementation) {
	t.Helper()
	if err := w.Config.Put(context.Background(), f.TypeLabel(), &tenantID, impl); err != nil {
		t.Fatalf("put %s: %v", f.TypeLabel(), err)
	}
}

// AddTenant adds another tenant with one supervisor and returns both ids.
func (w *World) AddTenant(name string) (tenantID, supervisorID uuid.UUID) {
	tenantID, supervisorID = uuid.New(), uuid.New()
	w.Domain.PutTenant(types.Tenant{ID: tenantID, Name: name})
	w.Domain.PutSupervisor(types.Supervisor{ID: supervisorID, TenantID: tenantID, Name: name + " supervisor"})
	return tenantID, supervisorID
}

// Store writes a record for the metric instance.
func (w *World) Store(t testing.TB, kind types.MetricKind, key types.EntityKey, value float64) types.MetricRecord {
	t.Helper()
	rec, err := w.Metrics.Store(context.Background(), types.MetricRecord{Kind: kind, Key: key, Value: value})
	if err != nil {
		t.Fatalf("store %s: %v", types.NewJob(kind, key), err)
	}
	return rec
}

// TaskKey is the dated key of a task on the fixture day.
func (w *World) TaskKey(id uuid.UUID) types.EntityKey { return types.DatedKey(id, w.Day) }
