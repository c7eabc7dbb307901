package metricstore

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

var _ Store = (*Memory)(nil)

type paramKey struct {
	tenant uuid.UUID
	name   string
}

// Memory is an in-process Store used by tests and single-process runs.
type Memory struct {
	mu       sync.RWMutex
	now      func() time.Time
	versions map[types.CalculationJob][]types.MetricRecord
	params   map[paramKey]map[string]any
}

// NewMemory creates an empty Memory store. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:      now,
		versions: make(map[types.CalculationJob][]types.MetricRecord),
		params:   make(map[paramKey]map[string]any),
	}
}

// Store implements Store.
func (m *Memory) Store(_ context.Context, rec types.MetricRecord) (types.MetricRecord, error) {
	if err := validate(rec); err != nil {
		return types.MetricRecord{}, fmt.Errorf("storing metric: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := types.NewJob(rec.Kind, rec.Key)
	existing := m.versions[id]
	var latest time.Time
	if n := len(existing); n > 0 {
		latest = existing[n-1].CalculatedAt
	}
	rec.CalculatedAt = NextCalculatedAt(rec.CalculatedAt, latest, m.now)
	rec.Inputs = maps.Clone(rec.Inputs)
	rec.Params = maps.Clone(rec.Params)
	m.versions[id] = append(existing, rec)
	return rec, nil
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, kind types.MetricKind, key types.EntityKey, asOf *time.Time) (types.MetricRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.at(types.NewJob(kind, key), asOf)
	if !ok {
		return types.MetricRecord{}, types.MissingMetric(kind, key, asOf)
	}
	return rec, nil
}

// LoadBulk implements Store.
func (m *Memory) LoadBulk(_ context.Context, kind types.MetricKind, keys []types.EntityKey, asOf *time.Time) (map[types.EntityKey]types.MetricRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.EntityKey]types.MetricRecord, len(keys))
	for _, k := range keys {
		if rec, ok := m.at(types.NewJob(kind, k), asOf); ok {
			out[k] = rec
		}
	}
	return out, nil
}

// History implements Store.
func (m *Memory) History(_ context.Context, kind types.MetricKind, key types.EntityKey) ([]types.MetricRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.MetricRecord(nil), m.versions[types.NewJob(kind, key)]...), nil
}

// at returns the newest version not after asOf. Callers hold mu.
func (m *Memory) at(id types.CalculationJob, asOf *time.Time) (types.MetricRecord, bool) {
	versions := m.versions[id]
	if len(versions) == 0 {
		return types.MetricRecord{}, false
	}
	if asOf == nil {
		return versions[len(versions)-1], true
	}
	i := sort.Search(len(versions), func(i int) bool { return versions[i].CalculatedAt.After(*asOf) })
	if i == 0 {
		return types.MetricRecord{}, false
	}
	return versions[i-1], true
}

// LoadParameters implements Store.
func (m *Memory) LoadParameters(_ context.Context, tenantID uuid.UUID, name string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.params[paramKey{tenantID, name}]; ok {
		return maps.Clone(v), nil
	}
	if v, ok := m.params[paramKey{uuid.Nil, name}]; ok {
		return maps.Clone(v), nil
	}
	return nil, nil
}

// StoreParameters implements Store.
func (m *Memory) StoreParameters(_ context.Context, tenantID uuid.UUID, name string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params[paramKey{tenantID, name}] = maps.Clone(values)
	return nil
}

// Delete drops every version of an instance. It exists for tests that
// simulate lost rows; the Store contract itself never deletes.
func (m *Memory) Delete(kind types.MetricKind, key types.EntityKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.versions, types.NewJob(kind, key))
}

// DeleteKind drops every version of every instance of kind.
func (m *Memory) DeleteKind(kind types.MetricKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.versions {
		if id.Kind == kind {
			delete(m.versions, id)
		}
	}
}

// Count returns the number of stored versions of kind across all keys.
func (m *Memory) Count(kind types.MetricKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for id, v := range m.versions {
		if id.Kind == kind {
			n += len(v)
		}
	}
	return n
}
