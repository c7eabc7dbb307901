package configstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var _ Backend = (*Memory)(nil)

type entryKey struct {
	label  string
	tenant uuid.UUID
}

// Memory is an in-process Backend. uuid.Nil keys the default row.
type Memory struct {
	mu      sync.RWMutex
	entries map[entryKey]json.RawMessage
}

// NewMemory creates an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[entryKey]json.RawMessage)}
}

func keyFor(label string, tenantID *uuid.UUID) entryKey {
	k := entryKey{label: label}
	if tenantID != nil {
		k.tenant = *tenantID
	}
	return k
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, label string, tenantID *uuid.UUID) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[keyFor(label, tenantID)]
	return v, ok, nil
}

// Put implements Backend.
func (m *Memory) Put(_ context.Context, label string, tenantID *uuid.UUID, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[keyFor(label, tenantID)] = append(json.RawMessage(nil), value...)
	return nil
}

// List implements Backend.
func (m *Memory) List(_ context.Context, label string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, v := range m.entries {
		if k.label != label {
			continue
		}
		e := Entry{Label: label, Value: v}
		if k.tenant != uuid.Nil {
			t := k.tenant
			e.TenantID = &t
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID == nil || out[j].TenantID == nil {
			return out[i].TenantID == nil && out[j].TenantID != nil
		}
		return out[i].TenantID.String() < out[j].TenantID.String()
	})
	return out, nil
}
