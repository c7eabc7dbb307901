package configstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Entry is one stored configuration row. A nil TenantID is the default.
type Entry struct {
	Label    string          `json:"label"`
	TenantID *uuid.UUID      `json:"tenantId,omitempty"`
	Value    json.RawMessage `json:"value"`
}

// Backend persists raw entries.
type Backend interface {
	// Get returns the exact row for (label, tenantID); found is false when absent.
	Get(ctx context.Context, label string, tenantID *uuid.UUID) (value json.RawMessage, found bool, err error)
	// Put upserts a row.
	Put(ctx context.Context, label string, tenantID *uuid.UUID, value json.RawMessage) error
	// List returns every row for label, default first.
	List(ctx context.Context, label string) ([]Entry, error)
}

// Store resolves configuration with tenant shadowing and label validation.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// New creates a Store over backend.
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Get returns the tenant's value, else the default row, else nil. Application
// defaults are not applied; use Resolve or Load for that.
func (s *Store) Get(ctx context.Context, label string, tenantID uuid.UUID) (json.RawMessage, error) {
	if tenantID != uuid.Nil {
		v, found, err := s.backend.Get(ctx, label, &tenantID)
		if err != nil {
			return nil, types.Transient(fmt.Errorf("config get %s: %w", label, err))
		}
		if found {
			return v, nil
		}
	}
	v, found, err := s.backend.Get(ctx, label, nil)
	if err != nil {
		return nil, types.Transient(fmt.Errorf("config get %s: %w", label, err))
	}
	if !found {
		return nil, nil
	}
	return v, nil
}

// Resolve is Get falling back to the application default. It fails with
// types.ErrMissingConfiguration when nothing applies.
func (s *Store) Resolve(ctx context.Context, label string, tenantID uuid.UUID) (json.RawMessage, error) {
	v, err := s.Get(ctx, label, tenantID)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v, nil
	}
	if def, ok := Lookup(label); ok && def.Default != nil {
		return def.Default, nil
	}
	return nil, types.MissingConfiguration(label, tenantID)
}

// Put validates and upserts a value. A nil tenantID writes the default.
func (s *Store) Put(ctx context.Context, label string, tenantID *uuid.UUID, value any) error {
	def, ok := Lookup(label)
	if !ok {
		return fmt.Errorf("unknown configuration label %q", label)
	}
	raw, ok := value.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(value); err != nil {
			return fmt.Errorf("encoding %s: %w", label, err)
		}
	}
	if err := def.Validate(raw); err != nil {
		return err
	}
	if err := s.backend.Put(ctx, label, tenantID, raw); err != nil {
		return types.Transient(fmt.Errorf("config put %s: %w", label, err))
	}
	s.logger.Info("configuration updated", "label", label, "tenant", tenantString(tenantID))
	return nil
}

// Description is the admin view of a label for one tenant.
type Description struct {
	Label string `json:"label"`
	// Actual is the value the tenant resolves to, application default included.
	Actual json.RawMessage `json:"actual"`
	// ApplicationDefaults is the stored default row, else the code default.
	ApplicationDefaults json.RawMessage `json:"application_defaults"`
	// TenantOverrides is the tenant's own row, if any.
	TenantOverrides json.RawMessage `json:"tenant_overrides"`
}

// Describe reports how label resolves for tenantID.
func (s *Store) Describe(ctx context.Context, label string, tenantID uuid.UUID) (Description, error) {
	d := Description{Label: label}
	def, known := Lookup(label)
	if known {
		d.ApplicationDefaults = def.Default
	}
	if v, found, err := s.backend.Get(ctx, label, nil); err != nil {
		return d, types.Transient(err)
	} else if found {
		d.ApplicationDefaults = v
	}
	if tenantID != uuid.Nil {
		v, found, err := s.backend.Get(ctx, label, &tenantID)
		if err != nil {
			return d, types.Transient(err)
		}
		if found {
			d.TenantOverrides = v
		}
	}
	d.Actual = d.TenantOverrides
	if d.Actual == nil {
		d.Actual = d.ApplicationDefaults
	}
	return d, nil
}

// Implementation resolves a family's TYPE label. Values outside the family's
// allowed set resolve to Disabled with a warning.
func (s *Store) Implementation(ctx context.Context, f Family, tenantID uuid.UUID) (types.Implementation, error) {
	raw, err := s.Resolve(ctx, f.TypeLabel(), tenantID)
	if err != nil {
		return "", err
	}
	def, _ := Lookup(f.TypeLabel())
	if err := def.Validate(raw); err != nil {
		s.logger.Warn("invalid implementation configured, treating as disabled",
			"label", f.TypeLabel(), "tenant", tenantID, "error", err)
		return types.Disabled, nil
	}
	var impl types.Implementation
	_ = json.Unmarshal(raw, &impl)
	return impl, nil
}

// Thresholds resolves a family's THRESHOLDS label.
func (s *Store) Thresholds(ctx context.Context, f Family, tenantID uuid.UUID) (Thresholds, error) {
	var th Thresholds
	raw, err := s.Resolve(ctx, f.ThresholdsLabel(), tenantID)
	if err != nil {
		return th, err
	}
	if err := json.Unmarshal(raw, &th); err != nil {
		return th, fmt.Errorf("decoding %s: %w", f.ThresholdsLabel(), err)
	}
	return th, nil
}

// Weight resolves a family's WEIGHT label.
func (s *Store) Weight(ctx context.Context, f Family, tenantID uuid.UUID) (float64, error) {
	var w float64
	raw, err := s.Resolve(ctx, f.WeightLabel(), tenantID)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return 0, fmt.Errorf("decoding %s: %w", f.WeightLabel(), err)
	}
	return w, nil
}

// Overrides lists the stored rows for label.
func (s *Store) Overrides(ctx context.Context, label string) ([]Entry, error) {
	entries, err := s.backend.List(ctx, label)
	if err != nil {
		return nil, types.Transient(err)
	}
	return entries, nil
}

func tenantString(t *uuid.UUID) string {
	if t == nil {
		return "default"
	}
	return t.String()
}

func strictUnmarshal(data json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
