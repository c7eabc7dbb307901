package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Load populates a typed record from labels named by `config` struct tags.
// Missing labels take the application default; a field tagged
// `config:"LABEL,required"` with neither fails with
// types.ErrMissingConfiguration. Values are validated against their label.
//
//	type ContractorSettings struct {
//		Type   types.Implementation `config:"RISK_MODEL.CONTRACTOR_RISK_SCORE_METRIC.TYPE"`
//		Weight float64              `config:"RISK_MODEL.CONTRACTOR_RISK_SCORE_METRIC.WEIGHT"`
//	}
func Load[T any](ctx context.Context, s *Store, tenantID uuid.UUID) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	if rv.Kind() != reflect.Struct {
		return out, fmt.Errorf("config schema %T must be a struct", out)
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag, ok := field.Tag.Lookup("config")
		if !ok || !field.IsExported() {
			continue
		}
		label, opts, _ := strings.Cut(tag, ",")
		required := opts == "required"

		raw, err := s.Get(ctx, label, tenantID)
		if err != nil {
			return out, err
		}
		def, known := Lookup(label)
		if raw == nil && known {
			raw = def.Default
		}
		if raw == nil {
			if required {
				return out, types.MissingConfiguration(label, tenantID)
			}
			continue
		}
		if known {
			if err := def.Validate(raw); err != nil {
				return out, err
			}
		}
		if err := json.Unmarshal(raw, rv.Field(i).Addr().Interface()); err != nil {
			return out, fmt.Errorf("decoding %s into %s: %w", label, field.Name, err)
		}
	}
	return out, nil
}

// FamilySettings is the typed view of one family's labels.
type FamilySettings struct {
	Type       types.Implementation
	Thresholds *Thresholds
	Weight     float64
}

// LoadFamily resolves every label of a family.
func (s *Store) LoadFamily(ctx context.Context, f Family, tenantID uuid.UUID) (FamilySettings, error) {
	impl, err := s.Implementation(ctx, f, tenantID)
	if err != nil {
		return FamilySettings{}, err
	}
	w, err := s.Weight(ctx, f, tenantID)
	if err != nil {
		return FamilySettings{}, err
	}
	out := FamilySettings{Type: impl, Weight: w}
	th, err := s.Thresholds(ctx, f, tenantID)
	switch {
	case err == nil:
		out.Thresholds = &th
	case !isMissingConfig(err):
		return FamilySettings{}, err
	}
	return out, nil
}

func isMissingConfig(err error) bool { return errors.Is(err, types.ErrMissingConfiguration) }
