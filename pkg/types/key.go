package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EntityKey identifies a metric instance together with a MetricKind. Which
// fields are meaningful depends on the kind's KeyShape; unused fields are zero.
type EntityKey struct {
	ID       uuid.UUID `json:"id,omitempty"`
	TenantID uuid.UUID `json:"tenantId,omitempty"`
	Date     Date      `json:"date,omitempty"`
}

// TenantKey keys a per-tenant aggregate.
func TenantKey(tenantID uuid.UUID) EntityKey { return EntityKey{TenantID: tenantID} }

// EntityKeyOf keys a single entity.
func EntityKeyOf(id uuid.UUID) EntityKey { return EntityKey{ID: id} }

// EntityTenantKey keys an entity within a tenant.
func EntityTenantKey(id, tenantID uuid.UUID) EntityKey {
	return EntityKey{ID: id, TenantID: tenantID}
}

// DatedKey keys an entity on a calendar day.
func DatedKey(id uuid.UUID, d Date) EntityKey { return EntityKey{ID: id, Date: d} }

// Validate checks that the fields required by shape are set and the others are zero.
func (k EntityKey) Validate(shape KeyShape) error {
	needID, needTenant, needDate := false, false, false
	switch shape {
	case ShapeTenant:
		needTenant = true
	case ShapeEntity:
		needID = true
	case ShapeEntityTenant:
		needID, needTenant = true, true
	case ShapeEntityDate:
		needID, needDate = true, true
	default:
		return fmt.Errorf("unknown key shape %d", shape)
	}
	if needID != (k.ID != uuid.Nil) {
		return fmt.Errorf("key %v: id presence must be %t", k, needID)
	}
	if needTenant != (k.TenantID != uuid.Nil) {
		return fmt.Errorf("key %v: tenant presence must be %t", k, needTenant)
	}
	if needDate != !k.Date.IsZero() {
		return fmt.Errorf("key %v: date presence must be %t", k, needDate)
	}
	return nil
}

// Fields returns the key as a column → value map for the given shape.
func (k EntityKey) Fields(shape KeyShape) map[string]string {
	out := make(map[string]string, 2)
	for _, col := range shape.Columns() {
		switch col {
		case "entity_id":
			out[col] = k.ID.String()
		case "tenant_id":
			out[col] = k.TenantID.String()
		case "date":
			out[col] = k.Date.String()
		}
	}
	return out
}

// KeyFromFields is the inverse of Fields.
func KeyFromFields(shape KeyShape, fields map[string]string) (EntityKey, error) {
	var k EntityKey
	for _, col := range shape.Columns() {
		v, ok := fields[col]
		if !ok {
			return EntityKey{}, fmt.Errorf("key field %q missing", col)
		}
		var err error
		switch col {
		case "entity_id":
			k.ID, err = uuid.Parse(v)
		case "tenant_id":
			k.TenantID, err = uuid.Parse(v)
		case "date":
			k.Date, err = ParseDate(v)
		}
		if err != nil {
			return EntityKey{}, fmt.Errorf("key field %q: %w", col, err)
		}
	}
	return k, k.Validate(shape)
}

// Format renders the key fields used by shape, joined by '/'.
func (k EntityKey) Format(shape KeyShape) string {
	cols := shape.Columns()
	parts := make([]string, 0, len(cols))
	fields := k.Fields(shape)
	for _, c := range cols {
		parts = append(parts, fields[c])
	}
	return strings.Join(parts, "/")
}

// ParseKey parses the output of Format.
func ParseKey(shape KeyShape, s string) (EntityKey, error) {
	cols := shape.Columns()
	parts := strings.Split(s, "/")
	if len(parts) != len(cols) {
		return EntityKey{}, fmt.Errorf("key %q: want %d fields, got %d", s, len(cols), len(parts))
	}
	fields := make(map[string]string, len(cols))
	for i, c := range cols {
		fields[c] = parts[i]
	}
	return KeyFromFields(shape, fields)
}

func (k EntityKey) String() string {
	var parts []string
	if k.ID != uuid.Nil {
		parts = append(parts, k.ID.String())
	}
	if k.TenantID != uuid.Nil {
		parts = append(parts, "tenant="+k.TenantID.String())
	}
	if !k.Date.IsZero() {
		parts = append(parts, k.Date.String())
	}
	return strings.Join(parts, "/")
}
