// Package postgres implements configstore.Backend on a Postgres
// configurations table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwsmith1983/riskreactor/internal/configstore"
)

var _ configstore.Backend = (*Backend)(nil)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS configurations (
    id          BIGSERIAL PRIMARY KEY,
    label       TEXT NOT NULL,
    tenant_id   UUID,
    value       JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_configurations_label_tenant
    ON configurations (label, COALESCE(tenant_id, '00000000-0000-0000-0000-000000000000'::uuid));
`

// Backend stores configuration rows in Postgres.
type Backend struct {
	pool *pgxpool.Pool
}

// New wraps a pool shared with the metric store.
func New(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

// Migrate creates the configurations table.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("postgres migrate configurations: %w", err)
	}
	return nil
}

// Get implements configstore.Backend.
func (b *Backend) Get(ctx context.Context, label string, tenantID *uuid.UUID) (json.RawMessage, bool, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `
		SELECT value FROM configurations
		WHERE label = $1 AND tenant_id IS NOT DISTINCT FROM $2
	`, label, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Put implements configstore.Backend.
func (b *Backend) Put(ctx context.Context, label string, tenantID *uuid.UUID, value json.RawMessage) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO configurations (label, tenant_id, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (label, COALESCE(tenant_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, label, tenantID, []byte(value))
	return err
}

// List implements configstore.Backend.
func (b *Backend) List(ctx context.Context, label string) ([]configstore.Entry, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT tenant_id, value FROM configurations
		WHERE label = $1
		ORDER BY tenant_id NULLS FIRST
	`, label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []configstore.Entry
	for rows.Next() {
		e := configstore.Entry{Label: label}
		var raw []byte
		if err := rows.Scan(&e.TenantID, &raw); err != nil {
			return nil, err
		}
		e.Value = raw
		out = append(out, e)
	}
	return out, rows.Err()
}
