package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwsmith1983/riskreactor/internal/metricstore"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

var _ metricstore.Store = (*Store)(nil)

// Store is a Postgres-backed metric store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a new Store and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return NewFromPool(pool), nil
}

// NewFromPool wraps an existing pool. The caller keeps ownership of pool
// unless it calls Close.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Pool exposes the underlying pool so other stores can share it.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates every metric table and the parameters table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL()); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func specFor(kind types.MetricKind) (types.KindSpec, error) {
	spec, ok := kind.Spec()
	if !ok {
		return types.KindSpec{}, fmt.Errorf("unknown metric kind %q", kind)
	}
	return spec, nil
}

// Store implements metricstore.Store. Writers to the same instance serialize
// on a transaction-scoped advisory lock so calculated_at stays monotonic.
func (s *Store) Store(ctx context.Context, rec types.MetricRecord) (types.MetricRecord, error) {
	if err := types.NewJob(rec.Kind, rec.Key).Validate(); err != nil {
		return types.MetricRecord{}, fmt.Errorf("storing metric: %w", err)
	}
	spec, _ := specFor(rec.Kind)

	inputs, err := marshalJSON(rec.Inputs)
	if err != nil {
		return types.MetricRecord{}, fmt.Errorf("encoding inputs: %w", err)
	}
	params, err := marshalJSON(rec.Params)
	if err != nil {
		return types.MetricRecord{}, fmt.Errorf("encoding params: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.MetricRecord{}, types.Transient(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	identity := types.NewJob(rec.Kind, rec.Key).Identity()
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", identity); err != nil {
		return types.MetricRecord{}, types.Transient(fmt.Errorf("advisory lock: %w", err))
	}

	pred, args := keyPredicate(spec, rec.Key, 1)
	var latest *time.Time
	if err := tx.QueryRow(ctx,
		fmt.Sprintf("SELECT MAX(calculated_at) FROM %s WHERE %s", spec.Table, pred), args...,
	).Scan(&latest); err != nil {
		return types.MetricRecord{}, types.Transient(fmt.Errorf("reading latest version: %w", err))
	}
	var prev time.Time
	if latest != nil {
		prev = latest.UTC()
	}
	rec.CalculatedAt = metricstore.NextCalculatedAt(rec.CalculatedAt, prev, s.now)

	cols := spec.Shape.Columns()
	placeholders := make([]string, 0, len(cols)+5)
	for i := range cols {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}
	n := len(cols)
	placeholders = append(placeholders,
		fmt.Sprintf("$%d", n+1), fmt.Sprintf("$%d", n+2), fmt.Sprintf("$%d", n+3),
		fmt.Sprintf("$%d", n+4), fmt.Sprintf("$%d", n+5))
	insert := fmt.Sprintf("INSERT INTO %s (%s, calculated_at, value, stddev, inputs, params) VALUES (%s)",
		spec.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	args = append(args, rec.CalculatedAt, rec.Value, rec.StdDev, inputs, params)
	if _, err := tx.Exec(ctx, insert, args...); err != nil {
		return types.MetricRecord{}, types.Transient(fmt.Errorf("inserting %s: %w", identity, err))
	}
	if err := tx.Commit(ctx); err != nil {
		return types.MetricRecord{}, types.Transient(fmt.Errorf("commit: %w", err))
	}
	return rec, nil
}

func loadQuery(spec types.KindSpec, key types.EntityKey, asOf *time.Time) (string, []any) {
	pred, args := keyPredicate(spec, key, 1)
	if asOf != nil {
		pred += fmt.Sprintf(" AND calculated_at <= $%d", len(args)+1)
		args = append(args, asOf.UTC())
	}
	q := fmt.Sprintf(`SELECT calculated_at, value, stddev, inputs, params FROM %s
		WHERE %s ORDER BY calculated_at DESC LIMIT 1`, spec.Table, pred)
	return q, args
}

func scanRecord(row pgx.Row, kind types.MetricKind, key types.EntityKey) (types.MetricRecord, error) {
	rec := types.MetricRecord{Kind: kind, Key: key}
	var inputs, params []byte
	if err := row.Scan(&rec.CalculatedAt, &rec.Value, &rec.StdDev, &inputs, &params); err != nil {
		return types.MetricRecord{}, err
	}
	rec.CalculatedAt = rec.CalculatedAt.UTC()
	if err := unmarshalJSON(inputs, &rec.Inputs); err != nil {
		return types.MetricRecord{}, fmt.Errorf("decoding inputs: %w", err)
	}
	if err := unmarshalJSON(params, &rec.Params); err != nil {
		return types.MetricRecord{}, fmt.Errorf("decoding params: %w", err)
	}
	return rec, nil
}

// Load implements metricstore.Store.
func (s *Store) Load(ctx context.Context, kind types.MetricKind, key types.EntityKey, asOf *time.Time) (types.MetricRecord, error) {
	spec, err := specFor(kind)
	if err != nil {
		return types.MetricRecord{}, err
	}
	q, args := loadQuery(spec, key, asOf)
	rec, err := scanRecord(s.pool.QueryRow(ctx, q, args...), kind, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.MetricRecord{}, types.MissingMetric(kind, key, asOf)
	}
	if err != nil {
		return types.MetricRecord{}, types.Transient(fmt.Errorf("loading %s(%s): %w", kind, key, err))
	}
	return rec, nil
}

// LoadBulk implements metricstore.Store with one batched round trip.
func (s *Store) LoadBulk(ctx context.Context, kind types.MetricKind, keys []types.EntityKey, asOf *time.Time) (map[types.EntityKey]types.MetricRecord, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	out := make(map[types.EntityKey]types.MetricRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	batch := &pgx.Batch{}
	for _, k := range keys {
		q, args := loadQuery(spec, k, asOf)
		batch.Queue(q, args...)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, k := range keys {
		rec, err := scanRecord(br.QueryRow(), kind, k)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, types.Transient(fmt.Errorf("bulk loading %s: %w", kind, err))
		}
		out[k] = rec
	}
	return out, nil
}

// History implements metricstore.Store.
func (s *Store) History(ctx context.Context, kind types.MetricKind, key types.EntityKey) ([]types.MetricRecord, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	pred, args := keyPredicate(spec, key, 1)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT calculated_at, value, stddev, inputs, params FROM %s
		WHERE %s ORDER BY calculated_at ASC`, spec.Table, pred), args...)
	if err != nil {
		return nil, types.Transient(err)
	}
	defer rows.Close()

	var out []types.MetricRecord
	for rows.Next() {
		rec, err := scanRecord(rows, kind, key)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadParameters implements metricstore.Store.
func (s *Store) LoadParameters(ctx context.Context, tenantID uuid.UUID, name string) (map[string]any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT params FROM rm_parameters
		WHERE name = $1 AND tenant_id IN ($2, $3)
		ORDER BY (tenant_id = $3) ASC
		LIMIT 1
	`, name, tenantID, uuid.Nil).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.Transient(fmt.Errorf("loading parameters %s: %w", name, err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding parameters %s: %w", name, err)
	}
	return out, nil
}

// StoreParameters implements metricstore.Store.
func (s *Store) StoreParameters(ctx context.Context, tenantID uuid.UUID, name string, values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rm_parameters (tenant_id, name, params, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, name) DO UPDATE SET params = EXCLUDED.params, updated_at = NOW()
	`, tenantID, name, data)
	if err != nil {
		return types.Transient(fmt.Errorf("storing parameters %s: %w", name, err))
	}
	return nil
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, out *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
