package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kgas-labs/kgas/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which keeps the Postgres store unit-testable without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements LineageStore and ArtifactStore using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS operations (
	id             TEXT PRIMARY KEY,
	operation_type TEXT NOT NULL,
	tool_id        TEXT NOT NULL,
	input_refs     JSONB NOT NULL DEFAULT '[]',
	output_refs    JSONB NOT NULL DEFAULT '[]',
	parameters     JSONB,
	metrics        JSONB,
	status         TEXT NOT NULL DEFAULT 'running',
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	quality_tier   TEXT NOT NULL DEFAULT 'high',
	parent_id      TEXT,
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	error_message  TEXT,
	warnings       JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	ref        TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operations_tool_id ON operations(tool_id);
CREATE INDEX IF NOT EXISTS idx_operations_created_at ON operations(created_at);
CREATE INDEX IF NOT EXISTS idx_operations_output_refs ON operations USING GIN (output_refs);
CREATE INDEX IF NOT EXISTS idx_operations_input_refs ON operations USING GIN (input_refs);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec *model.ProvenanceRecord) error {
	cols, err := marshalRecordPg(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO operations
		 (id, operation_type, tool_id, input_refs, output_refs, parameters, metrics,
		  status, confidence, quality_tier, parent_id, duration_ms, error_message,
		  warnings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rec.OperationType, rec.ToolID, cols.inputs, cols.outputs,
		cols.parameters, cols.metrics, string(rec.Status), rec.Confidence,
		string(rec.QualityTier), nilIfEmpty(rec.ParentID), rec.DurationMS,
		nilIfEmpty(rec.ErrorMessage), cols.warnings, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert operation %s", rec.ID)
}

func (s *PostgresStore) Update(ctx context.Context, rec *model.ProvenanceRecord) error {
	cols, err := marshalRecordPg(rec)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE operations SET
		 input_refs = $1, output_refs = $2, parameters = $3, metrics = $4, status = $5,
		 confidence = $6, quality_tier = $7, duration_ms = $8, error_message = $9,
		 warnings = $10, updated_at = $11
		 WHERE id = $12`,
		cols.inputs, cols.outputs, cols.parameters, cols.metrics, string(rec.Status),
		rec.Confidence, string(rec.QualityTier), rec.DurationMS,
		nilIfEmpty(rec.ErrorMessage), cols.warnings, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update operation %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: operation not found: %s", rec.ID)
	}
	return nil
}

const pgOperationColumns = `id, operation_type, tool_id, input_refs, output_refs,
	parameters, metrics, status, confidence, quality_tier, parent_id, duration_ms,
	error_message, warnings, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.ProvenanceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgOperationColumns+` FROM operations WHERE id = $1`, id)

	rec, err := scanOperationPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) GetByOutput(ctx context.Context, ref string) ([]model.ProvenanceRecord, error) {
	return s.queryOperations(ctx,
		`SELECT `+pgOperationColumns+` FROM operations
		 WHERE output_refs @> to_jsonb($1::text)
		 ORDER BY created_at ASC`,
		ref)
}

func (s *PostgresStore) GetByInput(ctx context.Context, ref string) ([]model.ProvenanceRecord, error) {
	return s.queryOperations(ctx,
		`SELECT `+pgOperationColumns+` FROM operations
		 WHERE input_refs @> to_jsonb($1::text)
		 ORDER BY created_at ASC`,
		ref)
}

func (s *PostgresStore) Query(ctx context.Context, filter OperationFilter) ([]model.ProvenanceRecord, error) {
	query := `SELECT ` + pgOperationColumns + ` FROM operations WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ToolID != "" {
		query += ` AND tool_id = ` + arg(filter.ToolID)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ` + arg(filter.Since)
	}
	if !filter.Until.IsZero() {
		query += ` AND created_at <= ` + arg(filter.Until)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	return s.queryOperations(ctx, query, args...)
}

func (s *PostgresStore) queryOperations(ctx context.Context, query string, args ...any) ([]model.ProvenanceRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query operations")
	}
	defer rows.Close()

	var recs []model.ProvenanceRecord
	for rows.Next() {
		rec, err := scanOperationPg(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: iterate operations")
}

func (s *PostgresStore) Resolve(ctx context.Context, ref string) (*model.Artifact, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM artifacts WHERE ref = $1`, ref).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: resolve %s", ref)
	}

	var a model.Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal artifact %s", ref)
	}
	return &a, nil
}

func (s *PostgresStore) SaveArtifact(ctx context.Context, a *model.Artifact) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal artifact %s", a.Ref)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO artifacts (ref, type, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (ref) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		a.Ref, string(a.Type), payload, a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save artifact %s", a.Ref)
}

// helpers

type pgRecordColumns struct {
	inputs     []byte
	outputs    []byte
	parameters []byte
	metrics    []byte
	warnings   []byte
}

func marshalRecordPg(rec *model.ProvenanceRecord) (pgRecordColumns, error) {
	var cols pgRecordColumns

	inputs, err := json.Marshal(emptyIfNil(rec.InputRefs))
	if err != nil {
		return cols, eris.Wrap(err, "postgres: marshal input refs")
	}
	outputs, err := json.Marshal(emptyIfNil(rec.OutputRefs))
	if err != nil {
		return cols, eris.Wrap(err, "postgres: marshal output refs")
	}
	cols.inputs = inputs
	cols.outputs = outputs

	if rec.Parameters != nil {
		if cols.parameters, err = json.Marshal(rec.Parameters); err != nil {
			return cols, eris.Wrap(err, "postgres: marshal parameters")
		}
	}
	if rec.Metrics != nil {
		if cols.metrics, err = json.Marshal(rec.Metrics); err != nil {
			return cols, eris.Wrap(err, "postgres: marshal metrics")
		}
	}
	if len(rec.Warnings) > 0 {
		if cols.warnings, err = json.Marshal(rec.Warnings); err != nil {
			return cols, eris.Wrap(err, "postgres: marshal warnings")
		}
	}
	return cols, nil
}

func scanOperationPg(row pgx.Row) (*model.ProvenanceRecord, error) {
	var rec model.ProvenanceRecord
	var inputs, outputs []byte
	var parameters, metrics, warnings []byte
	var parentID, errorMessage *string
	var status, tier string

	err := row.Scan(&rec.ID, &rec.OperationType, &rec.ToolID, &inputs, &outputs,
		&parameters, &metrics, &status, &rec.Confidence, &tier, &parentID,
		&rec.DurationMS, &errorMessage, &warnings, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan operation")
	}

	rec.Status = model.OperationStatus(status)
	rec.QualityTier = model.QualityTier(tier)
	if parentID != nil {
		rec.ParentID = *parentID
	}
	if errorMessage != nil {
		rec.ErrorMessage = *errorMessage
	}

	if err := json.Unmarshal(inputs, &rec.InputRefs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal input refs")
	}
	if err := json.Unmarshal(outputs, &rec.OutputRefs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal output refs")
	}
	if len(parameters) > 0 {
		if err := json.Unmarshal(parameters, &rec.Parameters); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal parameters")
		}
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &rec.Metrics); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal metrics")
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &rec.Warnings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal warnings")
		}
	}
	return &rec, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
