package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kgas-labs/kgas/internal/model"
)

// SQLiteStore implements LineageStore and ArtifactStore using
// modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS operations (
	id             TEXT PRIMARY KEY,
	operation_type TEXT NOT NULL,
	tool_id        TEXT NOT NULL,
	input_refs     TEXT NOT NULL DEFAULT '[]',
	output_refs    TEXT NOT NULL DEFAULT '[]',
	parameters     TEXT,
	metrics        TEXT,
	status         TEXT NOT NULL DEFAULT 'running',
	confidence     REAL NOT NULL DEFAULT 1.0,
	quality_tier   TEXT NOT NULL DEFAULT 'high',
	parent_id      TEXT,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT,
	warnings       TEXT,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	ref        TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operations_tool_id ON operations(tool_id);
CREATE INDEX IF NOT EXISTS idx_operations_created_at ON operations(created_at);
CREATE INDEX IF NOT EXISTS idx_operations_parent_id ON operations(parent_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, rec *model.ProvenanceRecord) error {
	cols, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO operations
		 (id, operation_type, tool_id, input_refs, output_refs, parameters, metrics,
		  status, confidence, quality_tier, parent_id, duration_ms, error_message,
		  warnings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OperationType, rec.ToolID, cols.inputs, cols.outputs,
		cols.parameters, cols.metrics, string(rec.Status), rec.Confidence,
		string(rec.QualityTier), nullString(rec.ParentID), rec.DurationMS,
		nullString(rec.ErrorMessage), cols.warnings, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert operation %s", rec.ID)
}

func (s *SQLiteStore) Update(ctx context.Context, rec *model.ProvenanceRecord) error {
	cols, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE operations SET
		 input_refs = ?, output_refs = ?, parameters = ?, metrics = ?, status = ?,
		 confidence = ?, quality_tier = ?, duration_ms = ?, error_message = ?,
		 warnings = ?, updated_at = ?
		 WHERE id = ?`,
		cols.inputs, cols.outputs, cols.parameters, cols.metrics, string(rec.Status),
		rec.Confidence, string(rec.QualityTier), rec.DurationMS,
		nullString(rec.ErrorMessage), cols.warnings, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update operation %s", rec.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: operation not found: %s", rec.ID)
	}
	return nil
}

const operationColumns = `id, operation_type, tool_id, input_refs, output_refs,
	parameters, metrics, status, confidence, quality_tier, parent_id, duration_ms,
	error_message, warnings, created_at, updated_at`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.ProvenanceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)

	rec, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) GetByOutput(ctx context.Context, ref string) ([]model.ProvenanceRecord, error) {
	return s.queryOperations(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE EXISTS (SELECT 1 FROM json_each(operations.output_refs) WHERE json_each.value = ?)
		 ORDER BY created_at ASC`,
		ref)
}

func (s *SQLiteStore) GetByInput(ctx context.Context, ref string) ([]model.ProvenanceRecord, error) {
	return s.queryOperations(ctx,
		`SELECT `+operationColumns+` FROM operations
		 WHERE EXISTS (SELECT 1 FROM json_each(operations.input_refs) WHERE json_each.value = ?)
		 ORDER BY created_at ASC`,
		ref)
}

func (s *SQLiteStore) Query(ctx context.Context, filter OperationFilter) ([]model.ProvenanceRecord, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE 1=1`
	var args []any

	if filter.ToolID != "" {
		query += ` AND tool_id = ?`
		args = append(args, filter.ToolID)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, filter.Until)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	return s.queryOperations(ctx, query, args...)
}

func (s *SQLiteStore) queryOperations(ctx context.Context, query string, args ...any) ([]model.ProvenanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query operations")
	}
	defer rows.Close()

	var recs []model.ProvenanceRecord
	for rows.Next() {
		rec, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate operations")
}

func (s *SQLiteStore) Resolve(ctx context.Context, ref string) (*model.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM artifacts WHERE ref = ?`, ref)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolve %s", ref)
	}

	var a model.Artifact
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal artifact %s", ref)
	}
	return &a, nil
}

func (s *SQLiteStore) SaveArtifact(ctx context.Context, a *model.Artifact) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal artifact %s", a.Ref)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (ref, type, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		a.Ref, string(a.Type), string(payload), a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save artifact %s", a.Ref)
}

// helpers

type recordColumns struct {
	inputs     string
	outputs    string
	parameters sql.NullString
	metrics    sql.NullString
	warnings   sql.NullString
}

func marshalRecord(rec *model.ProvenanceRecord) (recordColumns, error) {
	var cols recordColumns

	inputs, err := json.Marshal(emptyIfNil(rec.InputRefs))
	if err != nil {
		return cols, eris.Wrap(err, "sqlite: marshal input refs")
	}
	outputs, err := json.Marshal(emptyIfNil(rec.OutputRefs))
	if err != nil {
		return cols, eris.Wrap(err, "sqlite: marshal output refs")
	}
	cols.inputs = string(inputs)
	cols.outputs = string(outputs)

	if rec.Parameters != nil {
		b, err := json.Marshal(rec.Parameters)
		if err != nil {
			return cols, eris.Wrap(err, "sqlite: marshal parameters")
		}
		cols.parameters = sql.NullString{String: string(b), Valid: true}
	}
	if rec.Metrics != nil {
		b, err := json.Marshal(rec.Metrics)
		if err != nil {
			return cols, eris.Wrap(err, "sqlite: marshal metrics")
		}
		cols.metrics = sql.NullString{String: string(b), Valid: true}
	}
	if len(rec.Warnings) > 0 {
		b, err := json.Marshal(rec.Warnings)
		if err != nil {
			return cols, eris.Wrap(err, "sqlite: marshal warnings")
		}
		cols.warnings = sql.NullString{String: string(b), Valid: true}
	}
	return cols, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOperation(row scannable) (*model.ProvenanceRecord, error) {
	var rec model.ProvenanceRecord
	var inputs, outputs string
	var parameters, metrics, parentID, errorMessage, warnings sql.NullString
	var status, tier string

	err := row.Scan(&rec.ID, &rec.OperationType, &rec.ToolID, &inputs, &outputs,
		&parameters, &metrics, &status, &rec.Confidence, &tier, &parentID,
		&rec.DurationMS, &errorMessage, &warnings, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan operation")
	}

	rec.Status = model.OperationStatus(status)
	rec.QualityTier = model.QualityTier(tier)
	rec.ParentID = parentID.String
	rec.ErrorMessage = errorMessage.String

	if err := json.Unmarshal([]byte(inputs), &rec.InputRefs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal input refs")
	}
	if err := json.Unmarshal([]byte(outputs), &rec.OutputRefs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal output refs")
	}
	if parameters.Valid {
		if err := json.Unmarshal([]byte(parameters.String), &rec.Parameters); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal parameters")
		}
	}
	if metrics.Valid {
		if err := json.Unmarshal([]byte(metrics.String), &rec.Metrics); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
		}
	}
	if warnings.Valid {
		if err := json.Unmarshal([]byte(warnings.String), &rec.Warnings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal warnings")
		}
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func emptyIfNil(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}
