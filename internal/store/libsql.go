package store

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/propgrade/propgrade/pkg/schema"
)

//go:embed migrations/001_initial_schema.sql
var initialSchemaSQL string

// schemaRevisions lists schema scripts in application order. The number
// of applied revisions lives in PRAGMA user_version, so a fresh database
// (user_version 0) gets every script and an up-to-date one gets none.
var schemaRevisions = []string{initialSchemaSQL}

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies any schema revisions the database has not seen yet.
// Each revision runs in its own transaction together with the
// user_version bump, so a failed script leaves the version untouched.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	var applied int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&applied); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if applied > len(schemaRevisions) {
		return fmt.Errorf("database schema version %d is ahead of this build (max %d)", applied, len(schemaRevisions))
	}

	for rev := applied; rev < len(schemaRevisions); rev++ {
		if err := s.applyRevision(ctx, rev); err != nil {
			return err
		}
	}
	return nil
}

func (s *LibSQLStore) applyRevision(ctx context.Context, rev int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema revision %d: %w", rev+1, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range sqlStatements(schemaRevisions[rev]) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema revision %d: %w", rev+1, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", rev+1)); err != nil {
		return fmt.Errorf("record schema revision %d: %w", rev+1, err)
	}
	return tx.Commit()
}

// sqlStatements splits a schema script into executable statements.
// Blank and comment-only lines are dropped; a statement ends at a line
// whose last character is a semicolon. A trailing statement without one
// is kept as-is.
func sqlStatements(script string) []string {
	var stmts []string
	var b strings.Builder

	sc := bufio.NewScanner(strings.NewReader(script))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if strings.HasSuffix(line, ";") {
			stmts = append(stmts, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		stmts = append(stmts, b.String())
	}
	return stmts
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

func (s *LibSQLStore) SaveRun(ctx context.Context, run *Run) error {
	if len(run.Expected) == 0 || len(run.Actual) == 0 || len(run.Verdict) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "run requires expected, actual and verdict payloads")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, expected, actual, config, verdict, score, comment, reference_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, nullStr(run.Dataset), string(run.Expected), string(run.Actual),
		nullRaw(run.Config), string(run.Verdict), run.Score, nullStr(run.Comment),
		run.ReferenceTime.UTC(), timeOrNow(run.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	var dataset, comment, config sql.NullString
	var expected, actual, verdict string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, dataset, expected, actual, config, verdict, score, comment, reference_time, created_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &dataset, &expected, &actual, &config, &verdict, &r.Score, &comment, &r.ReferenceTime, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	r.Dataset = dataset.String
	r.Comment = comment.String
	r.Expected = json.RawMessage(expected)
	r.Actual = json.RawMessage(actual)
	r.Config = rawOrNil(config)
	r.Verdict = json.RawMessage(verdict)
	return r, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var where []string
	var args []any

	if filter.Dataset != "" {
		where = append(where, "dataset = ?")
		args = append(args, filter.Dataset)
	}
	if filter.Score != nil {
		where = append(where, "score = ?")
		args = append(args, *filter.Score)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, dataset, expected, actual, config, verdict, score, comment, reference_time, created_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var dataset, comment, config sql.NullString
		var expected, actual, verdict string
		if err := rows.Scan(&r.ID, &dataset, &expected, &actual, &config, &verdict,
			&r.Score, &comment, &r.ReferenceTime, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Dataset = dataset.String
		r.Comment = comment.String
		r.Expected = json.RawMessage(expected)
		r.Actual = json.RawMessage(actual)
		r.Config = rawOrNil(config)
		r.Verdict = json.RawMessage(verdict)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

// --- Datasets ---

func (s *LibSQLStore) SaveDataset(ctx context.Context, ds *Dataset) error {
	if ds.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "dataset name is required")
	}
	if len(ds.Config) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "dataset config is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (name, description, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   description=excluded.description, config=excluded.config, updated_at=CURRENT_TIMESTAMP`,
		ds.Name, nullStr(ds.Description), string(ds.Config),
		timeOrNow(ds.CreatedAt), timeOrNow(ds.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetDataset(ctx context.Context, name string) (*Dataset, error) {
	d := &Dataset{}
	var desc sql.NullString
	var config string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, config, created_at, updated_at FROM datasets WHERE name = ?`, name,
	).Scan(&d.Name, &desc, &config, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("dataset", name)
	}
	if err != nil {
		return nil, err
	}
	d.Description = desc.String
	d.Config = json.RawMessage(config)
	return d, nil
}

func (s *LibSQLStore) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, config, created_at, updated_at FROM datasets ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []*Dataset
	for rows.Next() {
		d := &Dataset{}
		var desc sql.NullString
		var config string
		if err := rows.Scan(&d.Name, &desc, &config, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Description = desc.String
		d.Config = json.RawMessage(config)
		datasets = append(datasets, d)
	}
	return datasets, rows.Err()
}

func (s *LibSQLStore) DeleteDataset(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "dataset", name)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.GradeError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
