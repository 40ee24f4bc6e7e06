/*
Package sqlite provides a SQLite-backed implementation of the report store.

PURPOSE:
  Implements report.Store using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

VERSIONED ROWS:
  Each aggregate is one row carrying an integer version column. The
  compare-and-swap runs inside a database transaction and commits an
  UPDATE guarded by "WHERE id = ? AND version = ?"; zero affected rows
  means a competing writer won and the caller gets the conflict error.
  No row is ever locked across requests - conflicts are detected, not
  prevented.

EMBEDDED COLLECTIONS:
  Entries, grants, comments, and attachments are serialized as JSON
  columns. The aggregate is one unit of consistency, so there is no
  value in normalizing its parts into child tables here.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/expense.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - report/store.go: Interface definition and CAS contract
  - report/store/memory.go: In-memory implementation for testing
  - store/bolt: bbolt-backed alternative
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/report"
)

// Store implements report.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		budget_cap TEXT NOT NULL,
		budget_override BOOLEAN NOT NULL DEFAULT FALSE,
		entries_json TEXT NOT NULL,
		grants_json TEXT NOT NULL,
		comments_json TEXT NOT NULL,
		attachments_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_owner ON reports(owner_id);
	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (s *Store) Load(ctx context.Context, id report.ReportID) (*report.Report, error) {
	row := s.db.QueryRowContext(ctx, selectReport+` WHERE id = ?`, string(id))
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, report.ErrNotFound
	}
	return r, err
}

func (s *Store) Create(ctx context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, title, owner_id, department, status, budget_cap,
			budget_override, entries_json, grants_json, comments_json,
			attachments_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reportColumns(r)...)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// CompareAndSwap loads the row inside a transaction, checks the version,
// applies the mutator, and commits an UPDATE guarded by the expected
// version. A mutator error or a lost race rolls back with zero writes.
func (s *Store) CompareAndSwap(ctx context.Context, id report.ReportID, expectedVersion int64, mutate report.Mutator) (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectReport+` WHERE id = ?`, string(id))
	stored, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, report.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if stored.Version != expectedVersion {
		return nil, &report.VersionConflictError{Expected: expectedVersion, Stored: stored.Version}
	}

	next := stored.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1

	res, err := tx.ExecContext(ctx, `
		UPDATE reports SET title = ?, owner_id = ?, department = ?, status = ?,
			budget_cap = ?, budget_override = ?, entries_json = ?, grants_json = ?,
			comments_json = ?, attachments_json = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		next.Title, string(next.OwnerID), next.Department, string(next.Status),
		next.BudgetCap.String(), next.BudgetOverride,
		mustJSON(next.Entries), mustJSON(next.AccessGrants),
		mustJSON(next.Comments), mustJSON(next.Attachments),
		next.Version, next.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(id), expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &report.VersionConflictError{Expected: expectedVersion, Stored: stored.Version}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *Store) List(ctx context.Context) ([]*report.Report, error) {
	rows, err := s.db.QueryContext(ctx, selectReport+` ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*report.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW MAPPING
// =============================================================================

const selectReport = `
	SELECT id, title, owner_id, department, status, budget_cap,
		budget_override, entries_json, grants_json, comments_json,
		attachments_json, version, created_at, updated_at
	FROM reports`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*report.Report, error) {
	var (
		r                             report.Report
		id, ownerID, status, capStr   string
		entriesJSON, grantsJSON       string
		commentsJSON, attachmentsJSON string
		createdAt, updatedAt          string
	)
	err := row.Scan(&id, &r.Title, &ownerID, &r.Department, &status, &capStr,
		&r.BudgetOverride, &entriesJSON, &grantsJSON, &commentsJSON,
		&attachmentsJSON, &r.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.ID = report.ReportID(id)
	r.OwnerID = report.UserID(ownerID)
	r.Status = report.Status(status)

	if r.BudgetCap, err = decimal.NewFromString(capStr); err != nil {
		return nil, fmt.Errorf("parse budget cap: %w", err)
	}
	if err := json.Unmarshal([]byte(entriesJSON), &r.Entries); err != nil {
		return nil, fmt.Errorf("parse entries: %w", err)
	}
	if err := json.Unmarshal([]byte(grantsJSON), &r.AccessGrants); err != nil {
		return nil, fmt.Errorf("parse grants: %w", err)
	}
	if err := json.Unmarshal([]byte(commentsJSON), &r.Comments); err != nil {
		return nil, fmt.Errorf("parse comments: %w", err)
	}
	if err := json.Unmarshal([]byte(attachmentsJSON), &r.Attachments); err != nil {
		return nil, fmt.Errorf("parse attachments: %w", err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &r, nil
}

func reportColumns(r *report.Report) []any {
	return []any{
		string(r.ID), r.Title, string(r.OwnerID), r.Department, string(r.Status),
		r.BudgetCap.String(), r.BudgetOverride,
		mustJSON(r.Entries), mustJSON(r.AccessGrants),
		mustJSON(r.Comments), mustJSON(r.Attachments),
		r.Version,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// mustJSON marshals collections that cannot fail: all element types
// marshal without error. Empty collections serialize as [] so scans
// never see SQL NULL.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	if string(data) == "null" {
		return "[]"
	}
	return string(data)
}
