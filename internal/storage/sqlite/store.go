// Package sqlite is a SQLite implementation of the audit store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vergate/vergate/internal/storage"
)

// Store persists operation records in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ storage.AuditStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			resource TEXT NOT NULL,
			version TEXT,
			status TEXT NOT NULL,
			error_type TEXT,
			error_message TEXT,
			duration_ns INTEGER,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_resource ON operations(resource)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_created ON operations(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) RecordOperation(ctx context.Context, rec *storage.OperationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `INSERT INTO operations
		(id, correlation_id, operation, resource, version, status, error_type, error_message, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.CorrelationID, rec.Operation, rec.Resource, rec.Version,
		rec.Status, rec.ErrorType, rec.ErrorMessage, rec.Duration.Nanoseconds(), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert operation record: %w", err)
	}
	return nil
}

func (s *Store) ListOperations(ctx context.Context, opts storage.ListOptions) ([]*storage.OperationRecord, error) {
	query := `SELECT id, correlation_id, operation, resource, version, status,
		error_type, error_message, duration_ns, created_at FROM operations WHERE 1=1`
	args := []any{}
	if opts.Resource != "" {
		query += " AND resource = ?"
		args = append(args, opts.Resource)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, opts.Status)
	}
	query += " ORDER BY created_at ASC"
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit == 0 {
			limit = -1 // SQLite: no limit, offset still applies
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var result []*storage.OperationRecord
	for rows.Next() {
		var rec storage.OperationRecord
		var durationNS int64
		if err := rows.Scan(&rec.ID, &rec.CorrelationID, &rec.Operation, &rec.Resource,
			&rec.Version, &rec.Status, &rec.ErrorType, &rec.ErrorMessage, &durationNS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation record: %w", err)
		}
		rec.Duration = time.Duration(durationNS)
		result = append(result, &rec)
	}
	return result, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
