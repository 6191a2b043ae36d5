// Package storage defines the audit store recording every executed logical
// operation. Backends live in subpackages (memory, sqlite).
package storage

import (
	"context"
	"time"
)

// OperationRecord is one audited Execute call.
type OperationRecord struct {
	ID            string
	CorrelationID string
	Operation     string
	Resource      string
	Version       string
	Status        string // "ok" or "error"
	ErrorType     string
	ErrorMessage  string
	Duration      time.Duration
	CreatedAt     time.Time
}

// ListOptions filters and paginates audit queries.
type ListOptions struct {
	Resource string
	Status   string
	Limit    int
	Offset   int
}

// AuditStore persists operation records.
type AuditStore interface {
	RecordOperation(ctx context.Context, rec *OperationRecord) error
	ListOperations(ctx context.Context, opts ListOptions) ([]*OperationRecord, error)
	Close() error
}
