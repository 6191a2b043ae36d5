// Package memory is an in-memory implementation of the audit store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vergate/vergate/internal/storage"
)

// Store keeps operation records in insertion order.
type Store struct {
	mu      sync.RWMutex
	records []*storage.OperationRecord
}

var _ storage.AuditStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

func (s *Store) RecordOperation(_ context.Context, rec *storage.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cp := *rec
	s.records = append(s.records, &cp)
	return nil
}

func (s *Store) ListOperations(_ context.Context, opts storage.ListOptions) ([]*storage.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.OperationRecord
	for _, rec := range s.records {
		if opts.Resource != "" && rec.Resource != opts.Resource {
			continue
		}
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		// Copy on the way out, same as on the way in: callers must not be
		// able to mutate persisted records.
		cp := *rec
		result = append(result, &cp)
	}

	start := opts.Offset
	if start >= len(result) {
		return []*storage.OperationRecord{}, nil
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (s *Store) Close() error {
	return nil
}
