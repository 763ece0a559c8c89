package store

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-compliance/oficios/pkg/audit"
)

// MemoryAuditStore is an append-only in-memory audit log. Writes are
// serialized under a single mutex; reads copy matching records out.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records []audit.Record
	byID    map[string]int
}

// NewMemoryAuditStore creates an empty store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{byID: make(map[string]int)}
}

// LogAudit appends one record.
func (s *MemoryAuditStore) LogAudit(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rec.AuditID] = len(s.records)
	s.records = append(s.records, rec)
	return nil
}

// GetAuditRecords returns records with start ≤ Timestamp ≤ end, optionally
// narrowed by action type and user, ordered by Timestamp then AuditID.
func (s *MemoryAuditStore) GetAuditRecords(_ context.Context, start, end time.Time, actionType audit.ActionType, userID string) ([]audit.Record, error) {
	s.mu.RLock()
	out := make([]audit.Record, 0)
	for _, rec := range s.records {
		if rec.Timestamp.Before(start) || rec.Timestamp.After(end) {
			continue
		}
		if actionType != "" && rec.ActionType != actionType {
			continue
		}
		if userID != "" && rec.UserID != userID {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

// Get returns one record by ID.
func (s *MemoryAuditStore) Get(auditID string) (audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[auditID]
	if !ok {
		return audit.Record{}, ErrNotFound
	}
	return s.records[i], nil
}

// Size returns the number of stored records.
func (s *MemoryAuditStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
