package store

import (
	"context"
	"sync"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// FileMetadataStore persists the immutable identity of ingested files. No
// two records may share a Checksum.
type FileMetadataStore interface {
	Save(ctx context.Context, fm contracts.FileMetadata) error
	GetByID(ctx context.Context, fileID string) (contracts.FileMetadata, error)
	GetByChecksum(ctx context.Context, checksum string) (contracts.FileMetadata, error)
	List(ctx context.Context) ([]contracts.FileMetadata, error)
}

// MemoryFileMetadataStore keeps file metadata in process memory.
type MemoryFileMetadataStore struct {
	mu         sync.RWMutex
	byID       map[string]contracts.FileMetadata
	byChecksum map[string]string // checksum -> file_id
	order      []string
}

// NewMemoryFileMetadataStore creates an empty store.
func NewMemoryFileMetadataStore() *MemoryFileMetadataStore {
	return &MemoryFileMetadataStore{
		byID:       make(map[string]contracts.FileMetadata),
		byChecksum: make(map[string]string),
	}
}

// Save stores fm, rejecting checksum duplicates.
func (s *MemoryFileMetadataStore) Save(_ context.Context, fm contracts.FileMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byChecksum[fm.Checksum]; exists {
		return ErrDuplicateChecksum
	}
	s.byID[fm.FileID] = fm
	s.byChecksum[fm.Checksum] = fm.FileID
	s.order = append(s.order, fm.FileID)
	return nil
}

// GetByID returns the record for fileID.
func (s *MemoryFileMetadataStore) GetByID(_ context.Context, fileID string) (contracts.FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fm, ok := s.byID[fileID]
	if !ok {
		return contracts.FileMetadata{}, ErrNotFound
	}
	return fm, nil
}

// GetByChecksum returns the record owning checksum.
func (s *MemoryFileMetadataStore) GetByChecksum(_ context.Context, checksum string) (contracts.FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byChecksum[checksum]
	if !ok {
		return contracts.FileMetadata{}, ErrNotFound
	}
	return s.byID[id], nil
}

// List returns all records in insertion order.
func (s *MemoryFileMetadataStore) List(_ context.Context) ([]contracts.FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.FileMetadata, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out, nil
}
