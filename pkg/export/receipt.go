package export

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrReceiptNotFound reports a missing receipt for a point lookup.
var ErrReceiptNotFound = errors.New("receipt not found")

// Receipt describes one produced artifact: enough to locate it, prove its
// content and mint download tokens for it.
type Receipt struct {
	ArtifactID     string    `json:"artifact_id"`
	FileID         string    `json:"file_id"`
	Kind           Kind      `json:"kind"`
	SHA256         string    `json:"sha256"`
	SizeBytes      int64     `json:"size_bytes"`
	LayoutVersion  string    `json:"layout_version,omitempty"`
	SignatureKeyID string    `json:"signature_key_id,omitempty"`
	Signature      string    `json:"signature,omitempty"`
	HasSummary     bool      `json:"has_summary,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReceiptStore persists artifact receipts.
type ReceiptStore interface {
	SaveReceipt(ctx context.Context, rec Receipt) error
	GetReceipt(ctx context.Context, artifactID string) (Receipt, error)
	ListReceipts(ctx context.Context, fileID string) ([]Receipt, error)
}

// MemoryReceiptStore keeps receipts in process memory.
type MemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts map[string]Receipt
	order    []string
}

// NewMemoryReceiptStore creates an empty store.
func NewMemoryReceiptStore() *MemoryReceiptStore {
	return &MemoryReceiptStore{receipts: make(map[string]Receipt)}
}

// SaveReceipt stores a receipt keyed by artifact id.
func (s *MemoryReceiptStore) SaveReceipt(_ context.Context, rec Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.receipts[rec.ArtifactID]; !exists {
		s.order = append(s.order, rec.ArtifactID)
	}
	s.receipts[rec.ArtifactID] = rec
	return nil
}

// GetReceipt returns the receipt for artifactID.
func (s *MemoryReceiptStore) GetReceipt(_ context.Context, artifactID string) (Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.receipts[artifactID]
	if !ok {
		return Receipt{}, ErrReceiptNotFound
	}
	return rec, nil
}

// ListReceipts returns the receipts for a file in creation order.
func (s *MemoryReceiptStore) ListReceipts(_ context.Context, fileID string) ([]Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Receipt, 0)
	for _, id := range s.order {
		if rec := s.receipts[id]; rec.FileID == fileID {
			out = append(out, rec)
		}
	}
	return out, nil
}
