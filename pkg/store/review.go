package store

import (
	"context"
	"sync"

	"github.com/meridian-compliance/oficios/pkg/contracts"
)

// ReviewStore persists manual review cases and the decisions that resolve
// them.
type ReviewStore interface {
	CreateCase(ctx context.Context, rc contracts.ReviewCase) error
	GetCase(ctx context.Context, caseID string) (contracts.ReviewCase, error)
	UpdateCase(ctx context.Context, rc contracts.ReviewCase) error
	ListCasesByStatus(ctx context.Context, status contracts.ReviewStatus) ([]contracts.ReviewCase, error)
	SaveDecision(ctx context.Context, d contracts.ReviewDecision) error
}

// MemoryReviewStore keeps review state in process memory.
type MemoryReviewStore struct {
	mu        sync.RWMutex
	cases     map[string]contracts.ReviewCase
	order     []string
	decisions []contracts.ReviewDecision
}

// NewMemoryReviewStore creates an empty store.
func NewMemoryReviewStore() *MemoryReviewStore {
	return &MemoryReviewStore{cases: make(map[string]contracts.ReviewCase)}
}

// CreateCase stores a new case.
func (s *MemoryReviewStore) CreateCase(_ context.Context, rc contracts.ReviewCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[rc.CaseID]; !exists {
		s.order = append(s.order, rc.CaseID)
	}
	s.cases[rc.CaseID] = rc
	return nil
}

// GetCase returns the case for caseID.
func (s *MemoryReviewStore) GetCase(_ context.Context, caseID string) (contracts.ReviewCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rc, ok := s.cases[caseID]
	if !ok {
		return contracts.ReviewCase{}, ErrNotFound
	}
	return rc, nil
}

// UpdateCase replaces an existing case.
func (s *MemoryReviewStore) UpdateCase(_ context.Context, rc contracts.ReviewCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[rc.CaseID]; !ok {
		return ErrNotFound
	}
	s.cases[rc.CaseID] = rc
	return nil
}

// ListCasesByStatus returns cases with the given status in creation order.
func (s *MemoryReviewStore) ListCasesByStatus(_ context.Context, status contracts.ReviewStatus) ([]contracts.ReviewCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.ReviewCase, 0)
	for _, id := range s.order {
		if rc := s.cases[id]; rc.Status == status {
			out = append(out, rc)
		}
	}
	return out, nil
}

// SaveDecision appends a review decision.
func (s *MemoryReviewStore) SaveDecision(_ context.Context, d contracts.ReviewDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

// Decisions returns a copy of all stored decisions.
func (s *MemoryReviewStore) Decisions() []contracts.ReviewDecision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.ReviewDecision, len(s.decisions))
	copy(out, s.decisions)
	return out
}
