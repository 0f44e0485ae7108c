package memory

import (
	"context"
	"sort"
	"sync"

	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/storage"
)

// ReconciliationStore is an in-memory implementation of
// storage.ReconciliationStore.
type ReconciliationStore struct {
	mu      sync.RWMutex
	records []*domain.ReconciliationRecord
}

// NewReconciliationStore creates an empty in-memory reconciliation store.
func NewReconciliationStore() *ReconciliationStore {
	return &ReconciliationStore{}
}

// Insert appends a new reconciliation record.
func (s *ReconciliationStore) Insert(_ context.Context, r *domain.ReconciliationRecord) error {
	if r == nil || r.Tick == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *r
	s.records = append(s.records, &recordCopy)
	return nil
}

// ListByTick retrieves records for a tick ordered by CheckedAt DESC.
func (s *ReconciliationStore) ListByTick(_ context.Context, tick string) ([]*domain.ReconciliationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*domain.ReconciliationRecord
	for _, r := range s.records {
		if r.Tick == tick {
			recordCopy := *r
			records = append(records, &recordCopy)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CheckedAt > records[j].CheckedAt })
	return records, nil
}

var _ storage.ReconciliationStore = (*ReconciliationStore)(nil)
