package postgres

import (
	"context"
	"fmt"

	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/storage"
)

// ReconciliationStore implements storage.ReconciliationStore using
// PostgreSQL. Append-only; records are never mutated after creation.
type ReconciliationStore struct {
	pool *Pool
}

// NewReconciliationStore creates a new ReconciliationStore.
func NewReconciliationStore(pool *Pool) *ReconciliationStore {
	return &ReconciliationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReconciliationStore = (*ReconciliationStore)(nil)

// Insert appends a new reconciliation record.
func (s *ReconciliationStore) Insert(ctx context.Context, r *domain.ReconciliationRecord) error {
	if r == nil || r.Tick == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconciliation_records (tick, external_count, ledger_count, verified, checked_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.Tick, r.ExternalCount, r.LedgerCount, r.Verified, r.CheckedAt)
	if err != nil {
		return fmt.Errorf("insert reconciliation record: %w", err)
	}
	return nil
}

// ListByTick retrieves records for a tick, most recent first.
func (s *ReconciliationStore) ListByTick(ctx context.Context, tick string) ([]*domain.ReconciliationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tick, external_count, ledger_count, verified, checked_at
		FROM reconciliation_records
		WHERE tick = $1
		ORDER BY checked_at DESC
	`, tick)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation records: %w", err)
	}
	defer rows.Close()

	var records []*domain.ReconciliationRecord
	for rows.Next() {
		var r domain.ReconciliationRecord
		if err := rows.Scan(&r.Tick, &r.ExternalCount, &r.LedgerCount, &r.Verified, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation record: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
