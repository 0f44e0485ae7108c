package postgres

import (
	"context"
	"fmt"

	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/storage"
)

// OperationStore implements storage.OperationStore using PostgreSQL.
// Rows are written by LedgerStore.ApplyBlock; this store only reads.
type OperationStore struct {
	pool *Pool
}

// NewOperationStore creates a new OperationStore.
func NewOperationStore(pool *Pool) *OperationStore {
	return &OperationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OperationStore = (*OperationStore)(nil)

// CountValidByTick returns the number of valid operations for a tick.
func (s *OperationStore) CountValidByTick(ctx context.Context, tick string) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM operations WHERE tick = $1 AND valid
	`, tick)

	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count valid operations: %w", err)
	}
	return n, nil
}

// GetByTick retrieves operations for a tick in chain order.
func (s *OperationStore) GetByTick(ctx context.Context, tick string, limit int) ([]*domain.Operation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT txid, height, tx_index, output_index, bound_output_index,
		       kind, tick, amount::text, max_supply::text, mint_limit::text,
		       from_address, to_address, valid, reject_reason, raw_payload
		FROM operations
		WHERE tick = $1
		ORDER BY height, tx_index, output_index
		LIMIT $2
	`, tick, limit)
	if err != nil {
		return nil, fmt.Errorf("get operations by tick: %w", err)
	}
	defer rows.Close()

	var ops []*domain.Operation
	for rows.Next() {
		var op domain.Operation
		var kind, reason string
		var amount, maxSupply, mintLimit *string

		err := rows.Scan(
			&op.Txid, &op.Height, &op.TxIndex, &op.OutputIndex, &op.BoundOutputIndex,
			&kind, &op.Tick, &amount, &maxSupply, &mintLimit,
			&op.FromAddress, &op.ToAddress, &op.Valid, &reason, &op.RawPayload,
		)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}

		op.Kind = domain.OpKind(kind)
		op.Reason = domain.RejectReason(reason)
		if amount != nil {
			if op.Amount, err = parseBig(*amount); err != nil {
				return nil, fmt.Errorf("scan operation amount: %w", err)
			}
		}
		if maxSupply != nil {
			if op.Max, err = parseBig(*maxSupply); err != nil {
				return nil, fmt.Errorf("scan operation max: %w", err)
			}
		}
		if mintLimit != nil {
			if op.Lim, err = parseBig(*mintLimit); err != nil {
				return nil, fmt.Errorf("scan operation lim: %w", err)
			}
		}

		ops = append(ops, &op)
	}
	return ops, rows.Err()
}
