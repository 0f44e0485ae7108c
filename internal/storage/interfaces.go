package storage

import (
	"context"
	"math/big"

	"drc20-indexer/internal/domain"
)

// LedgerStore is the persistent home of the ledger: token registry,
// balances, operation audit trail, and the scan checkpoint.
type LedgerStore interface {
	// ApplyBlock commits one block's deltas and the checkpoint advance as
	// a single atomic unit. Returns ErrBlockAlreadyApplied if the height
	// is at or below the checkpoint, ErrNonSequentialBlock if it skips
	// ahead. On any error nothing is written and the same height is safe
	// to retry.
	ApplyBlock(ctx context.Context, delta *domain.BlockDelta) error

	// LoadCheckpoint returns the scan checkpoint. Returns ErrNotFound if
	// no block has been applied yet.
	LoadCheckpoint(ctx context.Context) (*domain.ScanCheckpoint, error)

	// LoadLedger returns the full committed ledger snapshot, used to
	// rebuild in-memory state at startup.
	LoadLedger(ctx context.Context) ([]*domain.Token, []domain.BalanceEntry, error)

	// GetToken retrieves a token by tick. Returns ErrNotFound if not registered.
	GetToken(ctx context.Context, tick string) (*domain.Token, error)

	// GetBalance retrieves the balance for (address, tick), zero if none.
	GetBalance(ctx context.Context, address, tick string) (*big.Int, error)

	// ListTicks returns all registered ticks in lexical order.
	ListTicks(ctx context.Context) ([]string, error)
}

// OperationStore provides read access to the append-only operation
// audit trail written by ApplyBlock.
type OperationStore interface {
	// CountValidByTick returns the number of valid operations recorded
	// for a tick.
	CountValidByTick(ctx context.Context, tick string) (int64, error)

	// GetByTick retrieves operations for a tick ordered by
	// (height, tx index, output index), at most limit rows.
	GetByTick(ctx context.Context, tick string, limit int) ([]*domain.Operation, error)
}

// ReconciliationStore provides access to the append-only reconciliation
// audit trail.
type ReconciliationStore interface {
	// Insert appends a new reconciliation record.
	Insert(ctx context.Context, r *domain.ReconciliationRecord) error

	// ListByTick retrieves records for a tick ordered by CheckedAt DESC.
	ListByTick(ctx context.Context, tick string) ([]*domain.ReconciliationRecord, error)
}
