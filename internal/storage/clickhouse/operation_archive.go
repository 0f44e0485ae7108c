package clickhouse

import (
	"context"
	"fmt"

	"drc20-indexer/internal/domain"
)

// OperationArchive appends decoded operations (valid and invalid) to
// ClickHouse for analytics. Rows are written after the PostgreSQL commit
// and may be re-sent after a crash; the ReplacingMergeTree key
// (height, tx_index, output_index) absorbs duplicates.
type OperationArchive struct {
	conn *Conn
}

// NewOperationArchive creates a new OperationArchive.
func NewOperationArchive(conn *Conn) *OperationArchive {
	return &OperationArchive{conn: conn}
}

// ArchiveBlock appends all operations recorded for one block.
func (a *OperationArchive) ArchiveBlock(ctx context.Context, ops []*domain.Operation) error {
	if len(ops) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO operations_archive (
			txid, height, tx_index, output_index, bound_output_index,
			kind, tick, amount, from_address, to_address,
			valid, reject_reason, raw_payload
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, op := range ops {
		amount := ""
		if op.Amount != nil {
			amount = op.Amount.String()
		}
		valid := uint8(0)
		if op.Valid {
			valid = 1
		}

		err = batch.Append(
			op.Txid, uint64(op.Height), uint32(op.TxIndex), uint32(op.OutputIndex),
			int32(op.BoundOutputIndex), string(op.Kind), op.Tick, amount,
			op.FromAddress, op.ToAddress, valid, string(op.Reason), string(op.RawPayload),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// CountByVerdict returns the number of archived operations for a tick,
// split by validity. Used for ad-hoc analytics queries.
func (a *OperationArchive) CountByVerdict(ctx context.Context, tick string) (valid, invalid uint64, err error) {
	row := a.conn.QueryRow(ctx, `
		SELECT countIf(valid = 1), countIf(valid = 0)
		FROM operations_archive
		WHERE tick = ?
	`, tick)

	if err := row.Scan(&valid, &invalid); err != nil {
		return 0, 0, fmt.Errorf("count archived operations: %w", err)
	}
	return valid, invalid, nil
}
