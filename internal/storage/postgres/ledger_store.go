package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/observability"
	"drc20-indexer/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// ApplyBlock runs the token upserts, balance upserts, operation audit
// rows, and the checkpoint advance in one transaction, so the ledger and
// the checkpoint can never diverge.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// ApplyBlock commits one block's deltas and the checkpoint advance
// atomically. The checkpoint row is locked first, so concurrent appliers
// serialize and sequencing violations surface as errors, not corruption.
func (s *LedgerStore) ApplyBlock(ctx context.Context, delta *domain.BlockDelta) (err error) {
	if delta == nil {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "apply_block", time.Since(start).Seconds(), err)
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply block: %w", err)
	}
	defer tx.Rollback(ctx)

	var height int64
	err = tx.QueryRow(ctx, `
		SELECT height FROM scan_checkpoint WHERE id = 1 FOR UPDATE
	`).Scan(&height)
	switch {
	case err == nil:
		if delta.Height <= height {
			return storage.ErrBlockAlreadyApplied
		}
		if delta.Height != height+1 {
			return storage.ErrNonSequentialBlock
		}
	case isNotFoundError(err):
		// First block ever applied; any configured genesis height is fine.
	default:
		return fmt.Errorf("lock checkpoint: %w", err)
	}

	for _, t := range delta.Deploys {
		_, err = tx.Exec(ctx, `
			INSERT INTO tokens (
				tick, max_supply, mint_limit, minted,
				deploy_txid, deploy_height, deploy_output_index, deploy_address
			) VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5, $6, $7, $8)
		`, t.Tick, t.MaxSupply.String(), t.MintLimit.String(), t.Minted.String(),
			t.DeployTxid, t.DeployHeight, t.DeployOutputIndex, t.DeployAddress)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("insert token %s: %w", t.Tick, storage.ErrDuplicateKey)
			}
			return fmt.Errorf("insert token %s: %w", t.Tick, err)
		}
	}

	for tick, inc := range delta.MintedIncrements {
		tag, err := tx.Exec(ctx, `
			UPDATE tokens SET minted = minted + $2::numeric WHERE tick = $1
		`, tick, inc.String())
		if err != nil {
			return fmt.Errorf("increment minted for %s: %w", tick, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("increment minted for %s: %w", tick, storage.ErrNotFound)
		}
	}

	for _, ch := range delta.BalanceChanges {
		_, err = tx.Exec(ctx, `
			INSERT INTO balances (address, tick, amount)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (address, tick) DO UPDATE
			SET amount = balances.amount + EXCLUDED.amount,
			    updated_at = NOW()
		`, ch.Address, ch.Tick, ch.Delta.String())
		if err != nil {
			return fmt.Errorf("apply balance change %s/%s: %w", ch.Address, ch.Tick, err)
		}
	}

	for _, op := range delta.Operations {
		_, err = tx.Exec(ctx, `
			INSERT INTO operations (
				txid, height, tx_index, output_index, bound_output_index,
				kind, tick, amount, max_supply, mint_limit,
				from_address, to_address, valid, reject_reason, raw_payload
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7, $8::numeric, $9::numeric, $10::numeric,
				$11, $12, $13, $14, $15
			)
		`, op.Txid, op.Height, op.TxIndex, op.OutputIndex, op.BoundOutputIndex,
			string(op.Kind), op.Tick, bigString(op.Amount), bigString(op.Max), bigString(op.Lim),
			op.FromAddress, op.ToAddress, op.Valid, string(op.Reason), op.RawPayload)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("insert operation %s:%d: %w", op.Txid, op.OutputIndex, storage.ErrDuplicateKey)
			}
			return fmt.Errorf("insert operation %s:%d: %w", op.Txid, op.OutputIndex, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO scan_checkpoint (id, height, hash, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET height = EXCLUDED.height,
		    hash = EXCLUDED.hash,
		    updated_at = NOW()
	`, delta.Height, delta.Hash)
	if err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit block %d: %w", delta.Height, err)
	}
	return nil
}

// LoadCheckpoint returns the scan checkpoint.
func (s *LedgerStore) LoadCheckpoint(ctx context.Context) (*domain.ScanCheckpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT height, hash FROM scan_checkpoint WHERE id = 1
	`)

	var cp domain.ScanCheckpoint
	if err := row.Scan(&cp.Height, &cp.Hash); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &cp, nil
}

// LoadLedger returns the full committed ledger snapshot.
func (s *LedgerStore) LoadLedger(ctx context.Context) ([]*domain.Token, []domain.BalanceEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tick, max_supply::text, mint_limit::text, minted::text,
		       deploy_txid, deploy_height, deploy_output_index, deploy_address
		FROM tokens
		ORDER BY tick
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load tokens: %w", err)
	}

	balRows, err := s.pool.Query(ctx, `
		SELECT address, tick, amount::text
		FROM balances
		WHERE amount <> 0
		ORDER BY address, tick
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load balances: %w", err)
	}
	defer balRows.Close()

	var balances []domain.BalanceEntry
	for balRows.Next() {
		var entry domain.BalanceEntry
		var amount string
		if err := balRows.Scan(&entry.Address, &entry.Tick, &amount); err != nil {
			return nil, nil, fmt.Errorf("scan balance: %w", err)
		}
		if entry.Amount, err = parseBig(amount); err != nil {
			return nil, nil, fmt.Errorf("scan balance %s/%s: %w", entry.Address, entry.Tick, err)
		}
		balances = append(balances, entry)
	}
	if err := balRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load balances: %w", err)
	}

	return tokens, balances, nil
}

// GetToken retrieves a token by tick. Returns ErrNotFound if not registered.
func (s *LedgerStore) GetToken(ctx context.Context, tick string) (*domain.Token, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT tick, max_supply::text, mint_limit::text, minted::text,
		       deploy_txid, deploy_height, deploy_output_index, deploy_address
		FROM tokens
		WHERE tick = $1
	`, tick)

	t, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// GetBalance retrieves the balance for (address, tick), zero if none.
func (s *LedgerStore) GetBalance(ctx context.Context, address, tick string) (*big.Int, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT amount::text FROM balances WHERE address = $1 AND tick = $2
	`, address, tick)

	var amount string
	if err := row.Scan(&amount); err != nil {
		if isNotFoundError(err) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return parseBig(amount)
}

// ListTicks returns all registered ticks in lexical order.
func (s *LedgerStore) ListTicks(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT tick FROM tokens ORDER BY tick`)
	if err != nil {
		return nil, fmt.Errorf("list ticks: %w", err)
	}
	defer rows.Close()

	var ticks []string
	for rows.Next() {
		var tick string
		if err := rows.Scan(&tick); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}

// scanToken scans a single row into a Token.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var maxSupply, mintLimit, minted string

	err := row.Scan(
		&t.Tick, &maxSupply, &mintLimit, &minted,
		&t.DeployTxid, &t.DeployHeight, &t.DeployOutputIndex, &t.DeployAddress,
	)
	if err != nil {
		return nil, err
	}

	if t.MaxSupply, err = parseBig(maxSupply); err != nil {
		return nil, err
	}
	if t.MintLimit, err = parseBig(mintLimit); err != nil {
		return nil, err
	}
	if t.Minted, err = parseBig(minted); err != nil {
		return nil, err
	}
	return &t, nil
}

// parseBig parses a NUMERIC column read back as text.
func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse numeric %q", s)
	}
	return n, nil
}

// bigString renders a nullable big.Int for a NUMERIC parameter.
func bigString(n *big.Int) *string {
	if n == nil {
		return nil
	}
	s := n.String()
	return &s
}
