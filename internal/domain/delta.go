package domain

import "math/big"

// BalanceChange is a signed net change to one (address, tick) balance
// produced by a block.
type BalanceChange struct {
	Address string
	Tick    string
	Delta   *big.Int // positive credit, negative debit
}

// BlockDelta is everything one block does to the ledger.
// It is committed as a single atomic unit together with the checkpoint
// advance; no partial block is ever visible to readers.
type BlockDelta struct {
	Height int64
	Hash   string

	Deploys           []*Token            // tokens created by this block, in acceptance order
	BalanceChanges    []BalanceChange     // net changes, deterministic order
	MintedIncrements  map[string]*big.Int // minted-so-far increments by tick
	Operations        []*Operation        // all recorded operations, valid and invalid
}

// Empty reports whether the block produced no ledger mutations and no
// audit records.
func (d *BlockDelta) Empty() bool {
	return len(d.Deploys) == 0 && len(d.BalanceChanges) == 0 &&
		len(d.MintedIncrements) == 0 && len(d.Operations) == 0
}
