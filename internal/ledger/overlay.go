package ledger

import (
	"math/big"
	"sort"

	"drc20-indexer/internal/domain"
)

// base is the committed view an overlay reads through. Satisfied by
// *Ledger and by another *Overlay.
type base interface {
	GetToken(tick string) (*domain.Token, bool)
	GetBalance(address, tick string) *big.Int
}

// Overlay is the running snapshot used while evaluating one block.
// Accepted operations are staged here so later operations in the same
// block (and the same transaction) observe the effects of earlier ones.
// Nothing escapes the overlay until the scanner commits its Delta.
//
// Overlay is not safe for concurrent use; block evaluation is strictly
// sequential.
type Overlay struct {
	base base

	deploys  []*domain.Token
	tokens   map[string]*domain.Token
	balances map[balanceKey]*big.Int    // absolute staged values for touched keys
	changes  map[balanceKey]*big.Int    // net change per touched key
	minted   map[string]*big.Int        // minted increments per tick
	ops      []*domain.Operation
}

// NewOverlay creates an empty overlay over the committed view.
func NewOverlay(b base) *Overlay {
	return &Overlay{
		base:     b,
		tokens:   make(map[string]*domain.Token),
		balances: make(map[balanceKey]*big.Int),
		changes:  make(map[balanceKey]*big.Int),
		minted:   make(map[string]*big.Int),
	}
}

// GetToken returns the token as of the current point in block
// processing, including deploys and minted increments staged earlier in
// the same block.
func (o *Overlay) GetToken(tick string) (*domain.Token, bool) {
	var t *domain.Token
	if staged, ok := o.tokens[tick]; ok {
		t = staged.Clone()
	} else if committed, ok := o.base.GetToken(tick); ok {
		t = committed
	} else {
		return nil, false
	}

	if inc, ok := o.minted[tick]; ok {
		t.Minted = new(big.Int).Add(t.Minted, inc)
	}
	return t, true
}

// GetBalance returns the balance as of the current point in block
// processing.
func (o *Overlay) GetBalance(address, tick string) *big.Int {
	if staged, ok := o.balances[balanceKey{address, tick}]; ok {
		return new(big.Int).Set(staged)
	}
	return o.base.GetBalance(address, tick)
}

// StageDeploy stages a token creation.
func (o *Overlay) StageDeploy(t *domain.Token) {
	staged := t.Clone()
	o.deploys = append(o.deploys, staged)
	o.tokens[t.Tick] = staged
}

// StageMint stages a mint: credits the recipient and bumps the tick's
// minted increment.
func (o *Overlay) StageMint(tick, to string, amount *big.Int) {
	o.credit(to, tick, amount)
	inc, ok := o.minted[tick]
	if !ok {
		inc = new(big.Int)
		o.minted[tick] = inc
	}
	inc.Add(inc, amount)
}

// StageTransfer stages a transfer: debits the sender and credits the
// recipient.
func (o *Overlay) StageTransfer(tick, from, to string, amount *big.Int) {
	o.credit(from, tick, new(big.Int).Neg(amount))
	o.credit(to, tick, amount)
}

// Record appends an operation to the block's audit trail, accepted or
// rejected.
func (o *Overlay) Record(op *domain.Operation) {
	o.ops = append(o.ops, op)
}

func (o *Overlay) credit(address, tick string, delta *big.Int) {
	key := balanceKey{address, tick}

	cur, ok := o.balances[key]
	if !ok {
		cur = new(big.Int).Set(o.base.GetBalance(address, tick))
		o.balances[key] = cur
	}
	cur.Add(cur, delta)

	ch, ok := o.changes[key]
	if !ok {
		ch = new(big.Int)
		o.changes[key] = ch
	}
	ch.Add(ch, delta)
}

// Delta seals the overlay into the block's atomic commit unit. Balance
// changes are emitted in deterministic (address, tick) order; keys whose
// net change is zero are dropped.
func (o *Overlay) Delta(height int64, hash string) *domain.BlockDelta {
	delta := &domain.BlockDelta{
		Height:           height,
		Hash:             hash,
		Deploys:          o.deploys,
		MintedIncrements: make(map[string]*big.Int, len(o.minted)),
		Operations:       o.ops,
	}

	for tick, inc := range o.minted {
		delta.MintedIncrements[tick] = new(big.Int).Set(inc)
	}

	keys := make([]balanceKey, 0, len(o.changes))
	for key, ch := range o.changes {
		if ch.Sign() != 0 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].address != keys[j].address {
			return keys[i].address < keys[j].address
		}
		return keys[i].tick < keys[j].tick
	})
	for _, key := range keys {
		delta.BalanceChanges = append(delta.BalanceChanges, domain.BalanceChange{
			Address: key.address,
			Tick:    key.tick,
			Delta:   new(big.Int).Set(o.changes[key]),
		})
	}

	return delta
}
