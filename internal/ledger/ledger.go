// Package ledger holds the canonical in-memory ledger state (token
// registry plus per-address balances) and the overlay view used while a
// block is being evaluated.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"drc20-indexer/internal/domain"
)

// ErrInconsistent marks a defensive invariant violation at apply time.
// It indicates a validator bug, not a chain condition, and is fatal.
var ErrInconsistent = errors.New("ledger inconsistency")

type balanceKey struct {
	address string
	tick    string
}

// Ledger is the canonical committed state. A block's delta is applied
// as a whole after the persistent store has durably committed it;
// concurrent readers always observe fully-committed blocks.
type Ledger struct {
	mu       sync.RWMutex
	tokens   map[string]*domain.Token
	balances map[balanceKey]*big.Int
	sums     map[string]*big.Int // per-tick balance sums, for conservation checks
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		tokens:   make(map[string]*domain.Token),
		balances: make(map[balanceKey]*big.Int),
		sums:     make(map[string]*big.Int),
	}
}

// Load populates the ledger from a persisted snapshot. Used once at
// scanner startup, before any block is applied.
func Load(tokens []*domain.Token, balances []domain.BalanceEntry) (*Ledger, error) {
	l := New()
	for _, t := range tokens {
		if _, exists := l.tokens[t.Tick]; exists {
			return nil, fmt.Errorf("%w: duplicate token %s in snapshot", ErrInconsistent, t.Tick)
		}
		l.tokens[t.Tick] = t.Clone()
		l.sums[t.Tick] = new(big.Int)
	}
	for _, b := range balances {
		if b.Amount.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative balance %s/%s in snapshot", ErrInconsistent, b.Address, b.Tick)
		}
		l.balances[balanceKey{b.Address, b.Tick}] = new(big.Int).Set(b.Amount)
		sum, ok := l.sums[b.Tick]
		if !ok {
			return nil, fmt.Errorf("%w: balance for unknown token %s in snapshot", ErrInconsistent, b.Tick)
		}
		sum.Add(sum, b.Amount)
	}
	for tick, t := range l.tokens {
		if l.sums[tick].Cmp(t.Minted) != 0 {
			return nil, fmt.Errorf("%w: token %s minted %s != balance sum %s",
				ErrInconsistent, tick, t.Minted, l.sums[tick])
		}
	}
	return l, nil
}

// GetToken returns a copy of the token registered for tick.
func (l *Ledger) GetToken(tick string) (*domain.Token, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tokens[tick]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// GetBalance returns the balance for (address, tick), zero if none.
func (l *Ledger) GetBalance(address, tick string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.balances[balanceKey{address, tick}]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(b)
}

// Ticks returns all registered ticks.
func (l *Ledger) Ticks() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ticks := make([]string, 0, len(l.tokens))
	for tick := range l.tokens {
		ticks = append(ticks, tick)
	}
	return ticks
}

// ApplyDelta applies one committed block's delta as a single unit.
// The validator has already accepted every change; the checks here are
// redundant defensive invariants, and any violation returns
// ErrInconsistent, which the scanner treats as fatal.
func (l *Ledger) ApplyDelta(delta *domain.BlockDelta) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range delta.Deploys {
		if _, exists := l.tokens[t.Tick]; exists {
			return fmt.Errorf("%w: deploy of already registered tick %s", ErrInconsistent, t.Tick)
		}
		l.tokens[t.Tick] = t.Clone()
		l.sums[t.Tick] = new(big.Int)
	}

	for tick, inc := range delta.MintedIncrements {
		t, exists := l.tokens[tick]
		if !exists {
			return fmt.Errorf("%w: mint increment for unknown tick %s", ErrInconsistent, tick)
		}
		minted := new(big.Int).Add(t.Minted, inc)
		if minted.Cmp(t.MaxSupply) > 0 {
			return fmt.Errorf("%w: token %s minted %s would exceed max supply %s",
				ErrInconsistent, tick, minted, t.MaxSupply)
		}
		t.Minted = minted
	}

	for _, ch := range delta.BalanceChanges {
		key := balanceKey{ch.Address, ch.Tick}
		cur, ok := l.balances[key]
		if !ok {
			cur = new(big.Int)
		}
		next := new(big.Int).Add(cur, ch.Delta)
		if next.Sign() < 0 {
			return fmt.Errorf("%w: balance %s/%s would go negative", ErrInconsistent, ch.Address, ch.Tick)
		}
		l.balances[key] = next

		sum, ok := l.sums[ch.Tick]
		if !ok {
			return fmt.Errorf("%w: balance change for unknown tick %s", ErrInconsistent, ch.Tick)
		}
		sum.Add(sum, ch.Delta)
	}

	// Supply conservation: sum of balances per tick equals minted-so-far.
	for tick := range delta.MintedIncrements {
		if t := l.tokens[tick]; l.sums[tick].Cmp(t.Minted) != 0 {
			return fmt.Errorf("%w: token %s minted %s != balance sum %s",
				ErrInconsistent, tick, t.Minted, l.sums[tick])
		}
	}

	return nil
}
