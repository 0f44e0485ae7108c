// Package memory provides in-memory storage implementations, used in
// tests and in --use-memory dry runs.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/storage"
)

type balanceKey struct {
	address string
	tick    string
}

// Store is an in-memory implementation of storage.LedgerStore and
// storage.OperationStore. ApplyBlock is atomic under the store mutex and
// validates checkpoint sequencing exactly like the PostgreSQL store.
type Store struct {
	mu         sync.RWMutex
	tokens     map[string]*domain.Token
	balances   map[balanceKey]*big.Int
	operations []*domain.Operation
	checkpoint *domain.ScanCheckpoint
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		tokens:   make(map[string]*domain.Token),
		balances: make(map[balanceKey]*big.Int),
	}
}

// ApplyBlock commits one block's deltas and the checkpoint advance
// atomically.
func (s *Store) ApplyBlock(_ context.Context, delta *domain.BlockDelta) error {
	if delta == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkpoint != nil {
		if delta.Height <= s.checkpoint.Height {
			return storage.ErrBlockAlreadyApplied
		}
		if delta.Height != s.checkpoint.Height+1 {
			return storage.ErrNonSequentialBlock
		}
	}

	for _, t := range delta.Deploys {
		s.tokens[t.Tick] = t.Clone()
	}
	for tick, inc := range delta.MintedIncrements {
		if t, ok := s.tokens[tick]; ok {
			t.Minted = new(big.Int).Add(t.Minted, inc)
		}
	}
	for _, ch := range delta.BalanceChanges {
		key := balanceKey{ch.Address, ch.Tick}
		cur, ok := s.balances[key]
		if !ok {
			cur = new(big.Int)
			s.balances[key] = cur
		}
		cur.Add(cur, ch.Delta)
	}
	s.operations = append(s.operations, delta.Operations...)
	s.checkpoint = &domain.ScanCheckpoint{Height: delta.Height, Hash: delta.Hash}

	return nil
}

// LoadCheckpoint returns the scan checkpoint.
func (s *Store) LoadCheckpoint(_ context.Context) (*domain.ScanCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.checkpoint == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.checkpoint
	return &cp, nil
}

// LoadLedger returns the full committed ledger snapshot.
func (s *Store) LoadLedger(_ context.Context) ([]*domain.Token, []domain.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]*domain.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, t.Clone())
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Tick < tokens[j].Tick })

	balances := make([]domain.BalanceEntry, 0, len(s.balances))
	for key, amount := range s.balances {
		balances = append(balances, domain.BalanceEntry{
			Address: key.address,
			Tick:    key.tick,
			Amount:  new(big.Int).Set(amount),
		})
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].Address != balances[j].Address {
			return balances[i].Address < balances[j].Address
		}
		return balances[i].Tick < balances[j].Tick
	})

	return tokens, balances, nil
}

// GetToken retrieves a token by tick.
func (s *Store) GetToken(_ context.Context, tick string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[tick]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// GetBalance retrieves the balance for (address, tick), zero if none.
func (s *Store) GetBalance(_ context.Context, address, tick string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[balanceKey{address, tick}]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(b), nil
}

// ListTicks returns all registered ticks in lexical order.
func (s *Store) ListTicks(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticks := make([]string, 0, len(s.tokens))
	for tick := range s.tokens {
		ticks = append(ticks, tick)
	}
	sort.Strings(ticks)
	return ticks, nil
}

// CountValidByTick returns the number of valid operations for a tick.
func (s *Store) CountValidByTick(_ context.Context, tick string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, op := range s.operations {
		if op.Tick == tick && op.Valid {
			n++
		}
	}
	return n, nil
}

// GetByTick retrieves operations for a tick in chain order.
func (s *Store) GetByTick(_ context.Context, tick string, limit int) ([]*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ops []*domain.Operation
	for _, op := range s.operations {
		if op.Tick != tick {
			continue
		}
		opCopy := *op
		ops = append(ops, &opCopy)
		if limit > 0 && len(ops) == limit {
			break
		}
	}
	return ops, nil
}

// Compile-time interface checks.
var (
	_ storage.LedgerStore    = (*Store)(nil)
	_ storage.OperationStore = (*Store)(nil)
)
