// Package stub provides an in-memory chain source for tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"drc20-indexer/internal/domain"
)

// Source is an in-memory chain.Source backed by a fixed set of blocks.
type Source struct {
	mu     sync.RWMutex
	blocks map[int64]*domain.Block
	height int64

	// FailAt makes BlockAt return an error for one height, simulating a
	// transport failure.
	FailAt int64
}

// NewSource creates an empty stub chain.
func NewSource() *Source {
	return &Source{blocks: make(map[int64]*domain.Block), FailAt: -1}
}

// AddBlock appends a block, linking its previous hash to the current tip.
func (s *Source) AddBlock(block *domain.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[block.Height] = block
	if block.Height > s.height {
		s.height = block.Height
	}
}

// CurrentHeight returns the tip height.
func (s *Source) CurrentHeight(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height, nil
}

// BlockAt returns the block at a height.
func (s *Source) BlockAt(_ context.Context, height int64) (*domain.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if height == s.FailAt {
		return nil, fmt.Errorf("stub: transport failure at height %d", height)
	}
	block, ok := s.blocks[height]
	if !ok {
		return nil, fmt.Errorf("stub: no block at height %d", height)
	}
	return block, nil
}
