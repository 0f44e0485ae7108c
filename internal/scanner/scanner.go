// Package scanner drives block-by-block replay of the chain: it owns
// the scan cursor, evaluates blocks through the consensus engine, and
// commits whole-block deltas atomically together with the checkpoint.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"drc20-indexer/internal/chain"
	"drc20-indexer/internal/consensus"
	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/ledger"
	"drc20-indexer/internal/observability"
	"drc20-indexer/internal/storage"
)

// Scanner faults. Both halt the scan loop; neither leaves partial state
// behind because nothing commits until a whole block commits.
var (
	// ErrReorgDetected is returned when a block's previous hash does not
	// match the checkpoint's recorded hash. Resolution requires an
	// explicit rescan; the scanner never silently continues.
	ErrReorgDetected = errors.New("chain reorganization detected")

	// ErrTransport is returned when the chain data source fails after
	// exhausting its retry budget.
	ErrTransport = errors.New("chain data source failure")
)

// State is the scanner's cursor state.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateCommitting
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCommitting:
		return "committing"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Archiver receives a committed block's operations for analytics.
// Archiving is best-effort and runs after the durable commit.
type Archiver interface {
	ArchiveBlock(ctx context.Context, ops []*domain.Operation) error
}

// Options contains configuration for creating a Scanner.
type Options struct {
	Chain     chain.Source
	Store     storage.LedgerStore
	Policy    consensus.Policy
	Archiver  Archiver // optional

	// GenesisHeight is the first height to scan when no checkpoint exists.
	GenesisHeight int64

	// Confirmations is how many blocks behind the tip the scanner stays.
	// Indexing only confirmed blocks is the reorg mitigation; a reorg
	// deeper than this still halts with ErrReorgDetected.
	Confirmations int64

	// PollInterval is how often to poll for new blocks when no
	// notification channel is wired. Default: 30s.
	PollInterval time.Duration

	// Notify wakes the scanner early when a new block is announced.
	Notify <-chan chain.BlockNotification

	Logger *log.Logger
}

// Scanner is the single-writer block replay loop. Exactly one scan is
// in flight at a time; ledger mutation happens only at block commit.
type Scanner struct {
	chain         chain.Source
	store         storage.LedgerStore
	processor     *BlockProcessor
	archiver      Archiver
	genesisHeight int64
	confirmations int64
	pollInterval  time.Duration
	notify        <-chan chain.BlockNotification
	logger        *log.Logger

	state  atomic.Int32
	ledger *ledger.Ledger
}

// New creates a new Scanner.
func New(opts Options) *Scanner {
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Scanner{
		chain:         opts.Chain,
		store:         opts.Store,
		processor:     NewBlockProcessor(opts.Policy),
		archiver:      opts.Archiver,
		genesisHeight: opts.GenesisHeight,
		confirmations: opts.Confirmations,
		pollInterval:  pollInterval,
		notify:        opts.Notify,
		logger:        logger,
	}
}

// State returns the scanner's current cursor state.
func (s *Scanner) State() State {
	return State(s.state.Load())
}

// Ledger returns the in-memory committed ledger. Readers always observe
// fully-committed blocks; the scanner mutates it only after the store
// commit succeeds.
func (s *Scanner) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Scanner) setState(state State) {
	s.state.Store(int32(state))
}

// Run resumes from the checkpoint and scans until ctx is cancelled or a
// fatal fault occurs. The stop signal is honored between blocks, never
// mid-block, so shutdown cannot leave a partial commit.
func (s *Scanner) Run(ctx context.Context) error {
	cp, err := s.resume(ctx)
	if err != nil {
		s.setState(StateFaulted)
		return err
	}

	if cp != nil {
		s.logger.Printf("Resuming scan from checkpoint height=%d hash=%s", cp.Height, cp.Hash)
	} else {
		s.logger.Printf("No checkpoint, starting scan at genesis height %d", s.genesisHeight)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		cp, err = s.catchUp(ctx, cp)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.setState(StateIdle)
				return err
			}
			s.setState(StateFaulted)
			return err
		}
		s.setState(StateIdle)

		select {
		case <-ctx.Done():
			s.logger.Println("Scanner stopping...")
			return ctx.Err()
		case <-ticker.C:
		case n, ok := <-s.notify:
			if ok {
				s.logger.Printf("Block notification: height=%d hash=%s", n.Height, n.Hash)
			}
		}
	}
}

// resume loads the checkpoint and rebuilds the in-memory ledger from
// the committed snapshot.
func (s *Scanner) resume(ctx context.Context) (*domain.ScanCheckpoint, error) {
	cp, err := s.store.LoadCheckpoint(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	tokens, balances, err := s.store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger snapshot: %w", err)
	}
	if s.ledger, err = ledger.Load(tokens, balances); err != nil {
		return nil, err
	}

	return cp, nil
}

// catchUp processes every confirmed block above the checkpoint, one at
// a time, strictly increasing. Returns the advanced checkpoint.
func (s *Scanner) catchUp(ctx context.Context, cp *domain.ScanCheckpoint) (*domain.ScanCheckpoint, error) {
	tip, err := s.chain.CurrentHeight(ctx)
	if err != nil {
		return cp, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	observability.RecordChainTip(tip)

	target := tip - s.confirmations
	next := s.genesisHeight
	if cp != nil {
		next = cp.Height + 1
	}

	for height := next; height <= target; height++ {
		// Cooperative stop between blocks, never mid-block.
		select {
		case <-ctx.Done():
			return cp, ctx.Err()
		default:
		}

		cp, err = s.scanOne(ctx, height, cp)
		if err != nil {
			return cp, err
		}
	}

	return cp, nil
}

// scanOne fetches, evaluates, and commits a single block.
func (s *Scanner) scanOne(ctx context.Context, height int64, cp *domain.ScanCheckpoint) (*domain.ScanCheckpoint, error) {
	s.setState(StateScanning)
	start := time.Now()

	block, err := s.chain.BlockAt(ctx, height)
	if err != nil {
		observability.RecordScanFault("transport")
		return cp, fmt.Errorf("%w: block %d: %v", ErrTransport, height, err)
	}

	// Continuity check: the new block must extend the committed chain.
	if cp != nil && block.PreviousHash != cp.Hash {
		observability.RecordScanFault("reorg")
		return cp, fmt.Errorf("%w: block %d previous hash %s != checkpoint hash %s",
			ErrReorgDetected, height, block.PreviousHash, cp.Hash)
	}

	delta := s.processor.Process(block, s.ledger)

	s.setState(StateCommitting)
	if err := s.store.ApplyBlock(ctx, delta); err != nil {
		if errors.Is(err, storage.ErrBlockAlreadyApplied) {
			// Crash-recovery race: the block committed but the loop didn't
			// observe it. Safe to skip; the ledger reload at startup
			// already reflects it.
			s.logger.Printf("Block %d already applied, skipping", height)
			return &domain.ScanCheckpoint{Height: block.Height, Hash: block.Hash}, nil
		}
		return cp, fmt.Errorf("apply block %d: %w", height, err)
	}

	if err := s.ledger.ApplyDelta(delta); err != nil {
		// Defensive invariant violation: validator bug, not a chain
		// condition. Fatal.
		observability.RecordScanFault("inconsistency")
		return cp, err
	}

	if s.archiver != nil && len(delta.Operations) > 0 {
		if err := s.archiver.ArchiveBlock(ctx, delta.Operations); err != nil {
			s.logger.Printf("Archive block %d: %v", height, err)
		}
	}

	observability.RecordBlockCommitted(height, time.Since(start).Seconds())
	s.logger.Printf("Committed block %d (%s): %d operations, %d deploys",
		height, block.Hash, len(delta.Operations), len(delta.Deploys))

	return &domain.ScanCheckpoint{Height: block.Height, Hash: block.Hash}, nil
}
