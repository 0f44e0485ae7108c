// Package reconcile cross-checks ledger-derived operation counts
// against an independently maintained external record source. The
// auditor is read-only with respect to the ledger: discrepancies are
// reported, never auto-corrected.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/observability"
	"drc20-indexer/internal/storage"
)

// RecordSource is the external, independently maintained count of
// submitted operations per tick.
type RecordSource interface {
	CountFor(ctx context.Context, tick string) (int64, error)
}

// Options contains configuration for creating an Auditor.
type Options struct {
	Ledger     storage.LedgerStore
	Operations storage.OperationStore
	Records    storage.ReconciliationStore
	Source     RecordSource

	// Interval between scheduled sweeps in Run. Default: 1h.
	Interval time.Duration

	Logger *log.Logger

	// Now is the acting clock, overridable in tests.
	Now func() time.Time
}

// Auditor compares, per tick, the ledger's count of valid operations
// against the external record source and appends a
// ReconciliationRecord for each comparison.
type Auditor struct {
	ledger     storage.LedgerStore
	operations storage.OperationStore
	records    storage.ReconciliationStore
	source     RecordSource
	interval   time.Duration
	logger     *log.Logger
	now        func() time.Time
}

// New creates a new Auditor.
func New(opts Options) *Auditor {
	interval := opts.Interval
	if interval == 0 {
		interval = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Auditor{
		ledger:     opts.Ledger,
		operations: opts.Operations,
		records:    opts.Records,
		source:     opts.Source,
		interval:   interval,
		logger:     logger,
		now:        now,
	}
}

// RunOnce sweeps every tick known to the ledger and returns the
// appended records. A failing tick aborts the sweep; records already
// appended stay, the audit trail is append-only by design.
func (a *Auditor) RunOnce(ctx context.Context) ([]*domain.ReconciliationRecord, error) {
	ticks, err := a.ledger.ListTicks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ticks: %w", err)
	}

	observability.RecordReconciliationRun()

	var records []*domain.ReconciliationRecord
	for _, tick := range ticks {
		record, err := a.reconcileTick(ctx, tick)
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}

	return records, nil
}

// Run sweeps on a schedule until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Printf("Auditor started, interval: %v", a.interval)

	for {
		select {
		case <-ctx.Done():
			a.logger.Println("Auditor stopping...")
			return ctx.Err()
		case <-ticker.C:
			records, err := a.RunOnce(ctx)
			if err != nil {
				a.logger.Printf("Reconciliation sweep failed: %v", err)
				continue
			}
			discrepancies := 0
			for _, r := range records {
				if !r.Verified {
					discrepancies++
				}
			}
			a.logger.Printf("Reconciliation sweep: %d ticks, %d discrepancies", len(records), discrepancies)
		}
	}
}

func (a *Auditor) reconcileTick(ctx context.Context, tick string) (*domain.ReconciliationRecord, error) {
	external, err := a.source.CountFor(ctx, tick)
	if err != nil {
		return nil, fmt.Errorf("external count for %s: %w", tick, err)
	}

	ledgerCount, err := a.operations.CountValidByTick(ctx, tick)
	if err != nil {
		return nil, fmt.Errorf("ledger count for %s: %w", tick, err)
	}

	record := &domain.ReconciliationRecord{
		Tick:          tick,
		ExternalCount: external,
		LedgerCount:   ledgerCount,
		Verified:      external == ledgerCount,
		CheckedAt:     a.now().UnixMilli(),
	}

	if err := a.records.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("insert reconciliation record for %s: %w", tick, err)
	}

	observability.RecordReconciliation(record.Verified)
	if !record.Verified {
		a.logger.Printf("Discrepancy for %s: external=%d ledger=%d", tick, external, ledgerCount)
	}

	return record, nil
}
