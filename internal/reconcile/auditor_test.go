package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/storage/memory"
)

// stubSource serves fixed per-tick counts, with an optional failing tick.
type stubSource struct {
	counts  map[string]int64
	failFor string
}

func (s *stubSource) CountFor(_ context.Context, tick string) (int64, error) {
	if tick == s.failFor {
		return 0, errors.New("source unavailable")
	}
	return s.counts[tick], nil
}

func seedStore(t *testing.T, store *memory.Store, validOps map[string]int) {
	t.Helper()

	delta := &domain.BlockDelta{Height: 100, Hash: "h100"}
	seq := 0
	for tick, n := range validOps {
		delta.Deploys = append(delta.Deploys, &domain.Token{
			Tick:      tick,
			MaxSupply: big.NewInt(1000000),
			MintLimit: big.NewInt(1000),
			Minted:    big.NewInt(0),
		})
		for i := 0; i < n; i++ {
			seq++
			delta.Operations = append(delta.Operations, &domain.Operation{
				Txid:  fmt.Sprintf("tx%d", seq),
				Tick:  tick,
				Kind:  domain.OpMint,
				Valid: true,
			})
		}
	}
	if err := store.ApplyBlock(context.Background(), delta); err != nil {
		t.Fatalf("Seeding store failed: %v", err)
	}
}

func newTestAuditor(store *memory.Store, records *memory.ReconciliationStore, source RecordSource) *Auditor {
	return New(Options{
		Ledger:     store,
		Operations: store,
		Records:    records,
		Source:     source,
		Logger:     log.New(io.Discard, "", 0),
		Now:        func() time.Time { return time.UnixMilli(1700000000000) },
	})
}

func TestRunOnce_AllVerified(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, map[string]int{"DOGI": 3, "PUP": 1})
	records := memory.NewReconciliationStore()

	auditor := newTestAuditor(store, records, &stubSource{counts: map[string]int64{"DOGI": 3, "PUP": 1}})

	got, err := auditor.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Records: got %d, want 2", len(got))
	}
	for _, r := range got {
		if !r.Verified {
			t.Errorf("Tick %s not verified: external=%d ledger=%d", r.Tick, r.ExternalCount, r.LedgerCount)
		}
		if r.CheckedAt != 1700000000000 {
			t.Errorf("CheckedAt: got %d, want the injected clock value", r.CheckedAt)
		}
	}
}

func TestRunOnce_Discrepancy(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, map[string]int{"DOGI": 3})
	records := memory.NewReconciliationStore()

	auditor := newTestAuditor(store, records, &stubSource{counts: map[string]int64{"DOGI": 5}})

	got, err := auditor.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Records: got %d, want 1", len(got))
	}
	r := got[0]
	if r.Verified {
		t.Error("Expected discrepancy to be flagged")
	}
	if r.ExternalCount != 5 || r.LedgerCount != 3 {
		t.Errorf("Counts: got external=%d ledger=%d, want 5/3", r.ExternalCount, r.LedgerCount)
	}

	// The record is persisted, not just returned.
	persisted, err := records.ListByTick(context.Background(), "DOGI")
	if err != nil {
		t.Fatalf("ListByTick failed: %v", err)
	}
	if len(persisted) != 1 || persisted[0].Verified {
		t.Errorf("Persisted records: %+v", persisted)
	}
}

func TestRunOnce_SourceFailureKeepsAppendedRecords(t *testing.T) {
	store := memory.NewStore()
	seedStore(t, store, map[string]int{"AAAA": 1, "BBBB": 1})
	records := memory.NewReconciliationStore()

	// AAAA succeeds, BBBB fails; ticks sweep in lexical order.
	auditor := newTestAuditor(store, records, &stubSource{
		counts:  map[string]int64{"AAAA": 1},
		failFor: "BBBB",
	})

	got, err := auditor.RunOnce(context.Background())
	if err == nil {
		t.Fatal("Expected sweep to fail on BBBB")
	}
	if len(got) != 1 || got[0].Tick != "AAAA" {
		t.Errorf("Expected the AAAA record to survive, got %+v", got)
	}

	persisted, err := records.ListByTick(context.Background(), "AAAA")
	if err != nil || len(persisted) != 1 {
		t.Errorf("Expected the AAAA record to stay persisted, got %v (%v)", persisted, err)
	}
}

func TestHTTPRecordSource_CountFor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ticks/DOGI/count" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tick":"DOGI","count":42}`))
	}))
	defer server.Close()

	source := NewHTTPRecordSource(server.URL, nil)

	count, err := source.CountFor(context.Background(), "DOGI")
	if err != nil {
		t.Fatalf("CountFor failed: %v", err)
	}
	if count != 42 {
		t.Errorf("Count: got %d, want 42", count)
	}
}

func TestHTTPRecordSource_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tick not tracked", http.StatusNotFound)
	}))
	defer server.Close()

	source := NewHTTPRecordSource(server.URL, nil)

	if _, err := source.CountFor(context.Background(), "NOPE"); err == nil {
		t.Fatal("Expected error for 404 response")
	}
}
