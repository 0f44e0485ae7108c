package ledger

import (
	"math/big"
	"testing"

	"drc20-indexer/internal/domain"
)

func TestOverlay_DeployVisibleBeforeCommit(t *testing.T) {
	base := New()
	o := NewOverlay(base)

	o.StageDeploy(testToken("DOGI", 21000000, 1000, 0))

	if _, ok := o.GetToken("DOGI"); !ok {
		t.Error("Staged deploy not visible through overlay")
	}
	if _, ok := base.GetToken("DOGI"); ok {
		t.Error("Staged deploy leaked into the base ledger")
	}
}

func TestOverlay_MintObservedBySubsequentReads(t *testing.T) {
	base := New()
	o := NewOverlay(base)

	o.StageDeploy(testToken("DOGI", 2000, 1000, 0))
	o.StageMint("DOGI", "DAlice", big.NewInt(1000))

	token, _ := o.GetToken("DOGI")
	if token.Minted.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("Overlay minted: got %s, want 1000", token.Minted)
	}
	if bal := o.GetBalance("DAlice", "DOGI"); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("Overlay balance: got %s, want 1000", bal)
	}
}

func TestOverlay_TransferChain(t *testing.T) {
	// A balance received earlier in the same block is spendable by a
	// later transfer.
	base := New()
	if err := base.ApplyDelta(&domain.BlockDelta{
		Deploys:          []*domain.Token{testToken("DOGI", 2000, 1000, 500)},
		MintedIncrements: map[string]*big.Int{"DOGI": big.NewInt(500)},
		BalanceChanges: []domain.BalanceChange{
			{Address: "DAlice", Tick: "DOGI", Delta: big.NewInt(500)},
		},
	}); err != nil {
		t.Fatalf("Base setup failed: %v", err)
	}

	o := NewOverlay(base)
	o.StageTransfer("DOGI", "DAlice", "DBob", big.NewInt(500))
	o.StageTransfer("DOGI", "DBob", "DCarol", big.NewInt(200))

	if bal := o.GetBalance("DAlice", "DOGI"); bal.Sign() != 0 {
		t.Errorf("DAlice balance: got %s, want 0", bal)
	}
	if bal := o.GetBalance("DBob", "DOGI"); bal.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("DBob balance: got %s, want 300", bal)
	}
	if bal := o.GetBalance("DCarol", "DOGI"); bal.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("DCarol balance: got %s, want 200", bal)
	}
}

func TestOverlay_DeltaDeterministicOrder(t *testing.T) {
	base := New()
	o := NewOverlay(base)

	o.StageDeploy(testToken("DOGI", 21000000, 1000, 0))
	o.StageMint("DOGI", "DZed", big.NewInt(100))
	o.StageMint("DOGI", "DAbe", big.NewInt(100))

	delta := o.Delta(42, "h42")
	if delta.Height != 42 || delta.Hash != "h42" {
		t.Errorf("Delta header: got %d/%s", delta.Height, delta.Hash)
	}
	if len(delta.BalanceChanges) != 2 {
		t.Fatalf("Balance changes: got %d, want 2", len(delta.BalanceChanges))
	}
	if delta.BalanceChanges[0].Address != "DAbe" || delta.BalanceChanges[1].Address != "DZed" {
		t.Errorf("Balance changes not in address order: %v", delta.BalanceChanges)
	}
	if delta.MintedIncrements["DOGI"].Cmp(big.NewInt(200)) != 0 {
		t.Errorf("Minted increment: got %s, want 200", delta.MintedIncrements["DOGI"])
	}
}

func TestOverlay_DeltaDropsZeroNetChanges(t *testing.T) {
	base := New()
	if err := base.ApplyDelta(&domain.BlockDelta{
		Deploys:          []*domain.Token{testToken("DOGI", 2000, 1000, 100)},
		MintedIncrements: map[string]*big.Int{"DOGI": big.NewInt(100)},
		BalanceChanges: []domain.BalanceChange{
			{Address: "DAlice", Tick: "DOGI", Delta: big.NewInt(100)},
		},
	}); err != nil {
		t.Fatalf("Base setup failed: %v", err)
	}

	o := NewOverlay(base)
	o.StageTransfer("DOGI", "DAlice", "DBob", big.NewInt(50))
	o.StageTransfer("DOGI", "DBob", "DAlice", big.NewInt(50))

	delta := o.Delta(1, "h1")
	if len(delta.BalanceChanges) != 0 {
		t.Errorf("Expected zero-net changes to be dropped, got %v", delta.BalanceChanges)
	}
}

func TestOverlay_RoundTripThroughApplyDelta(t *testing.T) {
	base := New()
	o := NewOverlay(base)

	o.StageDeploy(testToken("DOGI", 2000, 1000, 0))
	o.StageMint("DOGI", "DAlice", big.NewInt(800))
	o.StageTransfer("DOGI", "DAlice", "DBob", big.NewInt(300))

	if err := base.ApplyDelta(o.Delta(1, "h1")); err != nil {
		t.Fatalf("ApplyDelta of overlay output failed: %v", err)
	}

	token, _ := base.GetToken("DOGI")
	if token.Minted.Cmp(big.NewInt(800)) != 0 {
		t.Errorf("Minted: got %s, want 800", token.Minted)
	}
	if bal := base.GetBalance("DAlice", "DOGI"); bal.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("DAlice: got %s, want 500", bal)
	}
	if bal := base.GetBalance("DBob", "DOGI"); bal.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("DBob: got %s, want 300", bal)
	}
}
