package scanner

import (
	"fmt"
	"math/big"
	"testing"

	"drc20-indexer/internal/consensus"
	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/ledger"
	"drc20-indexer/internal/script"
)

var txCounter int

// payloadTx builds a transaction carrying one payload output followed by
// one standard bound output.
func payloadTx(from, payload, to string, value int64) domain.Transaction {
	txCounter++
	payloadScript, ok := script.BuildPayloadScript([]byte(payload))
	if !ok {
		panic("payload too large for test")
	}
	return domain.Transaction{
		Txid:        fmt.Sprintf("tx%04d", txCounter),
		FromAddress: from,
		Outputs: []domain.Output{
			{Index: 0, Script: payloadScript},
			{Index: 1, Address: to, Value: value},
		},
	}
}

func deployPayload(tick, max, lim string) string {
	return fmt.Sprintf(`{"p":"drc-20","op":"deploy","tick":%q,"max":%q,"lim":%q}`, tick, max, lim)
}

func mintPayload(tick, amt string) string {
	return fmt.Sprintf(`{"p":"drc-20","op":"mint","tick":%q,"amt":%q}`, tick, amt)
}

func transferPayload(tick, amt string) string {
	return fmt.Sprintf(`{"p":"drc-20","op":"transfer","tick":%q,"amt":%q}`, tick, amt)
}

func testBlock(height int64, txs ...domain.Transaction) *domain.Block {
	return &domain.Block{
		Height:       height,
		Hash:         fmt.Sprintf("hash%d", height),
		PreviousHash: fmt.Sprintf("hash%d", height-1),
		Transactions: txs,
	}
}

func TestProcess_DeployThenMints(t *testing.T) {
	p := NewBlockProcessor(consensus.DefaultPolicy())
	base := ledger.New()

	block := testBlock(100,
		payloadTx("DDeployer", deployPayload("DOGI", "21000000", "1000"), "DDeployer", 500000),
		payloadTx("DAlice", mintPayload("DOGI", "1000"), "DAlice", 500000),
		payloadTx("DAlice", mintPayload("DOGI", "1000"), "DAlice", 500000),
	)

	delta := p.Process(block, base)

	if len(delta.Deploys) != 1 {
		t.Fatalf("Deploys: got %d, want 1", len(delta.Deploys))
	}
	if delta.MintedIncrements["DOGI"].Cmp(big.NewInt(2000)) != 0 {
		t.Errorf("Minted increment: got %s, want 2000", delta.MintedIncrements["DOGI"])
	}
	if len(delta.Operations) != 3 {
		t.Fatalf("Operations: got %d, want 3", len(delta.Operations))
	}
	for i, op := range delta.Operations {
		if !op.Valid {
			t.Errorf("Operation %d rejected: %s", i, op.Reason)
		}
	}

	if err := base.ApplyDelta(delta); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	if bal := base.GetBalance("DAlice", "DOGI"); bal.Cmp(big.NewInt(2000)) != 0 {
		t.Errorf("DAlice balance: got %s, want 2000", bal)
	}
}

func TestProcess_DeployAndMintSameTransactionOrder(t *testing.T) {
	// A deploy and a mint for the same tick in one transaction, payload
	// outputs in order: the mint observes the deploy.
	p := NewBlockProcessor(consensus.DefaultPolicy())
	base := ledger.New()

	deployScript, _ := script.BuildPayloadScript([]byte(deployPayload("PUP", "1000", "100")))
	mintScript, _ := script.BuildPayloadScript([]byte(mintPayload("PUP", "100")))
	tx := domain.Transaction{
		Txid:        "txcombo",
		FromAddress: "DAlice",
		Outputs: []domain.Output{
			{Index: 0, Script: deployScript},
			{Index: 1, Address: "DAlice", Value: 500000},
			{Index: 2, Script: mintScript},
			{Index: 3, Address: "DAlice", Value: 500000},
		},
	}

	delta := p.Process(testBlock(100, tx), base)

	if len(delta.Operations) != 2 {
		t.Fatalf("Operations: got %d, want 2", len(delta.Operations))
	}
	if !delta.Operations[0].Valid || delta.Operations[0].Kind != domain.OpDeploy {
		t.Errorf("Deploy not accepted: %+v", delta.Operations[0])
	}
	if !delta.Operations[1].Valid || delta.Operations[1].Kind != domain.OpMint {
		t.Errorf("Mint after same-tx deploy not accepted: %s", delta.Operations[1].Reason)
	}
	if delta.MintedIncrements["PUP"].Cmp(big.NewInt(100)) != 0 {
		t.Errorf("Minted increment: got %s, want 100", delta.MintedIncrements["PUP"])
	}
}

func TestProcess_BindingSkipsPayloadOutputs(t *testing.T) {
	// The bound output is the first NON-payload output after the payload.
	p := NewBlockProcessor(consensus.DefaultPolicy())
	base := ledger.New()

	deployScript, _ := script.BuildPayloadScript([]byte(deployPayload("PUP", "1000", "100")))
	otherScript, _ := script.BuildPayloadScript([]byte(`{"p":"other"}`))
	tx := domain.Transaction{
		Txid:        "txbind",
		FromAddress: "DAlice",
		Outputs: []domain.Output{
			{Index: 0, Script: deployScript},
			{Index: 1, Script: otherScript},
			{Index: 2, Address: "DBob", Value: 500000},
		},
	}

	delta := p.Process(testBlock(100, tx), base)

	if len(delta.Operations) != 1 {
		t.Fatalf("Operations: got %d, want 1", len(delta.Operations))
	}
	op := delta.Operations[0]
	if !op.Valid {
		t.Fatalf("Deploy rejected: %s", op.Reason)
	}
	if op.BoundOutputIndex != 2 || op.ToAddress != "DBob" {
		t.Errorf("Bound to %d/%s, want 2/DBob", op.BoundOutputIndex, op.ToAddress)
	}
}

func TestProcess_UnboundOperationRejected(t *testing.T) {
	p := NewBlockProcessor(consensus.DefaultPolicy())
	base := ledger.New()

	deployScript, _ := script.BuildPayloadScript([]byte(deployPayload("PUP", "1000", "100")))
	tx := domain.Transaction{
		Txid:        "txunbound",
		FromAddress: "DAlice",
		Outputs:     []domain.Output{{Index: 0, Script: deployScript}},
	}

	delta := p.Process(testBlock(100, tx), base)

	if len(delta.Operations) != 1 {
		t.Fatalf("Operations: got %d, want 1", len(delta.Operations))
	}
	op := delta.Operations[0]
	if op.Valid || op.Reason != domain.RejectUnboundOrDust {
		t.Errorf("Expected UNBOUND_OR_DUST_OUTPUT, got valid=%v reason=%s", op.Valid, op.Reason)
	}
	if op.BoundOutputIndex != -1 {
		t.Errorf("BoundOutputIndex: got %d, want -1", op.BoundOutputIndex)
	}
}

func TestProcess_MalformedPayloadRecorded(t *testing.T) {
	p := NewBlockProcessor(consensus.DefaultPolicy())
	base := ledger.New()

	block := testBlock(100,
		payloadTx("DAlice", `{"p":"drc-20","op":"mint","tick":"DOGI","amt":"abc"}`, "DAlice", 500000),
	)

	delta := p.Process(block, base)

	if len(delta.Operations) != 1 {
		t.Fatalf("Operations: got %d, want 1", len(delta.Operations))
	}
	op := delta.Operations[0]
	if op.Valid || op.Reason != domain.RejectMalformedPayload {
		t.Errorf("Expected MALFORMED_PAYLOAD, got valid=%v reason=%s", op.Valid, op.Reason)
	}
	if op.Txid == "" || op.Height != 100 {
		t.Errorf("Malformed operation missing transaction context: %+v", op)
	}
}

func TestProcess_ForeignProtocolIgnored(t *testing.T) {
	p := NewBlockProcessor(consensus.DefaultPolicy())
	base := ledger.New()

	block := testBlock(100,
		payloadTx("DAlice", `{"p":"brc-20","op":"mint","tick":"ORDI","amt":"1"}`, "DAlice", 500000),
	)

	delta := p.Process(block, base)

	if !delta.Empty() {
		t.Errorf("Expected empty delta for foreign payload, got %d operations", len(delta.Operations))
	}
}

func TestProcess_RejectedOperationHasNoLedgerEffect(t *testing.T) {
	p := NewBlockProcessor(consensus.DefaultPolicy())
	base := ledger.New()

	block := testBlock(100,
		payloadTx("DAlice", mintPayload("NOPE", "1"), "DAlice", 500000),
	)

	delta := p.Process(block, base)

	if len(delta.Operations) != 1 || delta.Operations[0].Reason != domain.RejectUnknownTick {
		t.Fatalf("Expected one UNKNOWN_TICK rejection, got %+v", delta.Operations)
	}
	if len(delta.BalanceChanges) != 0 || len(delta.MintedIncrements) != 0 {
		t.Error("Rejected operation produced ledger mutations")
	}
}

func TestProcess_IntraBlockTransferChain(t *testing.T) {
	// Mint then transfer within the same block: the transfer spends the
	// balance the mint just credited.
	p := NewBlockProcessor(consensus.DefaultPolicy())
	base := ledger.New()

	setup := p.Process(testBlock(100,
		payloadTx("DDeployer", deployPayload("DOGI", "21000000", "1000"), "DDeployer", 500000),
	), base)
	if err := base.ApplyDelta(setup); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	block := testBlock(101,
		payloadTx("DAlice", mintPayload("DOGI", "1000"), "DAlice", 500000),
		payloadTx("DAlice", transferPayload("DOGI", "400"), "DBob", 500000),
	)
	block.PreviousHash = "hash100"
	delta := p.Process(block, base)

	for i, op := range delta.Operations {
		if !op.Valid {
			t.Fatalf("Operation %d rejected: %s", i, op.Reason)
		}
	}
	if err := base.ApplyDelta(delta); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	if bal := base.GetBalance("DAlice", "DOGI"); bal.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("DAlice: got %s, want 600", bal)
	}
	if bal := base.GetBalance("DBob", "DOGI"); bal.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("DBob: got %s, want 400", bal)
	}
}
