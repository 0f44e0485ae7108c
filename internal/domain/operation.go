package domain

import "math/big"

// OpKind identifies the protocol operation type.
type OpKind string

const (
	OpDeploy   OpKind = "deploy"
	OpMint     OpKind = "mint"
	OpTransfer OpKind = "transfer"
)

// RejectReason classifies why an operation was not applied to the ledger.
type RejectReason string

const (
	// RejectNone marks an accepted operation.
	RejectNone RejectReason = ""

	// RejectMalformedPayload: payload was a protocol push but failed
	// JSON or field decoding.
	RejectMalformedPayload RejectReason = "MALFORMED_PAYLOAD"

	// RejectDuplicateTick: deploy for a tick that is already registered.
	RejectDuplicateTick RejectReason = "DUPLICATE_TICK"

	// RejectInvalidSupplyParams: deploy with lim == 0 or lim > max.
	RejectInvalidSupplyParams RejectReason = "INVALID_SUPPLY_PARAMS"

	// RejectUnknownTick: mint or transfer for an unregistered tick.
	RejectUnknownTick RejectReason = "UNKNOWN_TICK"

	// RejectExceedsMintLimit: mint amount above the token's per-mint cap.
	RejectExceedsMintLimit RejectReason = "EXCEEDS_MINT_LIMIT"

	// RejectSupplyExhausted: mint would push minted past max supply.
	RejectSupplyExhausted RejectReason = "SUPPLY_EXHAUSTED"

	// RejectUnboundOrDust: no following output to bind to, or the bound
	// output is non-standard or below the dust threshold.
	RejectUnboundOrDust RejectReason = "UNBOUND_OR_DUST_OUTPUT"

	// RejectInsufficientBalance: transfer amount above the sender's balance.
	RejectInsufficientBalance RejectReason = "INSUFFICIENT_BALANCE"
)

// Operation is one decoded protocol operation, valid or not.
// Operations are append-only audit records; invalid operations are kept
// with their rejection reason so rejected protocol attempts remain
// distinguishable from ignored noise.
type Operation struct {
	Txid             string
	Height           int64
	TxIndex          int // transaction index within the block
	OutputIndex      int // payload output index within the transaction
	BoundOutputIndex int // output the operation is bound to, -1 if unbound

	Kind   OpKind
	Tick   string   // normalized uppercase
	Amount *big.Int // amt for mint/transfer, nil for deploy
	Max    *big.Int // deploy only
	Lim    *big.Int // deploy only

	FromAddress string // address controlling the transaction's inputs
	ToAddress   string // resolved bound-output address

	Valid  bool
	Reason RejectReason

	RawPayload []byte // original payload bytes, kept for the archive
}
