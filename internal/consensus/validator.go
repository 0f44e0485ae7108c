// Package consensus implements the deterministic state-transition rules
// of the drc-20 protocol. Validation is a pure function over a ledger
// snapshot; every implementation replaying the same chain must reach
// the same verdicts.
package consensus

import (
	"math/big"

	"drc20-indexer/internal/domain"
)

// Snapshot is the read view the validator evaluates against. During
// block processing it is an overlay that already reflects earlier
// operations of the same block, so intra-transaction sequences like
// deploy-then-mint observe each other.
type Snapshot interface {
	// GetToken returns the token registered for tick, if any.
	GetToken(tick string) (*domain.Token, bool)

	// GetBalance returns the balance for (address, tick), zero if none.
	GetBalance(address, tick string) *big.Int
}

// OverMintPolicy decides what happens when a mint exceeds the remaining
// supply. The choice is deliberately explicit configuration; the two
// behaviors produce different ledgers.
type OverMintPolicy int

const (
	// OverMintReject rejects the whole mint as SupplyExhausted.
	OverMintReject OverMintPolicy = iota

	// OverMintClamp accepts the mint but credits only the remaining
	// supply. A mint against a fully minted token is still rejected.
	OverMintClamp
)

// DefaultDustThreshold is the minimum value (in koinu) a bound output
// must carry to be a valid recipient.
const DefaultDustThreshold = 100_000

// Policy carries the configurable consensus parameters.
type Policy struct {
	DustThreshold int64
	OverMint      OverMintPolicy
}

// DefaultPolicy returns the default consensus parameters.
func DefaultPolicy() Policy {
	return Policy{DustThreshold: DefaultDustThreshold, OverMint: OverMintReject}
}

// Binding is the context tying an operation to the transaction that
// carries it: the first non-payload output following the payload output,
// and the address controlling the transaction's inputs.
type Binding struct {
	BoundOutputIndex int    // -1 if no following non-payload output exists
	BoundAddress     string // empty if the bound output is non-standard
	BoundValue       int64
	FromAddress      string
}

// Unbound reports whether no usable bound output exists.
func (b Binding) Unbound() bool {
	return b.BoundOutputIndex < 0 || b.BoundAddress == ""
}

// Validate evaluates one decoded operation against the snapshot and its
// binding context. It returns RejectNone and the effective amount on
// acceptance, or the first failing rule's reason. The effective amount
// differs from op.Amount only for clamped mints; it is nil for deploys
// and for rejections.
//
// Rules are evaluated in a fixed order, first failure wins. Validate
// never mutates the snapshot.
func Validate(snap Snapshot, op *domain.Operation, b Binding, p Policy) (domain.RejectReason, *big.Int) {
	switch op.Kind {
	case domain.OpDeploy:
		return validateDeploy(snap, op, b)
	case domain.OpMint:
		return validateMint(snap, op, b, p)
	case domain.OpTransfer:
		return validateTransfer(snap, op, b, p)
	default:
		return domain.RejectMalformedPayload, nil
	}
}

func validateDeploy(snap Snapshot, op *domain.Operation, b Binding) (domain.RejectReason, *big.Int) {
	if _, exists := snap.GetToken(op.Tick); exists {
		return domain.RejectDuplicateTick, nil
	}
	if op.Lim.Sign() == 0 || op.Lim.Cmp(op.Max) > 0 {
		return domain.RejectInvalidSupplyParams, nil
	}
	// A deploy still needs a bound output: it is the token's recorded
	// deploy address. The dust threshold applies only to recipients.
	if b.Unbound() {
		return domain.RejectUnboundOrDust, nil
	}
	return domain.RejectNone, nil
}

func validateMint(snap Snapshot, op *domain.Operation, b Binding, p Policy) (domain.RejectReason, *big.Int) {
	token, exists := snap.GetToken(op.Tick)
	if !exists {
		return domain.RejectUnknownTick, nil
	}
	if op.Amount.Cmp(token.MintLimit) > 0 {
		return domain.RejectExceedsMintLimit, nil
	}

	effective := op.Amount
	minted := new(big.Int).Add(token.Minted, op.Amount)
	if minted.Cmp(token.MaxSupply) > 0 {
		if p.OverMint == OverMintReject {
			return domain.RejectSupplyExhausted, nil
		}
		remaining := token.Remaining()
		if remaining.Sign() <= 0 {
			return domain.RejectSupplyExhausted, nil
		}
		effective = remaining
	}

	if b.Unbound() || b.BoundValue < p.DustThreshold {
		return domain.RejectUnboundOrDust, nil
	}

	return domain.RejectNone, new(big.Int).Set(effective)
}

func validateTransfer(snap Snapshot, op *domain.Operation, b Binding, p Policy) (domain.RejectReason, *big.Int) {
	if b.Unbound() || b.BoundValue < p.DustThreshold {
		return domain.RejectUnboundOrDust, nil
	}
	if _, exists := snap.GetToken(op.Tick); !exists {
		return domain.RejectUnknownTick, nil
	}
	if snap.GetBalance(op.FromAddress, op.Tick).Cmp(op.Amount) < 0 {
		return domain.RejectInsufficientBalance, nil
	}
	return domain.RejectNone, new(big.Int).Set(op.Amount)
}
