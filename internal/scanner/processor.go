package scanner

import (
	"errors"
	"math/big"

	"drc20-indexer/internal/consensus"
	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/ledger"
	"drc20-indexer/internal/observability"
	"drc20-indexer/internal/protocol"
	"drc20-indexer/internal/script"
)

// BlockProcessor evaluates one block against the committed ledger and
// produces its atomic commit unit. Payload outputs are scanned
// left-to-right within each transaction, and accepted operations are
// staged into an overlay so later operations in the same block observe
// earlier ones.
type BlockProcessor struct {
	policy consensus.Policy
}

// NewBlockProcessor creates a processor with the given consensus policy.
func NewBlockProcessor(policy consensus.Policy) *BlockProcessor {
	return &BlockProcessor{policy: policy}
}

// Process evaluates every transaction output of the block in canonical
// order and returns the block's delta. Pure with respect to the ledger:
// all effects are staged in an overlay and returned, nothing is
// committed here.
func (p *BlockProcessor) Process(block *domain.Block, base *ledger.Ledger) *domain.BlockDelta {
	overlay := ledger.NewOverlay(base)

	for txIndex, tx := range block.Transactions {
		for _, out := range tx.Outputs {
			payload, ok := script.ExtractPayload(out.Script)
			if !ok {
				continue // not a candidate, no record
			}

			op, err := protocol.Decode(payload)
			if err != nil {
				if errors.Is(err, protocol.ErrNotProtocol) {
					continue // another protocol's payload, silently ignorable
				}
				// drc-20 push that failed decoding: recorded for audit.
				malformed := &domain.Operation{
					Txid:             tx.Txid,
					Height:           block.Height,
					TxIndex:          txIndex,
					OutputIndex:      out.Index,
					BoundOutputIndex: -1,
					FromAddress:      tx.FromAddress,
					Valid:            false,
					Reason:           domain.RejectMalformedPayload,
					RawPayload:       append([]byte(nil), payload...),
				}
				overlay.Record(malformed)
				observability.RecordOperation("", false, string(domain.RejectMalformedPayload))
				continue
			}

			op.Txid = tx.Txid
			op.Height = block.Height
			op.TxIndex = txIndex
			op.OutputIndex = out.Index
			op.FromAddress = tx.FromAddress

			binding := bindOperation(tx, out.Index)
			op.BoundOutputIndex = binding.BoundOutputIndex
			op.ToAddress = binding.BoundAddress

			reason, effective := consensus.Validate(overlay, op, binding, p.policy)
			if reason != domain.RejectNone {
				op.Valid = false
				op.Reason = reason
				overlay.Record(op)
				observability.RecordOperation(string(op.Kind), false, string(reason))
				continue
			}

			op.Valid = true
			p.stage(overlay, op, binding, effective)
			overlay.Record(op)
			observability.RecordOperation(string(op.Kind), true, "")
		}
	}

	return overlay.Delta(block.Height, block.Hash)
}

// stage applies an accepted operation to the overlay. For clamped mints
// the effective amount differs from the operation's declared amount.
func (p *BlockProcessor) stage(overlay *ledger.Overlay, op *domain.Operation, b consensus.Binding, effective *big.Int) {
	switch op.Kind {
	case domain.OpDeploy:
		overlay.StageDeploy(&domain.Token{
			Tick:              op.Tick,
			MaxSupply:         op.Max,
			MintLimit:         op.Lim,
			Minted:            new(big.Int),
			DeployTxid:        op.Txid,
			DeployHeight:      op.Height,
			DeployOutputIndex: op.OutputIndex,
			DeployAddress:     b.BoundAddress,
		})
	case domain.OpMint:
		overlay.StageMint(op.Tick, b.BoundAddress, effective)
	case domain.OpTransfer:
		overlay.StageTransfer(op.Tick, b.FromAddress, b.BoundAddress, effective)
	}
}

// bindOperation finds the first non-payload output following the payload
// output within the same transaction. The operation is unbound if no
// such output exists.
func bindOperation(tx domain.Transaction, payloadIndex int) consensus.Binding {
	for _, out := range tx.Outputs {
		if out.Index <= payloadIndex || script.IsPayloadOutput(out.Script) {
			continue
		}
		addr := out.Address
		if addr == "" {
			addr, _ = script.ResolveAddress(out.Script)
		}
		return consensus.Binding{
			BoundOutputIndex: out.Index,
			BoundAddress:     addr,
			BoundValue:       out.Value,
			FromAddress:      tx.FromAddress,
		}
	}
	return consensus.Binding{BoundOutputIndex: -1, FromAddress: tx.FromAddress}
}
