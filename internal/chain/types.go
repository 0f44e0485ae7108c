package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"

	"drc20-indexer/internal/domain"
	"drc20-indexer/internal/script"
)

// Source is the chain data source contract the scanner consumes.
type Source interface {
	// CurrentHeight returns the node's best block height.
	CurrentHeight(ctx context.Context) (int64, error)

	// BlockAt returns the block at a height with transactions and outputs
	// in canonical on-chain order.
	BlockAt(ctx context.Context, height int64) (*domain.Block, error)
}

// koinuPerCoin converts the node's coin-denominated values to base units.
const koinuPerCoin = 1e8

// rpcBlock is the raw getblock (verbosity 2) response.
type rpcBlock struct {
	Hash              string  `json:"hash"`
	Height            int64   `json:"height"`
	PreviousBlockHash string  `json:"previousblockhash"`
	Tx                []rpcTx `json:"tx"`
}

// rpcTx is one raw transaction within a verbose block.
type rpcTx struct {
	Txid string    `json:"txid"`
	Vin  []rpcVin  `json:"vin"`
	Vout []rpcVout `json:"vout"`
}

type rpcVin struct {
	Txid     string `json:"txid"`
	Vout     int    `json:"vout"`
	Coinbase string `json:"coinbase"`
}

type rpcVout struct {
	Value        float64         `json:"value"`
	N            int             `json:"n"`
	ScriptPubKey rpcScriptPubKey `json:"scriptPubKey"`
}

type rpcScriptPubKey struct {
	Hex string `json:"hex"`
}

// CurrentHeight returns the node's best block height via getblockcount.
func (c *HTTPClient) CurrentHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := c.call(ctx, "getblockcount", nil, &height); err != nil {
		return 0, fmt.Errorf("getblockcount: %w", err)
	}
	return height, nil
}

// BlockAt fetches the block at a height (getblockhash + getblock
// verbosity 2) and maps it into the domain model, resolving each
// transaction's originating input address.
func (c *HTTPClient) BlockAt(ctx context.Context, height int64) (*domain.Block, error) {
	var hash string
	if err := c.call(ctx, "getblockhash", []interface{}{height}, &hash); err != nil {
		return nil, fmt.Errorf("getblockhash %d: %w", height, err)
	}

	var raw rpcBlock
	if err := c.call(ctx, "getblock", []interface{}{hash, 2}, &raw); err != nil {
		return nil, fmt.Errorf("getblock %s: %w", hash, err)
	}

	block := &domain.Block{
		Height:       raw.Height,
		Hash:         raw.Hash,
		PreviousHash: raw.PreviousBlockHash,
		Transactions: make([]domain.Transaction, 0, len(raw.Tx)),
	}

	// Per-block cache of fetched previous transactions: several
	// transactions in one block often spend the same source.
	prevTxs := make(map[string]*rpcTx)
	for _, tx := range raw.Tx {
		from, err := c.resolveInputAddress(ctx, tx, prevTxs)
		if err != nil {
			return nil, fmt.Errorf("resolve inputs of %s: %w", tx.Txid, err)
		}

		outputs := make([]domain.Output, 0, len(tx.Vout))
		for _, vout := range tx.Vout {
			scriptBytes, err := hex.DecodeString(vout.ScriptPubKey.Hex)
			if err != nil {
				return nil, fmt.Errorf("decode script of %s:%d: %w", tx.Txid, vout.N, err)
			}
			out := domain.Output{
				Index:  vout.N,
				Script: scriptBytes,
				Value:  int64(math.Round(vout.Value * koinuPerCoin)),
			}
			if addr, ok := script.ResolveAddress(scriptBytes); ok {
				out.Address = addr
			}
			outputs = append(outputs, out)
		}

		block.Transactions = append(block.Transactions, domain.Transaction{
			Txid:        tx.Txid,
			FromAddress: from,
			Outputs:     outputs,
		})
	}

	return block, nil
}

// resolveInputAddress resolves the address controlling a transaction's
// first input by fetching the spent output's script. Coinbase
// transactions have no originating address.
func (c *HTTPClient) resolveInputAddress(ctx context.Context, tx rpcTx, cache map[string]*rpcTx) (string, error) {
	if len(tx.Vin) == 0 || tx.Vin[0].Coinbase != "" || tx.Vin[0].Txid == "" {
		return "", nil
	}

	vin := tx.Vin[0]
	prev, ok := cache[vin.Txid]
	if !ok {
		var raw rpcTx
		if err := c.call(ctx, "getrawtransaction", []interface{}{vin.Txid, true}, &raw); err != nil {
			return "", fmt.Errorf("getrawtransaction %s: %w", vin.Txid, err)
		}
		prev = &raw
		cache[vin.Txid] = prev
	}

	if vin.Vout >= len(prev.Vout) {
		return "", fmt.Errorf("input %s:%d out of range", vin.Txid, vin.Vout)
	}

	scriptBytes, err := hex.DecodeString(prev.Vout[vin.Vout].ScriptPubKey.Hex)
	if err != nil {
		return "", fmt.Errorf("decode spent script %s:%d: %w", vin.Txid, vin.Vout, err)
	}

	// Non-standard spent scripts leave the transaction without an
	// originating address; transfers from it will fail balance checks.
	addr, _ := script.ResolveAddress(scriptBytes)
	return addr, nil
}

// Compile-time interface check.
var _ Source = (*HTTPClient)(nil)
