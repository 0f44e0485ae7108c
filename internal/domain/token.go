package domain

import "math/big"

// Token represents a deployed drc-20 token.
// Corresponds to the tokens table in PostgreSQL.
type Token struct {
	Tick              string   // PRIMARY KEY, normalized uppercase
	MaxSupply         *big.Int // maximum total supply, unsigned
	MintLimit         *big.Int // per-mint cap, MintLimit <= MaxSupply
	Minted            *big.Int // total minted so far, Minted <= MaxSupply
	DeployTxid        string   // transaction that deployed the token
	DeployHeight      int64    // block height of the deploy
	DeployOutputIndex int      // payload output index within the deploy transaction
	DeployAddress     string   // address the deploy was bound to
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	c := *t
	c.MaxSupply = new(big.Int).Set(t.MaxSupply)
	c.MintLimit = new(big.Int).Set(t.MintLimit)
	c.Minted = new(big.Int).Set(t.Minted)
	return &c
}

// Remaining returns the supply still available to mint.
func (t *Token) Remaining() *big.Int {
	return new(big.Int).Sub(t.MaxSupply, t.Minted)
}

// BalanceEntry is one (address, tick) balance row, used when loading
// a full ledger snapshot from storage.
type BalanceEntry struct {
	Address string
	Tick    string
	Amount  *big.Int
}
