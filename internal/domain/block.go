package domain

// Output is one transaction output as seen by the consensus engine.
type Output struct {
	Index   int
	Script  []byte // raw scriptPubKey bytes
	Value   int64  // output value in base units (koinu)
	Address string // resolved standard address, empty if non-standard
}

// Transaction is one transaction in canonical on-chain order.
type Transaction struct {
	Txid        string
	FromAddress string // address controlling the transaction's inputs, empty for coinbase
	Outputs     []Output
}

// Block is one block as returned by the chain data source.
// Transactions and outputs preserve canonical on-chain order; the
// consensus engine relies on this order for binding and tie-breaking.
type Block struct {
	Height       int64
	Hash         string
	PreviousHash string
	Transactions []Transaction
}
