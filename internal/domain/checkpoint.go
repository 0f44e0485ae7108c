package domain

// ScanCheckpoint is the durable record of the last block fully applied
// to the ledger. Singleton, mutated only by the scanner, and only in the
// same transaction as the block's ledger commit.
type ScanCheckpoint struct {
	Height int64
	Hash   string
}

// ReconciliationRecord is one audit comparison between the ledger's
// count of valid operations for a tick and an independently sourced
// external count. Append-only, never mutated after creation.
type ReconciliationRecord struct {
	Tick          string
	ExternalCount int64
	LedgerCount   int64
	Verified      bool  // ExternalCount == LedgerCount
	CheckedAt     int64 // Unix timestamp in milliseconds
}
