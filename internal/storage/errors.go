package storage

import "errors"

// Storage sentinel errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBlockAlreadyApplied is returned by ApplyBlock for a height at or
	// below the checkpoint. Resume is idempotent because the checkpoint
	// advances in the same transaction as the block's deltas.
	ErrBlockAlreadyApplied = errors.New("block already applied")

	// ErrNonSequentialBlock is returned by ApplyBlock for a height more
	// than one past the checkpoint.
	ErrNonSequentialBlock = errors.New("block height is not checkpoint+1")

	// ErrDuplicateKey is returned when an insert violates a uniqueness
	// constraint, e.g. a deploy for a tick that already has a row.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
