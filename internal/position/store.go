package position

import (
	"context"

	"StableLedger/internal/event"
)

// Store is the slice of the storage layer the position ledger uses. All
// writes go through the four primitive shapes of the storage
// collaborator: insert-or-ignore, upsert-with-merge, find-by-key and
// range queries. Correctness relies on single-writer-per-chain
// serialization, not on storage-level locks.
type Store interface {
	// InsertPosition inserts the row, ignoring the write if the key exists.
	InsertPosition(ctx context.Context, p *Position) error

	// FindPosition returns the row or (nil, nil) when absent.
	FindPosition(ctx context.Context, chainID int64, position string) (*Position, error)

	// UpdatePosition applies merge to the current row and writes the
	// result back. Returns ErrNotFound behavior as (false, nil) when the
	// row is absent so callers can decide whether that is benign.
	UpdatePosition(ctx context.Context, chainID int64, position string, merge func(*Position)) (bool, error)

	// InsertMintingUpdate appends one history entry.
	InsertMintingUpdate(ctx context.Context, u *MintingUpdate) error

	// FindMintingUpdate returns the entry or (nil, nil) when absent.
	FindMintingUpdate(ctx context.Context, chainID int64, position string, sequence uint64) (*MintingUpdate, error)

	// MintingUpdates returns the full history for a position in sequence
	// order.
	MintingUpdates(ctx context.Context, chainID int64, position string) ([]*MintingUpdate, error)

	// UpsertStatusCounters merges one counter row; the merge function
	// receives a zero-valued row on first use.
	UpsertStatusCounters(ctx context.Context, chainID int64, position string, merge func(*StatusCounters)) error

	// FindStatusCounters returns the rollup row or (nil, nil) when absent.
	FindStatusCounters(ctx context.Context, chainID int64, position string) (*StatusCounters, error)

	// OpenPositions returns positions of one generation that are neither
	// closed nor denied and have a positive minted amount.
	OpenPositions(ctx context.Context, chainID int64, gen event.Generation) ([]*Position, error)

	// PositionsByOwner serves the external query surface.
	PositionsByOwner(ctx context.Context, chainID int64, owner string) ([]*Position, error)
}
