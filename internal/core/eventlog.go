package core

import (
	"context"

	"StableLedger/internal/event"
)

// LogRecord is one entry in the durable per-chain event log. The log is
// the replay source after a rollback: the raw payload is kept so the
// dispatcher can re-decode and re-run the full handler path.
type LogRecord struct {
	ChainID        int64
	BlockNumber    uint64
	BlockTimestamp uint64
	LogIndex       uint32
	Kind           string
	IdempotencyKey string
	Payload        []byte
}

// EventLog is the append-only record of everything delivered for a
// chain, in (block, logIndex) order.
type EventLog interface {
	// AppendRecord inserts the record, ignoring an existing row with the
	// same idempotency key.
	AppendRecord(ctx context.Context, rec *LogRecord) error

	// PruneFrom deletes all records at or above fromBlock. Called when a
	// reorganization orphans that range.
	PruneFrom(ctx context.Context, chainID int64, fromBlock uint64) error

	// ScanRecords streams the chain's records in log order.
	ScanRecords(ctx context.Context, chainID int64, fn func(*LogRecord) error) error
}

// DecodeFunc turns a stored payload back into a typed event during
// replay. The ingestion layer supplies its wire codec here.
type DecodeFunc func(kind string, payload []byte) (event.Event, error)

// StateResetter wipes every derived row for a chain ahead of a replay
// from genesis. The event log itself survives the reset.
type StateResetter interface {
	ResetChain(ctx context.Context, chainID int64) error
}

// TxRunner scopes a group of store writes into one atomic unit. A
// failed fn leaves no partial writes behind, so a handler that mixes
// read-modify-write arithmetic with inserts can run again safely.
type TxRunner interface {
	Within(ctx context.Context, fn func(context.Context) error) error
}
