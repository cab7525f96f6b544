package analytics

import (
	"context"
	"math/big"
)

// Metrics is the derived-metric schema shared by the event-triggered
// snapshot log and the daily rollup. All amounts are 18-decimal base
// units; rates are 18-decimal fixed point (PPM widened by 10^12).
type Metrics struct {
	TotalInflow   *big.Int // cumulative realized profits
	TotalOutflow  *big.Int // cumulative realized losses
	TotalTradeFee *big.Int

	TotalSupply  *big.Int
	TotalEquity  *big.Int
	TotalSavings *big.Int

	ShareSupply *big.Int
	SharePrice  *big.Int

	TotalMintedV1 *big.Int
	TotalMintedV2 *big.Int

	CurrentLeadRate    *big.Int
	ClaimableInterest  *big.Int
	ProjectedInterest  *big.Int
	AnnualV1Interest   *big.Int
	AnnualV2Interest   *big.Int
	AnnualV1BorrowRate *big.Int
	AnnualV2BorrowRate *big.Int

	AnnualNetEarnings   *big.Int
	RealizedNetEarnings *big.Int
	EarningsPerShare    *big.Int
}

// Snapshot is one append-only event-triggered analytics row, keyed by
// (timestamp, kind, sequence).
type Snapshot struct {
	ChainID   int64
	Timestamp uint64
	Kind      string
	Sequence  uint64

	Amount *big.Int
	TxHash string

	Metrics
}

// DailyRollup is the one-row-per-UTC-day rollup, upserted so replaying a
// day converges to the same stored values.
type DailyRollup struct {
	ChainID   int64
	Day       string // YYYY-MM-DD, UTC
	Timestamp uint64 // midnight UTC of Day
	TxHash    string // last triggering transaction

	Metrics
}

// Store is the analytics slice of the storage layer.
type Store interface {
	InsertSnapshot(ctx context.Context, s *Snapshot) error
	Snapshots(ctx context.Context, chainID int64, limit int) ([]*Snapshot, error)

	UpsertRollup(ctx context.Context, r *DailyRollup) error
	FindRollup(ctx context.Context, chainID int64, day string) (*DailyRollup, error)

	// FirstRollupAtOrAfter returns the earliest rollup whose midnight
	// timestamp is >= ts, or (nil, nil) when none exists yet.
	FirstRollupAtOrAfter(ctx context.Context, chainID int64, ts uint64) (*DailyRollup, error)

	Rollups(ctx context.Context, chainID int64, fromDay, toDay string) ([]*DailyRollup, error)
}
