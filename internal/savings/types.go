package savings

import (
	"context"
	"math/big"
)

// ActivityKind labels one flat activity row.
type ActivityKind string

const (
	ActivitySaved             ActivityKind = "Saved"
	ActivityInterestCollected ActivityKind = "InterestCollected"
	ActivityWithdrawn         ActivityKind = "Withdrawn"
)

// Status is the module-level aggregate, keyed by (chain, module). One
// savings module is one lead-rate-bearing contract.
type Status struct {
	ChainID int64
	Module  string

	Updated uint64
	RatePPM int64

	Save     *big.Int
	Withdraw *big.Int
	Interest *big.Int
	Balance  *big.Int

	CounterSave         uint64
	CounterWithdraw     uint64
	CounterInterest     uint64
	CounterRateProposed uint64
	CounterRateChanged  uint64
}

// Account is the per-account aggregate, keyed by (chain, module,
// account). Balance = save - withdraw + interest and must never go
// negative.
type Account struct {
	ChainID int64
	Module  string
	Account string

	Created uint64
	Updated uint64

	Save     *big.Int
	Withdraw *big.Int
	Interest *big.Int
	Balance  *big.Int

	CounterSave     uint64
	CounterWithdraw uint64
	CounterInterest uint64

	// Referrer attribution, set when the module reports one.
	Referrer       string
	ReferrerFeePPM int64
}

// Activity is one append-only flat row carrying the post-update running
// totals. Count is the sum of the three per-account counters so rows of
// all kinds interleave in true chronological order.
type Activity struct {
	ChainID int64
	Module  string
	Account string
	Count   uint64

	Created     uint64
	BlockNumber uint64
	TxHash      string
	Kind        ActivityKind

	Amount  *big.Int
	RatePPM int64

	Save     *big.Int
	Withdraw *big.Int
	Interest *big.Int
	Balance  *big.Int
}

// RateChange is one applied lead-rate change.
type RateChange struct {
	ChainID     int64
	Module      string
	Count       uint64
	Created     uint64
	BlockNumber uint64
	TxHash      string
	RatePPM     int64
}

// RateProposal is one proposed lead-rate change entering its veto period.
type RateProposal struct {
	ChainID     int64
	Module      string
	Count       uint64
	Created     uint64
	BlockNumber uint64
	TxHash      string
	Proposer    string
	NextRatePPM int64
	NextChange  uint64
}

// Store is the savings slice of the storage layer.
type Store interface {
	UpsertStatus(ctx context.Context, chainID int64, module string, merge func(*Status)) (*Status, error)
	FindStatus(ctx context.Context, chainID int64, module string) (*Status, error)

	UpsertAccount(ctx context.Context, chainID int64, module, account string, merge func(*Account)) (*Account, error)
	FindAccount(ctx context.Context, chainID int64, module, account string) (*Account, error)
	Accounts(ctx context.Context, chainID int64, module string) ([]*Account, error)

	InsertActivity(ctx context.Context, a *Activity) error
	Activities(ctx context.Context, chainID int64, module, account string) ([]*Activity, error)

	InsertRateChange(ctx context.Context, rc *RateChange) error
	InsertRateProposal(ctx context.Context, rp *RateProposal) error
}
