// Package ecosystem holds the two cross-handler shared stores within a
// chain partition: named running totals and per-key monotonic sequence
// counters. Both are plain read-modify-write rows behind the storage
// layer's upsert primitive; single-writer-per-chain serialization is what
// makes that safe.
package ecosystem

import (
	"context"
	"math/big"
)

// Well-known accumulator identifiers. The id namespace is free-form; the
// ids below are the ones the analytics projector reads back.
const (
	IDProfits          = "Equity:Profits"
	IDLosses           = "Equity:Losses"
	IDProfitCounter    = "Equity:ProfitCounter"
	IDLossCounter      = "Equity:LossCounter"
	IDProfitLossCount  = "Equity:ProfitLossCounter"
	IDEarningsPerShare = "Equity:EarningsPerFPS"

	IDInvested        = "Equity:Invested"
	IDInvestedCounter = "Equity:InvestedCounter"
	IDInvestedFeePPM  = "Equity:InvestedFeePaidPPM"
	IDRedeemed        = "Equity:Redeemed"
	IDRedeemedCounter = "Equity:RedeemedCounter"
	IDRedeemedFeePPM  = "Equity:RedeemedFeePaidPPM"

	IDTotalSaved             = "Savings:TotalSaved"
	IDTotalInterestCollected = "Savings:TotalInterestCollected"
	IDTotalWithdrawn         = "Savings:TotalWithdrawn"

	IDTokenMinted = "Token:TotalMinted"
	IDTokenBurned = "Token:TotalBurned"
)

// TotalPositionsID names the per-hub position counter.
func TotalPositionsID(gen string) string { return "MintingHub" + gen + ":TotalPositions" }

// TotalChallengesID names the per-hub challenge counter.
func TotalChallengesID(gen string) string { return "MintingHub" + gen + ":TotalChallenges" }

// TotalAvertedBidsID names the per-hub averted-bid counter.
func TotalAvertedBidsID(gen string) string { return "MintingHub" + gen + ":TotalAvertedBids" }

// TotalSucceededBidsID names the per-hub succeeded-bid counter.
func TotalSucceededBidsID(gen string) string { return "MintingHub" + gen + ":TotalSucceededBids" }

// Accumulator is one named running total, created lazily on first use.
type Accumulator struct {
	ChainID int64
	ID      string
	Value   string // optional free-form annotation
	Amount  *big.Int
}

// Store is the accumulator and sequence-counter slice of the storage
// layer.
type Store interface {
	// AddAccumulator merges delta into the named total, creating it at
	// delta on first use, and returns the post-update amount.
	AddAccumulator(ctx context.Context, chainID int64, id string, delta *big.Int) (*big.Int, error)

	// GetAccumulator returns the current amount, zero when the id has
	// never been touched.
	GetAccumulator(ctx context.Context, chainID int64, id string) (*big.Int, error)

	// NextSequence increments and returns the per-key monotonic counter.
	// The first call for a key returns 1.
	NextSequence(ctx context.Context, chainID int64, key string) (uint64, error)

	// CurrentSequence returns the counter without advancing it; zero when
	// the key has never been allocated.
	CurrentSequence(ctx context.Context, chainID int64, key string) (uint64, error)

	// TouchActiveUser records the last time an address interacted with
	// the protocol.
	TouchActiveUser(ctx context.Context, chainID int64, account string, ts uint64) error
}
