package auction

import (
	"context"
	"math/big"

	"StableLedger/internal/event"
)

// Status is the challenge state machine: Active until the on-chain
// remaining size reaches zero, then Success. There is no other state.
type Status string

const (
	StatusActive  Status = "Active"
	StatusSuccess Status = "Success"
)

// BidKind classifies how a bid resolved against the challenge.
type BidKind string

const (
	BidAverted   BidKind = "Averted"
	BidSucceeded BidKind = "Succeeded"
)

// Challenge is the mutable current-state row for one collateral auction,
// keyed by (chain, position, auction number).
type Challenge struct {
	ChainID    int64
	Position   string
	Number     uint64
	Generation event.Generation

	TxHash     string
	Challenger string
	Start      uint64 // on-chain auction start
	Created    uint64 // block timestamp of the start event
	Duration   uint64 // position's challenge period at start
	Size       *big.Int
	LiqPrice   *big.Int // trigger ("liquidation") price at start

	Bids               uint64
	FilledSize         *big.Int
	AcquiredCollateral *big.Int
	Status             Status
}

// Bid is one append-only entry in a challenge's bid history, keyed by
// (chain, position, auction number, bid sequence).
type Bid struct {
	ChainID  int64
	Position string
	Number   uint64
	BidSeq   uint64

	TxHash  string
	Bidder  string
	Created uint64
	Kind    BidKind

	Amount             *big.Int // debt tokens paid
	Price              *big.Int // clearing price
	FilledSize         *big.Int
	AcquiredCollateral *big.Int
	ChallengeSize      *big.Int // challenge total size at bid time
}

// Store is the auction slice of the storage layer.
type Store interface {
	InsertChallenge(ctx context.Context, c *Challenge) error
	FindChallenge(ctx context.Context, chainID int64, position string, number uint64) (*Challenge, error)
	UpdateChallenge(ctx context.Context, chainID int64, position string, number uint64, merge func(*Challenge)) (bool, error)

	InsertBid(ctx context.Context, b *Bid) error
	Bids(ctx context.Context, chainID int64, position string, number uint64) ([]*Bid, error)
	ChallengesByPosition(ctx context.Context, chainID int64, position string) ([]*Challenge, error)
}
