package event

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates decoded domain events.
type Kind int32

const (
	KindUnknown Kind = iota
	KindPositionOpened
	KindMintingUpdated
	KindPositionDenied
	KindOwnershipTransferred
	KindChallengeStarted
	KindChallengeAverted
	KindChallengeSucceeded
	KindSavingsSaved
	KindSavingsInterestCollected
	KindSavingsWithdrawn
	KindRateChanged
	KindRateProposed
	KindEquityProfit
	KindEquityLoss
	KindEquityTrade
	KindTokenMint
	KindTokenBurn
)

func (k Kind) String() string {
	switch k {
	case KindPositionOpened:
		return "PositionOpened"
	case KindMintingUpdated:
		return "MintingUpdated"
	case KindPositionDenied:
		return "PositionDenied"
	case KindOwnershipTransferred:
		return "OwnershipTransferred"
	case KindChallengeStarted:
		return "ChallengeStarted"
	case KindChallengeAverted:
		return "ChallengeAverted"
	case KindChallengeSucceeded:
		return "ChallengeSucceeded"
	case KindSavingsSaved:
		return "SavingsSaved"
	case KindSavingsInterestCollected:
		return "SavingsInterestCollected"
	case KindSavingsWithdrawn:
		return "SavingsWithdrawn"
	case KindRateChanged:
		return "RateChanged"
	case KindRateProposed:
		return "RateProposed"
	case KindEquityProfit:
		return "EquityProfit"
	case KindEquityLoss:
		return "EquityLoss"
	case KindEquityTrade:
		return "EquityTrade"
	case KindTokenMint:
		return "TokenMint"
	case KindTokenBurn:
		return "TokenBurn"
	default:
		return "Unknown"
	}
}

// Envelope carries the chain context the upstream source attaches to every
// decoded event. Events for one chain arrive in non-decreasing
// (BlockNumber, LogIndex) order; nothing is assumed across chains.
type Envelope struct {
	ChainID        int64
	BlockNumber    uint64
	BlockTimestamp uint64 // unix seconds
	TxHash         string
	TxFrom         string
	LogIndex       uint32
	Contract       string // emitting contract, lower-cased hex
}

// IdempotencyKey is the stable dedup key for an event occurrence. A chain
// log position is unique per (block, logIndex); the kind guards against
// upstream re-decoding the same log under a different name.
func (e Envelope) IdempotencyKey(kind Kind) string {
	return fmt.Sprintf("%d:%d:%d:%s", e.ChainID, e.BlockNumber, e.LogIndex, kind)
}

// Event is implemented by every decoded domain event payload.
type Event interface {
	// Kind returns the discriminator.
	Kind() Kind

	// Meta returns the chain context.
	Meta() Envelope

	// IdempotencyKey returns the stable dedup key.
	IdempotencyKey() string
}

// RollbackNotice signals that all events in [FromBlock, ToBlock] for a
// chain have been orphaned by a reorganization and their effects must be
// undone before forward processing resumes.
type RollbackNotice struct {
	RequestID uuid.UUID
	ChainID   int64
	FromBlock uint64
	ToBlock   uint64
}
