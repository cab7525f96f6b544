package event

import (
	"math/big"
)

// ChallengeStarted is emitted when a challenger posts collateral against a
// position suspected of under-collateralization.
type ChallengeStarted struct {
	Envelope   Envelope
	Generation Generation

	Position   string
	Challenger string
	Number     uint64   // auction number, hub-scoped
	Size       *big.Int // collateral offered by the challenger
}

func (e *ChallengeStarted) Kind() Kind             { return KindChallengeStarted }
func (e *ChallengeStarted) Meta() Envelope         { return e.Envelope }
func (e *ChallengeStarted) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// ChallengeAverted is emitted when a bid buys the challenger out before
// the auction resolves against the position.
type ChallengeAverted struct {
	Envelope   Envelope
	Generation Generation

	Position string
	Number   uint64
	Size     *big.Int // portion of the challenge averted by this bid
}

func (e *ChallengeAverted) Kind() Kind             { return KindChallengeAverted }
func (e *ChallengeAverted) Meta() Envelope         { return e.Envelope }
func (e *ChallengeAverted) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// ChallengeSucceeded is emitted when a bid wins (part of) the auction
// outright, transferring collateral to the bidder.
type ChallengeSucceeded struct {
	Envelope   Envelope
	Generation Generation

	Position           string
	Number             uint64
	Bid                *big.Int // debt-token amount paid by the bidder
	AcquiredCollateral *big.Int
	ChallengeSize      *big.Int // portion of the challenge filled by this bid
}

func (e *ChallengeSucceeded) Kind() Kind             { return KindChallengeSucceeded }
func (e *ChallengeSucceeded) Meta() Envelope         { return e.Envelope }
func (e *ChallengeSucceeded) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }
