package event

import (
	"math/big"
)

// SavingsSaved is emitted by a savings module on deposit.
type SavingsSaved struct {
	Envelope Envelope

	Module  string // savings module contract, lower-cased hex
	Account string
	Amount  *big.Int
}

func (e *SavingsSaved) Kind() Kind             { return KindSavingsSaved }
func (e *SavingsSaved) Meta() Envelope         { return e.Envelope }
func (e *SavingsSaved) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// SavingsInterestCollected is emitted when accrued interest is credited
// to an account's savings balance.
type SavingsInterestCollected struct {
	Envelope Envelope

	Module   string
	Account  string
	Interest *big.Int
}

func (e *SavingsInterestCollected) Kind() Kind     { return KindSavingsInterestCollected }
func (e *SavingsInterestCollected) Meta() Envelope { return e.Envelope }
func (e *SavingsInterestCollected) IdempotencyKey() string {
	return e.Envelope.IdempotencyKey(e.Kind())
}

// SavingsWithdrawn is emitted by a savings module on withdrawal.
type SavingsWithdrawn struct {
	Envelope Envelope

	Module  string
	Account string
	Amount  *big.Int
}

func (e *SavingsWithdrawn) Kind() Kind             { return KindSavingsWithdrawn }
func (e *SavingsWithdrawn) Meta() Envelope         { return e.Envelope }
func (e *SavingsWithdrawn) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// RateChanged is emitted by the lead-rate module when a proposed rate
// takes effect.
type RateChanged struct {
	Envelope Envelope

	Module     string
	NewRatePPM int64
}

func (e *RateChanged) Kind() Kind             { return KindRateChanged }
func (e *RateChanged) Meta() Envelope         { return e.Envelope }
func (e *RateChanged) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// RateProposed is emitted when a new lead rate enters its veto period.
type RateProposed struct {
	Envelope Envelope

	Module      string
	Proposer    string
	NextRatePPM int64
	NextChange  uint64 // unix seconds at which the rate can be applied
}

func (e *RateProposed) Kind() Kind             { return KindRateProposed }
func (e *RateProposed) Meta() Envelope         { return e.Envelope }
func (e *RateProposed) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }
