package savings

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"StableLedger/internal/chainread"
	"StableLedger/internal/ecosystem"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
)

// ErrNegativeBalance is a fatal invariant violation: a withdrawal drove
// an account (or module) balance below zero, which means an event was
// missed or duplicated upstream.
var ErrNegativeBalance = fmt.Errorf("savings balance negative")

// Ledger tracks per-account savings deposits, withdrawals and accrued
// interest, the module-level aggregate, and the flat activity log.
type Ledger struct {
	store Store
	eco   ecosystem.Store
	views *chainread.Views
	log   zerolog.Logger
}

func NewLedger(store Store, eco ecosystem.Store, views *chainread.Views, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, eco: eco, views: views, log: log}
}

// Save processes a SavingsSaved event.
func (l *Ledger) Save(ctx context.Context, evt *event.SavingsSaved) error {
	return l.apply(ctx, evt.Meta(), evt.Module, evt.Account, evt.Amount, ActivitySaved)
}

// CollectInterest processes a SavingsInterestCollected event.
func (l *Ledger) CollectInterest(ctx context.Context, evt *event.SavingsInterestCollected) error {
	return l.apply(ctx, evt.Meta(), evt.Module, evt.Account, evt.Interest, ActivityInterestCollected)
}

// Withdraw processes a SavingsWithdrawn event.
func (l *Ledger) Withdraw(ctx context.Context, evt *event.SavingsWithdrawn) error {
	return l.apply(ctx, evt.Meta(), evt.Module, evt.Account, evt.Amount, ActivityWithdrawn)
}

// apply is the single flow behind the three symmetric operations: rate
// read, module aggregate, account aggregate, flat activity row, global
// accumulator, optional referrer attribution.
func (l *Ledger) apply(ctx context.Context, meta event.Envelope, module, account string, amount *big.Int, kind ActivityKind) error {
	chainID := meta.ChainID
	module = strings.ToLower(module)
	account = strings.ToLower(account)

	ratePPM, err := l.views.CurrentRatePPM(ctx, chainID, module)
	if err != nil {
		return err
	}

	status, err := l.store.UpsertStatus(ctx, chainID, module, func(s *Status) {
		s.Updated = meta.BlockTimestamp
		s.RatePPM = ratePPM
		applyAmount(kind, amount, &s.Save, &s.Withdraw, &s.Interest, &s.Balance)
		bumpCounter(kind, &s.CounterSave, &s.CounterWithdraw, &s.CounterInterest)
	})
	if err != nil {
		return err
	}
	if status.Balance.Sign() < 0 {
		return fmt.Errorf("%w: module %s after %s of %s", ErrNegativeBalance, module, kind, amount)
	}

	acct, err := l.store.UpsertAccount(ctx, chainID, module, account, func(a *Account) {
		if a.Created == 0 {
			a.Created = meta.BlockTimestamp
		}
		a.Updated = meta.BlockTimestamp
		applyAmount(kind, amount, &a.Save, &a.Withdraw, &a.Interest, &a.Balance)
		bumpCounter(kind, &a.CounterSave, &a.CounterWithdraw, &a.CounterInterest)
	})
	if err != nil {
		return err
	}
	if acct.Balance.Sign() < 0 {
		return fmt.Errorf("%w: account %s after %s of %s", ErrNegativeBalance, account, kind, amount)
	}

	// Interleaved chronological sequence across all three kinds.
	count := acct.CounterSave + acct.CounterWithdraw + acct.CounterInterest

	if err := l.store.InsertActivity(ctx, &Activity{
		ChainID: chainID,
		Module:  module,
		Account: account,
		Count:   count,

		Created:     meta.BlockTimestamp,
		BlockNumber: meta.BlockNumber,
		TxHash:      meta.TxHash,
		Kind:        kind,

		Amount:  fpmath.Clone(amount),
		RatePPM: ratePPM,

		Save:     fpmath.Clone(acct.Save),
		Withdraw: fpmath.Clone(acct.Withdraw),
		Interest: fpmath.Clone(acct.Interest),
		Balance:  fpmath.Clone(acct.Balance),
	}); err != nil {
		return err
	}

	if _, err := l.eco.AddAccumulator(ctx, chainID, accumulatorID(kind), amount); err != nil {
		return err
	}

	// Referrer attribution is optional module behavior; absence is not an
	// error.
	referrer, feePPM, err := l.views.Referrer(ctx, chainID, module, account)
	if err != nil {
		return err
	}
	if referrer != "" {
		if _, err := l.store.UpsertAccount(ctx, chainID, module, account, func(a *Account) {
			a.Referrer = strings.ToLower(referrer)
			a.ReferrerFeePPM = feePPM
		}); err != nil {
			return err
		}
	}

	return l.eco.TouchActiveUser(ctx, chainID, account, meta.BlockTimestamp)
}

// RateChanged processes an applied lead-rate change: updates the module
// status row and appends a flat rate-change row.
func (l *Ledger) RateChanged(ctx context.Context, evt *event.RateChanged) error {
	meta := evt.Meta()
	module := strings.ToLower(evt.Module)

	status, err := l.store.UpsertStatus(ctx, meta.ChainID, module, func(s *Status) {
		s.Updated = meta.BlockTimestamp
		s.RatePPM = evt.NewRatePPM
		s.CounterRateChanged++
	})
	if err != nil {
		return err
	}

	return l.store.InsertRateChange(ctx, &RateChange{
		ChainID:     meta.ChainID,
		Module:      module,
		Count:       status.CounterRateChanged,
		Created:     meta.BlockTimestamp,
		BlockNumber: meta.BlockNumber,
		TxHash:      meta.TxHash,
		RatePPM:     evt.NewRatePPM,
	})
}

// RateProposed processes a proposed lead-rate change.
func (l *Ledger) RateProposed(ctx context.Context, evt *event.RateProposed) error {
	meta := evt.Meta()
	module := strings.ToLower(evt.Module)

	status, err := l.store.UpsertStatus(ctx, meta.ChainID, module, func(s *Status) {
		s.Updated = meta.BlockTimestamp
		s.CounterRateProposed++
	})
	if err != nil {
		return err
	}

	return l.store.InsertRateProposal(ctx, &RateProposal{
		ChainID:     meta.ChainID,
		Module:      module,
		Count:       status.CounterRateProposed,
		Created:     meta.BlockTimestamp,
		BlockNumber: meta.BlockNumber,
		TxHash:      meta.TxHash,
		Proposer:    strings.ToLower(evt.Proposer),
		NextRatePPM: evt.NextRatePPM,
		NextChange:  evt.NextChange,
	})
}

func applyAmount(kind ActivityKind, amount *big.Int, save, withdraw, interest, balance **big.Int) {
	switch kind {
	case ActivitySaved:
		*save = fpmath.Add(orZero(*save), amount)
		*balance = fpmath.Add(orZero(*balance), amount)
	case ActivityInterestCollected:
		*interest = fpmath.Add(orZero(*interest), amount)
		*balance = fpmath.Add(orZero(*balance), amount)
	case ActivityWithdrawn:
		*withdraw = fpmath.Add(orZero(*withdraw), amount)
		*balance = fpmath.Sub(orZero(*balance), amount)
	}
	if *save == nil {
		*save = fpmath.Zero()
	}
	if *withdraw == nil {
		*withdraw = fpmath.Zero()
	}
	if *interest == nil {
		*interest = fpmath.Zero()
	}
}

func bumpCounter(kind ActivityKind, save, withdraw, interest *uint64) {
	switch kind {
	case ActivitySaved:
		*save++
	case ActivityWithdrawn:
		*withdraw++
	case ActivityInterestCollected:
		*interest++
	}
}

func accumulatorID(kind ActivityKind) string {
	switch kind {
	case ActivityWithdrawn:
		return ecosystem.IDTotalWithdrawn
	case ActivityInterestCollected:
		return ecosystem.IDTotalInterestCollected
	default:
		return ecosystem.IDTotalSaved
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
