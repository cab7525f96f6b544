package core

import (
	"context"
	"fmt"
	"math/big"

	"StableLedger/internal/analytics"
	"StableLedger/internal/auction"
	"StableLedger/internal/equity"
	"StableLedger/internal/event"
	"StableLedger/internal/position"
	"StableLedger/internal/savings"
)

// Router maps decoded events to ledger handlers. Analytics projection
// runs synchronously after the handler for the event families that move
// the protocol's earnings figures, so the snapshot row always reflects
// the triggering event's own effect.
type Router struct {
	Positions *position.Ledger
	Auctions  *auction.Ledger
	Savings   *savings.Ledger
	Equity    *equity.Ledger
	Analytics *analytics.Projector
}

func (r *Router) Route(ctx context.Context, evt event.Event) error {
	var err error
	var trigger *big.Int

	switch e := evt.(type) {
	case *event.PositionOpened:
		err = r.Positions.Open(ctx, e)
	case *event.MintingUpdated:
		err = r.Positions.ApplyMintingUpdate(ctx, e)
	case *event.PositionDenied:
		err = r.Positions.Deny(ctx, e)
	case *event.OwnershipTransferred:
		err = r.Positions.TransferOwnership(ctx, e)

	case *event.ChallengeStarted:
		err = r.Auctions.Start(ctx, e)
	case *event.ChallengeAverted:
		err = r.Auctions.Avert(ctx, e)
	case *event.ChallengeSucceeded:
		err = r.Auctions.Succeed(ctx, e)

	case *event.SavingsSaved:
		err = r.Savings.Save(ctx, e)
		trigger = e.Amount
	case *event.SavingsInterestCollected:
		err = r.Savings.CollectInterest(ctx, e)
		trigger = e.Interest
	case *event.SavingsWithdrawn:
		err = r.Savings.Withdraw(ctx, e)
		trigger = e.Amount
	case *event.RateChanged:
		err = r.Savings.RateChanged(ctx, e)
		trigger = big.NewInt(e.NewRatePPM)
	case *event.RateProposed:
		err = r.Savings.RateProposed(ctx, e)

	case *event.EquityProfit:
		err = r.Equity.Profit(ctx, e)
		trigger = e.Amount
	case *event.EquityLoss:
		err = r.Equity.Loss(ctx, e)
		trigger = e.Amount
	case *event.EquityTrade:
		err = r.Equity.Trade(ctx, e)
		trigger = e.Amount
	case *event.TokenMint:
		err = r.Equity.Mint(ctx, e)
	case *event.TokenBurn:
		err = r.Equity.Burn(ctx, e)

	default:
		return fmt.Errorf("no handler for event kind %s", evt.Kind())
	}

	if err != nil {
		return err
	}

	if trigger != nil && r.Analytics != nil {
		return r.Analytics.Project(ctx, evt.Meta(), evt.Kind().String(), trigger)
	}
	return nil
}
