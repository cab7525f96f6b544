package auction

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
	"StableLedger/internal/position"
)

// ErrUnknownChallenge signals a bid for a challenge that was never
// started, a gap in the event stream that is fatal for the chain.
var ErrUnknownChallenge = fmt.Errorf("challenge unknown")

// Ledger tracks collateral liquidation auctions and the bids that resolve
// them. The challenge row is mutable running state; bids are append-only.
type Ledger struct {
	store     Store
	positions position.Store
	eco       ecosystem.Store
	views     *chainread.Views
	log       zerolog.Logger
}

func NewLedger(store Store, positions position.Store, eco ecosystem.Store, views *chainread.Views, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, positions: positions, eco: eco, views: views, log: log}
}

// Start processes a ChallengeStarted event: reads the challenge period
// and trigger price from the position and creates the row with status
// Active and zero running totals.
func (l *Ledger) Start(ctx context.Context, evt *event.ChallengeStarted) error {
	meta := evt.Meta()
	chainID := meta.ChainID
	addr := strings.ToLower(evt.Position)

	period, err := l.views.PositionParams(ctx, chainID, addr, evt.Generation)
	if err != nil {
		return err
	}
	liqPrice, err := l.views.PositionPrice(ctx, chainID, addr)
	if err != nil {
		return err
	}
	start, err := l.views.ChallengeStart(ctx, chainID, meta.Contract, evt.Number)
	if err != nil {
		return err
	}

	c := &Challenge{
		ChainID:    chainID,
		Position:   addr,
		Number:     evt.Number,
		Generation: evt.Generation,

		TxHash:     meta.TxHash,
		Challenger: strings.ToLower(evt.Challenger),
		Start:      start,
		Created:    meta.BlockTimestamp,
		Duration:   period.ChallengePeriod,
		Size:       fpmath.Clone(evt.Size),
		LiqPrice:   liqPrice,

		FilledSize:         fpmath.Zero(),
		AcquiredCollateral: fpmath.Zero(),
		Status:             StatusActive,
	}

	if err := l.store.InsertChallenge(ctx, c); err != nil {
		return err
	}

	if _, err := l.eco.AddAccumulator(ctx, chainID, ecosystem.TotalChallengesID(evt.Generation.String()), big.NewInt(1)); err != nil {
		return err
	}
	if err := l.positions.UpsertStatusCounters(ctx, chainID, addr, func(s *position.StatusCounters) {
		s.ChallengesStarted++
	}); err != nil {
		return err
	}

	l.log.Info().
		Int64("chain", chainID).
		Str("position", addr).
		Uint64("number", evt.Number).
		Msg("challenge started")

	return nil
}

// Avert processes a ChallengeAverted event: the bidder bought the
// challenger out of part of the auction. The bid amount is priced at the
// position's trigger price, integer arithmetic throughout.
func (l *Ledger) Avert(ctx context.Context, evt *event.ChallengeAverted) error {
	meta := evt.Meta()
	chainID := meta.ChainID
	addr := strings.ToLower(evt.Position)

	c, err := l.store.FindChallenge(ctx, chainID, addr, evt.Number)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s number %d", ErrUnknownChallenge, addr, evt.Number)
	}

	remaining, err := l.views.ChallengeRemainingSize(ctx, chainID, meta.Contract, evt.Number)
	if err != nil {
		return err
	}
	liqPrice, err := l.views.PositionPrice(ctx, chainID, addr)
	if err != nil {
		return err
	}

	b := &Bid{
		ChainID:  chainID,
		Position: addr,
		Number:   evt.Number,
		BidSeq:   c.Bids,

		TxHash:  meta.TxHash,
		Bidder:  strings.ToLower(meta.TxFrom),
		Created: meta.BlockTimestamp,
		Kind:    BidAverted,

		Amount:             fpmath.AvertedBidAmount(liqPrice, evt.Size),
		Price:              liqPrice,
		FilledSize:         fpmath.Clone(evt.Size),
		AcquiredCollateral: fpmath.Zero(),
		ChallengeSize:      fpmath.Clone(c.Size),
	}
	if err := l.store.InsertBid(ctx, b); err != nil {
		return err
	}

	if err := l.applyBid(ctx, chainID, addr, evt.Number, evt.Size, nil, remaining); err != nil {
		return err
	}
	if err := l.refreshCooldown(ctx, chainID, addr); err != nil {
		return err
	}

	if _, err := l.eco.AddAccumulator(ctx, chainID, ecosystem.TotalAvertedBidsID(evt.Generation.String()), big.NewInt(1)); err != nil {
		return err
	}
	return l.positions.UpsertStatusCounters(ctx, chainID, addr, func(s *position.StatusCounters) {
		s.AvertedBids++
	})
}

// Succeed processes a ChallengeSucceeded event: the bidder won part of
// the auction outright, acquiring collateral at the clearing price
// bid * 10^18 / challengeSize (floored, per protocol convention).
func (l *Ledger) Succeed(ctx context.Context, evt *event.ChallengeSucceeded) error {
	meta := evt.Meta()
	chainID := meta.ChainID
	addr := strings.ToLower(evt.Position)

	c, err := l.store.FindChallenge(ctx, chainID, addr, evt.Number)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %s number %d", ErrUnknownChallenge, addr, evt.Number)
	}

	remaining, err := l.views.ChallengeRemainingSize(ctx, chainID, meta.Contract, evt.Number)
	if err != nil {
		return err
	}

	b := &Bid{
		ChainID:  chainID,
		Position: addr,
		Number:   evt.Number,
		BidSeq:   c.Bids,

		TxHash:  meta.TxHash,
		Bidder:  strings.ToLower(meta.TxFrom),
		Created: meta.BlockTimestamp,
		Kind:    BidSucceeded,

		Amount:             fpmath.Clone(evt.Bid),
		Price:              fpmath.ClearingPrice(evt.Bid, evt.ChallengeSize),
		FilledSize:         fpmath.Clone(evt.ChallengeSize),
		AcquiredCollateral: fpmath.Clone(evt.AcquiredCollateral),
		ChallengeSize:      fpmath.Clone(c.Size),
	}
	if err := l.store.InsertBid(ctx, b); err != nil {
		return err
	}

	if err := l.applyBid(ctx, chainID, addr, evt.Number, evt.ChallengeSize, evt.AcquiredCollateral, remaining); err != nil {
		return err
	}
	if err := l.refreshCooldown(ctx, chainID, addr); err != nil {
		return err
	}

	if _, err := l.eco.AddAccumulator(ctx, chainID, ecosystem.TotalSucceededBidsID(evt.Generation.String()), big.NewInt(1)); err != nil {
		return err
	}
	return l.positions.UpsertStatusCounters(ctx, chainID, addr, func(s *position.StatusCounters) {
		s.SucceededBids++
	})
}

// applyBid folds one resolving bid into the challenge's running totals.
// The status flips to Success exactly when the fresh on-chain remaining
// size reads zero; the stored filled size must then equal the challenge
// size (over-fill is an invariant violation upstream of us).
func (l *Ledger) applyBid(ctx context.Context, chainID int64, addr string, number uint64, filled, acquired, remaining *big.Int) error {
	found, err := l.store.UpdateChallenge(ctx, chainID, addr, number, func(c *Challenge) {
		c.Bids++
		c.FilledSize = fpmath.Add(c.FilledSize, filled)
		if acquired != nil {
			c.AcquiredCollateral = fpmath.Add(c.AcquiredCollateral, acquired)
		}
		if remaining.Sign() == 0 {
			c.Status = StatusSuccess
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s number %d vanished mid-update", ErrUnknownChallenge, addr, number)
	}
	return nil
}

func (l *Ledger) refreshCooldown(ctx context.Context, chainID int64, addr string) error {
	cooldown, err := l.views.PositionCooldown(ctx, chainID, addr)
	if err != nil {
		return err
	}
	_, err = l.positions.UpdatePosition(ctx, chainID, addr, func(p *position.Position) {
		p.Cooldown = cooldown
	})
	return err
}
