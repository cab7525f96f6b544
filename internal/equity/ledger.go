package equity

import (
	"context"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"StableLedger/internal/chainread"
	"StableLedger/internal/ecosystem"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
)

// tradeFeePPM is the protocol's flat fee on share trades, accumulated in
// PPM-scaled units and divided back down by the analytics projector.
const tradeFeePPM = 3000

// Ledger folds realized profits and losses, share trades, and stablecoin
// mints/burns into the ecosystem accumulators and their flat logs.
type Ledger struct {
	store      Store
	eco        ecosystem.Store
	views      *chainread.Views
	shareToken string // canonical pool-share token address
	log        zerolog.Logger
}

func NewLedger(store Store, eco ecosystem.Store, views *chainread.Views, shareToken string, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, eco: eco, views: views, shareToken: strings.ToLower(shareToken), log: log}
}

// Profit processes an EquityProfit event.
func (l *Ledger) Profit(ctx context.Context, evt *event.EquityProfit) error {
	return l.applyProfitLoss(ctx, evt.Meta(), KindProfit, evt.Minter, evt.Amount)
}

// Loss processes an EquityLoss event.
func (l *Ledger) Loss(ctx context.Context, evt *event.EquityLoss) error {
	return l.applyProfitLoss(ctx, evt.Meta(), KindLoss, evt.Minter, evt.Amount)
}

func (l *Ledger) applyProfitLoss(ctx context.Context, meta event.Envelope, kind ProfitLossKind, minter string, amount *big.Int) error {
	chainID := meta.ChainID

	count, err := l.eco.AddAccumulator(ctx, chainID, ecosystem.IDProfitLossCount, big.NewInt(1))
	if err != nil {
		return err
	}

	kindCounter := ecosystem.IDProfitCounter
	totalsID := ecosystem.IDProfits
	otherID := ecosystem.IDLosses
	if kind == KindLoss {
		kindCounter = ecosystem.IDLossCounter
		totalsID = ecosystem.IDLosses
		otherID = ecosystem.IDProfits
	}
	if _, err := l.eco.AddAccumulator(ctx, chainID, kindCounter, big.NewInt(1)); err != nil {
		return err
	}
	if _, err := l.eco.AddAccumulator(ctx, chainID, totalsID, amount); err != nil {
		return err
	}
	// Touch the opposite total so both rows exist from the first event on.
	if _, err := l.eco.AddAccumulator(ctx, chainID, otherID, fpmath.Zero()); err != nil {
		return err
	}

	// Earnings per pool share accumulate signed deltas normalized by the
	// share supply at realization time.
	perShare := fpmath.Zero()
	shareSupply, err := l.views.ERC20TotalSupply(ctx, chainID, l.shareToken)
	if err != nil {
		return err
	}
	if shareSupply.Sign() > 0 {
		delta := fpmath.PerShare(amount, shareSupply)
		if kind == KindLoss {
			delta = new(big.Int).Neg(delta)
		}
		if perShare, err = l.eco.AddAccumulator(ctx, chainID, ecosystem.IDEarningsPerShare, delta); err != nil {
			return err
		}
	}

	profits, err := l.eco.GetAccumulator(ctx, chainID, ecosystem.IDProfits)
	if err != nil {
		return err
	}
	losses, err := l.eco.GetAccumulator(ctx, chainID, ecosystem.IDLosses)
	if err != nil {
		return err
	}

	return l.store.InsertProfitLoss(ctx, &ProfitLoss{
		ChainID: chainID,
		Count:   count.Uint64(),

		Created: meta.BlockTimestamp,
		TxHash:  meta.TxHash,
		Kind:    kind,
		Minter:  strings.ToLower(minter),
		Amount:  fpmath.Clone(amount),

		Profits:  profits,
		Losses:   losses,
		PerShare: perShare,
	})
}

// Trade processes an EquityTrade event, splitting it into the invested
// and redeemed accumulator families by the sign of the share delta.
func (l *Ledger) Trade(ctx context.Context, evt *event.EquityTrade) error {
	meta := evt.Meta()
	chainID := meta.ChainID

	counterID := ecosystem.IDInvestedCounter
	totalID := ecosystem.IDInvested
	feeID := ecosystem.IDInvestedFeePPM
	if evt.TradeKind() == event.TradeRedeemed {
		counterID = ecosystem.IDRedeemedCounter
		totalID = ecosystem.IDRedeemed
		feeID = ecosystem.IDRedeemedFeePPM
	}

	count, err := l.eco.AddAccumulator(ctx, chainID, counterID, big.NewInt(1))
	if err != nil {
		return err
	}
	if _, err := l.eco.AddAccumulator(ctx, chainID, totalID, evt.Amount); err != nil {
		return err
	}
	// Fees are stored PPM-scaled (amount * feePPM) so the projector can
	// divide once instead of losing precision per trade.
	feeScaled := new(big.Int).Mul(evt.Amount, big.NewInt(tradeFeePPM))
	if _, err := l.eco.AddAccumulator(ctx, chainID, feeID, feeScaled); err != nil {
		return err
	}

	return l.store.InsertTrade(ctx, &Trade{
		ChainID: chainID,
		Count:   count.Uint64(),

		Created: meta.BlockTimestamp,
		TxHash:  meta.TxHash,
		Kind:    evt.TradeKind().String(),
		Trader:  strings.ToLower(evt.Trader),

		Amount: fpmath.Clone(evt.Amount),
		Shares: fpmath.Clone(evt.Shares),
		Price:  fpmath.Clone(evt.NewPrice),
	})
}

// Mint processes a stablecoin mint (transfer from the zero address).
func (l *Ledger) Mint(ctx context.Context, evt *event.TokenMint) error {
	meta := evt.Meta()
	if _, err := l.eco.AddAccumulator(ctx, meta.ChainID, ecosystem.IDTokenMinted, evt.Value); err != nil {
		return err
	}
	return l.store.UpsertMintBurn(ctx, meta.ChainID, strings.ToLower(evt.To), func(mb *MintBurn) {
		mb.Mint = fpmath.Add(orZero(mb.Mint), evt.Value)
		if mb.Burn == nil {
			mb.Burn = fpmath.Zero()
		}
	})
}

// Burn processes a stablecoin burn (transfer to the zero address).
func (l *Ledger) Burn(ctx context.Context, evt *event.TokenBurn) error {
	meta := evt.Meta()
	if _, err := l.eco.AddAccumulator(ctx, meta.ChainID, ecosystem.IDTokenBurned, evt.Value); err != nil {
		return err
	}
	return l.store.UpsertMintBurn(ctx, meta.ChainID, strings.ToLower(evt.From), func(mb *MintBurn) {
		mb.Burn = fpmath.Add(orZero(mb.Burn), evt.Value)
		if mb.Mint == nil {
			mb.Mint = fpmath.Zero()
		}
	})
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
