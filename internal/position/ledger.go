package position

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

// cloneMarker is the selector of the hub's clone entrypoint. Opening
// transactions whose calldata carries it deployed a clone; the original's
// address sits at a fixed calldata offset.
const cloneMarker = "5cb47919"

// ErrUnknownPosition signals a minting update for a position that was
// never opened, a gap in the event stream that is fatal for the chain.
var ErrUnknownPosition = fmt.Errorf("position unknown")

// Ledger tracks collateralized debt positions across both protocol
// generations: the mutable current-state row plus the append-only minting
// history with computed fee deltas.
type Ledger struct {
	store Store
	eco   ecosystem.Store
	views *chainread.Views
	log   zerolog.Logger
}

func NewLedger(store Store, eco ecosystem.Store, views *chainread.Views, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, eco: eco, views: views, log: log}
}

// seqKey namespaces the per-position minting-update counter.
func seqKey(position string) string {
	return "minting:" + strings.ToLower(position)
}

// Open processes a PositionOpened event: reads the position's parameters
// and both token legs via the contract-read collaborator, computes the
// derived limit fields, propagates clone-aggregate limits back onto the
// original, and inserts the new row.
func (l *Ledger) Open(ctx context.Context, evt *event.PositionOpened) error {
	meta := evt.Meta()
	chainID := meta.ChainID
	addr := strings.ToLower(evt.Position)

	isClone := strings.Contains(evt.TxInput, cloneMarker)
	original := addr
	if isClone {
		original = cloneOriginal(evt.TxInput)
	}

	params, err := l.views.PositionParams(ctx, chainID, addr, evt.Generation)
	if err != nil {
		return err
	}
	debtMeta, err := l.views.ERC20Metadata(ctx, chainID, evt.DebtToken)
	if err != nil {
		return err
	}
	collMeta, err := l.views.ERC20Metadata(ctx, chainID, evt.Collateral)
	if err != nil {
		return err
	}
	collateralBalance, err := l.views.ERC20BalanceOf(ctx, chainID, evt.Collateral, addr)
	if err != nil {
		return err
	}
	limitForClones, availableForClones, err := l.views.PositionLimits(ctx, chainID, addr, evt.Generation)
	if err != nil {
		return err
	}
	minted, err := l.views.PositionMinted(ctx, chainID, addr)
	if err != nil {
		return err
	}
	cooldown, err := l.views.PositionCooldown(ctx, chainID, addr)
	if err != nil {
		return err
	}

	limitForPosition := fpmath.PositionLimit(collateralBalance, evt.Price, debtMeta.Decimals)
	availableForPosition := fpmath.Sub(limitForPosition, minted)

	// A clone consumes part of the original's aggregate limit the moment
	// it opens; refresh the original's stored pair from fresh reads.
	if isClone {
		origLimit, origAvailable, err := l.views.PositionLimits(ctx, chainID, original, evt.Generation)
		if err != nil {
			return err
		}
		if _, err := l.store.UpdatePosition(ctx, chainID, original, func(p *Position) {
			p.LimitForClones = origLimit
			p.AvailableForClones = origAvailable
		}); err != nil {
			return err
		}
	}

	p := &Position{
		ChainID:    chainID,
		Position:   addr,
		Generation: evt.Generation,

		Owner:      strings.ToLower(evt.Owner),
		DebtToken:  strings.ToLower(evt.DebtToken),
		Collateral: strings.ToLower(evt.Collateral),
		Price:      fpmath.Clone(evt.Price),

		Created:    meta.BlockTimestamp,
		IsOriginal: !isClone,
		IsClone:    isClone,
		Original:   original,

		MinimumCollateral:   params.MinimumCollateral,
		RatePPM:             params.RatePPM,
		ReserveContribution: params.ReserveContribution,
		Start:               params.Start,
		Cooldown:            cooldown,
		Expiration:          params.Expiration,
		ChallengePeriod:     params.ChallengePeriod,

		DebtTokenName:     debtMeta.Name,
		DebtTokenSymbol:   debtMeta.Symbol,
		DebtTokenDecimals: debtMeta.Decimals,

		CollateralName:     collMeta.Name,
		CollateralSymbol:   collMeta.Symbol,
		CollateralDecimals: collMeta.Decimals,
		CollateralBalance:  collateralBalance,

		LimitForPosition:     limitForPosition,
		LimitForClones:       limitForClones,
		AvailableForPosition: availableForPosition,
		AvailableForClones:   availableForClones,
		Minted:               minted,
	}

	if err := l.store.InsertPosition(ctx, p); err != nil {
		return err
	}

	// Seed the rollup row so later counter bumps always find it.
	if err := l.store.UpsertStatusCounters(ctx, chainID, addr, func(*StatusCounters) {}); err != nil {
		return err
	}

	if _, err := l.eco.AddAccumulator(ctx, chainID, ecosystem.TotalPositionsID(evt.Generation.String()), big.NewInt(1)); err != nil {
		return err
	}
	if err := l.eco.TouchActiveUser(ctx, chainID, strings.ToLower(meta.TxFrom), meta.BlockTimestamp); err != nil {
		return err
	}

	l.log.Info().
		Int64("chain", chainID).
		Str("position", addr).
		Str("generation", evt.Generation.String()).
		Bool("clone", isClone).
		Msg("position opened")

	return nil
}

// ApplyMintingUpdate processes a MintingUpdated event: refreshes the
// current-state row from the new (collateral, price, minted) triple,
// allocates the next per-position sequence, computes deltas against the
// previous history entry, and appends the new MintingUpdate with its
// assessed fee.
func (l *Ledger) ApplyMintingUpdate(ctx context.Context, evt *event.MintingUpdated) error {
	meta := evt.Meta()
	chainID := meta.ChainID
	addr := strings.ToLower(evt.Position)

	p, err := l.store.FindPosition(ctx, chainID, addr)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: %s (minting update before open)", ErrUnknownPosition, addr)
	}

	cooldown, err := l.views.PositionCooldown(ctx, chainID, addr)
	if err != nil {
		return err
	}
	limitForClones, availableForClones, err := l.views.PositionLimits(ctx, chainID, addr, evt.Generation)
	if err != nil {
		return err
	}
	// Generation one carries the aggregate limit on the event itself.
	if evt.Limit != nil {
		limitForClones = evt.Limit
	}

	limitForPosition := fpmath.PositionLimit(evt.Collateral, evt.Price, p.DebtTokenDecimals)
	availableForPosition := fpmath.Sub(limitForPosition, evt.Minted)

	if _, err := l.store.UpdatePosition(ctx, chainID, addr, func(cur *Position) {
		cur.CollateralBalance = fpmath.Clone(evt.Collateral)
		cur.Price = fpmath.Clone(evt.Price)
		cur.Minted = fpmath.Clone(evt.Minted)
		cur.LimitForPosition = limitForPosition
		cur.LimitForClones = limitForClones
		cur.AvailableForPosition = availableForPosition
		cur.AvailableForClones = availableForClones
		cur.Cooldown = cooldown
		cur.Closed = evt.Collateral.Sign() == 0
	}); err != nil {
		return err
	}

	seq, err := l.eco.NextSequence(ctx, chainID, seqKey(addr))
	if err != nil {
		return err
	}

	u := &MintingUpdate{
		ChainID:  chainID,
		Position: addr,
		Sequence: seq,

		TxHash:  meta.TxHash,
		Created: meta.BlockTimestamp,

		Owner:      p.Owner,
		IsClone:    p.IsClone,
		Collateral: p.Collateral,

		CollateralName:     p.CollateralName,
		CollateralSymbol:   p.CollateralSymbol,
		CollateralDecimals: p.CollateralDecimals,

		Size:   fpmath.Clone(evt.Collateral),
		Price:  fpmath.Clone(evt.Price),
		Minted: fpmath.Clone(evt.Minted),

		RatePPM:             p.RatePPM,
		ReserveContribution: p.ReserveContribution,
	}

	u.FeeWindowSeconds = fpmath.FeeWindowSeconds(p.Expiration, meta.BlockTimestamp)
	u.FeePPM = fpmath.FeePPM(u.FeeWindowSeconds, p.RatePPM)

	if seq == 1 {
		// First update: deltas equal the absolute values.
		u.SizeDelta = fpmath.Clone(evt.Collateral)
		u.PriceDelta = fpmath.Clone(evt.Price)
		u.MintedDelta = fpmath.Clone(evt.Minted)
	} else {
		prev, err := l.store.FindMintingUpdate(ctx, chainID, addr, seq-1)
		if err != nil {
			return err
		}
		if prev == nil {
			return fmt.Errorf("%w: %s missing minting update %d", ErrUnknownPosition, addr, seq-1)
		}
		u.SizeDelta = fpmath.Sub(evt.Collateral, prev.Size)
		u.PriceDelta = fpmath.Sub(evt.Price, prev.Price)
		u.MintedDelta = fpmath.Sub(evt.Minted, prev.Minted)
	}
	u.FeePaid = fpmath.FeePaid(u.MintedDelta, u.FeePPM)

	if err := l.store.InsertMintingUpdate(ctx, u); err != nil {
		return err
	}

	if err := l.store.UpsertStatusCounters(ctx, chainID, addr, func(s *StatusCounters) {
		s.MintingUpdates++
	}); err != nil {
		return err
	}

	return l.eco.TouchActiveUser(ctx, chainID, strings.ToLower(meta.TxFrom), meta.BlockTimestamp)
}

// Deny processes a PositionDenied event. Denial can be indexed before the
// matching open on some deployments; an absent row is a benign no-op,
// not a stream gap.
func (l *Ledger) Deny(ctx context.Context, evt *event.PositionDenied) error {
	meta := evt.Meta()
	addr := strings.ToLower(evt.Position)

	cooldown, err := l.views.PositionCooldown(ctx, meta.ChainID, addr)
	if err != nil {
		return err
	}

	found, err := l.store.UpdatePosition(ctx, meta.ChainID, addr, func(p *Position) {
		p.Denied = true
		p.Cooldown = cooldown
	})
	if err != nil {
		return err
	}
	if !found {
		l.log.Warn().
			Int64("chain", meta.ChainID).
			Str("position", addr).
			Msg("denial for unindexed position, tolerated")
	}

	return l.eco.TouchActiveUser(ctx, meta.ChainID, strings.ToLower(meta.TxFrom), meta.BlockTimestamp)
}

// TransferOwnership processes an OwnershipTransferred event. Like Deny,
// an absent row is tolerated.
func (l *Ledger) TransferOwnership(ctx context.Context, evt *event.OwnershipTransferred) error {
	meta := evt.Meta()
	addr := strings.ToLower(evt.Position)

	found, err := l.store.UpdatePosition(ctx, meta.ChainID, addr, func(p *Position) {
		p.Owner = strings.ToLower(evt.NewOwner)
	})
	if err != nil {
		return err
	}
	if found {
		if err := l.store.UpsertStatusCounters(ctx, meta.ChainID, addr, func(s *StatusCounters) {
			s.OwnerTransfers++
		}); err != nil {
			return err
		}
	}

	return l.eco.TouchActiveUser(ctx, meta.ChainID, strings.ToLower(meta.TxFrom), meta.BlockTimestamp)
}

// cloneOriginal extracts the original's address from the clone
// entrypoint's calldata: the first argument, at bytes 17..36 of the
// 0x-prefixed hex string.
func cloneOriginal(txInput string) string {
	if len(txInput) < 74 {
		return ""
	}
	return strings.ToLower("0x" + txInput[34:74])
}
