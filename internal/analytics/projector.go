package analytics

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"StableLedger/internal/chainread"
	"StableLedger/internal/ecosystem"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
	"StableLedger/internal/position"
	"StableLedger/internal/savings"
)

const rollingWindowSeconds = 365 * 24 * 60 * 60

// Addresses pins the canonical contracts the projector reads. Analytics
// aggregate the canonical chain only; per-chain ledgers never read across
// partitions, this is the one clearly-labeled cross-cutting surface.
type Addresses struct {
	CanonicalChainID int64
	Stablecoin       string
	ShareToken       string
	SavingsModule    string
}

// Projector computes the derived financial metrics and writes both
// cadences: the append-only event-triggered snapshot log and the
// one-row-per-day rollup with the rolling-window realized-earnings
// calculation.
type Projector struct {
	store     Store
	positions position.Store
	savers    savings.Store
	eco       ecosystem.Store
	views     *chainread.Views
	addrs     Addresses
	log       zerolog.Logger
}

func NewProjector(store Store, positions position.Store, savers savings.Store, eco ecosystem.Store, views *chainread.Views, addrs Addresses, log zerolog.Logger) *Projector {
	return &Projector{store: store, positions: positions, savers: savers, eco: eco, views: views, addrs: addrs, log: log}
}

// Project runs the shared computation and writes one snapshot row plus
// the day's rollup. Triggered synchronously by profit/loss realization,
// rate changes and savings flows so the row always reflects the
// triggering event's own effect. Non-canonical chains are skipped.
func (p *Projector) Project(ctx context.Context, meta event.Envelope, kind string, amount *big.Int) error {
	if meta.ChainID != p.addrs.CanonicalChainID {
		return nil
	}
	chainID := meta.ChainID

	m, err := p.compute(ctx, chainID, meta.BlockTimestamp)
	if err != nil {
		return err
	}

	seq, err := p.eco.NextSequence(ctx, chainID, "analytics:snapshot")
	if err != nil {
		return err
	}

	if err := p.store.InsertSnapshot(ctx, &Snapshot{
		ChainID:   chainID,
		Timestamp: meta.BlockTimestamp,
		Kind:      kind,
		Sequence:  seq,
		Amount:    fpmath.Clone(amount),
		TxHash:    meta.TxHash,
		Metrics:   m,
	}); err != nil {
		return err
	}

	day, midnight := utcDay(meta.BlockTimestamp)
	return p.store.UpsertRollup(ctx, &DailyRollup{
		ChainID:   chainID,
		Day:       day,
		Timestamp: midnight,
		TxHash:    meta.TxHash,
		Metrics:   m,
	})
}

// compute gathers accumulators and contract state into one Metrics value.
func (p *Projector) compute(ctx context.Context, chainID int64, ts uint64) (Metrics, error) {
	var m Metrics
	var err error

	if m.TotalInflow, err = p.eco.GetAccumulator(ctx, chainID, ecosystem.IDProfits); err != nil {
		return m, err
	}
	if m.TotalOutflow, err = p.eco.GetAccumulator(ctx, chainID, ecosystem.IDLosses); err != nil {
		return m, err
	}
	if m.EarningsPerShare, err = p.eco.GetAccumulator(ctx, chainID, ecosystem.IDEarningsPerShare); err != nil {
		return m, err
	}

	investedFeePPM, err := p.eco.GetAccumulator(ctx, chainID, ecosystem.IDInvestedFeePPM)
	if err != nil {
		return m, err
	}
	redeemedFeePPM, err := p.eco.GetAccumulator(ctx, chainID, ecosystem.IDRedeemedFeePPM)
	if err != nil {
		return m, err
	}
	m.TotalTradeFee = fpmath.Add(
		fpmath.UnscalePPM(investedFeePPM),
		fpmath.UnscalePPM(redeemedFeePPM),
	)

	saved, err := p.eco.GetAccumulator(ctx, chainID, ecosystem.IDTotalSaved)
	if err != nil {
		return m, err
	}
	collected, err := p.eco.GetAccumulator(ctx, chainID, ecosystem.IDTotalInterestCollected)
	if err != nil {
		return m, err
	}
	withdrawn, err := p.eco.GetAccumulator(ctx, chainID, ecosystem.IDTotalWithdrawn)
	if err != nil {
		return m, err
	}
	m.TotalSavings = fpmath.Sub(fpmath.Add(saved, collected), withdrawn)

	if m.TotalSupply, err = p.views.ERC20TotalSupply(ctx, chainID, p.addrs.Stablecoin); err != nil {
		return m, err
	}
	if m.TotalEquity, err = p.views.Equity(ctx, chainID, p.addrs.Stablecoin); err != nil {
		return m, err
	}
	if m.ShareSupply, err = p.views.ERC20TotalSupply(ctx, chainID, p.addrs.ShareToken); err != nil {
		return m, err
	}
	if m.SharePrice, err = p.views.SharePrice(ctx, chainID, p.addrs.ShareToken); err != nil {
		return m, err
	}

	// Interest every saver could claim right now, summed over the
	// account rows via fresh on-chain reads.
	if m.ClaimableInterest, err = p.claimableInterest(ctx, chainID); err != nil {
		return m, err
	}

	// Lead rate and projected savings interest. The rate read is
	// best-effort: zero when the module cannot answer.
	var leadRatePPM int64
	m.CurrentLeadRate = fpmath.Zero()
	m.ProjectedInterest = fpmath.Zero()
	if m.TotalSavings.Sign() > 0 {
		if leadRatePPM, err = p.views.CurrentRatePPM(ctx, chainID, p.addrs.SavingsModule); err != nil {
			return m, err
		}
		m.CurrentLeadRate = fpmath.RatePPMToE18(leadRatePPM)
		m.ProjectedInterest = fpmath.ApplyPPM(m.TotalSavings, leadRatePPM)
	}

	// Per-generation minted totals and implied annual interest, summed
	// over open positions. V1 rates are self-contained annual PPM; V2
	// composes the risk premium with the current lead rate.
	m.TotalMintedV1, m.AnnualV1Interest, err = p.generationTotals(ctx, chainID, event.GenerationV1, 0)
	if err != nil {
		return m, err
	}
	m.TotalMintedV2, m.AnnualV2Interest, err = p.generationTotals(ctx, chainID, event.GenerationV2, leadRatePPM)
	if err != nil {
		return m, err
	}

	m.AnnualV1BorrowRate = fpmath.PerShare(m.AnnualV1Interest, m.TotalMintedV1)
	m.AnnualV2BorrowRate = fpmath.PerShare(m.AnnualV2Interest, m.TotalMintedV2)

	m.AnnualNetEarnings = fpmath.Sub(
		fpmath.Add(m.AnnualV1Interest, m.AnnualV2Interest),
		fpmath.Add(m.ClaimableInterest, m.ProjectedInterest),
	)

	if m.RealizedNetEarnings, err = p.realizedEarnings(ctx, chainID, ts, m.TotalInflow, m.TotalOutflow); err != nil {
		return m, err
	}

	return m, nil
}

// claimableInterest sums the accrued interest of every saver account on
// the canonical savings module.
func (p *Projector) claimableInterest(ctx context.Context, chainID int64) (*big.Int, error) {
	accounts, err := p.savers.Accounts(ctx, chainID, p.addrs.SavingsModule)
	if err != nil {
		return nil, err
	}

	total := fpmath.Zero()
	for _, a := range accounts {
		accrued, err := p.views.AccruedInterest(ctx, chainID, p.addrs.SavingsModule, a.Account)
		if err != nil {
			return nil, err
		}
		total = fpmath.Add(total, accrued)
	}
	return total, nil
}

func (p *Projector) generationTotals(ctx context.Context, chainID int64, gen event.Generation, leadRatePPM int64) (minted, interest *big.Int, err error) {
	open, err := p.positions.OpenPositions(ctx, chainID, gen)
	if err != nil {
		return nil, nil, err
	}

	minted = fpmath.Zero()
	interest = fpmath.Zero()
	for _, pos := range open {
		rate := pos.RatePPM
		if gen == event.GenerationV2 {
			rate += leadRatePPM
		}
		minted = fpmath.Add(minted, pos.Minted)
		interest = fpmath.Add(interest, fpmath.ApplyPPM(pos.Minted, rate))
	}
	return minted, interest, nil
}

// realizedEarnings computes the trailing-365-day realized net: today's
// cumulative inflow/outflow minus the values recorded by the first daily
// rollup inside the window. Cold start falls back to all-time net.
func (p *Projector) realizedEarnings(ctx context.Context, chainID int64, ts uint64, inflow, outflow *big.Int) (*big.Int, error) {
	var windowStart uint64
	if ts > rollingWindowSeconds {
		_, windowStart = utcDay(ts - rollingWindowSeconds)
	}

	base, err := p.store.FirstRollupAtOrAfter(ctx, chainID, windowStart)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return fpmath.Sub(inflow, outflow), nil
	}
	return fpmath.Sub(
		fpmath.Sub(inflow, base.TotalInflow),
		fpmath.Sub(outflow, base.TotalOutflow),
	), nil
}

// utcDay maps a unix timestamp to its UTC calendar day key and the
// midnight timestamp of that day.
func utcDay(ts uint64) (string, uint64) {
	t := time.Unix(int64(ts), 0).UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Format("2006-01-02"), uint64(midnight.Unix())
}
