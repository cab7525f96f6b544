package store

import (
	"context"
	"database/sql"
	"math/big"
	"time"

	"StableLedger/internal/analytics"
)

const metricsCols = `total_inflow, total_outflow, total_trade_fee,
	total_supply, total_equity, total_savings, share_supply, share_price,
	total_minted_v1, total_minted_v2, current_lead_rate, claimable_interest, projected_interest,
	annual_v1_interest, annual_v2_interest, annual_v1_borrow_rate, annual_v2_borrow_rate,
	annual_net_earnings, realized_net_earnings, earnings_per_share`

const numMetricsCols = 20

func metricsArgs(m *analytics.Metrics) []any {
	return []any{
		num(m.TotalInflow), num(m.TotalOutflow), num(m.TotalTradeFee),
		num(m.TotalSupply), num(m.TotalEquity), num(m.TotalSavings),
		num(m.ShareSupply), num(m.SharePrice),
		num(m.TotalMintedV1), num(m.TotalMintedV2),
		num(m.CurrentLeadRate), num(m.ClaimableInterest), num(m.ProjectedInterest),
		num(m.AnnualV1Interest), num(m.AnnualV2Interest),
		num(m.AnnualV1BorrowRate), num(m.AnnualV2BorrowRate),
		num(m.AnnualNetEarnings), num(m.RealizedNetEarnings), num(m.EarningsPerShare),
	}
}

// metricsDest returns raw scan targets plus the parse step that fills m.
func metricsDest(m *analytics.Metrics) ([]any, func() error) {
	raw := make([]string, numMetricsCols)
	dest := make([]any, numMetricsCols)
	for i := range raw {
		dest[i] = &raw[i]
	}
	fields := []**big.Int{
		&m.TotalInflow, &m.TotalOutflow, &m.TotalTradeFee,
		&m.TotalSupply, &m.TotalEquity, &m.TotalSavings,
		&m.ShareSupply, &m.SharePrice,
		&m.TotalMintedV1, &m.TotalMintedV2,
		&m.CurrentLeadRate, &m.ClaimableInterest, &m.ProjectedInterest,
		&m.AnnualV1Interest, &m.AnnualV2Interest,
		&m.AnnualV1BorrowRate, &m.AnnualV2BorrowRate,
		&m.AnnualNetEarnings, &m.RealizedNetEarnings, &m.EarningsPerShare,
	}
	return dest, func() error {
		for i, f := range fields {
			v, err := parseNum(raw[i])
			if err != nil {
				return err
			}
			*f = v
		}
		return nil
	}
}

func (s *Postgres) InsertSnapshot(ctx context.Context, snap *analytics.Snapshot) error {
	start := time.Now()
	args := append([]any{
		snap.ChainID, snap.Timestamp, snap.Kind, snap.Sequence,
		num(snap.Amount), snap.TxHash,
	}, metricsArgs(&snap.Metrics)...)

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.analytics_snapshots
			(chain_id, ts, kind, sequence, amount, tx_hash, `+metricsCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		ON CONFLICT (chain_id, ts, kind, sequence) DO NOTHING`,
		args...,
	)
	s.observe("insert", "analytics_snapshots", start, err)
	if err == nil && s.metrics != nil {
		s.metrics.SnapshotsWritten.WithLabelValues(chainLabel(snap.ChainID)).Inc()
	}
	return wrapErr("insert analytics_snapshots", err)
}

func (s *Postgres) Snapshots(ctx context.Context, chainID int64, limit int) ([]*analytics.Snapshot, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT chain_id, ts, kind, sequence, amount, tx_hash, `+metricsCols+`
		FROM stable.analytics_snapshots
		WHERE chain_id = $1
		ORDER BY ts DESC, sequence DESC
		LIMIT $2`,
		chainID, limit,
	)
	if err != nil {
		s.observe("range", "analytics_snapshots", start, err)
		return nil, wrapErr("range analytics_snapshots", err)
	}
	defer rows.Close()

	var out []*analytics.Snapshot
	for rows.Next() {
		var snap analytics.Snapshot
		var amount string
		dest, parse := metricsDest(&snap.Metrics)
		scan := append([]any{
			&snap.ChainID, &snap.Timestamp, &snap.Kind, &snap.Sequence,
			&amount, &snap.TxHash,
		}, dest...)
		if err := rows.Scan(scan...); err != nil {
			s.observe("range", "analytics_snapshots", start, err)
			return nil, wrapErr("range analytics_snapshots", err)
		}
		if err := parse(); err != nil {
			return nil, wrapErr("range analytics_snapshots", err)
		}
		if snap.Amount, err = parseNum(amount); err != nil {
			return nil, wrapErr("range analytics_snapshots", err)
		}
		out = append(out, &snap)
	}
	s.observe("range", "analytics_snapshots", start, rows.Err())
	return out, wrapErr("range analytics_snapshots", rows.Err())
}

func (s *Postgres) UpsertRollup(ctx context.Context, r *analytics.DailyRollup) error {
	start := time.Now()
	args := append([]any{
		r.ChainID, r.Day, r.Timestamp, r.TxHash,
	}, metricsArgs(&r.Metrics)...)

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.daily_rollups
			(chain_id, day, ts, tx_hash, `+metricsCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		ON CONFLICT (chain_id, day) DO UPDATE SET
			ts = EXCLUDED.ts, tx_hash = EXCLUDED.tx_hash,
			total_inflow = EXCLUDED.total_inflow,
			total_outflow = EXCLUDED.total_outflow,
			total_trade_fee = EXCLUDED.total_trade_fee,
			total_supply = EXCLUDED.total_supply,
			total_equity = EXCLUDED.total_equity,
			total_savings = EXCLUDED.total_savings,
			share_supply = EXCLUDED.share_supply,
			share_price = EXCLUDED.share_price,
			total_minted_v1 = EXCLUDED.total_minted_v1,
			total_minted_v2 = EXCLUDED.total_minted_v2,
			current_lead_rate = EXCLUDED.current_lead_rate,
			claimable_interest = EXCLUDED.claimable_interest,
			projected_interest = EXCLUDED.projected_interest,
			annual_v1_interest = EXCLUDED.annual_v1_interest,
			annual_v2_interest = EXCLUDED.annual_v2_interest,
			annual_v1_borrow_rate = EXCLUDED.annual_v1_borrow_rate,
			annual_v2_borrow_rate = EXCLUDED.annual_v2_borrow_rate,
			annual_net_earnings = EXCLUDED.annual_net_earnings,
			realized_net_earnings = EXCLUDED.realized_net_earnings,
			earnings_per_share = EXCLUDED.earnings_per_share`,
		args...,
	)
	s.observe("upsert", "daily_rollups", start, err)
	if err == nil && s.metrics != nil {
		s.metrics.RollupUpserts.WithLabelValues(chainLabel(r.ChainID)).Inc()
	}
	return wrapErr("upsert daily_rollups", err)
}

func (s *Postgres) scanRollup(row interface{ Scan(...any) error }) (*analytics.DailyRollup, error) {
	var r analytics.DailyRollup
	dest, parse := metricsDest(&r.Metrics)
	scan := append([]any{&r.ChainID, &r.Day, &r.Timestamp, &r.TxHash}, dest...)
	if err := row.Scan(scan...); err != nil {
		return nil, err
	}
	if err := parse(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Postgres) FindRollup(ctx context.Context, chainID int64, day string) (*analytics.DailyRollup, error) {
	start := time.Now()
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT chain_id, day, ts, tx_hash, `+metricsCols+`
		FROM stable.daily_rollups
		WHERE chain_id = $1 AND day = $2`,
		chainID, day,
	)
	r, err := s.scanRollup(row)
	if err == sql.ErrNoRows {
		s.observe("find", "daily_rollups", start, nil)
		return nil, nil
	}
	s.observe("find", "daily_rollups", start, err)
	if err != nil {
		return nil, wrapErr("find daily_rollups", err)
	}
	return r, nil
}

func (s *Postgres) FirstRollupAtOrAfter(ctx context.Context, chainID int64, ts uint64) (*analytics.DailyRollup, error) {
	start := time.Now()
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT chain_id, day, ts, tx_hash, `+metricsCols+`
		FROM stable.daily_rollups
		WHERE chain_id = $1 AND ts >= $2
		ORDER BY ts
		LIMIT 1`,
		chainID, ts,
	)
	r, err := s.scanRollup(row)
	if err == sql.ErrNoRows {
		s.observe("find", "daily_rollups", start, nil)
		return nil, nil
	}
	s.observe("find", "daily_rollups", start, err)
	if err != nil {
		return nil, wrapErr("find daily_rollups", err)
	}
	return r, nil
}

func (s *Postgres) Rollups(ctx context.Context, chainID int64, fromDay, toDay string) ([]*analytics.DailyRollup, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT chain_id, day, ts, tx_hash, `+metricsCols+`
		FROM stable.daily_rollups
		WHERE chain_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day`,
		chainID, fromDay, toDay,
	)
	if err != nil {
		s.observe("range", "daily_rollups", start, err)
		return nil, wrapErr("range daily_rollups", err)
	}
	defer rows.Close()

	var out []*analytics.DailyRollup
	for rows.Next() {
		r, err := s.scanRollup(rows)
		if err != nil {
			s.observe("range", "daily_rollups", start, err)
			return nil, wrapErr("range daily_rollups", err)
		}
		out = append(out, r)
	}
	s.observe("range", "daily_rollups", start, rows.Err())
	return out, wrapErr("range daily_rollups", rows.Err())
}
