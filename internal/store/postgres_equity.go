package store

import (
	"context"
	"database/sql"
	"time"

	"StableLedger/internal/equity"
	fpmath "StableLedger/internal/math"
)

const profitLossCols = `chain_id, count, created, tx_hash, kind, minter, amount, profits, losses, per_share`

func (s *Postgres) InsertProfitLoss(ctx context.Context, pl *equity.ProfitLoss) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.profit_losses (`+profitLossCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (chain_id, count) DO NOTHING`,
		pl.ChainID, pl.Count, pl.Created, pl.TxHash, string(pl.Kind), pl.Minter,
		num(pl.Amount), num(pl.Profits), num(pl.Losses), num(pl.PerShare),
	)
	s.observe("insert", "profit_losses", start, err)
	return wrapErr("insert profit_losses", err)
}

func (s *Postgres) ProfitLosses(ctx context.Context, chainID int64, limit int) ([]*equity.ProfitLoss, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+profitLossCols+` FROM stable.profit_losses
		WHERE chain_id = $1
		ORDER BY count DESC
		LIMIT $2`,
		chainID, limit,
	)
	if err != nil {
		s.observe("range", "profit_losses", start, err)
		return nil, wrapErr("range profit_losses", err)
	}
	defer rows.Close()

	var out []*equity.ProfitLoss
	for rows.Next() {
		var pl equity.ProfitLoss
		var kind, amount, profits, losses, perShare string
		if err := rows.Scan(
			&pl.ChainID, &pl.Count, &pl.Created, &pl.TxHash, &kind, &pl.Minter,
			&amount, &profits, &losses, &perShare,
		); err != nil {
			s.observe("range", "profit_losses", start, err)
			return nil, wrapErr("range profit_losses", err)
		}
		pl.Kind = equity.ProfitLossKind(kind)
		if pl.Amount, err = parseNum(amount); err != nil {
			return nil, wrapErr("range profit_losses", err)
		}
		if pl.Profits, err = parseNum(profits); err != nil {
			return nil, wrapErr("range profit_losses", err)
		}
		if pl.Losses, err = parseNum(losses); err != nil {
			return nil, wrapErr("range profit_losses", err)
		}
		if pl.PerShare, err = parseNum(perShare); err != nil {
			return nil, wrapErr("range profit_losses", err)
		}
		out = append(out, &pl)
	}
	s.observe("range", "profit_losses", start, rows.Err())
	return out, wrapErr("range profit_losses", rows.Err())
}

func (s *Postgres) InsertTrade(ctx context.Context, t *equity.Trade) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.equity_trades
			(chain_id, count, created, tx_hash, kind, trader, amount, shares, price)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (chain_id, count) DO NOTHING`,
		t.ChainID, t.Count, t.Created, t.TxHash, t.Kind, t.Trader,
		num(t.Amount), num(t.Shares), num(t.Price),
	)
	s.observe("insert", "equity_trades", start, err)
	return wrapErr("insert equity_trades", err)
}

func (s *Postgres) UpsertMintBurn(ctx context.Context, chainID int64, account string, merge func(*equity.MintBurn)) error {
	start := time.Now()
	var mb equity.MintBurn
	var mint, burn string
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT chain_id, account, mint, burn FROM stable.mint_burn
		WHERE chain_id = $1 AND account = $2`,
		chainID, account,
	).Scan(&mb.ChainID, &mb.Account, &mint, &burn)
	switch {
	case err == sql.ErrNoRows:
		mb = equity.MintBurn{ChainID: chainID, Account: account, Mint: fpmath.Zero(), Burn: fpmath.Zero()}
	case err != nil:
		s.observe("upsert", "mint_burn", start, err)
		return wrapErr("upsert mint_burn", err)
	default:
		if mb.Mint, err = parseNum(mint); err != nil {
			return wrapErr("upsert mint_burn", err)
		}
		if mb.Burn, err = parseNum(burn); err != nil {
			return wrapErr("upsert mint_burn", err)
		}
	}
	merge(&mb)

	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.mint_burn (chain_id, account, mint, burn)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (chain_id, account) DO UPDATE SET
			mint = EXCLUDED.mint, burn = EXCLUDED.burn`,
		mb.ChainID, mb.Account, num(mb.Mint), num(mb.Burn),
	)
	s.observe("upsert", "mint_burn", start, err)
	return wrapErr("upsert mint_burn", err)
}
