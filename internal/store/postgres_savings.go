package store

import (
	"context"
	"database/sql"
	"time"

	fpmath "StableLedger/internal/math"
	"StableLedger/internal/savings"
)

const savingsStatusCols = `chain_id, module, updated, rate_ppm, save, withdraw, interest, balance,
	counter_save, counter_withdraw, counter_interest, counter_rate_proposed, counter_rate_changed`

func (s *Postgres) UpsertStatus(ctx context.Context, chainID int64, module string, merge func(*savings.Status)) (*savings.Status, error) {
	st, err := s.FindStatus(ctx, chainID, module)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &savings.Status{
			ChainID:  chainID,
			Module:   module,
			Save:     fpmath.Zero(),
			Withdraw: fpmath.Zero(),
			Interest: fpmath.Zero(),
			Balance:  fpmath.Zero(),
		}
	}
	merge(st)

	start := time.Now()
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.savings_status (`+savingsStatusCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (chain_id, module) DO UPDATE SET
			updated = EXCLUDED.updated, rate_ppm = EXCLUDED.rate_ppm,
			save = EXCLUDED.save, withdraw = EXCLUDED.withdraw,
			interest = EXCLUDED.interest, balance = EXCLUDED.balance,
			counter_save = EXCLUDED.counter_save,
			counter_withdraw = EXCLUDED.counter_withdraw,
			counter_interest = EXCLUDED.counter_interest,
			counter_rate_proposed = EXCLUDED.counter_rate_proposed,
			counter_rate_changed = EXCLUDED.counter_rate_changed`,
		st.ChainID, st.Module, st.Updated, st.RatePPM,
		num(st.Save), num(st.Withdraw), num(st.Interest), num(st.Balance),
		st.CounterSave, st.CounterWithdraw, st.CounterInterest,
		st.CounterRateProposed, st.CounterRateChanged,
	)
	s.observe("upsert", "savings_status", start, err)
	if err != nil {
		return nil, wrapErr("upsert savings_status", err)
	}
	return st, nil
}

func (s *Postgres) FindStatus(ctx context.Context, chainID int64, module string) (*savings.Status, error) {
	start := time.Now()
	var st savings.Status
	var save, withdraw, interest, balance string
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+savingsStatusCols+` FROM stable.savings_status
		WHERE chain_id = $1 AND module = $2`,
		chainID, module,
	).Scan(
		&st.ChainID, &st.Module, &st.Updated, &st.RatePPM,
		&save, &withdraw, &interest, &balance,
		&st.CounterSave, &st.CounterWithdraw, &st.CounterInterest,
		&st.CounterRateProposed, &st.CounterRateChanged,
	)
	if err == sql.ErrNoRows {
		s.observe("find", "savings_status", start, nil)
		return nil, nil
	}
	s.observe("find", "savings_status", start, err)
	if err != nil {
		return nil, wrapErr("find savings_status", err)
	}
	if st.Save, err = parseNum(save); err != nil {
		return nil, wrapErr("find savings_status", err)
	}
	if st.Withdraw, err = parseNum(withdraw); err != nil {
		return nil, wrapErr("find savings_status", err)
	}
	if st.Interest, err = parseNum(interest); err != nil {
		return nil, wrapErr("find savings_status", err)
	}
	if st.Balance, err = parseNum(balance); err != nil {
		return nil, wrapErr("find savings_status", err)
	}
	return &st, nil
}

const savingsAccountCols = `chain_id, module, account, created, updated,
	save, withdraw, interest, balance,
	counter_save, counter_withdraw, counter_interest, referrer, referrer_fee_ppm`

func (s *Postgres) UpsertAccount(ctx context.Context, chainID int64, module, account string, merge func(*savings.Account)) (*savings.Account, error) {
	a, err := s.FindAccount(ctx, chainID, module, account)
	if err != nil {
		return nil, err
	}
	if a == nil {
		a = &savings.Account{
			ChainID:  chainID,
			Module:   module,
			Account:  account,
			Save:     fpmath.Zero(),
			Withdraw: fpmath.Zero(),
			Interest: fpmath.Zero(),
			Balance:  fpmath.Zero(),
		}
	}
	merge(a)

	start := time.Now()
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.savings_accounts (`+savingsAccountCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (chain_id, module, account) DO UPDATE SET
			updated = EXCLUDED.updated,
			save = EXCLUDED.save, withdraw = EXCLUDED.withdraw,
			interest = EXCLUDED.interest, balance = EXCLUDED.balance,
			counter_save = EXCLUDED.counter_save,
			counter_withdraw = EXCLUDED.counter_withdraw,
			counter_interest = EXCLUDED.counter_interest,
			referrer = EXCLUDED.referrer,
			referrer_fee_ppm = EXCLUDED.referrer_fee_ppm`,
		a.ChainID, a.Module, a.Account, a.Created, a.Updated,
		num(a.Save), num(a.Withdraw), num(a.Interest), num(a.Balance),
		a.CounterSave, a.CounterWithdraw, a.CounterInterest,
		a.Referrer, a.ReferrerFeePPM,
	)
	s.observe("upsert", "savings_accounts", start, err)
	if err != nil {
		return nil, wrapErr("upsert savings_accounts", err)
	}
	return a, nil
}

func (s *Postgres) FindAccount(ctx context.Context, chainID int64, module, account string) (*savings.Account, error) {
	start := time.Now()
	var a savings.Account
	var save, withdraw, interest, balance string
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+savingsAccountCols+` FROM stable.savings_accounts
		WHERE chain_id = $1 AND module = $2 AND account = $3`,
		chainID, module, account,
	).Scan(
		&a.ChainID, &a.Module, &a.Account, &a.Created, &a.Updated,
		&save, &withdraw, &interest, &balance,
		&a.CounterSave, &a.CounterWithdraw, &a.CounterInterest,
		&a.Referrer, &a.ReferrerFeePPM,
	)
	if err == sql.ErrNoRows {
		s.observe("find", "savings_accounts", start, nil)
		return nil, nil
	}
	s.observe("find", "savings_accounts", start, err)
	if err != nil {
		return nil, wrapErr("find savings_accounts", err)
	}
	if a.Save, err = parseNum(save); err != nil {
		return nil, wrapErr("find savings_accounts", err)
	}
	if a.Withdraw, err = parseNum(withdraw); err != nil {
		return nil, wrapErr("find savings_accounts", err)
	}
	if a.Interest, err = parseNum(interest); err != nil {
		return nil, wrapErr("find savings_accounts", err)
	}
	if a.Balance, err = parseNum(balance); err != nil {
		return nil, wrapErr("find savings_accounts", err)
	}
	return &a, nil
}

func (s *Postgres) Accounts(ctx context.Context, chainID int64, module string) ([]*savings.Account, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+savingsAccountCols+` FROM stable.savings_accounts
		WHERE chain_id = $1 AND module = $2
		ORDER BY account`,
		chainID, module,
	)
	if err != nil {
		s.observe("range", "savings_accounts", start, err)
		return nil, wrapErr("range savings_accounts", err)
	}
	defer rows.Close()

	var out []*savings.Account
	for rows.Next() {
		var a savings.Account
		var save, withdraw, interest, balance string
		if err := rows.Scan(
			&a.ChainID, &a.Module, &a.Account, &a.Created, &a.Updated,
			&save, &withdraw, &interest, &balance,
			&a.CounterSave, &a.CounterWithdraw, &a.CounterInterest,
			&a.Referrer, &a.ReferrerFeePPM,
		); err != nil {
			s.observe("range", "savings_accounts", start, err)
			return nil, wrapErr("range savings_accounts", err)
		}
		if a.Save, err = parseNum(save); err != nil {
			return nil, wrapErr("range savings_accounts", err)
		}
		if a.Withdraw, err = parseNum(withdraw); err != nil {
			return nil, wrapErr("range savings_accounts", err)
		}
		if a.Interest, err = parseNum(interest); err != nil {
			return nil, wrapErr("range savings_accounts", err)
		}
		if a.Balance, err = parseNum(balance); err != nil {
			return nil, wrapErr("range savings_accounts", err)
		}
		out = append(out, &a)
	}
	s.observe("range", "savings_accounts", start, rows.Err())
	return out, wrapErr("range savings_accounts", rows.Err())
}

const activityCols = `chain_id, module, account, count, created, block_number, tx_hash, kind,
	amount, rate_ppm, save, withdraw, interest, balance`

func (s *Postgres) InsertActivity(ctx context.Context, a *savings.Activity) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.savings_activity (`+activityCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (chain_id, module, account, count) DO NOTHING`,
		a.ChainID, a.Module, a.Account, a.Count, a.Created, a.BlockNumber, a.TxHash, string(a.Kind),
		num(a.Amount), a.RatePPM, num(a.Save), num(a.Withdraw), num(a.Interest), num(a.Balance),
	)
	s.observe("insert", "savings_activity", start, err)
	return wrapErr("insert savings_activity", err)
}

func (s *Postgres) Activities(ctx context.Context, chainID int64, module, account string) ([]*savings.Activity, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+activityCols+` FROM stable.savings_activity
		WHERE chain_id = $1 AND module = $2 AND account = $3
		ORDER BY count`,
		chainID, module, account,
	)
	if err != nil {
		s.observe("range", "savings_activity", start, err)
		return nil, wrapErr("range savings_activity", err)
	}
	defer rows.Close()

	var out []*savings.Activity
	for rows.Next() {
		var a savings.Activity
		var kind, amount, save, withdraw, interest, balance string
		if err := rows.Scan(
			&a.ChainID, &a.Module, &a.Account, &a.Count, &a.Created, &a.BlockNumber, &a.TxHash, &kind,
			&amount, &a.RatePPM, &save, &withdraw, &interest, &balance,
		); err != nil {
			s.observe("range", "savings_activity", start, err)
			return nil, wrapErr("range savings_activity", err)
		}
		a.Kind = savings.ActivityKind(kind)
		if a.Amount, err = parseNum(amount); err != nil {
			return nil, wrapErr("range savings_activity", err)
		}
		if a.Save, err = parseNum(save); err != nil {
			return nil, wrapErr("range savings_activity", err)
		}
		if a.Withdraw, err = parseNum(withdraw); err != nil {
			return nil, wrapErr("range savings_activity", err)
		}
		if a.Interest, err = parseNum(interest); err != nil {
			return nil, wrapErr("range savings_activity", err)
		}
		if a.Balance, err = parseNum(balance); err != nil {
			return nil, wrapErr("range savings_activity", err)
		}
		out = append(out, &a)
	}
	s.observe("range", "savings_activity", start, rows.Err())
	return out, wrapErr("range savings_activity", rows.Err())
}

func (s *Postgres) InsertRateChange(ctx context.Context, rc *savings.RateChange) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.rate_changes
			(chain_id, module, count, created, block_number, tx_hash, rate_ppm)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (chain_id, module, count) DO NOTHING`,
		rc.ChainID, rc.Module, rc.Count, rc.Created, rc.BlockNumber, rc.TxHash, rc.RatePPM,
	)
	s.observe("insert", "rate_changes", start, err)
	return wrapErr("insert rate_changes", err)
}

func (s *Postgres) InsertRateProposal(ctx context.Context, rp *savings.RateProposal) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.rate_proposals
			(chain_id, module, count, created, block_number, tx_hash, proposer, next_rate_ppm, next_change)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (chain_id, module, count) DO NOTHING`,
		rp.ChainID, rp.Module, rp.Count, rp.Created, rp.BlockNumber, rp.TxHash,
		rp.Proposer, rp.NextRatePPM, rp.NextChange,
	)
	s.observe("insert", "rate_proposals", start, err)
	return wrapErr("insert rate_proposals", err)
}
