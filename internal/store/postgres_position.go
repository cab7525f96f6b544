package store

import (
	"context"
	"database/sql"
	"time"

	"StableLedger/internal/event"
	"StableLedger/internal/position"
)

const positionCols = `chain_id, position, generation, owner, debt_token, collateral, price,
	created, is_original, is_clone, denied, closed, original,
	minimum_collateral, rate_ppm, reserve_contribution, start_ts, cooldown, expiration, challenge_period,
	debt_name, debt_symbol, debt_decimals, coll_name, coll_symbol, coll_decimals, collateral_balance,
	limit_for_position, limit_for_clones, available_for_position, available_for_clones, minted`

func positionArgs(p *position.Position) []any {
	return []any{
		p.ChainID, p.Position, int16(p.Generation), p.Owner, p.DebtToken, p.Collateral, num(p.Price),
		p.Created, p.IsOriginal, p.IsClone, p.Denied, p.Closed, p.Original,
		num(p.MinimumCollateral), p.RatePPM, p.ReserveContribution, p.Start, p.Cooldown, p.Expiration, p.ChallengePeriod,
		p.DebtTokenName, p.DebtTokenSymbol, int16(p.DebtTokenDecimals),
		p.CollateralName, p.CollateralSymbol, int16(p.CollateralDecimals), num(p.CollateralBalance),
		num(p.LimitForPosition), num(p.LimitForClones), num(p.AvailableForPosition), num(p.AvailableForClones), num(p.Minted),
	}
}

func scanPosition(row interface{ Scan(...any) error }) (*position.Position, error) {
	var p position.Position
	var gen, debtDec, collDec int16
	var price, minColl, collBal, limPos, limClones, availPos, availClones, minted string

	err := row.Scan(
		&p.ChainID, &p.Position, &gen, &p.Owner, &p.DebtToken, &p.Collateral, &price,
		&p.Created, &p.IsOriginal, &p.IsClone, &p.Denied, &p.Closed, &p.Original,
		&minColl, &p.RatePPM, &p.ReserveContribution, &p.Start, &p.Cooldown, &p.Expiration, &p.ChallengePeriod,
		&p.DebtTokenName, &p.DebtTokenSymbol, &debtDec,
		&p.CollateralName, &p.CollateralSymbol, &collDec, &collBal,
		&limPos, &limClones, &availPos, &availClones, &minted,
	)
	if err != nil {
		return nil, err
	}

	p.Generation = event.Generation(gen)
	p.DebtTokenDecimals = uint8(debtDec)
	p.CollateralDecimals = uint8(collDec)
	if p.Price, err = parseNum(price); err != nil {
		return nil, err
	}
	if p.MinimumCollateral, err = parseNum(minColl); err != nil {
		return nil, err
	}
	if p.CollateralBalance, err = parseNum(collBal); err != nil {
		return nil, err
	}
	if p.LimitForPosition, err = parseNum(limPos); err != nil {
		return nil, err
	}
	if p.LimitForClones, err = parseNum(limClones); err != nil {
		return nil, err
	}
	if p.AvailableForPosition, err = parseNum(availPos); err != nil {
		return nil, err
	}
	if p.AvailableForClones, err = parseNum(availClones); err != nil {
		return nil, err
	}
	if p.Minted, err = parseNum(minted); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) InsertPosition(ctx context.Context, p *position.Position) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.positions (`+positionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
		ON CONFLICT (chain_id, position) DO NOTHING`,
		positionArgs(p)...,
	)
	s.observe("insert", "positions", start, err)
	return wrapErr("insert positions", err)
}

func (s *Postgres) FindPosition(ctx context.Context, chainID int64, addr string) (*position.Position, error) {
	start := time.Now()
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+positionCols+` FROM stable.positions
		WHERE chain_id = $1 AND position = $2`,
		chainID, addr,
	)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		s.observe("find", "positions", start, nil)
		return nil, nil
	}
	s.observe("find", "positions", start, err)
	if err != nil {
		return nil, wrapErr("find positions", err)
	}
	return p, nil
}

func (s *Postgres) UpdatePosition(ctx context.Context, chainID int64, addr string, merge func(*position.Position)) (bool, error) {
	p, err := s.FindPosition(ctx, chainID, addr)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, nil
	}
	merge(p)

	start := time.Now()
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.positions (`+positionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
		ON CONFLICT (chain_id, position) DO UPDATE SET
			owner = EXCLUDED.owner, price = EXCLUDED.price, denied = EXCLUDED.denied,
			closed = EXCLUDED.closed, cooldown = EXCLUDED.cooldown,
			collateral_balance = EXCLUDED.collateral_balance,
			limit_for_position = EXCLUDED.limit_for_position,
			limit_for_clones = EXCLUDED.limit_for_clones,
			available_for_position = EXCLUDED.available_for_position,
			available_for_clones = EXCLUDED.available_for_clones,
			minted = EXCLUDED.minted`,
		positionArgs(p)...,
	)
	s.observe("upsert", "positions", start, err)
	if err != nil {
		return false, wrapErr("upsert positions", err)
	}
	return true, nil
}

const mintingUpdateCols = `chain_id, position, sequence, tx_hash, created, owner, is_clone, collateral,
	coll_name, coll_symbol, coll_decimals, size, price, minted,
	size_delta, price_delta, minted_delta, rate_ppm, reserve_contribution,
	fee_window_seconds, fee_ppm, fee_paid`

func (s *Postgres) InsertMintingUpdate(ctx context.Context, u *position.MintingUpdate) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.minting_updates (`+mintingUpdateCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (chain_id, position, sequence) DO NOTHING`,
		u.ChainID, u.Position, u.Sequence, u.TxHash, u.Created, u.Owner, u.IsClone, u.Collateral,
		u.CollateralName, u.CollateralSymbol, int16(u.CollateralDecimals),
		num(u.Size), num(u.Price), num(u.Minted),
		num(u.SizeDelta), num(u.PriceDelta), num(u.MintedDelta),
		u.RatePPM, u.ReserveContribution,
		u.FeeWindowSeconds, u.FeePPM, num(u.FeePaid),
	)
	s.observe("insert", "minting_updates", start, err)
	return wrapErr("insert minting_updates", err)
}

func scanMintingUpdate(row interface{ Scan(...any) error }) (*position.MintingUpdate, error) {
	var u position.MintingUpdate
	var collDec int16
	var size, price, minted, sizeD, priceD, mintedD, feePaid string

	err := row.Scan(
		&u.ChainID, &u.Position, &u.Sequence, &u.TxHash, &u.Created, &u.Owner, &u.IsClone, &u.Collateral,
		&u.CollateralName, &u.CollateralSymbol, &collDec,
		&size, &price, &minted, &sizeD, &priceD, &mintedD,
		&u.RatePPM, &u.ReserveContribution,
		&u.FeeWindowSeconds, &u.FeePPM, &feePaid,
	)
	if err != nil {
		return nil, err
	}
	u.CollateralDecimals = uint8(collDec)
	if u.Size, err = parseNum(size); err != nil {
		return nil, err
	}
	if u.Price, err = parseNum(price); err != nil {
		return nil, err
	}
	if u.Minted, err = parseNum(minted); err != nil {
		return nil, err
	}
	if u.SizeDelta, err = parseNum(sizeD); err != nil {
		return nil, err
	}
	if u.PriceDelta, err = parseNum(priceD); err != nil {
		return nil, err
	}
	if u.MintedDelta, err = parseNum(mintedD); err != nil {
		return nil, err
	}
	if u.FeePaid, err = parseNum(feePaid); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) FindMintingUpdate(ctx context.Context, chainID int64, addr string, sequence uint64) (*position.MintingUpdate, error) {
	start := time.Now()
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+mintingUpdateCols+` FROM stable.minting_updates
		WHERE chain_id = $1 AND position = $2 AND sequence = $3`,
		chainID, addr, sequence,
	)
	u, err := scanMintingUpdate(row)
	if err == sql.ErrNoRows {
		s.observe("find", "minting_updates", start, nil)
		return nil, nil
	}
	s.observe("find", "minting_updates", start, err)
	if err != nil {
		return nil, wrapErr("find minting_updates", err)
	}
	return u, nil
}

func (s *Postgres) MintingUpdates(ctx context.Context, chainID int64, addr string) ([]*position.MintingUpdate, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+mintingUpdateCols+` FROM stable.minting_updates
		WHERE chain_id = $1 AND position = $2
		ORDER BY sequence`,
		chainID, addr,
	)
	if err != nil {
		s.observe("range", "minting_updates", start, err)
		return nil, wrapErr("range minting_updates", err)
	}
	defer rows.Close()

	var out []*position.MintingUpdate
	for rows.Next() {
		u, err := scanMintingUpdate(rows)
		if err != nil {
			s.observe("range", "minting_updates", start, err)
			return nil, wrapErr("range minting_updates", err)
		}
		out = append(out, u)
	}
	s.observe("range", "minting_updates", start, rows.Err())
	return out, wrapErr("range minting_updates", rows.Err())
}

func (s *Postgres) UpsertStatusCounters(ctx context.Context, chainID int64, addr string, merge func(*position.StatusCounters)) error {
	sc, err := s.FindStatusCounters(ctx, chainID, addr)
	if err != nil {
		return err
	}
	if sc == nil {
		sc = &position.StatusCounters{ChainID: chainID, Position: addr}
	}
	merge(sc)

	start := time.Now()
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.position_status
			(chain_id, position, owner_transfers, minting_updates, challenges_started, averted_bids, succeeded_bids)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (chain_id, position) DO UPDATE SET
			owner_transfers = EXCLUDED.owner_transfers,
			minting_updates = EXCLUDED.minting_updates,
			challenges_started = EXCLUDED.challenges_started,
			averted_bids = EXCLUDED.averted_bids,
			succeeded_bids = EXCLUDED.succeeded_bids`,
		sc.ChainID, sc.Position, sc.OwnerTransfers, sc.MintingUpdates,
		sc.ChallengesStarted, sc.AvertedBids, sc.SucceededBids,
	)
	s.observe("upsert", "position_status", start, err)
	return wrapErr("upsert position_status", err)
}

func (s *Postgres) FindStatusCounters(ctx context.Context, chainID int64, addr string) (*position.StatusCounters, error) {
	start := time.Now()
	var sc position.StatusCounters
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT chain_id, position, owner_transfers, minting_updates, challenges_started, averted_bids, succeeded_bids
		FROM stable.position_status
		WHERE chain_id = $1 AND position = $2`,
		chainID, addr,
	).Scan(&sc.ChainID, &sc.Position, &sc.OwnerTransfers, &sc.MintingUpdates,
		&sc.ChallengesStarted, &sc.AvertedBids, &sc.SucceededBids)
	if err == sql.ErrNoRows {
		s.observe("find", "position_status", start, nil)
		return nil, nil
	}
	s.observe("find", "position_status", start, err)
	if err != nil {
		return nil, wrapErr("find position_status", err)
	}
	return &sc, nil
}

func (s *Postgres) OpenPositions(ctx context.Context, chainID int64, gen event.Generation) ([]*position.Position, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+positionCols+` FROM stable.positions
		WHERE chain_id = $1 AND generation = $2
			AND NOT closed AND NOT denied AND minted > 0
		ORDER BY position`,
		chainID, int16(gen),
	)
	if err != nil {
		s.observe("range", "positions", start, err)
		return nil, wrapErr("range positions", err)
	}
	defer rows.Close()

	var out []*position.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			s.observe("range", "positions", start, err)
			return nil, wrapErr("range positions", err)
		}
		out = append(out, p)
	}
	s.observe("range", "positions", start, rows.Err())
	return out, wrapErr("range positions", rows.Err())
}

func (s *Postgres) PositionsByOwner(ctx context.Context, chainID int64, owner string) ([]*position.Position, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+positionCols+` FROM stable.positions
		WHERE chain_id = $1 AND owner = $2
		ORDER BY created`,
		chainID, owner,
	)
	if err != nil {
		s.observe("range", "positions", start, err)
		return nil, wrapErr("range positions", err)
	}
	defer rows.Close()

	var out []*position.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			s.observe("range", "positions", start, err)
			return nil, wrapErr("range positions", err)
		}
		out = append(out, p)
	}
	s.observe("range", "positions", start, rows.Err())
	return out, wrapErr("range positions", rows.Err())
}
