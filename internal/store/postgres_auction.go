package store

import (
	"context"
	"database/sql"
	"time"

	"StableLedger/internal/auction"
	"StableLedger/internal/event"
)

const challengeCols = `chain_id, position, number, generation, tx_hash, challenger,
	start_ts, created, duration, size, liq_price,
	bids, filled_size, acquired_collateral, status`

func challengeArgs(c *auction.Challenge) []any {
	return []any{
		c.ChainID, c.Position, c.Number, int16(c.Generation), c.TxHash, c.Challenger,
		c.Start, c.Created, c.Duration, num(c.Size), num(c.LiqPrice),
		c.Bids, num(c.FilledSize), num(c.AcquiredCollateral), string(c.Status),
	}
}

func scanChallenge(row interface{ Scan(...any) error }) (*auction.Challenge, error) {
	var c auction.Challenge
	var gen int16
	var size, liqPrice, filled, acquired, status string

	err := row.Scan(
		&c.ChainID, &c.Position, &c.Number, &gen, &c.TxHash, &c.Challenger,
		&c.Start, &c.Created, &c.Duration, &size, &liqPrice,
		&c.Bids, &filled, &acquired, &status,
	)
	if err != nil {
		return nil, err
	}
	c.Generation = event.Generation(gen)
	c.Status = auction.Status(status)
	if c.Size, err = parseNum(size); err != nil {
		return nil, err
	}
	if c.LiqPrice, err = parseNum(liqPrice); err != nil {
		return nil, err
	}
	if c.FilledSize, err = parseNum(filled); err != nil {
		return nil, err
	}
	if c.AcquiredCollateral, err = parseNum(acquired); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Postgres) InsertChallenge(ctx context.Context, c *auction.Challenge) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.challenges (`+challengeCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (chain_id, position, number) DO NOTHING`,
		challengeArgs(c)...,
	)
	s.observe("insert", "challenges", start, err)
	return wrapErr("insert challenges", err)
}

func (s *Postgres) FindChallenge(ctx context.Context, chainID int64, addr string, number uint64) (*auction.Challenge, error) {
	start := time.Now()
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+challengeCols+` FROM stable.challenges
		WHERE chain_id = $1 AND position = $2 AND number = $3`,
		chainID, addr, number,
	)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		s.observe("find", "challenges", start, nil)
		return nil, nil
	}
	s.observe("find", "challenges", start, err)
	if err != nil {
		return nil, wrapErr("find challenges", err)
	}
	return c, nil
}

func (s *Postgres) UpdateChallenge(ctx context.Context, chainID int64, addr string, number uint64, merge func(*auction.Challenge)) (bool, error) {
	c, err := s.FindChallenge(ctx, chainID, addr, number)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}
	merge(c)

	start := time.Now()
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.challenges (`+challengeCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (chain_id, position, number) DO UPDATE SET
			bids = EXCLUDED.bids,
			filled_size = EXCLUDED.filled_size,
			acquired_collateral = EXCLUDED.acquired_collateral,
			status = EXCLUDED.status`,
		challengeArgs(c)...,
	)
	s.observe("upsert", "challenges", start, err)
	if err != nil {
		return false, wrapErr("upsert challenges", err)
	}
	return true, nil
}

const bidCols = `chain_id, position, number, bid_seq, tx_hash, bidder, created, kind,
	amount, price, filled_size, acquired_collateral, challenge_size`

func (s *Postgres) InsertBid(ctx context.Context, b *auction.Bid) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.challenge_bids (`+bidCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (chain_id, position, number, bid_seq) DO NOTHING`,
		b.ChainID, b.Position, b.Number, b.BidSeq, b.TxHash, b.Bidder, b.Created, string(b.Kind),
		num(b.Amount), num(b.Price), num(b.FilledSize), num(b.AcquiredCollateral), num(b.ChallengeSize),
	)
	s.observe("insert", "challenge_bids", start, err)
	return wrapErr("insert challenge_bids", err)
}

func (s *Postgres) Bids(ctx context.Context, chainID int64, addr string, number uint64) ([]*auction.Bid, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+bidCols+` FROM stable.challenge_bids
		WHERE chain_id = $1 AND position = $2 AND number = $3
		ORDER BY bid_seq`,
		chainID, addr, number,
	)
	if err != nil {
		s.observe("range", "challenge_bids", start, err)
		return nil, wrapErr("range challenge_bids", err)
	}
	defer rows.Close()

	var out []*auction.Bid
	for rows.Next() {
		var b auction.Bid
		var kind, amount, price, filled, acquired, chSize string
		if err := rows.Scan(
			&b.ChainID, &b.Position, &b.Number, &b.BidSeq, &b.TxHash, &b.Bidder, &b.Created, &kind,
			&amount, &price, &filled, &acquired, &chSize,
		); err != nil {
			s.observe("range", "challenge_bids", start, err)
			return nil, wrapErr("range challenge_bids", err)
		}
		b.Kind = auction.BidKind(kind)
		if b.Amount, err = parseNum(amount); err != nil {
			return nil, wrapErr("range challenge_bids", err)
		}
		if b.Price, err = parseNum(price); err != nil {
			return nil, wrapErr("range challenge_bids", err)
		}
		if b.FilledSize, err = parseNum(filled); err != nil {
			return nil, wrapErr("range challenge_bids", err)
		}
		if b.AcquiredCollateral, err = parseNum(acquired); err != nil {
			return nil, wrapErr("range challenge_bids", err)
		}
		if b.ChallengeSize, err = parseNum(chSize); err != nil {
			return nil, wrapErr("range challenge_bids", err)
		}
		out = append(out, &b)
	}
	s.observe("range", "challenge_bids", start, rows.Err())
	return out, wrapErr("range challenge_bids", rows.Err())
}

func (s *Postgres) ChallengesByPosition(ctx context.Context, chainID int64, addr string) ([]*auction.Challenge, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+challengeCols+` FROM stable.challenges
		WHERE chain_id = $1 AND position = $2
		ORDER BY number`,
		chainID, addr,
	)
	if err != nil {
		s.observe("range", "challenges", start, err)
		return nil, wrapErr("range challenges", err)
	}
	defer rows.Close()

	var out []*auction.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			s.observe("range", "challenges", start, err)
			return nil, wrapErr("range challenges", err)
		}
		out = append(out, c)
	}
	s.observe("range", "challenges", start, rows.Err())
	return out, wrapErr("range challenges", rows.Err())
}
