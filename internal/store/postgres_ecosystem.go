package store

import (
	"context"
	"database/sql"
	"math/big"
	"time"

	fpmath "StableLedger/internal/math"
)

// AddAccumulator merges delta into one named running total. The
// arithmetic runs server-side in one statement so the post-update value
// comes back without a second round trip.
func (s *Postgres) AddAccumulator(ctx context.Context, chainID int64, id string, delta *big.Int) (*big.Int, error) {
	start := time.Now()
	var amount string
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO stable.accumulators (chain_id, id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id, id) DO UPDATE SET
			amount = stable.accumulators.amount + EXCLUDED.amount
		RETURNING amount::text`,
		chainID, id, num(delta),
	).Scan(&amount)
	s.observe("upsert", "accumulators", start, err)
	if err != nil {
		return nil, wrapErr("upsert accumulators", err)
	}
	return parseNum(amount)
}

func (s *Postgres) GetAccumulator(ctx context.Context, chainID int64, id string) (*big.Int, error) {
	start := time.Now()
	var amount string
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT amount::text FROM stable.accumulators
		WHERE chain_id = $1 AND id = $2`,
		chainID, id,
	).Scan(&amount)
	if err == sql.ErrNoRows {
		s.observe("find", "accumulators", start, nil)
		return fpmath.Zero(), nil
	}
	s.observe("find", "accumulators", start, err)
	if err != nil {
		return nil, wrapErr("find accumulators", err)
	}
	return parseNum(amount)
}

// NextSequence allocates the next value of a per-key monotonic counter.
// First use returns 1.
func (s *Postgres) NextSequence(ctx context.Context, chainID int64, key string) (uint64, error) {
	start := time.Now()
	var value uint64
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO stable.sequences (chain_id, key, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (chain_id, key) DO UPDATE SET
			value = stable.sequences.value + 1
		RETURNING value`,
		chainID, key,
	).Scan(&value)
	s.observe("upsert", "sequences", start, err)
	if err != nil {
		return 0, wrapErr("upsert sequences", err)
	}
	return value, nil
}

func (s *Postgres) CurrentSequence(ctx context.Context, chainID int64, key string) (uint64, error) {
	start := time.Now()
	var value uint64
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT value FROM stable.sequences
		WHERE chain_id = $1 AND key = $2`,
		chainID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		s.observe("find", "sequences", start, nil)
		return 0, nil
	}
	s.observe("find", "sequences", start, err)
	if err != nil {
		return 0, wrapErr("find sequences", err)
	}
	return value, nil
}

func (s *Postgres) TouchActiveUser(ctx context.Context, chainID int64, account string, ts uint64) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.active_users (chain_id, account, last_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id, account) DO UPDATE SET
			last_active = EXCLUDED.last_active`,
		chainID, account, ts,
	)
	s.observe("upsert", "active_users", start, err)
	return wrapErr("upsert active_users", err)
}
