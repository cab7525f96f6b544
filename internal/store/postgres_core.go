package store

import (
	"context"
	"database/sql"
	"time"

	"StableLedger/internal/core"
)

// Applied-key set, the durable idempotency tier.

func (s *Postgres) Contains(ctx context.Context, chainID int64, key string) (bool, error) {
	start := time.Now()
	var one int
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT 1 FROM stable.applied_events
		WHERE chain_id = $1 AND idempotency_key = $2`,
		chainID, key,
	).Scan(&one)
	if err == sql.ErrNoRows {
		s.observe("find", "applied_events", start, nil)
		return false, nil
	}
	s.observe("find", "applied_events", start, err)
	if err != nil {
		return false, wrapErr("find applied_events", err)
	}
	return true, nil
}

func (s *Postgres) Record(ctx context.Context, chainID int64, key string) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.applied_events (chain_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (chain_id, idempotency_key) DO NOTHING`,
		chainID, key,
	)
	s.observe("insert", "applied_events", start, err)
	return wrapErr("insert applied_events", err)
}

func (s *Postgres) Recent(ctx context.Context, chainID int64, limit int) ([]string, error) {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT idempotency_key FROM stable.applied_events
		WHERE chain_id = $1
		ORDER BY seq DESC
		LIMIT $2`,
		chainID, limit,
	)
	if err != nil {
		s.observe("range", "applied_events", start, err)
		return nil, wrapErr("range applied_events", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			s.observe("range", "applied_events", start, err)
			return nil, wrapErr("range applied_events", err)
		}
		keys = append(keys, k)
	}
	s.observe("range", "applied_events", start, rows.Err())
	return keys, wrapErr("range applied_events", rows.Err())
}

// Checkpoints.

func (s *Postgres) SaveCheckpoint(ctx context.Context, cp *core.Checkpoint) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.checkpoints
			(chain_id, block_number, log_index, digest, block_timestamp)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (chain_id) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			log_index = EXCLUDED.log_index,
			digest = EXCLUDED.digest,
			block_timestamp = EXCLUDED.block_timestamp`,
		cp.ChainID, cp.BlockNumber, cp.LogIndex, cp.Digest[:], cp.BlockTimestamp,
	)
	s.observe("upsert", "checkpoints", start, err)
	return wrapErr("upsert checkpoints", err)
}

func (s *Postgres) LoadCheckpoint(ctx context.Context, chainID int64) (*core.Checkpoint, error) {
	start := time.Now()
	var cp core.Checkpoint
	var digest []byte
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT chain_id, block_number, log_index, digest, block_timestamp
		FROM stable.checkpoints
		WHERE chain_id = $1`,
		chainID,
	).Scan(&cp.ChainID, &cp.BlockNumber, &cp.LogIndex, &digest, &cp.BlockTimestamp)
	if err == sql.ErrNoRows {
		s.observe("find", "checkpoints", start, nil)
		return nil, nil
	}
	s.observe("find", "checkpoints", start, err)
	if err != nil {
		return nil, wrapErr("find checkpoints", err)
	}
	copy(cp.Digest[:], digest)
	return &cp, nil
}

// Event log.

func (s *Postgres) AppendRecord(ctx context.Context, rec *core.LogRecord) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO stable.event_log
			(chain_id, block_number, block_timestamp, log_index, kind, idempotency_key, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (chain_id, idempotency_key) DO NOTHING`,
		rec.ChainID, rec.BlockNumber, rec.BlockTimestamp, rec.LogIndex,
		rec.Kind, rec.IdempotencyKey, rec.Payload,
	)
	s.observe("insert", "event_log", start, err)
	return wrapErr("insert event_log", err)
}

func (s *Postgres) PruneFrom(ctx context.Context, chainID int64, fromBlock uint64) error {
	start := time.Now()
	_, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM stable.event_log
		WHERE chain_id = $1 AND block_number >= $2`,
		chainID, fromBlock,
	)
	s.observe("delete", "event_log", start, err)
	return wrapErr("delete event_log", err)
}

func (s *Postgres) ScanRecords(ctx context.Context, chainID int64, fn func(*core.LogRecord) error) error {
	start := time.Now()
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT chain_id, block_number, block_timestamp, log_index, kind, idempotency_key, payload
		FROM stable.event_log
		WHERE chain_id = $1
		ORDER BY block_number, log_index, kind`,
		chainID,
	)
	if err != nil {
		s.observe("range", "event_log", start, err)
		return wrapErr("range event_log", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec core.LogRecord
		if err := rows.Scan(
			&rec.ChainID, &rec.BlockNumber, &rec.BlockTimestamp, &rec.LogIndex,
			&rec.Kind, &rec.IdempotencyKey, &rec.Payload,
		); err != nil {
			s.observe("range", "event_log", start, err)
			return wrapErr("range event_log", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	s.observe("range", "event_log", start, rows.Err())
	return wrapErr("range event_log", rows.Err())
}

// ResetChain wipes every derived row for a chain ahead of a replay from
// genesis. The event log survives: it is the replay source.
func (s *Postgres) ResetChain(ctx context.Context, chainID int64) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.observe("delete", "reset_chain", start, err)
		return wrapErr("reset chain", err)
	}

	tables := []string{
		"stable.positions",
		"stable.minting_updates",
		"stable.position_status",
		"stable.challenges",
		"stable.challenge_bids",
		"stable.savings_status",
		"stable.savings_accounts",
		"stable.savings_activity",
		"stable.rate_changes",
		"stable.rate_proposals",
		"stable.profit_losses",
		"stable.equity_trades",
		"stable.mint_burn",
		"stable.accumulators",
		"stable.sequences",
		"stable.active_users",
		"stable.analytics_snapshots",
		"stable.daily_rollups",
		"stable.applied_events",
		"stable.checkpoints",
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t+` WHERE chain_id = $1`, chainID); err != nil {
			tx.Rollback()
			s.observe("delete", "reset_chain", start, err)
			return wrapErr("reset chain", err)
		}
	}

	err = tx.Commit()
	s.observe("delete", "reset_chain", start, err)
	return wrapErr("reset chain", err)
}
