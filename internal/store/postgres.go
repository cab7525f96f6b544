// Package store binds the ledgers' storage interfaces to Postgres. The
// core only ever issues four operation shapes (insert-or-ignore,
// upsert-with-merge, find-by-key and range query) so every method here
// is one of those, written as plain parameterized SQL over database/sql
// with the lib/pq driver.
//
// Upsert-with-merge is implemented as read-modify-write: select the
// current row (or start from a zero value), apply the caller's merge
// function, write the whole row back with INSERT ... ON CONFLICT DO
// UPDATE. That is only correct because exactly one writer exists per
// chain partition.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"StableLedger/internal/observability"
)

// Postgres implements every Store interface the ledgers and the
// dispatcher declare.
type Postgres struct {
	db      *sql.DB
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewPostgres(db *sql.DB, metrics *observability.Metrics, log zerolog.Logger) *Postgres {
	return &Postgres{db: db, metrics: metrics, log: log}
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Every store method issues its statements through q(ctx) so the same
// code runs standalone or inside a Within transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

func (s *Postgres) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// Within runs fn inside one transaction. The transaction travels on the
// context, so the store methods fn calls join it transparently. Any
// error rolls the whole unit back.
func (s *Postgres) Within(ctx context.Context, fn func(context.Context) error) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.observe("tx", "tx", start, err)
		return wrapErr("tx begin", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		s.observe("tx", "tx", start, err)
		return wrapErr("tx commit", err)
	}
	s.observe("tx", "tx", start, nil)
	return nil
}

// Open dials Postgres and verifies the connection.
func Open(dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// observe records one storage round trip.
func (s *Postgres) observe(op, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.StoreQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.StoreErrors.WithLabelValues(table).Inc()
		return
	}
	if op != "find" && op != "range" {
		s.metrics.StoreWrites.WithLabelValues(table, op).Inc()
	}
}

// Amounts are stored as NUMERIC(78,0), wide enough for any uint256, and
// travel as decimal strings.

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

func num(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseNum(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric %q", s)
	}
	return v, nil
}
