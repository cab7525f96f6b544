package equity

import (
	"context"
	"math/big"
)

// ProfitLossKind labels one realized-earnings row.
type ProfitLossKind string

const (
	KindProfit ProfitLossKind = "Profit"
	KindLoss   ProfitLossKind = "Loss"
)

// ProfitLoss is one append-only realized profit or loss entry with the
// running totals at that point.
type ProfitLoss struct {
	ChainID int64
	Count   uint64 // global profit/loss ordinal

	Created uint64
	TxHash  string
	Kind    ProfitLossKind
	Minter  string
	Amount  *big.Int

	Profits  *big.Int // running
	Losses   *big.Int // running
	PerShare *big.Int // running normalized earnings per pool share
}

// Trade is one pool-share investment or redemption.
type Trade struct {
	ChainID int64
	Count   uint64

	Created uint64
	TxHash  string
	Kind    string // Invested | Redeemed
	Trader  string

	Amount *big.Int // total price in debt tokens
	Shares *big.Int
	Price  *big.Int // share price after the trade
}

// MintBurn is the per-address cumulative mint/burn mapper row.
type MintBurn struct {
	ChainID int64
	Account string
	Mint    *big.Int
	Burn    *big.Int
}

// Store is the equity slice of the storage layer.
type Store interface {
	InsertProfitLoss(ctx context.Context, pl *ProfitLoss) error
	ProfitLosses(ctx context.Context, chainID int64, limit int) ([]*ProfitLoss, error)

	InsertTrade(ctx context.Context, t *Trade) error

	UpsertMintBurn(ctx context.Context, chainID int64, account string, merge func(*MintBurn)) error
}
