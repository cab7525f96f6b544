package event

import (
	"math/big"
)

// EquityProfit is emitted by the stablecoin contract when a minter
// reports realized earnings into the equity reserve.
type EquityProfit struct {
	Envelope Envelope

	Minter string // reporting minter, lower-cased hex
	Amount *big.Int
}

func (e *EquityProfit) Kind() Kind             { return KindEquityProfit }
func (e *EquityProfit) Meta() Envelope         { return e.Envelope }
func (e *EquityProfit) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// EquityLoss is emitted when a realized loss is covered by the equity
// reserve.
type EquityLoss struct {
	Envelope Envelope

	Minter string
	Amount *big.Int
}

func (e *EquityLoss) Kind() Kind             { return KindEquityLoss }
func (e *EquityLoss) Meta() Envelope         { return e.Envelope }
func (e *EquityLoss) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// TradeKind distinguishes share purchases from redemptions.
type TradeKind int32

const (
	TradeInvested TradeKind = iota + 1
	TradeRedeemed
)

func (t TradeKind) String() string {
	if t == TradeRedeemed {
		return "Redeemed"
	}
	return "Invested"
}

// EquityTrade is emitted whenever pool shares are bought or redeemed.
// Shares is positive for investments and negative for redemptions.
type EquityTrade struct {
	Envelope Envelope

	Trader   string
	Amount   *big.Int // total price in debt tokens
	Shares   *big.Int
	NewPrice *big.Int
}

func (e *EquityTrade) Kind() Kind             { return KindEquityTrade }
func (e *EquityTrade) Meta() Envelope         { return e.Envelope }
func (e *EquityTrade) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// TradeKind classifies the trade by the sign of the share delta.
func (e *EquityTrade) TradeKind() TradeKind {
	if e.Shares != nil && e.Shares.Sign() < 0 {
		return TradeRedeemed
	}
	return TradeInvested
}

// TokenMint is a stablecoin transfer from the zero address.
type TokenMint struct {
	Envelope Envelope

	To    string
	Value *big.Int
}

func (e *TokenMint) Kind() Kind             { return KindTokenMint }
func (e *TokenMint) Meta() Envelope         { return e.Envelope }
func (e *TokenMint) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// TokenBurn is a stablecoin transfer to the zero address.
type TokenBurn struct {
	Envelope Envelope

	From  string
	Value *big.Int
}

func (e *TokenBurn) Kind() Kind             { return KindTokenBurn }
func (e *TokenBurn) Meta() Envelope         { return e.Envelope }
func (e *TokenBurn) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }
