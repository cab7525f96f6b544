package position

import (
	"math/big"

	"StableLedger/internal/event"
)

// Position is the mutable "current state" row for a collateralized debt
// position. Keyed by (chain, position address); never deleted, closed
// positions remain for history.
type Position struct {
	ChainID    int64
	Position   string // lower-cased hex address
	Generation event.Generation

	Owner      string
	DebtToken  string
	Collateral string
	Price      *big.Int

	Created    uint64
	IsOriginal bool
	IsClone    bool
	Denied     bool
	Closed     bool
	Original   string

	MinimumCollateral   *big.Int
	RatePPM             int64 // annualInterestPPM (V1) or riskPremiumPPM (V2)
	ReserveContribution int64
	Start               uint64
	Cooldown            uint64
	Expiration          uint64
	ChallengePeriod     uint64

	DebtTokenName     string
	DebtTokenSymbol   string
	DebtTokenDecimals uint8

	CollateralName     string
	CollateralSymbol   string
	CollateralDecimals uint8
	CollateralBalance  *big.Int

	LimitForPosition     *big.Int
	LimitForClones       *big.Int
	AvailableForPosition *big.Int
	AvailableForClones   *big.Int
	Minted               *big.Int
}

// MintingUpdate is one append-only entry in a position's minting history,
// keyed by (chain, position, sequence). Deltas are against the
// immediately preceding sequence; for sequence one they equal the
// absolute values.
type MintingUpdate struct {
	ChainID  int64
	Position string
	Sequence uint64

	TxHash  string
	Created uint64

	Owner      string
	IsClone    bool
	Collateral string

	CollateralName     string
	CollateralSymbol   string
	CollateralDecimals uint8

	Size   *big.Int // collateral balance snapshot
	Price  *big.Int
	Minted *big.Int

	SizeDelta   *big.Int
	PriceDelta  *big.Int
	MintedDelta *big.Int

	RatePPM             int64
	ReserveContribution int64

	FeeWindowSeconds int64
	FeePPM           int64
	FeePaid          *big.Int
}

// StatusCounters is the per-position rollup row used purely for external
// status queries; each ledger operation bumps its own counter.
type StatusCounters struct {
	ChainID  int64
	Position string

	OwnerTransfers    uint64
	MintingUpdates    uint64
	ChallengesStarted uint64
	AvertedBids       uint64
	SucceededBids     uint64
}
