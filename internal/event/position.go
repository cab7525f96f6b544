package event

import (
	"math/big"
)

// Generation distinguishes the two protocol generations of the minting
// hub. They are structurally identical; a handful of parameter reads and
// field names differ (see chainread).
type Generation int32

const (
	GenerationV1 Generation = 1
	GenerationV2 Generation = 2
)

func (g Generation) String() string {
	if g == GenerationV2 {
		return "V2"
	}
	return "V1"
}

// PositionOpened is emitted by the minting hub when a new collateralized
// debt position is deployed.
type PositionOpened struct {
	Envelope   Envelope
	Generation Generation

	Position   string // position contract address
	Owner      string
	DebtToken  string // protocol stablecoin leg
	Collateral string
	Price      *big.Int // collateral-per-debt-unit, 36-decimals-adjusted fixed point

	// TxInput is the raw calldata of the opening transaction. Clone
	// deployments go through the hub's clone entrypoint, which is the only
	// way to tell an original apart from a clone at open time.
	TxInput string
}

func (e *PositionOpened) Kind() Kind             { return KindPositionOpened }
func (e *PositionOpened) Meta() Envelope         { return e.Envelope }
func (e *PositionOpened) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// MintingUpdated is emitted by a position whenever its collateral, price
// or minted amount changes.
type MintingUpdated struct {
	Envelope   Envelope
	Generation Generation

	Position   string
	Collateral *big.Int // collateral balance after the update
	Price      *big.Int
	Minted     *big.Int

	// Limit is the aggregate clone limit the event carries on generation
	// one; nil on generation two, where the value is re-read instead.
	Limit *big.Int
}

func (e *MintingUpdated) Kind() Kind             { return KindMintingUpdated }
func (e *MintingUpdated) Meta() Envelope         { return e.Envelope }
func (e *MintingUpdated) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// PositionDenied is emitted when governance vetoes a freshly opened
// position. On some deployments it can be indexed before the matching
// PositionOpened; the ledger tolerates that as a no-op.
type PositionDenied struct {
	Envelope   Envelope
	Generation Generation

	Position string
	Message  string
}

func (e *PositionDenied) Kind() Kind             { return KindPositionDenied }
func (e *PositionDenied) Meta() Envelope         { return e.Envelope }
func (e *PositionDenied) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }

// OwnershipTransferred is emitted when a position changes owner.
type OwnershipTransferred struct {
	Envelope   Envelope
	Generation Generation

	Position string
	NewOwner string
}

func (e *OwnershipTransferred) Kind() Kind             { return KindOwnershipTransferred }
func (e *OwnershipTransferred) Meta() Envelope         { return e.Envelope }
func (e *OwnershipTransferred) IdempotencyKey() string { return e.Envelope.IdempotencyKey(e.Kind()) }
