package chainread

import (
	"context"
	"fmt"
	"math/big"

	"StableLedger/internal/event"
)

// ERC20Metadata is the name/symbol/decimals triple read off a token leg.
type ERC20Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// PositionParams are the immutable parameters read off a freshly opened
// position. RatePPM carries annualInterestPPM on generation one and
// riskPremiumPPM on generation two.
type PositionParams struct {
	MinimumCollateral   *big.Int
	RatePPM             int64
	ReserveContribution int64
	Start               uint64
	Expiration          uint64
	ChallengePeriod     uint64
}

// PositionState are the mutable position fields the ledger re-reads on
// events rather than tracking locally.
type PositionState struct {
	Minted            *big.Int
	Cooldown          uint64
	LimitForClones    *big.Int
	AvailableForClone *big.Int
}

// Views bundles the typed contract reads the ledgers issue. All methods
// go through one Reader so that tests can fake the whole surface at once.
type Views struct {
	r Reader
}

func NewViews(r Reader) *Views {
	return &Views{r: r}
}

// Reader exposes the underlying collaborator for raw reads.
func (v *Views) Reader() Reader { return v.r }

func (v *Views) ERC20Metadata(ctx context.Context, chainID int64, token string) (ERC20Metadata, error) {
	name, err := readText(ctx, v.r, chainID, token, "name")
	if err != nil {
		return ERC20Metadata{}, err
	}
	symbol, err := readText(ctx, v.r, chainID, token, "symbol")
	if err != nil {
		return ERC20Metadata{}, err
	}
	decimals, err := readUint64(ctx, v.r, chainID, token, "decimals")
	if err != nil {
		return ERC20Metadata{}, err
	}
	return ERC20Metadata{Name: name, Symbol: symbol, Decimals: uint8(decimals)}, nil
}

func (v *Views) ERC20BalanceOf(ctx context.Context, chainID int64, token, holder string) (*big.Int, error) {
	return readBig(ctx, v.r, chainID, token, "balanceOf", holder)
}

func (v *Views) ERC20TotalSupply(ctx context.Context, chainID int64, token string) (*big.Int, error) {
	return readBig(ctx, v.r, chainID, token, "totalSupply")
}

func (v *Views) PositionParams(ctx context.Context, chainID int64, position string, gen event.Generation) (PositionParams, error) {
	var p PositionParams
	var err error

	if p.MinimumCollateral, err = readBig(ctx, v.r, chainID, position, "minimumCollateral"); err != nil {
		return p, err
	}

	rateFn := "annualInterestPPM"
	if gen == event.GenerationV2 {
		rateFn = "riskPremiumPPM"
	}
	if p.RatePPM, err = readInt64(ctx, v.r, chainID, position, rateFn); err != nil {
		return p, err
	}
	if p.ReserveContribution, err = readInt64(ctx, v.r, chainID, position, "reserveContribution"); err != nil {
		return p, err
	}
	if p.Start, err = readUint64(ctx, v.r, chainID, position, "start"); err != nil {
		return p, err
	}
	if p.Expiration, err = readUint64(ctx, v.r, chainID, position, "expiration"); err != nil {
		return p, err
	}
	if p.ChallengePeriod, err = readUint64(ctx, v.r, chainID, position, "challengePeriod"); err != nil {
		return p, err
	}
	return p, nil
}

// PositionLimits reads the clone-aggregate limit pair. The generations
// name these views differently: V1 exposes limit/limitForClones, V2
// exposes limit/availableForMinting.
func (v *Views) PositionLimits(ctx context.Context, chainID int64, position string, gen event.Generation) (limitForClones, available *big.Int, err error) {
	limitForClones, err = readBig(ctx, v.r, chainID, position, "limit")
	if err != nil {
		return nil, nil, err
	}

	availFn := "limitForClones"
	if gen == event.GenerationV2 {
		availFn = "availableForMinting"
	}
	available, err = readBig(ctx, v.r, chainID, position, availFn)
	if err != nil {
		return nil, nil, err
	}
	return limitForClones, available, nil
}

func (v *Views) PositionMinted(ctx context.Context, chainID int64, position string) (*big.Int, error) {
	return readBig(ctx, v.r, chainID, position, "minted")
}

func (v *Views) PositionPrice(ctx context.Context, chainID int64, position string) (*big.Int, error) {
	return readBig(ctx, v.r, chainID, position, "price")
}

func (v *Views) PositionCooldown(ctx context.Context, chainID int64, position string) (uint64, error) {
	return readUint64(ctx, v.r, chainID, position, "cooldown")
}

func (v *Views) PositionOwner(ctx context.Context, chainID int64, position string) (string, error) {
	return readText(ctx, v.r, chainID, position, "owner")
}

func (v *Views) PositionOriginal(ctx context.Context, chainID int64, position string) (string, error) {
	return readText(ctx, v.r, chainID, position, "original")
}

func (v *Views) PositionCollateralToken(ctx context.Context, chainID int64, position string) (string, error) {
	return readText(ctx, v.r, chainID, position, "collateral")
}

func (v *Views) PositionExpiration(ctx context.Context, chainID int64, position string) (uint64, error) {
	return readUint64(ctx, v.r, chainID, position, "expiration")
}

// ChallengeRemainingSize reads the live remaining size of an auction from
// the hub's challenges mapping. The Active -> Success transition fires
// the instant this read reports zero.
func (v *Views) ChallengeRemainingSize(ctx context.Context, chainID int64, hub string, number uint64) (*big.Int, error) {
	return readBig(ctx, v.r, chainID, hub, "challenges", number)
}

// ChallengeStart reads the auction's on-chain start timestamp.
func (v *Views) ChallengeStart(ctx context.Context, chainID int64, hub string, number uint64) (uint64, error) {
	val, err := v.r.Read(ctx, Query{ChainID: chainID, Contract: hub, Function: "challengeStart", Args: []any{number}})
	if err != nil {
		return 0, fmt.Errorf("read %s.challengeStart: %w", hub, err)
	}
	if val.Big != nil {
		return val.Big.Uint64(), nil
	}
	return val.Uint64, nil
}

// CurrentRatePPM reads a lead-rate module's active rate. This read is
// documented best-effort: a zero rate with a nil error is the fallback
// when the module cannot answer, so a flaky module never halts a chain.
func (v *Views) CurrentRatePPM(ctx context.Context, chainID int64, module string) (int64, error) {
	rate, err := readInt64(ctx, v.r, chainID, module, "currentRatePPM")
	if err != nil {
		if Retryable(err) {
			return 0, err
		}
		return 0, nil
	}
	return rate, nil
}

// AccruedInterest reads the interest a saver could claim right now from
// the savings module.
func (v *Views) AccruedInterest(ctx context.Context, chainID int64, module, account string) (*big.Int, error) {
	return readBig(ctx, v.r, chainID, module, "accruedInterest", account)
}

// Referrer reads the optional referrer attribution a savings module may
// report for an account. An empty address means no referrer.
func (v *Views) Referrer(ctx context.Context, chainID int64, module, account string) (referrer string, feePPM int64, err error) {
	referrer, err = readText(ctx, v.r, chainID, module, "referrerOf", account)
	if err != nil || referrer == "" {
		return "", 0, err
	}
	feePPM, err = readInt64(ctx, v.r, chainID, module, "referralFeePPM")
	if err != nil {
		return "", 0, err
	}
	return referrer, feePPM, nil
}

// Equity reads the protocol reserve the stablecoin contract reports.
func (v *Views) Equity(ctx context.Context, chainID int64, stablecoin string) (*big.Int, error) {
	return readBig(ctx, v.r, chainID, stablecoin, "equity")
}

// SharePrice reads the pool-share token's current price.
func (v *Views) SharePrice(ctx context.Context, chainID int64, shareToken string) (*big.Int, error) {
	return readBig(ctx, v.r, chainID, shareToken, "price")
}
