package math

import (
	"math/big"
)

// All monetary quantities are arbitrary-precision integers in the token's
// base unit (18-decimal "wei" fixed point unless the token says otherwise).
// Rates are integer parts-per-million: 1_000_000 PPM = 100%.

const (
	// PPMDivisor converts a PPM-scaled quantity back to base units.
	PPMDivisor = 1_000_000

	// OneMonthSeconds floors the fee accrual window.
	OneMonthSeconds = 60 * 60 * 24 * 30

	// OneYearSeconds normalizes annual rates to a fee window.
	OneYearSeconds = 60 * 60 * 24 * 365
)

var (
	bigPPM = big.NewInt(PPMDivisor)

	// E18 is the 18-decimal fixed-point unit (10^18).
	E18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// Zero returns a fresh zero-valued amount. Amounts are never shared
// mutable *big.Int values across rows.
func Zero() *big.Int {
	return new(big.Int)
}

// Clone copies an amount, mapping nil to zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Add returns a + b without mutating either operand.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Sub returns a - b without mutating either operand.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// MulDiv returns floor(a * b / den) using integer arithmetic throughout.
// Floor division is the protocol convention for every derived financial
// quantity; nothing here round-trips through floating point.
func MulDiv(a, b, den *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	return num.Quo(num, den)
}

// ApplyPPM returns floor(amount * ratePPM / 1_000_000).
func ApplyPPM(amount *big.Int, ratePPM int64) *big.Int {
	return MulDiv(amount, big.NewInt(ratePPM), bigPPM)
}

// UnscalePPM converts a PPM-scaled quantity back to base units:
// floor(amount / 1_000_000).
func UnscalePPM(amount *big.Int) *big.Int {
	if amount == nil {
		return Zero()
	}
	return new(big.Int).Quo(amount, bigPPM)
}

// PowerOfTen returns 10^decimals, used to scale ERC-20 amounts by their
// token decimals.
func PowerOfTen(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// PositionLimit computes collateralBalance * price / 10^debtDecimals,
// the maximum debt a position's current collateral supports.
func PositionLimit(collateralBalance, price *big.Int, debtDecimals uint8) *big.Int {
	return MulDiv(collateralBalance, price, PowerOfTen(debtDecimals))
}

// FeeWindowSeconds returns the interest accrual window for a minting
// update: time to expiration, floored at thirty days.
func FeeWindowSeconds(expiration, eventTimestamp uint64) int64 {
	window := int64(expiration) - int64(eventTimestamp)
	if window < OneMonthSeconds {
		return OneMonthSeconds
	}
	return window
}

// FeePPM prorates an annual interest rate over a fee window:
// floor(windowSeconds * annualRatePPM / 365 days).
func FeePPM(windowSeconds int64, annualRatePPM int64) int64 {
	num := new(big.Int).Mul(big.NewInt(windowSeconds), big.NewInt(annualRatePPM))
	return num.Quo(num, big.NewInt(OneYearSeconds)).Int64()
}

// FeePaid assesses the prorated fee on a positive minted delta. Negative
// or zero deltas (repayments) carry no fee.
func FeePaid(mintedDelta *big.Int, feePPM int64) *big.Int {
	if mintedDelta == nil || mintedDelta.Sign() <= 0 {
		return new(big.Int)
	}
	return ApplyPPM(mintedDelta, feePPM)
}

// AvertedBidAmount prices an averted bid: liquidationPrice * size / 10^18.
func AvertedBidAmount(liquidationPrice, size *big.Int) *big.Int {
	return MulDiv(liquidationPrice, size, E18)
}

// ClearingPrice derives the effective price of a succeeded bid:
// bid * 10^18 / challengeSize, floored per protocol convention.
func ClearingPrice(bid, challengeSize *big.Int) *big.Int {
	if challengeSize == nil || challengeSize.Sign() == 0 {
		return new(big.Int)
	}
	return MulDiv(bid, E18, challengeSize)
}

// PerShare normalizes an amount against a share supply: amount * 10^18 / supply.
func PerShare(amount, shareSupply *big.Int) *big.Int {
	if shareSupply == nil || shareSupply.Sign() == 0 {
		return new(big.Int)
	}
	return MulDiv(amount, E18, shareSupply)
}

// RatePPMToE18 widens a PPM rate to an 18-decimal fixed-point rate
// (PPM * 10^12), the representation analytics rows store.
func RatePPMToE18(ratePPM int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(ratePPM), new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil))
}
