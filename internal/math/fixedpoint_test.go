package math_test

import (
	"math/big"
	"testing"

	fpmath "StableLedger/internal/math"
)

func wei(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), fpmath.E18)
}

// ============================================================================
// Test: MulDiv / ApplyPPM
// ============================================================================

func TestMulDiv_FloorsResult(t *testing.T) {
	got := fpmath.MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if got.Int64() != 10 {
		t.Errorf("got %d, want 10", got.Int64())
	}
}

func TestMulDiv_DoesNotMutateOperands(t *testing.T) {
	a := big.NewInt(7)
	b := big.NewInt(3)
	fpmath.MulDiv(a, b, big.NewInt(2))
	if a.Int64() != 7 || b.Int64() != 3 {
		t.Errorf("operands mutated: a=%d b=%d", a.Int64(), b.Int64())
	}
}

func TestApplyPPM_FullRate(t *testing.T) {
	got := fpmath.ApplyPPM(wei(100), fpmath.PPMDivisor)
	if got.Cmp(wei(100)) != 0 {
		t.Errorf("got %s, want %s", got, wei(100))
	}
}

func TestApplyPPM_FivePercent(t *testing.T) {
	got := fpmath.ApplyPPM(wei(1000), 50_000)
	if got.Cmp(wei(50)) != 0 {
		t.Errorf("got %s, want %s", got, wei(50))
	}
}

func TestUnscalePPM_InvertsFullRate(t *testing.T) {
	scaled := fpmath.ApplyPPM(wei(3), fpmath.PPMDivisor)
	got := fpmath.UnscalePPM(new(big.Int).Mul(scaled, big.NewInt(fpmath.PPMDivisor)))
	if got.Cmp(wei(3)) != 0 {
		t.Errorf("got %s, want %s", got, wei(3))
	}
}

func TestUnscalePPM_FloorsAndHandlesNil(t *testing.T) {
	if got := fpmath.UnscalePPM(big.NewInt(1_999_999)); got.Int64() != 1 {
		t.Errorf("got %d, want 1", got.Int64())
	}
	if got := fpmath.UnscalePPM(nil); got.Sign() != 0 {
		t.Errorf("nil: got %s, want 0", got)
	}
}

// ============================================================================
// Test: PositionLimit
// ============================================================================

func TestPositionLimit_EighteenDecimals(t *testing.T) {
	// 2 units of collateral priced at 3 debt tokens each.
	got := fpmath.PositionLimit(wei(2), wei(3), 18)
	if got.Cmp(wei(6)) != 0 {
		t.Errorf("got %s, want %s", got, wei(6))
	}
}

func TestPositionLimit_ZeroCollateral(t *testing.T) {
	got := fpmath.PositionLimit(fpmath.Zero(), wei(3), 18)
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

// ============================================================================
// Test: fee window and prorated fee
// ============================================================================

func TestFeeWindowSeconds_FlooredAtOneMonth(t *testing.T) {
	var ts uint64 = 1_000_000
	got := fpmath.FeeWindowSeconds(ts+100, ts)
	if got != fpmath.OneMonthSeconds {
		t.Errorf("got %d, want %d", got, fpmath.OneMonthSeconds)
	}
}

func TestFeeWindowSeconds_ExpirationInPast(t *testing.T) {
	got := fpmath.FeeWindowSeconds(500, 1_000_000)
	if got != fpmath.OneMonthSeconds {
		t.Errorf("got %d, want %d", got, fpmath.OneMonthSeconds)
	}
}

func TestFeeWindowSeconds_LongWindow(t *testing.T) {
	var ts uint64 = 1_000_000
	window := int64(400 * 24 * 60 * 60)
	got := fpmath.FeeWindowSeconds(ts+uint64(window), ts)
	if got != window {
		t.Errorf("got %d, want %d", got, window)
	}
}

func TestFeePPM_ProratesAnnualRate(t *testing.T) {
	// 400 days at 5% annual: floor(400 * 50_000 / 365) = 54_794 PPM.
	window := int64(400 * 24 * 60 * 60)
	got := fpmath.FeePPM(window, 50_000)
	if got != 54_794 {
		t.Errorf("got %d, want 54794", got)
	}
}

func TestFeePPM_ExactYear(t *testing.T) {
	got := fpmath.FeePPM(fpmath.OneYearSeconds, 30_000)
	if got != 30_000 {
		t.Errorf("got %d, want 30000", got)
	}
}

func TestFeePaid_PositiveDelta(t *testing.T) {
	got := fpmath.FeePaid(wei(1000), 54_794)
	want := fpmath.ApplyPPM(wei(1000), 54_794)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFeePaid_RepaymentCarriesNoFee(t *testing.T) {
	got := fpmath.FeePaid(new(big.Int).Neg(wei(10)), 54_794)
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

func TestFeePaid_NilDelta(t *testing.T) {
	got := fpmath.FeePaid(nil, 54_794)
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

// ============================================================================
// Test: auction pricing
// ============================================================================

func TestAvertedBidAmount(t *testing.T) {
	// 100 units of collateral at a trigger price of 2 debt tokens.
	got := fpmath.AvertedBidAmount(wei(2), wei(100))
	if got.Cmp(wei(200)) != 0 {
		t.Errorf("got %s, want %s", got, wei(200))
	}
}

func TestClearingPrice(t *testing.T) {
	got := fpmath.ClearingPrice(wei(200), wei(100))
	if got.Cmp(wei(2)) != 0 {
		t.Errorf("got %s, want %s", got, wei(2))
	}
}

func TestClearingPrice_ZeroSize(t *testing.T) {
	got := fpmath.ClearingPrice(wei(200), fpmath.Zero())
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

// ============================================================================
// Test: PerShare / rate widening
// ============================================================================

func TestPerShare(t *testing.T) {
	got := fpmath.PerShare(wei(50), wei(100))
	want := new(big.Int).Div(fpmath.E18, big.NewInt(2))
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestPerShare_ZeroSupply(t *testing.T) {
	got := fpmath.PerShare(wei(50), fpmath.Zero())
	if got.Sign() != 0 {
		t.Errorf("got %s, want 0", got)
	}
}

func TestRatePPMToE18(t *testing.T) {
	got := fpmath.RatePPMToE18(20_000)
	want, _ := new(big.Int).SetString("20000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

// ============================================================================
// Test: Clone
// ============================================================================

func TestClone_NilMapsToZero(t *testing.T) {
	got := fpmath.Clone(nil)
	if got == nil || got.Sign() != 0 {
		t.Errorf("got %v, want fresh zero", got)
	}
}

func TestClone_Independent(t *testing.T) {
	orig := big.NewInt(42)
	c := fpmath.Clone(orig)
	c.SetInt64(7)
	if orig.Int64() != 42 {
		t.Errorf("clone aliased the original: %d", orig.Int64())
	}
}
