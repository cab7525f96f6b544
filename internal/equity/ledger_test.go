package equity_test

import (
	"context"
	"math/big"
	"testing"

	"StableLedger/internal/chainread"
	"StableLedger/internal/ecosystem"
	"StableLedger/internal/equity"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
	"StableLedger/internal/store"
	"StableLedger/internal/testutil"
)

const (
	chainID = int64(1)

	shareToken = "0xCCCC0000000000000000000000000000000000cc"
	minter     = "0x1234000000000000000000000000000000000001"
)

func newLedger(shareSupply *big.Int) (*equity.Ledger, *store.Memory) {
	mem := store.NewMemory()
	reader := testutil.NewFakeReader()
	reader.SetBig("0xcccc0000000000000000000000000000000000cc", "totalSupply", shareSupply)
	views := chainread.NewViews(reader)
	return equity.NewLedger(mem, mem, views, shareToken, testutil.TestLogger()), mem
}

// ============================================================================
// Test: Profit / Loss
// ============================================================================

func TestProfit_AccumulatesRunningTotals(t *testing.T) {
	ledger, mem := newLedger(testutil.Wei(1_000))
	ctx := context.Background()

	evt := &event.EquityProfit{
		Envelope: testutil.Env(chainID, 100, 0),
		Minter:   minter,
		Amount:   testutil.Wei(50),
	}
	if err := ledger.Profit(ctx, evt); err != nil {
		t.Fatalf("Profit failed: %v", err)
	}

	rows, err := mem.ProfitLosses(ctx, chainID, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d (%v)", len(rows), err)
	}
	r := rows[0]
	if r.Kind != equity.KindProfit {
		t.Errorf("kind: got %q, want Profit", r.Kind)
	}
	if r.Count != 1 {
		t.Errorf("count: got %d, want 1", r.Count)
	}
	if r.Profits.Cmp(testutil.Wei(50)) != 0 {
		t.Errorf("running profits: got %s, want %s", r.Profits, testutil.Wei(50))
	}
	if r.Losses.Sign() != 0 {
		t.Errorf("running losses: got %s, want 0", r.Losses)
	}

	// 50 earned over 1000 shares = 0.05 per share.
	wantPerShare := fpmath.PerShare(testutil.Wei(50), testutil.Wei(1_000))
	if r.PerShare.Cmp(wantPerShare) != 0 {
		t.Errorf("perShare: got %s, want %s", r.PerShare, wantPerShare)
	}
}

func TestLoss_SubtractsPerShare(t *testing.T) {
	ledger, mem := newLedger(testutil.Wei(1_000))
	ctx := context.Background()

	profit := &event.EquityProfit{
		Envelope: testutil.Env(chainID, 100, 0),
		Minter:   minter,
		Amount:   testutil.Wei(50),
	}
	if err := ledger.Profit(ctx, profit); err != nil {
		t.Fatalf("Profit failed: %v", err)
	}

	loss := &event.EquityLoss{
		Envelope: testutil.Env(chainID, 101, 0),
		Minter:   minter,
		Amount:   testutil.Wei(20),
	}
	if err := ledger.Loss(ctx, loss); err != nil {
		t.Fatalf("Loss failed: %v", err)
	}

	rows, _ := mem.ProfitLosses(ctx, chainID, 10)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// Rows come back newest first.
	r := rows[0]
	if r.Kind != equity.KindLoss || r.Count != 2 {
		t.Fatalf("latest row: kind=%q count=%d", r.Kind, r.Count)
	}
	if r.Profits.Cmp(testutil.Wei(50)) != 0 || r.Losses.Cmp(testutil.Wei(20)) != 0 {
		t.Errorf("running totals: profits=%s losses=%s", r.Profits, r.Losses)
	}

	// Net 30 over 1000 shares.
	wantPerShare := fpmath.PerShare(testutil.Wei(30), testutil.Wei(1_000))
	eps, _ := mem.GetAccumulator(ctx, chainID, ecosystem.IDEarningsPerShare)
	if eps.Cmp(wantPerShare) != 0 {
		t.Errorf("earningsPerShare: got %s, want %s", eps, wantPerShare)
	}
}

func TestProfit_ZeroShareSupply(t *testing.T) {
	ledger, mem := newLedger(fpmath.Zero())
	ctx := context.Background()

	evt := &event.EquityProfit{
		Envelope: testutil.Env(chainID, 100, 0),
		Minter:   minter,
		Amount:   testutil.Wei(50),
	}
	if err := ledger.Profit(ctx, evt); err != nil {
		t.Fatalf("Profit failed: %v", err)
	}

	rows, _ := mem.ProfitLosses(ctx, chainID, 1)
	if rows[0].PerShare.Sign() != 0 {
		t.Errorf("perShare with no shares outstanding: got %s, want 0", rows[0].PerShare)
	}
}

// ============================================================================
// Test: Trade
// ============================================================================

func TestTrade_InvestedAndRedeemedFamilies(t *testing.T) {
	ledger, mem := newLedger(testutil.Wei(1_000))
	ctx := context.Background()

	invest := &event.EquityTrade{
		Envelope: testutil.Env(chainID, 100, 0),
		Trader:   minter,
		Amount:   testutil.Wei(200),
		Shares:   testutil.Wei(10),
		NewPrice: testutil.Wei(20),
	}
	if err := ledger.Trade(ctx, invest); err != nil {
		t.Fatalf("invest failed: %v", err)
	}

	redeem := &event.EquityTrade{
		Envelope: testutil.Env(chainID, 101, 0),
		Trader:   minter,
		Amount:   testutil.Wei(100),
		Shares:   new(big.Int).Neg(testutil.Wei(5)),
		NewPrice: testutil.Wei(20),
	}
	if err := ledger.Trade(ctx, redeem); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	trades := mem.Trades(chainID)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Kind != "Invested" || trades[1].Kind != "Redeemed" {
		t.Errorf("kinds: got %q, %q", trades[0].Kind, trades[1].Kind)
	}
	// Count sequences are per family.
	if trades[0].Count != 1 || trades[1].Count != 1 {
		t.Errorf("counts: got %d, %d", trades[0].Count, trades[1].Count)
	}

	invested, _ := mem.GetAccumulator(ctx, chainID, ecosystem.IDInvested)
	if invested.Cmp(testutil.Wei(200)) != 0 {
		t.Errorf("invested total: got %s, want %s", invested, testutil.Wei(200))
	}
	redeemed, _ := mem.GetAccumulator(ctx, chainID, ecosystem.IDRedeemed)
	if redeemed.Cmp(testutil.Wei(100)) != 0 {
		t.Errorf("redeemed total: got %s, want %s", redeemed, testutil.Wei(100))
	}

	// Fees accumulate PPM-scaled: amount * 3000.
	feePPM, _ := mem.GetAccumulator(ctx, chainID, ecosystem.IDInvestedFeePPM)
	wantFee := new(big.Int).Mul(testutil.Wei(200), big.NewInt(3_000))
	if feePPM.Cmp(wantFee) != 0 {
		t.Errorf("invested fee PPM: got %s, want %s", feePPM, wantFee)
	}
}

// ============================================================================
// Test: Mint / Burn
// ============================================================================

func TestMintBurn_PerAddressCumulative(t *testing.T) {
	ledger, mem := newLedger(testutil.Wei(1_000))
	ctx := context.Background()
	holder := "0xDDDD0000000000000000000000000000000000dd"
	lower := "0xdddd0000000000000000000000000000000000dd"

	mint := &event.TokenMint{
		Envelope: testutil.Env(chainID, 100, 0),
		To:       holder,
		Value:    testutil.Wei(500),
	}
	if err := ledger.Mint(ctx, mint); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	burn := &event.TokenBurn{
		Envelope: testutil.Env(chainID, 101, 0),
		From:     holder,
		Value:    testutil.Wei(200),
	}
	if err := ledger.Burn(ctx, burn); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}

	mb := mem.FindMintBurn(chainID, lower)
	if mb == nil {
		t.Fatal("mint/burn row not stored")
	}
	if mb.Mint.Cmp(testutil.Wei(500)) != 0 {
		t.Errorf("mint: got %s, want %s", mb.Mint, testutil.Wei(500))
	}
	if mb.Burn.Cmp(testutil.Wei(200)) != 0 {
		t.Errorf("burn: got %s, want %s", mb.Burn, testutil.Wei(200))
	}

	minted, _ := mem.GetAccumulator(ctx, chainID, ecosystem.IDTokenMinted)
	if minted.Cmp(testutil.Wei(500)) != 0 {
		t.Errorf("total minted: got %s, want %s", minted, testutil.Wei(500))
	}
	burned, _ := mem.GetAccumulator(ctx, chainID, ecosystem.IDTokenBurned)
	if burned.Cmp(testutil.Wei(200)) != 0 {
		t.Errorf("total burned: got %s, want %s", burned, testutil.Wei(200))
	}
}
