package savings_test

import (
	"context"
	"errors"
	"testing"

	"StableLedger/internal/chainread"
	"StableLedger/internal/ecosystem"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
	"StableLedger/internal/savings"
	"StableLedger/internal/store"
	"StableLedger/internal/testutil"
)

const (
	chainID = int64(1)

	moduleAddr = "0x6666666666666666666666666666666666666666"
	account    = "0x9999999999999999999999999999999999999999"
)

func newLedger() (*savings.Ledger, *store.Memory, *testutil.FakeReader) {
	mem := store.NewMemory()
	reader := testutil.NewFakeReader()
	reader.SetInt64(moduleAddr, "currentRatePPM", 30_000)
	reader.SetText(moduleAddr, "referrerOf", "")
	views := chainread.NewViews(reader)
	return savings.NewLedger(mem, mem, views, testutil.TestLogger()), mem, reader
}

func saved(block uint64, amount int64) *event.SavingsSaved {
	return &event.SavingsSaved{
		Envelope: testutil.Env(chainID, block, 0),
		Module:   moduleAddr,
		Account:  account,
		Amount:   testutil.Wei(amount),
	}
}

func withdrawn(block uint64, amount int64) *event.SavingsWithdrawn {
	return &event.SavingsWithdrawn{
		Envelope: testutil.Env(chainID, block, 0),
		Module:   moduleAddr,
		Account:  account,
		Amount:   testutil.Wei(amount),
	}
}

func interest(block uint64, amount int64) *event.SavingsInterestCollected {
	return &event.SavingsInterestCollected{
		Envelope: testutil.Env(chainID, block, 0),
		Module:   moduleAddr,
		Account:  account,
		Interest: testutil.Wei(amount),
	}
}

// ============================================================================
// Test: Save / CollectInterest / Withdraw
// ============================================================================

func TestSave_SeedsAccountAndStatus(t *testing.T) {
	ledger, mem, _ := newLedger()

	if err := ledger.Save(context.Background(), saved(100, 100)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	a, err := mem.FindAccount(context.Background(), chainID, moduleAddr, account)
	if err != nil || a == nil {
		t.Fatalf("account not stored: %v", err)
	}
	if a.Balance.Cmp(testutil.Wei(100)) != 0 {
		t.Errorf("balance: got %s, want %s", a.Balance, testutil.Wei(100))
	}
	if a.Created == 0 {
		t.Error("created timestamp not set")
	}
	if a.CounterSave != 1 {
		t.Errorf("counterSave: got %d, want 1", a.CounterSave)
	}

	s, err := mem.FindStatus(context.Background(), chainID, moduleAddr)
	if err != nil || s == nil {
		t.Fatalf("module status not stored: %v", err)
	}
	if s.Balance.Cmp(testutil.Wei(100)) != 0 {
		t.Errorf("module balance: got %s, want %s", s.Balance, testutil.Wei(100))
	}
	if s.RatePPM != 30_000 {
		t.Errorf("ratePPM: got %d, want 30000", s.RatePPM)
	}

	total, _ := mem.GetAccumulator(context.Background(), chainID, ecosystem.IDTotalSaved)
	if total.Cmp(testutil.Wei(100)) != 0 {
		t.Errorf("TotalSaved: got %s, want %s", total, testutil.Wei(100))
	}
}

func TestFlow_BalanceIsSaveMinusWithdrawPlusInterest(t *testing.T) {
	ledger, mem, _ := newLedger()
	ctx := context.Background()

	if err := ledger.Save(ctx, saved(100, 100)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := ledger.Withdraw(ctx, withdrawn(101, 40)); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if err := ledger.CollectInterest(ctx, interest(102, 5)); err != nil {
		t.Fatalf("CollectInterest failed: %v", err)
	}

	a, _ := mem.FindAccount(ctx, chainID, moduleAddr, account)
	if a.Balance.Cmp(testutil.Wei(65)) != 0 {
		t.Errorf("balance: got %s, want %s", a.Balance, testutil.Wei(65))
	}

	// The stored aggregates must reconcile with the balance.
	if a.Save.Cmp(testutil.Wei(100)) != 0 {
		t.Errorf("save: got %s, want %s", a.Save, testutil.Wei(100))
	}
	got := fpmath.Add(fpmath.Sub(a.Save, a.Withdraw), a.Interest)
	if got.Cmp(a.Balance) != 0 {
		t.Errorf("save - withdraw + interest = %s, balance = %s", got, a.Balance)
	}
}

func TestFlow_ActivityCountInterleaves(t *testing.T) {
	ledger, mem, _ := newLedger()
	ctx := context.Background()

	if err := ledger.Save(ctx, saved(100, 100)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := ledger.CollectInterest(ctx, interest(101, 5)); err != nil {
		t.Fatalf("CollectInterest failed: %v", err)
	}
	if err := ledger.Withdraw(ctx, withdrawn(102, 40)); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}

	acts, err := mem.Activities(ctx, chainID, moduleAddr, account)
	if err != nil {
		t.Fatalf("Activities failed: %v", err)
	}
	if len(acts) != 3 {
		t.Fatalf("expected 3 activity rows, got %d", len(acts))
	}
	for i, a := range acts {
		if a.Count != uint64(i+1) {
			t.Errorf("row %d: count %d, want %d", i, a.Count, i+1)
		}
	}
	if acts[1].Kind != savings.ActivityInterestCollected {
		t.Errorf("row 1 kind: got %q, want InterestCollected", acts[1].Kind)
	}
	// Running totals snapshot the post-update state.
	if acts[2].Balance.Cmp(testutil.Wei(65)) != 0 {
		t.Errorf("row 2 balance: got %s, want %s", acts[2].Balance, testutil.Wei(65))
	}
}

func TestWithdraw_NegativeBalanceFatal(t *testing.T) {
	ledger, _, _ := newLedger()
	ctx := context.Background()

	if err := ledger.Save(ctx, saved(100, 10)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	err := ledger.Withdraw(ctx, withdrawn(101, 50))
	if !errors.Is(err, savings.ErrNegativeBalance) {
		t.Errorf("got %v, want ErrNegativeBalance", err)
	}
}

func TestSave_ReferrerAttribution(t *testing.T) {
	ledger, mem, reader := newLedger()
	reader.SetText(moduleAddr, "referrerOf", "0xAAAA00000000000000000000000000000000000a")
	reader.SetInt64(moduleAddr, "referralFeePPM", 10_000)

	if err := ledger.Save(context.Background(), saved(100, 100)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	a, _ := mem.FindAccount(context.Background(), chainID, moduleAddr, account)
	if a.Referrer != "0xaaaa00000000000000000000000000000000000a" {
		t.Errorf("referrer: got %q", a.Referrer)
	}
	if a.ReferrerFeePPM != 10_000 {
		t.Errorf("referrerFeePPM: got %d, want 10000", a.ReferrerFeePPM)
	}
}

func TestSave_RateReadFallsBackToZero(t *testing.T) {
	mem := store.NewMemory()
	reader := testutil.NewFakeReader()
	// currentRatePPM deliberately unprogrammed: the read is best-effort.
	reader.SetText(moduleAddr, "referrerOf", "")
	ledger := savings.NewLedger(mem, mem, chainread.NewViews(reader), testutil.TestLogger())

	if err := ledger.Save(context.Background(), saved(100, 100)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s, _ := mem.FindStatus(context.Background(), chainID, moduleAddr)
	if s.RatePPM != 0 {
		t.Errorf("ratePPM: got %d, want 0", s.RatePPM)
	}
}

// ============================================================================
// Test: RateChanged / RateProposed
// ============================================================================

func TestRateChanged_UpdatesStatus(t *testing.T) {
	ledger, mem, _ := newLedger()
	ctx := context.Background()

	evt := &event.RateChanged{
		Envelope:   testutil.Env(chainID, 100, 0),
		Module:     moduleAddr,
		NewRatePPM: 25_000,
	}
	if err := ledger.RateChanged(ctx, evt); err != nil {
		t.Fatalf("RateChanged failed: %v", err)
	}

	s, _ := mem.FindStatus(ctx, chainID, moduleAddr)
	if s == nil || s.RatePPM != 25_000 {
		t.Fatalf("status rate not updated: %+v", s)
	}
	if s.CounterRateChanged != 1 {
		t.Errorf("counterRateChanged: got %d, want 1", s.CounterRateChanged)
	}
}

func TestRateProposed_CountsProposals(t *testing.T) {
	ledger, mem, _ := newLedger()
	ctx := context.Background()

	for i := uint64(0); i < 2; i++ {
		evt := &event.RateProposed{
			Envelope:    testutil.Env(chainID, 100+i, 0),
			Module:      moduleAddr,
			Proposer:    "0xBBBB00000000000000000000000000000000000b",
			NextRatePPM: 20_000,
			NextChange:  2_000_000,
		}
		if err := ledger.RateProposed(ctx, evt); err != nil {
			t.Fatalf("RateProposed failed: %v", err)
		}
	}

	s, _ := mem.FindStatus(ctx, chainID, moduleAddr)
	if s.CounterRateProposed != 2 {
		t.Errorf("counterRateProposed: got %d, want 2", s.CounterRateProposed)
	}
	// A proposal does not change the active rate.
	if s.RatePPM != 0 {
		t.Errorf("ratePPM: got %d, want 0", s.RatePPM)
	}
}
