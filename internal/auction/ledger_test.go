package auction_test

import (
	"context"
	"errors"
	"testing"

	"StableLedger/internal/auction"
	"StableLedger/internal/chainread"
	"StableLedger/internal/ecosystem"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
	"StableLedger/internal/store"
	"StableLedger/internal/testutil"
)

const (
	chainID = int64(1)

	posAddr = "0x1111111111111111111111111111111111111111"
	hubAddr = "0x7777777777777777777777777777777777777777"
)

func newLedger() (*auction.Ledger, *store.Memory, *testutil.FakeReader) {
	mem := store.NewMemory()
	reader := testutil.NewFakeReader()
	views := chainread.NewViews(reader)
	return auction.NewLedger(mem, mem, mem, views, testutil.TestLogger()), mem, reader
}

func programChallenge(r *testutil.FakeReader) {
	r.SetBig(posAddr, "minimumCollateral", testutil.Wei(1))
	r.SetInt64(posAddr, "annualInterestPPM", 50_000)
	r.SetInt64(posAddr, "riskPremiumPPM", 50_000)
	r.SetInt64(posAddr, "reserveContribution", 200_000)
	r.SetUint64(posAddr, "start", 1_000)
	r.SetUint64(posAddr, "expiration", 100_000_000)
	r.SetUint64(posAddr, "challengePeriod", 86_400)
	r.SetBig(posAddr, "price", testutil.Wei(2))
	r.SetUint64(posAddr, "cooldown", 0)
	r.SetUint64(hubAddr, "challengeStart", 5_000)
}

func hubEnv(block uint64, logIndex uint32) event.Envelope {
	env := testutil.Env(chainID, block, logIndex)
	env.Contract = hubAddr
	return env
}

func started(size int64) *event.ChallengeStarted {
	return &event.ChallengeStarted{
		Envelope:   hubEnv(200, 0),
		Generation: event.GenerationV2,
		Position:   posAddr,
		Challenger: "0x8888888888888888888888888888888888888888",
		Number:     7,
		Size:       testutil.Wei(size),
	}
}

// ============================================================================
// Test: Start
// ============================================================================

func TestStart_CreatesActiveChallenge(t *testing.T) {
	ledger, mem, reader := newLedger()
	programChallenge(reader)

	if err := ledger.Start(context.Background(), started(100)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	c, err := mem.FindChallenge(context.Background(), chainID, posAddr, 7)
	if err != nil || c == nil {
		t.Fatalf("challenge not stored: %v", err)
	}
	if c.Status != auction.StatusActive {
		t.Errorf("status: got %q, want Active", c.Status)
	}
	if c.Start != 5_000 {
		t.Errorf("start: got %d, want 5000", c.Start)
	}
	if c.Duration != 86_400 {
		t.Errorf("duration: got %d, want 86400", c.Duration)
	}
	if c.LiqPrice.Cmp(testutil.Wei(2)) != 0 {
		t.Errorf("liqPrice: got %s, want %s", c.LiqPrice, testutil.Wei(2))
	}
	if c.FilledSize.Sign() != 0 || c.Bids != 0 {
		t.Errorf("fresh challenge should have zero totals: filled=%s bids=%d", c.FilledSize, c.Bids)
	}

	total, _ := mem.GetAccumulator(context.Background(), chainID, ecosystem.TotalChallengesID("V2"))
	if total.Int64() != 1 {
		t.Errorf("TotalChallenges: got %s, want 1", total)
	}
}

// ============================================================================
// Test: Avert
// ============================================================================

func TestAvert_PricesBidAtTriggerPrice(t *testing.T) {
	ledger, mem, reader := newLedger()
	programChallenge(reader)

	if err := ledger.Start(context.Background(), started(100)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 40 of 100 averted; 60 remain on chain.
	reader.SetBig(hubAddr, "challenges", testutil.Wei(60))
	evt := &event.ChallengeAverted{
		Envelope:   hubEnv(201, 0),
		Generation: event.GenerationV2,
		Position:   posAddr,
		Number:     7,
		Size:       testutil.Wei(40),
	}
	if err := ledger.Avert(context.Background(), evt); err != nil {
		t.Fatalf("Avert failed: %v", err)
	}

	bids, err := mem.Bids(context.Background(), chainID, posAddr, 7)
	if err != nil || len(bids) != 1 {
		t.Fatalf("expected 1 bid, got %d (%v)", len(bids), err)
	}
	b := bids[0]
	if b.Kind != auction.BidAverted {
		t.Errorf("kind: got %q, want Averted", b.Kind)
	}
	// 40 units at trigger price 2 = 80 debt tokens.
	if b.Amount.Cmp(testutil.Wei(80)) != 0 {
		t.Errorf("amount: got %s, want %s", b.Amount, testutil.Wei(80))
	}
	if b.AcquiredCollateral.Sign() != 0 {
		t.Errorf("averted bid acquires no collateral, got %s", b.AcquiredCollateral)
	}

	c, _ := mem.FindChallenge(context.Background(), chainID, posAddr, 7)
	if c.Status != auction.StatusActive {
		t.Errorf("partially averted challenge should stay Active, got %q", c.Status)
	}
	if c.FilledSize.Cmp(testutil.Wei(40)) != 0 {
		t.Errorf("filledSize: got %s, want %s", c.FilledSize, testutil.Wei(40))
	}
	if c.Bids != 1 {
		t.Errorf("bids: got %d, want 1", c.Bids)
	}

	total, _ := mem.GetAccumulator(context.Background(), chainID, ecosystem.TotalAvertedBidsID("V2"))
	if total.Int64() != 1 {
		t.Errorf("TotalAvertedBids: got %s, want 1", total)
	}
}

func TestAvert_UnknownChallenge(t *testing.T) {
	ledger, _, reader := newLedger()
	programChallenge(reader)

	evt := &event.ChallengeAverted{
		Envelope:   hubEnv(201, 0),
		Generation: event.GenerationV2,
		Position:   posAddr,
		Number:     99,
		Size:       testutil.Wei(40),
	}
	err := ledger.Avert(context.Background(), evt)
	if !errors.Is(err, auction.ErrUnknownChallenge) {
		t.Errorf("got %v, want ErrUnknownChallenge", err)
	}
}

// ============================================================================
// Test: Succeed
// ============================================================================

func TestSucceed_FlipsStatusWhenDrained(t *testing.T) {
	ledger, mem, reader := newLedger()
	programChallenge(reader)

	if err := ledger.Start(context.Background(), started(100)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The whole challenge clears in one bid; on-chain remaining is zero.
	reader.SetBig(hubAddr, "challenges", fpmath.Zero())
	evt := &event.ChallengeSucceeded{
		Envelope:           hubEnv(202, 0),
		Generation:         event.GenerationV2,
		Position:           posAddr,
		Number:             7,
		Bid:                testutil.Wei(200),
		AcquiredCollateral: testutil.Wei(100),
		ChallengeSize:      testutil.Wei(100),
	}
	if err := ledger.Succeed(context.Background(), evt); err != nil {
		t.Fatalf("Succeed failed: %v", err)
	}

	c, _ := mem.FindChallenge(context.Background(), chainID, posAddr, 7)
	if c.Status != auction.StatusSuccess {
		t.Errorf("status: got %q, want Success", c.Status)
	}
	// Completeness: the filled size equals the challenge size.
	if c.FilledSize.Cmp(c.Size) != 0 {
		t.Errorf("filledSize %s != size %s on resolved challenge", c.FilledSize, c.Size)
	}
	if c.AcquiredCollateral.Cmp(testutil.Wei(100)) != 0 {
		t.Errorf("acquiredCollateral: got %s, want %s", c.AcquiredCollateral, testutil.Wei(100))
	}

	bids, _ := mem.Bids(context.Background(), chainID, posAddr, 7)
	if len(bids) != 1 {
		t.Fatalf("expected 1 bid, got %d", len(bids))
	}
	b := bids[0]
	if b.Kind != auction.BidSucceeded {
		t.Errorf("kind: got %q, want Succeeded", b.Kind)
	}
	// Clearing price: 200 paid for 100 units = 2 per unit.
	if b.Price.Cmp(testutil.Wei(2)) != 0 {
		t.Errorf("clearing price: got %s, want %s", b.Price, testutil.Wei(2))
	}

	total, _ := mem.GetAccumulator(context.Background(), chainID, ecosystem.TotalSucceededBidsID("V2"))
	if total.Int64() != 1 {
		t.Errorf("TotalSucceededBids: got %s, want 1", total)
	}
}

func TestSucceed_SequencesBids(t *testing.T) {
	ledger, mem, reader := newLedger()
	programChallenge(reader)

	if err := ledger.Start(context.Background(), started(100)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reader.SetBig(hubAddr, "challenges", testutil.Wei(60))
	first := &event.ChallengeSucceeded{
		Envelope:           hubEnv(202, 0),
		Generation:         event.GenerationV2,
		Position:           posAddr,
		Number:             7,
		Bid:                testutil.Wei(80),
		AcquiredCollateral: testutil.Wei(40),
		ChallengeSize:      testutil.Wei(40),
	}
	if err := ledger.Succeed(context.Background(), first); err != nil {
		t.Fatalf("first bid failed: %v", err)
	}

	reader.SetBig(hubAddr, "challenges", fpmath.Zero())
	second := &event.ChallengeSucceeded{
		Envelope:           hubEnv(203, 0),
		Generation:         event.GenerationV2,
		Position:           posAddr,
		Number:             7,
		Bid:                testutil.Wei(120),
		AcquiredCollateral: testutil.Wei(60),
		ChallengeSize:      testutil.Wei(60),
	}
	if err := ledger.Succeed(context.Background(), second); err != nil {
		t.Fatalf("second bid failed: %v", err)
	}

	bids, _ := mem.Bids(context.Background(), chainID, posAddr, 7)
	if len(bids) != 2 {
		t.Fatalf("expected 2 bids, got %d", len(bids))
	}
	if bids[0].BidSeq != 0 || bids[1].BidSeq != 1 {
		t.Errorf("bid sequence: got %d, %d", bids[0].BidSeq, bids[1].BidSeq)
	}

	c, _ := mem.FindChallenge(context.Background(), chainID, posAddr, 7)
	if c.Status != auction.StatusSuccess {
		t.Errorf("status after drain: got %q, want Success", c.Status)
	}
	if c.Bids != 2 {
		t.Errorf("bids: got %d, want 2", c.Bids)
	}
}
