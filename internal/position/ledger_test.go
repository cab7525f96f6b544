package position_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"StableLedger/internal/chainread"
	"StableLedger/internal/ecosystem"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
	"StableLedger/internal/position"
	"StableLedger/internal/store"
	"StableLedger/internal/testutil"
)

const (
	chainID = int64(1)

	posAddr   = "0x1111111111111111111111111111111111111111"
	cloneAddr = "0x2222222222222222222222222222222222222222"
	debtAddr  = "0x4444444444444444444444444444444444444444"
	collAddr  = "0x5555555555555555555555555555555555555555"
)

func newLedger() (*position.Ledger, *store.Memory, *testutil.FakeReader) {
	mem := store.NewMemory()
	reader := testutil.NewFakeReader()
	views := chainread.NewViews(reader)
	return position.NewLedger(mem, mem, views, testutil.TestLogger()), mem, reader
}

// programPosition wires every read Open issues against one position
// contract and its two token legs.
func programPosition(r *testutil.FakeReader, addr string, expiration uint64) {
	r.SetBig(addr, "minimumCollateral", testutil.Wei(1))
	r.SetInt64(addr, "annualInterestPPM", 50_000)
	r.SetInt64(addr, "reserveContribution", 200_000)
	r.SetUint64(addr, "start", 1_000)
	r.SetUint64(addr, "expiration", expiration)
	r.SetUint64(addr, "challengePeriod", 86_400)
	r.SetBig(addr, "limit", testutil.Wei(10_000))
	r.SetBig(addr, "limitForClones", testutil.Wei(8_000))
	r.SetBig(addr, "minted", testutil.Wei(100))
	r.SetUint64(addr, "cooldown", 0)

	r.SetText(debtAddr, "name", "Stablecoin")
	r.SetText(debtAddr, "symbol", "STBL")
	r.SetUint64(debtAddr, "decimals", 18)

	r.SetText(collAddr, "name", "Wrapped Ether")
	r.SetText(collAddr, "symbol", "WETH")
	r.SetUint64(collAddr, "decimals", 18)
	r.SetBig(collAddr, "balanceOf", testutil.Wei(5))
}

func opened(addr string, env event.Envelope) *event.PositionOpened {
	return &event.PositionOpened{
		Envelope:   env,
		Generation: event.GenerationV1,
		Position:   addr,
		Owner:      "0xAbCd000000000000000000000000000000000001",
		DebtToken:  debtAddr,
		Collateral: collAddr,
		Price:      testutil.Wei(2_000),
		TxInput:    "0x12345678",
	}
}

// ============================================================================
// Test: Open
// ============================================================================

func TestOpen_Original(t *testing.T) {
	ledger, mem, reader := newLedger()
	env := testutil.Env(chainID, 100, 1)
	programPosition(reader, posAddr, env.BlockTimestamp+86_400*400)

	if err := ledger.Open(context.Background(), opened(posAddr, env)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	p, err := mem.FindPosition(context.Background(), chainID, posAddr)
	if err != nil || p == nil {
		t.Fatalf("position not stored: %v", err)
	}
	if !p.IsOriginal || p.IsClone {
		t.Errorf("expected original, got IsOriginal=%v IsClone=%v", p.IsOriginal, p.IsClone)
	}
	if p.Original != posAddr {
		t.Errorf("original: got %q, want %q", p.Original, posAddr)
	}
	if p.Owner != "0xabcd000000000000000000000000000000000001" {
		t.Errorf("owner not lower-cased: %q", p.Owner)
	}

	// limitForPosition = balance * price / 10^debtDecimals.
	wantLimit := fpmath.PositionLimit(testutil.Wei(5), testutil.Wei(2_000), 18)
	if p.LimitForPosition.Cmp(wantLimit) != 0 {
		t.Errorf("limitForPosition: got %s, want %s", p.LimitForPosition, wantLimit)
	}
	wantAvail := fpmath.Sub(wantLimit, testutil.Wei(100))
	if p.AvailableForPosition.Cmp(wantAvail) != 0 {
		t.Errorf("availableForPosition: got %s, want %s", p.AvailableForPosition, wantAvail)
	}
	if p.Minted.Cmp(testutil.Wei(100)) != 0 {
		t.Errorf("minted: got %s, want %s", p.Minted, testutil.Wei(100))
	}

	total, err := mem.GetAccumulator(context.Background(), chainID, ecosystem.TotalPositionsID("V1"))
	if err != nil {
		t.Fatalf("GetAccumulator failed: %v", err)
	}
	if total.Int64() != 1 {
		t.Errorf("TotalPositions: got %s, want 1", total)
	}

	s, err := mem.FindStatusCounters(context.Background(), chainID, posAddr)
	if err != nil || s == nil {
		t.Fatalf("status counters not seeded: %v", err)
	}

	if got := mem.LastActive(chainID, "0xfrom"); got != env.BlockTimestamp {
		t.Errorf("active user: got %d, want %d", got, env.BlockTimestamp)
	}
}

func TestOpen_CloneRefreshesOriginal(t *testing.T) {
	ledger, mem, reader := newLedger()
	env := testutil.Env(chainID, 100, 1)
	programPosition(reader, posAddr, env.BlockTimestamp+86_400*400)

	if err := ledger.Open(context.Background(), opened(posAddr, env)); err != nil {
		t.Fatalf("Open original failed: %v", err)
	}

	// The clone's opening calldata carries the hub's clone selector and
	// the original's address as the first argument.
	txInput := "0x5cb47919" + "000000000000000000000000" + posAddr[2:]

	// The original's aggregate limits shrink once the clone opens.
	reader.SetBig(posAddr, "limit", testutil.Wei(9_000))
	reader.SetBig(posAddr, "limitForClones", testutil.Wei(6_000))

	programPosition(reader, cloneAddr, env.BlockTimestamp+86_400*400)
	evt := opened(cloneAddr, testutil.Env(chainID, 101, 0))
	evt.TxInput = txInput

	if err := ledger.Open(context.Background(), evt); err != nil {
		t.Fatalf("Open clone failed: %v", err)
	}

	clone, err := mem.FindPosition(context.Background(), chainID, cloneAddr)
	if err != nil || clone == nil {
		t.Fatalf("clone not stored: %v", err)
	}
	if !clone.IsClone || clone.IsOriginal {
		t.Errorf("expected clone, got IsClone=%v IsOriginal=%v", clone.IsClone, clone.IsOriginal)
	}
	if clone.Original != posAddr {
		t.Errorf("clone original: got %q, want %q", clone.Original, posAddr)
	}

	orig, err := mem.FindPosition(context.Background(), chainID, posAddr)
	if err != nil || orig == nil {
		t.Fatalf("original vanished: %v", err)
	}
	if orig.LimitForClones.Cmp(testutil.Wei(9_000)) != 0 {
		t.Errorf("original limitForClones not refreshed: got %s", orig.LimitForClones)
	}
	if orig.AvailableForClones.Cmp(testutil.Wei(6_000)) != 0 {
		t.Errorf("original availableForClones not refreshed: got %s", orig.AvailableForClones)
	}
}

// ============================================================================
// Test: ApplyMintingUpdate
// ============================================================================

func TestApplyMintingUpdate_FirstSequence(t *testing.T) {
	ledger, mem, reader := newLedger()
	openEnv := testutil.EnvAt(chainID, 100, 1, 1_000_000)
	expiration := openEnv.BlockTimestamp + 400*86_400
	programPosition(reader, posAddr, expiration)

	if err := ledger.Open(context.Background(), opened(posAddr, openEnv)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	evt := &event.MintingUpdated{
		Envelope:   testutil.EnvAt(chainID, 101, 0, 1_000_000),
		Generation: event.GenerationV1,
		Position:   posAddr,
		Collateral: testutil.Wei(5),
		Price:      testutil.Wei(2_000),
		Minted:     testutil.Wei(1_000),
	}
	if err := ledger.ApplyMintingUpdate(context.Background(), evt); err != nil {
		t.Fatalf("ApplyMintingUpdate failed: %v", err)
	}

	u, err := mem.FindMintingUpdate(context.Background(), chainID, posAddr, 1)
	if err != nil || u == nil {
		t.Fatalf("minting update not stored: %v", err)
	}
	if u.MintedDelta.Cmp(testutil.Wei(1_000)) != 0 {
		t.Errorf("first-sequence delta should equal absolute: got %s", u.MintedDelta)
	}
	if u.SizeDelta.Cmp(testutil.Wei(5)) != 0 {
		t.Errorf("size delta: got %s, want %s", u.SizeDelta, testutil.Wei(5))
	}

	// 400-day window at 5% annual prorates to 54_794 PPM.
	if u.FeePPM != 54_794 {
		t.Errorf("feePPM: got %d, want 54794", u.FeePPM)
	}
	wantFee := fpmath.ApplyPPM(testutil.Wei(1_000), 54_794)
	if u.FeePaid.Cmp(wantFee) != 0 {
		t.Errorf("feePaid: got %s, want %s", u.FeePaid, wantFee)
	}

	p, _ := mem.FindPosition(context.Background(), chainID, posAddr)
	if p.Minted.Cmp(testutil.Wei(1_000)) != 0 {
		t.Errorf("position minted not refreshed: got %s", p.Minted)
	}
	if p.Closed {
		t.Error("position should remain open with collateral")
	}
}

func TestApplyMintingUpdate_SecondSequenceDeltas(t *testing.T) {
	ledger, mem, reader := newLedger()
	env := testutil.EnvAt(chainID, 100, 1, 1_000_000)
	programPosition(reader, posAddr, env.BlockTimestamp+400*86_400)

	if err := ledger.Open(context.Background(), opened(posAddr, env)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	first := &event.MintingUpdated{
		Envelope:   testutil.EnvAt(chainID, 101, 0, 1_000_100),
		Generation: event.GenerationV1,
		Position:   posAddr,
		Collateral: testutil.Wei(5),
		Price:      testutil.Wei(2_000),
		Minted:     testutil.Wei(1_000),
	}
	if err := ledger.ApplyMintingUpdate(context.Background(), first); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// Partial repayment: minted shrinks, no fee assessed.
	second := &event.MintingUpdated{
		Envelope:   testutil.EnvAt(chainID, 102, 0, 1_000_200),
		Generation: event.GenerationV1,
		Position:   posAddr,
		Collateral: testutil.Wei(5),
		Price:      testutil.Wei(2_000),
		Minted:     testutil.Wei(600),
	}
	if err := ledger.ApplyMintingUpdate(context.Background(), second); err != nil {
		t.Fatalf("second update failed: %v", err)
	}

	u, err := mem.FindMintingUpdate(context.Background(), chainID, posAddr, 2)
	if err != nil || u == nil {
		t.Fatalf("second minting update not stored: %v", err)
	}
	wantDelta := new(big.Int).Neg(testutil.Wei(400))
	if u.MintedDelta.Cmp(wantDelta) != 0 {
		t.Errorf("minted delta: got %s, want %s", u.MintedDelta, wantDelta)
	}
	if u.FeePaid.Sign() != 0 {
		t.Errorf("repayment should carry no fee, got %s", u.FeePaid)
	}
}

func TestApplyMintingUpdate_ZeroCollateralCloses(t *testing.T) {
	ledger, mem, reader := newLedger()
	env := testutil.Env(chainID, 100, 1)
	programPosition(reader, posAddr, env.BlockTimestamp+400*86_400)

	if err := ledger.Open(context.Background(), opened(posAddr, env)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	evt := &event.MintingUpdated{
		Envelope:   testutil.Env(chainID, 101, 0),
		Generation: event.GenerationV1,
		Position:   posAddr,
		Collateral: fpmath.Zero(),
		Price:      testutil.Wei(2_000),
		Minted:     fpmath.Zero(),
	}
	if err := ledger.ApplyMintingUpdate(context.Background(), evt); err != nil {
		t.Fatalf("ApplyMintingUpdate failed: %v", err)
	}

	p, _ := mem.FindPosition(context.Background(), chainID, posAddr)
	if !p.Closed {
		t.Error("zero collateral should close the position")
	}
}

func TestApplyMintingUpdate_EventLimitOverridesRead(t *testing.T) {
	ledger, mem, reader := newLedger()
	env := testutil.Env(chainID, 100, 1)
	programPosition(reader, posAddr, env.BlockTimestamp+400*86_400)

	if err := ledger.Open(context.Background(), opened(posAddr, env)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	evt := &event.MintingUpdated{
		Envelope:   testutil.Env(chainID, 101, 0),
		Generation: event.GenerationV1,
		Position:   posAddr,
		Collateral: testutil.Wei(5),
		Price:      testutil.Wei(2_000),
		Minted:     testutil.Wei(500),
		Limit:      testutil.Wei(7_777),
	}
	if err := ledger.ApplyMintingUpdate(context.Background(), evt); err != nil {
		t.Fatalf("ApplyMintingUpdate failed: %v", err)
	}

	p, _ := mem.FindPosition(context.Background(), chainID, posAddr)
	if p.LimitForClones.Cmp(testutil.Wei(7_777)) != 0 {
		t.Errorf("event limit should win: got %s", p.LimitForClones)
	}
}

func TestApplyMintingUpdate_UnknownPosition(t *testing.T) {
	ledger, _, _ := newLedger()

	evt := &event.MintingUpdated{
		Envelope:   testutil.Env(chainID, 101, 0),
		Generation: event.GenerationV1,
		Position:   posAddr,
		Collateral: testutil.Wei(5),
		Price:      testutil.Wei(2_000),
		Minted:     testutil.Wei(500),
	}
	err := ledger.ApplyMintingUpdate(context.Background(), evt)
	if !errors.Is(err, position.ErrUnknownPosition) {
		t.Errorf("got %v, want ErrUnknownPosition", err)
	}
}

// ============================================================================
// Test: Deny / TransferOwnership
// ============================================================================

func TestDeny_MarksPosition(t *testing.T) {
	ledger, mem, reader := newLedger()
	env := testutil.Env(chainID, 100, 1)
	programPosition(reader, posAddr, env.BlockTimestamp+400*86_400)

	if err := ledger.Open(context.Background(), opened(posAddr, env)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	evt := &event.PositionDenied{
		Envelope:   testutil.Env(chainID, 101, 0),
		Generation: event.GenerationV1,
		Position:   posAddr,
		Message:    "collateral not accepted",
	}
	if err := ledger.Deny(context.Background(), evt); err != nil {
		t.Fatalf("Deny failed: %v", err)
	}

	p, _ := mem.FindPosition(context.Background(), chainID, posAddr)
	if !p.Denied {
		t.Error("position should be denied")
	}
}

func TestDeny_BeforeOpenTolerated(t *testing.T) {
	ledger, _, reader := newLedger()
	reader.SetUint64(posAddr, "cooldown", 0)

	evt := &event.PositionDenied{
		Envelope:   testutil.Env(chainID, 99, 0),
		Generation: event.GenerationV1,
		Position:   posAddr,
	}
	if err := ledger.Deny(context.Background(), evt); err != nil {
		t.Errorf("denial before open should be tolerated: %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	ledger, mem, reader := newLedger()
	env := testutil.Env(chainID, 100, 1)
	programPosition(reader, posAddr, env.BlockTimestamp+400*86_400)

	if err := ledger.Open(context.Background(), opened(posAddr, env)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	evt := &event.OwnershipTransferred{
		Envelope:   testutil.Env(chainID, 101, 0),
		Generation: event.GenerationV1,
		Position:   posAddr,
		NewOwner:   "0xBEEF000000000000000000000000000000000002",
	}
	if err := ledger.TransferOwnership(context.Background(), evt); err != nil {
		t.Fatalf("TransferOwnership failed: %v", err)
	}

	p, _ := mem.FindPosition(context.Background(), chainID, posAddr)
	if p.Owner != "0xbeef000000000000000000000000000000000002" {
		t.Errorf("owner: got %q", p.Owner)
	}

	s, _ := mem.FindStatusCounters(context.Background(), chainID, posAddr)
	if s.OwnerTransfers != 1 {
		t.Errorf("ownerTransfers: got %d, want 1", s.OwnerTransfers)
	}
}

func TestTransferOwnership_UnknownTolerated(t *testing.T) {
	ledger, _, _ := newLedger()

	evt := &event.OwnershipTransferred{
		Envelope:   testutil.Env(chainID, 99, 0),
		Generation: event.GenerationV1,
		Position:   posAddr,
		NewOwner:   "0x0000000000000000000000000000000000000009",
	}
	if err := ledger.TransferOwnership(context.Background(), evt); err != nil {
		t.Errorf("transfer before open should be tolerated: %v", err)
	}
}
