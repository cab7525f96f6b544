package query_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"StableLedger/internal/analytics"
	"StableLedger/internal/core"
	"StableLedger/internal/event"
	fpmath "StableLedger/internal/math"
	"StableLedger/internal/position"
	"StableLedger/internal/query"
	"StableLedger/internal/savings"
	"StableLedger/internal/store"
	"StableLedger/internal/testutil"
)

const chainID = int64(1)

func newServer(mem *store.Memory, halted bool) *httptest.Server {
	svc := query.NewService(mem, mem, mem, mem, mem, mem,
		func(int64) bool { return halted }, testutil.TestLogger())
	r := chi.NewRouter()
	svc.Mount(r)
	return httptest.NewServer(r)
}

func get(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// ============================================================================
// Test: chain status
// ============================================================================

func TestGetChainStatus(t *testing.T) {
	mem := store.NewMemory()
	err := mem.SaveCheckpoint(context.Background(), &core.Checkpoint{
		ChainID:        chainID,
		BlockNumber:    1234,
		LogIndex:       7,
		BlockTimestamp: 1_700_000_000,
	})
	if err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	srv := newServer(mem, true)
	defer srv.Close()

	var resp struct {
		ChainID     int64  `json:"chain_id"`
		BlockNumber uint64 `json:"block_number"`
		Halted      bool   `json:"halted"`
	}
	if code := get(t, srv, "/chains/1/status", &resp); code != http.StatusOK {
		t.Fatalf("status code: got %d", code)
	}
	if resp.BlockNumber != 1234 || !resp.Halted {
		t.Errorf("got block=%d halted=%v", resp.BlockNumber, resp.Halted)
	}
}

func TestGetChainStatus_NeverCheckpointed(t *testing.T) {
	srv := newServer(store.NewMemory(), false)
	defer srv.Close()

	var resp struct {
		BlockNumber uint64 `json:"block_number"`
	}
	if code := get(t, srv, "/chains/1/status", &resp); code != http.StatusOK {
		t.Fatalf("status code: got %d", code)
	}
	if resp.BlockNumber != 0 {
		t.Errorf("fresh chain block: got %d, want 0", resp.BlockNumber)
	}
}

// ============================================================================
// Test: positions
// ============================================================================

func seedPosition(t *testing.T, mem *store.Memory, addr, owner string) {
	t.Helper()
	err := mem.InsertPosition(context.Background(), &position.Position{
		ChainID:    chainID,
		Position:   addr,
		Generation: event.GenerationV1,
		Owner:      owner,
		Price:      testutil.Wei(2_000),
		Minted:     testutil.Wei(100),

		MinimumCollateral:    fpmath.Zero(),
		CollateralBalance:    testutil.Wei(5),
		LimitForPosition:     testutil.Wei(10_000),
		LimitForClones:       testutil.Wei(8_000),
		AvailableForPosition: testutil.Wei(9_900),
		AvailableForClones:   testutil.Wei(8_000),
	})
	if err != nil {
		t.Fatalf("InsertPosition failed: %v", err)
	}
}

func TestGetPosition(t *testing.T) {
	mem := store.NewMemory()
	seedPosition(t, mem, "0xaaa1", "0xowner1")
	srv := newServer(mem, false)
	defer srv.Close()

	var resp struct {
		Position   string `json:"position"`
		Generation string `json:"generation"`
		Minted     string `json:"minted"`
	}
	if code := get(t, srv, "/chains/1/positions/0xaaa1", &resp); code != http.StatusOK {
		t.Fatalf("status code: got %d", code)
	}
	if resp.Position != "0xaaa1" || resp.Generation != "V1" {
		t.Errorf("got position=%q generation=%q", resp.Position, resp.Generation)
	}
	// Amounts travel as decimal strings.
	if resp.Minted != testutil.Wei(100).String() {
		t.Errorf("minted: got %q, want %q", resp.Minted, testutil.Wei(100).String())
	}
}

func TestGetPosition_NotFound(t *testing.T) {
	srv := newServer(store.NewMemory(), false)
	defer srv.Close()

	if code := get(t, srv, "/chains/1/positions/0xmissing", nil); code != http.StatusNotFound {
		t.Errorf("status code: got %d, want 404", code)
	}
}

func TestGetPosition_BadChainID(t *testing.T) {
	srv := newServer(store.NewMemory(), false)
	defer srv.Close()

	if code := get(t, srv, "/chains/mainnet/positions/0xaaa1", nil); code != http.StatusBadRequest {
		t.Errorf("status code: got %d, want 400", code)
	}
}

func TestGetPositionsByOwner(t *testing.T) {
	mem := store.NewMemory()
	seedPosition(t, mem, "0xaaa1", "0xowner1")
	seedPosition(t, mem, "0xaaa2", "0xowner1")
	seedPosition(t, mem, "0xaaa3", "0xowner2")
	srv := newServer(mem, false)
	defer srv.Close()

	var resp []json.RawMessage
	if code := get(t, srv, "/chains/1/owners/0xowner1/positions", &resp); code != http.StatusOK {
		t.Fatalf("status code: got %d", code)
	}
	if len(resp) != 2 {
		t.Errorf("got %d positions, want 2", len(resp))
	}
}

// ============================================================================
// Test: savings
// ============================================================================

func TestGetSavingsAccount(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.UpsertAccount(context.Background(), chainID, "0xmod", "0xacct", func(a *savings.Account) {
		a.Balance = testutil.Wei(65)
	})
	if err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	srv := newServer(mem, false)
	defer srv.Close()

	var resp struct {
		Balance string `json:"balance"`
	}
	if code := get(t, srv, "/chains/1/savings/0xmod/accounts/0xacct", &resp); code != http.StatusOK {
		t.Fatalf("status code: got %d", code)
	}
	if resp.Balance != testutil.Wei(65).String() {
		t.Errorf("balance: got %q", resp.Balance)
	}
}

func TestGetSavingsStatus_NotFound(t *testing.T) {
	srv := newServer(store.NewMemory(), false)
	defer srv.Close()

	if code := get(t, srv, "/chains/1/savings/0xmod", nil); code != http.StatusNotFound {
		t.Errorf("status code: got %d, want 404", code)
	}
}

// ============================================================================
// Test: analytics
// ============================================================================

func seedRollup(t *testing.T, mem *store.Memory, day string, ts uint64) {
	t.Helper()
	r := &analytics.DailyRollup{ChainID: chainID, Day: day, Timestamp: ts}
	r.TotalInflow = testutil.Wei(100)
	r.TotalOutflow = fpmath.Zero()
	r.TotalTradeFee = fpmath.Zero()
	r.TotalSupply = fpmath.Zero()
	r.TotalEquity = fpmath.Zero()
	r.TotalSavings = fpmath.Zero()
	r.ShareSupply = fpmath.Zero()
	r.SharePrice = fpmath.Zero()
	r.TotalMintedV1 = fpmath.Zero()
	r.TotalMintedV2 = fpmath.Zero()
	r.CurrentLeadRate = fpmath.Zero()
	r.ClaimableInterest = fpmath.Zero()
	r.ProjectedInterest = fpmath.Zero()
	r.AnnualV1Interest = fpmath.Zero()
	r.AnnualV2Interest = fpmath.Zero()
	r.AnnualV1BorrowRate = fpmath.Zero()
	r.AnnualV2BorrowRate = fpmath.Zero()
	r.AnnualNetEarnings = fpmath.Zero()
	r.RealizedNetEarnings = fpmath.Zero()
	r.EarningsPerShare = fpmath.Zero()
	if err := mem.UpsertRollup(context.Background(), r); err != nil {
		t.Fatalf("UpsertRollup failed: %v", err)
	}
}

func TestGetRollups_RequiresRange(t *testing.T) {
	srv := newServer(store.NewMemory(), false)
	defer srv.Close()

	if code := get(t, srv, "/chains/1/analytics/rollups", nil); code != http.StatusBadRequest {
		t.Errorf("status code: got %d, want 400", code)
	}
}

func TestGetRollups_FiltersByDay(t *testing.T) {
	mem := store.NewMemory()
	seedRollup(t, mem, "2026-08-01", 1_785_542_400)
	seedRollup(t, mem, "2026-08-02", 1_785_628_800)
	seedRollup(t, mem, "2026-08-10", 1_786_320_000)
	srv := newServer(mem, false)
	defer srv.Close()

	var resp []struct {
		Day string `json:"day"`
	}
	code := get(t, srv, "/chains/1/analytics/rollups?from=2026-08-01&to=2026-08-05", &resp)
	if code != http.StatusOK {
		t.Fatalf("status code: got %d", code)
	}
	if len(resp) != 2 {
		t.Fatalf("got %d rollups, want 2", len(resp))
	}
	if resp[0].Day != "2026-08-01" || resp[1].Day != "2026-08-02" {
		t.Errorf("days: got %q, %q", resp[0].Day, resp[1].Day)
	}
}
