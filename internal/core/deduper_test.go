package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"StableLedger/internal/core"
	"StableLedger/internal/store"
)

// failingApplied simulates a durable tier that is down.
type failingApplied struct{ err error }

func (f failingApplied) Contains(context.Context, int64, string) (bool, error) {
	return false, f.err
}
func (f failingApplied) Record(context.Context, int64, string) error { return f.err }
func (f failingApplied) Recent(context.Context, int64, int) ([]string, error) {
	return nil, f.err
}

// ============================================================================
// Test: Deduper
// ============================================================================

func TestDeduper_MemoryTierHit(t *testing.T) {
	d := core.NewDeduper(1, 10, store.NewMemory())
	ctx := context.Background()

	if err := d.Mark(ctx, "k1"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	dup, tier, err := d.Seen(ctx, "k1")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if !dup || tier != "lru" {
		t.Errorf("got dup=%v tier=%q, want true/lru", dup, tier)
	}
}

func TestDeduper_StoreTierAfterEviction(t *testing.T) {
	d := core.NewDeduper(1, 2, store.NewMemory())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := d.Mark(ctx, fmt.Sprintf("k%d", i)); err != nil {
			t.Fatalf("Mark failed: %v", err)
		}
	}
	if d.Evictions() != 1 {
		t.Errorf("evictions: got %d, want 1", d.Evictions())
	}

	// k0 aged out of memory but survives in the durable tier.
	dup, tier, err := d.Seen(ctx, "k0")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if !dup || tier != "store" {
		t.Errorf("got dup=%v tier=%q, want true/store", dup, tier)
	}

	// The store hit re-caches the key.
	dup, tier, _ = d.Seen(ctx, "k0")
	if !dup || tier != "lru" {
		t.Errorf("second lookup: got dup=%v tier=%q, want true/lru", dup, tier)
	}
}

func TestDeduper_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	d := core.NewDeduper(1, 10, failingApplied{err: boom})

	_, _, err := d.Seen(context.Background(), "k1")
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want the store error", err)
	}
	if err := d.Mark(context.Background(), "k1"); !errors.Is(err, boom) {
		t.Errorf("Mark: got %v, want the store error", err)
	}
}

func TestDeduper_ResetForgetsMemoryOnly(t *testing.T) {
	mem := store.NewMemory()
	d := core.NewDeduper(1, 10, mem)
	ctx := context.Background()

	if err := d.Mark(ctx, "k1"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	d.Reset()

	dup, tier, err := d.Seen(ctx, "k1")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if !dup || tier != "store" {
		t.Errorf("after reset: got dup=%v tier=%q, want true/store", dup, tier)
	}
}

func TestDeduper_WarmPreloadsKeys(t *testing.T) {
	d := core.NewDeduper(1, 10, failingApplied{err: errors.New("down")})
	d.Warm([]string{"k1", "k2"})

	dup, tier, err := d.Seen(context.Background(), "k2")
	if err != nil {
		t.Fatalf("Seen failed: %v", err)
	}
	if !dup || tier != "lru" {
		t.Errorf("got dup=%v tier=%q, want true/lru", dup, tier)
	}
}
