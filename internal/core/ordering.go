package core

import "fmt"

// orderingGuard tracks the last applied chain log position. Upstream
// delivers per chain in non-decreasing (block, logIndex) order; a new
// event behind the tracked position means a gap or an ordering bug and
// must halt the partition rather than corrupt delta computation.
//
// Not thread-safe. Only touched by the partition's single worker.
type orderingGuard struct {
	primed   bool
	block    uint64
	logIndex uint32
}

// check verifies the position does not regress. Duplicates are filtered
// before the guard runs, so every position it sees belongs to a new
// event. Equal positions are allowed: one log can decode into events of
// different kinds.
func (g *orderingGuard) check(block uint64, logIndex uint32) error {
	if !g.primed {
		return nil
	}
	if block < g.block || (block == g.block && logIndex < g.logIndex) {
		return fmt.Errorf("out-of-order event: have (%d,%d), got (%d,%d)",
			g.block, g.logIndex, block, logIndex)
	}
	return nil
}

// commit advances the tracked position after the event fully applied.
func (g *orderingGuard) commit(block uint64, logIndex uint32) {
	g.primed = true
	g.block = block
	g.logIndex = logIndex
}

// restore seeds the guard from a durable checkpoint.
func (g *orderingGuard) restore(block uint64, logIndex uint32) {
	g.primed = true
	g.block = block
	g.logIndex = logIndex
}

// reset clears the guard ahead of a replay from genesis.
func (g *orderingGuard) reset() {
	g.primed = false
	g.block = 0
	g.logIndex = 0
}
