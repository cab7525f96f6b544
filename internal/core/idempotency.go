package core

import (
	"container/list"
	"context"
)

// AppliedSet is the durable tier of deduplication: the set of
// idempotency keys whose events have fully applied.
type AppliedSet interface {
	// Contains reports whether the key was already applied.
	Contains(ctx context.Context, chainID int64, key string) (bool, error)

	// Record adds the key, ignoring an existing row.
	Record(ctx context.Context, chainID int64, key string) error

	// Recent returns up to limit of the most recently recorded keys,
	// used to warm the in-memory tier on startup.
	Recent(ctx context.Context, chainID int64, limit int) ([]string, error)
}

// Deduper implements two-tier deduplication for one chain partition: an
// in-memory LRU on the hot path backed by the applied-key store for keys
// that aged out of memory.
//
// Not thread-safe. Only touched by the partition's single worker.
type Deduper struct {
	chainID  int64
	capacity int
	lru      *dedupLRU
	applied  AppliedSet
}

func NewDeduper(chainID int64, capacity int, applied AppliedSet) *Deduper {
	return &Deduper{
		chainID:  chainID,
		capacity: capacity,
		lru:      newDedupLRU(capacity),
		applied:  applied,
	}
}

// Seen reports whether the key was already applied, and through which
// tier it was found. A store error propagates: treating a possible
// duplicate as new would double-apply accumulator arithmetic.
func (d *Deduper) Seen(ctx context.Context, key string) (bool, string, error) {
	if d.lru.contains(key) {
		return true, "lru", nil
	}

	dup, err := d.applied.Contains(ctx, d.chainID, key)
	if err != nil {
		return false, "", err
	}
	if dup {
		// Cache so the next delivery stays off the store.
		d.lru.add(key)
		return true, "store", nil
	}
	return false, "", nil
}

// Mark records the key in both tiers after the event fully applied.
// The hot path records the durable tier inside the event's transaction
// instead and only calls MarkMemory; Mark serves the rollback replay.
func (d *Deduper) Mark(ctx context.Context, key string) error {
	if err := d.applied.Record(ctx, d.chainID, key); err != nil {
		return err
	}
	d.lru.add(key)
	return nil
}

// MarkMemory records the key in the LRU only. Callers are responsible
// for the durable tier.
func (d *Deduper) MarkMemory(key string) {
	d.lru.add(key)
}

// Reset drops the in-memory tier ahead of a replay.
func (d *Deduper) Reset() {
	d.lru = newDedupLRU(d.capacity)
}

// Warm preloads recently applied keys on startup so the first events
// after a restart stay on the hot path.
func (d *Deduper) Warm(keys []string) {
	for _, key := range keys {
		d.lru.add(key)
	}
}

// Evictions returns the total LRU evictions, exposed for monitoring.
func (d *Deduper) Evictions() int64 {
	return d.lru.evictions
}

// dedupLRU is a plain LRU over idempotency keys.
type dedupLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List

	evictions int64
}

type dedupEntry struct {
	key string
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (l *dedupLRU) contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.order.MoveToFront(elem)
		return true
	}
	return false
}

func (l *dedupLRU) add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.order.MoveToFront(elem)
		return
	}

	elem := l.order.PushFront(&dedupEntry{key: key})
	l.cache[key] = elem

	if l.order.Len() > l.capacity {
		l.evictOldest()
	}
}

func (l *dedupLRU) evictOldest() {
	elem := l.order.Back()
	if elem == nil {
		return
	}
	l.order.Remove(elem)
	delete(l.cache, elem.Value.(*dedupEntry).key)
	l.evictions++
}

func (l *dedupLRU) size() int {
	return l.order.Len()
}
