package core

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// Checkpoint is the per-chain durable progress marker, written after
// each event's handler completes. Rollback restores from here and a
// restart resumes from here.
type Checkpoint struct {
	ChainID     int64
	BlockNumber uint64
	LogIndex    uint32

	// Digest is the chained fingerprint of every applied idempotency
	// key. Two partitions that applied the same event sequence carry the
	// same digest, which makes replay divergence detectable.
	Digest [32]byte

	// BlockTimestamp of the last applied event.
	BlockTimestamp uint64
}

// CheckpointStore persists one checkpoint row per chain.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// LoadCheckpoint returns nil, nil when the chain has never
	// checkpointed.
	LoadCheckpoint(ctx context.Context, chainID int64) (*Checkpoint, error)
}

// replayDigest folds applied idempotency keys into a chained SHA-256.
//
// Not thread-safe. Only touched by the partition's single worker.
type replayDigest struct {
	prev [32]byte
}

func newReplayDigest(chainID int64) *replayDigest {
	seed := sha256.Sum256([]byte(fmt.Sprintf("stableledger:chain:%d:v1", chainID)))
	return &replayDigest{prev: seed}
}

// fold absorbs one applied key: digest[n] = SHA-256(digest[n-1] || key).
func (d *replayDigest) fold(key string) [32]byte {
	h := sha256.New()
	h.Write(d.prev[:])
	h.Write([]byte(key))
	copy(d.prev[:], h.Sum(nil))
	return d.prev
}

// tip returns the current digest.
func (d *replayDigest) tip() [32]byte {
	return d.prev
}

// restore resets the digest to a checkpointed value.
func (d *replayDigest) restore(h [32]byte) {
	d.prev = h
}
