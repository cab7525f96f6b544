package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"StableLedger/internal/chainread"
	"StableLedger/internal/event"
	"StableLedger/internal/observability"
)

// Task is one delivered event plus its source acknowledgement hooks.
// Ack confirms the delivery; Nak requests redelivery. Either may be nil
// when the source needs no disposition (tests, replay).
type Task struct {
	Event  event.Event
	Record *LogRecord
	Ack    func() error
	Nak    func() error
}

type Config struct {
	// Buffer is the per-partition queue depth. The submit path blocks
	// when a partition's queue is full, which backpressures the source.
	Buffer int

	// DedupCapacity bounds the in-memory idempotency tier per chain.
	DedupCapacity int
}

func DefaultConfig() Config {
	return Config{
		Buffer:        256,
		DedupCapacity: 100_000,
	}
}

// Dispatcher fans deliveries out to per-chain partitions. Within a
// partition events apply strictly sequentially; partitions for different
// chains run concurrently and share no mutable state.
type Dispatcher struct {
	cfg         Config
	router      *Router
	applied     AppliedSet
	checkpoints CheckpointStore
	eventLog    EventLog
	reset       StateResetter
	tx          TxRunner
	decode      DecodeFunc
	metrics     *observability.Metrics
	log         zerolog.Logger

	mu         sync.Mutex
	partitions map[int64]*partition
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewDispatcher(
	cfg Config,
	router *Router,
	applied AppliedSet,
	checkpoints CheckpointStore,
	eventLog EventLog,
	reset StateResetter,
	tx TxRunner,
	decode DecodeFunc,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		router:      router,
		applied:     applied,
		checkpoints: checkpoints,
		eventLog:    eventLog,
		reset:       reset,
		tx:          tx,
		decode:      decode,
		metrics:     metrics,
		log:         log,
		partitions:  make(map[int64]*partition),
	}
}

// Start makes the dispatcher accept submissions. Partitions spawn
// lazily on the first event for their chain.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx, d.cancel = context.WithCancel(ctx)
}

// Close stops all partitions and waits for in-flight events to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Submit enqueues one event for its chain partition. Blocks when the
// partition queue is full.
func (d *Dispatcher) Submit(task *Task) error {
	p, err := d.partition(task.Event.Meta().ChainID)
	if err != nil {
		return err
	}
	select {
	case p.inbox <- message{task: task}:
		return nil
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

// Rollback queues a rollback notice behind the chain's in-flight events
// and waits for the replay to complete.
func (d *Dispatcher) Rollback(notice event.RollbackNotice) error {
	p, err := d.partition(notice.ChainID)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	select {
	case p.inbox <- message{rollback: &notice, done: done}:
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

// Halted reports whether a chain partition stopped on a fatal error.
func (d *Dispatcher) Halted(chainID int64) bool {
	d.mu.Lock()
	p := d.partitions[chainID]
	d.mu.Unlock()
	if p == nil {
		return false
	}
	return p.isHalted()
}

func (d *Dispatcher) partition(chainID int64) (*partition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, errors.New("dispatcher not started")
	}
	if p, ok := d.partitions[chainID]; ok {
		return p, nil
	}

	p := &partition{
		chainID: chainID,
		label:   strconv.FormatInt(chainID, 10),
		inbox:   make(chan message, d.cfg.Buffer),
		dedup:   NewDeduper(chainID, d.cfg.DedupCapacity, d.applied),
		digest:  newReplayDigest(chainID),
		disp:    d,
		log:     d.log.With().Int64("chain", chainID).Logger(),
	}
	d.partitions[chainID] = p

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		p.run(d.ctx)
	}()
	return p, nil
}

type message struct {
	task     *Task
	rollback *event.RollbackNotice
	done     chan error
}

// partition is the single worker for one chain. All of its state is
// confined to the run goroutine.
type partition struct {
	chainID int64
	label   string
	inbox   chan message
	dedup   *Deduper
	guard   orderingGuard
	digest  *replayDigest
	disp    *Dispatcher
	log     zerolog.Logger

	mu     sync.Mutex
	halted bool
}

func (p *partition) run(ctx context.Context) {
	if err := p.bootstrap(ctx); err != nil {
		p.halt(err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.inbox:
			if msg.rollback != nil {
				err := p.rollback(ctx, *msg.rollback)
				if msg.done != nil {
					msg.done <- err
				}
				continue
			}
			p.process(ctx, msg.task)
		}
	}
}

// bootstrap restores the partition's position from the durable
// checkpoint and warms the dedup cache.
func (p *partition) bootstrap(ctx context.Context) error {
	cp, err := p.disp.checkpoints.LoadCheckpoint(ctx, p.chainID)
	if err != nil {
		return err
	}
	if cp != nil {
		p.guard.restore(cp.BlockNumber, cp.LogIndex)
		p.digest.restore(cp.Digest)
		p.disp.metrics.CheckpointBlock.WithLabelValues(p.label).Set(float64(cp.BlockNumber))
	}

	keys, err := p.disp.applied.Recent(ctx, p.chainID, p.dedup.capacity)
	if err != nil {
		return err
	}
	p.dedup.Warm(keys)
	return nil
}

func (p *partition) process(ctx context.Context, task *Task) {
	start := time.Now()
	meta := task.Event.Meta()
	kind := task.Event.Kind().String()
	key := task.Event.IdempotencyKey()

	if p.isHalted() {
		p.fail(task, kind, "halted")
		return
	}

	if task.Record != nil {
		if err := p.disp.eventLog.AppendRecord(ctx, task.Record); err != nil {
			p.log.Warn().Err(err).Str("kind", kind).Msg("event log append failed")
			p.fail(task, kind, "log_append")
			return
		}
	}

	dup, tier, err := p.dedup.Seen(ctx, key)
	if err != nil {
		p.log.Warn().Err(err).Str("kind", kind).Msg("dedup lookup failed")
		p.fail(task, kind, "dedup")
		return
	}
	if dup {
		p.disp.metrics.EventsDuplicate.WithLabelValues(p.label, kind, tier).Inc()
		ack(task)
		return
	}

	if err := p.guard.check(meta.BlockNumber, meta.LogIndex); err != nil {
		p.halt(err)
		p.fail(task, kind, "out_of_order")
		return
	}

	if err := p.apply(ctx, task.Event, kind, key); err != nil {
		if ctx.Err() != nil {
			// Shutting down mid-event. The write rolled back, so the
			// source may redeliver after restart.
			p.fail(task, kind, "shutdown")
			return
		}
		p.halt(err)
		p.fail(task, kind, "fatal")
		return
	}

	// The event applied durably. A failure past this point must not
	// trigger redelivery: the applied-set row already catches it.
	p.dedup.MarkMemory(key)
	p.guard.commit(meta.BlockNumber, meta.LogIndex)
	p.digest.fold(key)

	cp := &Checkpoint{
		ChainID:        p.chainID,
		BlockNumber:    meta.BlockNumber,
		LogIndex:       meta.LogIndex,
		Digest:         p.digest.tip(),
		BlockTimestamp: meta.BlockTimestamp,
	}
	if err := p.disp.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		p.halt(err)
		p.fail(task, kind, "checkpoint")
		return
	}

	p.disp.metrics.EventsApplied.WithLabelValues(p.label, kind).Inc()
	p.disp.metrics.EventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	p.disp.metrics.CheckpointBlock.WithLabelValues(p.label).Set(float64(meta.BlockNumber))
	ack(task)
}

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// apply runs the handler and the applied-set insert as one atomic unit,
// retrying transient failures in place with exponential backoff. The
// partition is a single worker, so retrying here keeps the chain's
// (block, logIndex) order intact; handing the event back to the source
// would push it behind later deliveries and trip the ordering guard.
func (p *partition) apply(ctx context.Context, evt event.Event, kind, key string) error {
	delay := retryBaseDelay
	for {
		err := p.disp.tx.Within(ctx, func(ctx context.Context) error {
			if err := p.disp.router.Route(ctx, evt); err != nil {
				return err
			}
			return p.disp.applied.Record(ctx, p.chainID, key)
		})
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		p.disp.metrics.EventsFailed.WithLabelValues(p.label, kind, "retryable").Inc()
		p.log.Warn().Err(err).Str("kind", kind).Dur("backoff", delay).Msg("transient handler failure, retrying in place")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

// rollback undoes a reorged block range by wiping the chain's derived
// state and deterministically replaying the surviving event log.
func (p *partition) rollback(ctx context.Context, notice event.RollbackNotice) error {
	start := time.Now()
	p.log.Info().
		Str("request", notice.RequestID.String()).
		Uint64("from_block", notice.FromBlock).
		Uint64("to_block", notice.ToBlock).
		Msg("rollback: replaying chain from genesis")
	p.disp.metrics.RollbacksTotal.WithLabelValues(p.label).Inc()

	if err := p.disp.reset.ResetChain(ctx, p.chainID); err != nil {
		return err
	}
	if err := p.disp.eventLog.PruneFrom(ctx, p.chainID, notice.FromBlock); err != nil {
		return err
	}

	p.guard.reset()
	p.dedup.Reset()
	p.digest = newReplayDigest(p.chainID)
	p.setHalted(false)

	var count int64
	var last *LogRecord
	err := p.disp.eventLog.ScanRecords(ctx, p.chainID, func(rec *LogRecord) error {
		evt, err := p.disp.decode(rec.Kind, rec.Payload)
		if err != nil {
			return err
		}
		if err := p.disp.router.Route(ctx, evt); err != nil {
			return err
		}
		if err := p.dedup.Mark(ctx, rec.IdempotencyKey); err != nil {
			return err
		}
		p.guard.commit(rec.BlockNumber, rec.LogIndex)
		p.digest.fold(rec.IdempotencyKey)
		last = rec
		count++
		return nil
	})
	if err != nil {
		p.halt(err)
		return err
	}

	if last != nil {
		cp := &Checkpoint{
			ChainID:        p.chainID,
			BlockNumber:    last.BlockNumber,
			LogIndex:       last.LogIndex,
			Digest:         p.digest.tip(),
			BlockTimestamp: last.BlockTimestamp,
		}
		if err := p.disp.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
			p.halt(err)
			return err
		}
		p.disp.metrics.CheckpointBlock.WithLabelValues(p.label).Set(float64(last.BlockNumber))
	}

	p.disp.metrics.ReplayEvents.WithLabelValues(p.label).Add(float64(count))
	p.disp.metrics.ReplaySeconds.WithLabelValues(p.label).Set(time.Since(start).Seconds())
	p.log.Info().Int64("events", count).Dur("took", time.Since(start)).Msg("rollback replay complete")
	return nil
}

func (p *partition) fail(task *Task, kind, reason string) {
	p.disp.metrics.EventsFailed.WithLabelValues(p.label, kind, reason).Inc()
	nak(task)
}

func (p *partition) halt(err error) {
	p.setHalted(true)
	p.disp.metrics.PartitionHalted.WithLabelValues(p.label).Set(1)
	p.log.Error().Err(err).Msg("partition halted, manual intervention or rollback required")
}

func (p *partition) setHalted(v bool) {
	p.mu.Lock()
	p.halted = v
	p.mu.Unlock()
	if !v {
		p.disp.metrics.PartitionHalted.WithLabelValues(p.label).Set(0)
	}
}

func (p *partition) isHalted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

func ack(task *Task) {
	if task.Ack != nil {
		_ = task.Ack()
	}
}

func nak(task *Task) {
	if task.Nak != nil {
		_ = task.Nak()
	}
}

// transientErr is the marker storage wrappers implement for failures
// that are safe to retry.
type transientErr interface {
	Transient() bool
}

// retryable classifies a handler error. Transient infrastructure
// failures retry in place; everything else is a logic error that must
// halt the partition.
func retryable(err error) bool {
	if chainread.Retryable(err) {
		return true
	}
	var t transientErr
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}
