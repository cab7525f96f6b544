package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"StableLedger/internal/core"
	"StableLedger/internal/event"
	"StableLedger/internal/observability"
)

// Subscriber consumes chain events from NATS JetStream and feeds them to
// the dispatcher. Subjects follow chain.<id>.events.<kind>; the upstream
// publishes one chain's events on one subject tree in log order, so a
// single durable consumer per chain preserves ordering. Rollback notices
// arrive on chain.<id>.rollback.
type Subscriber struct {
	js         jetstream.JetStream
	dispatcher *core.Dispatcher
	metrics    *observability.Metrics
	log        zerolog.Logger
	consumers  []jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, d *core.Dispatcher, m *observability.Metrics, log zerolog.Logger) *Subscriber {
	return &Subscriber{js: js, dispatcher: d, metrics: m, log: log}
}

const streamName = "CHAIN_EVENTS"

// EnsureStream creates the JetStream stream holding all chain subjects.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"chain.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}
	return nil
}

// Subscribe creates a durable consumer per chain. Explicit ack, ack wait
// 30s, unlimited redelivery: an event NAKed during shutdown or by a
// halted partition keeps coming back until an operator intervenes.
func (s *Subscriber) Subscribe(ctx context.Context, chainIDs []int64) error {
	for _, chainID := range chainIDs {
		if err := s.subscribeChain(ctx, chainID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) subscribeChain(ctx context.Context, chainID int64) error {
	chain := strconv.FormatInt(chainID, 10)

	events, err := s.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       "ledger-events-" + chain,
		FilterSubject: fmt.Sprintf("chain.%d.events.>", chainID),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    -1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create events consumer for chain %d: %w", chainID, err)
	}

	eventsCtx, err := events.Consume(func(msg jetstream.Msg) {
		s.handleEvent(chainID, chain, msg)
	})
	if err != nil {
		return fmt.Errorf("consume events for chain %d: %w", chainID, err)
	}
	s.consumers = append(s.consumers, eventsCtx)

	rollbacks, err := s.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       "ledger-rollback-" + chain,
		FilterSubject: fmt.Sprintf("chain.%d.rollback", chainID),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute, // replay can take a while
		MaxDeliver:    -1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create rollback consumer for chain %d: %w", chainID, err)
	}

	rollbackCtx, err := rollbacks.Consume(func(msg jetstream.Msg) {
		s.handleRollback(chainID, chain, msg)
	})
	if err != nil {
		return fmt.Errorf("consume rollbacks for chain %d: %w", chainID, err)
	}
	s.consumers = append(s.consumers, rollbackCtx)

	s.log.Info().Int64("chain", chainID).Msg("subscribed to chain subjects")
	return nil
}

func (s *Subscriber) handleEvent(chainID int64, chain string, msg jetstream.Msg) {
	s.metrics.IngestMessages.WithLabelValues(chain).Inc()

	kind := kindFromSubject(msg.Subject())
	evt, err := Decode(kind, msg.Data())
	if err != nil {
		// A payload that cannot be decoded will never decode on
		// redelivery. Terminate it so it does not wedge the stream,
		// and surface the loss in metrics.
		s.metrics.IngestDecodeErrors.WithLabelValues(chain).Inc()
		s.log.Error().Err(err).Str("subject", msg.Subject()).Msg("undecodable event dropped")
		msg.Term()
		return
	}
	if evt.Meta().ChainID != chainID {
		s.metrics.IngestDecodeErrors.WithLabelValues(chain).Inc()
		s.log.Error().
			Int64("subject_chain", chainID).
			Int64("payload_chain", evt.Meta().ChainID).
			Msg("chain mismatch between subject and payload")
		msg.Term()
		return
	}

	meta := evt.Meta()
	task := &core.Task{
		Event: evt,
		Record: &core.LogRecord{
			ChainID:        meta.ChainID,
			BlockNumber:    meta.BlockNumber,
			BlockTimestamp: meta.BlockTimestamp,
			LogIndex:       meta.LogIndex,
			Kind:           kind,
			IdempotencyKey: evt.IdempotencyKey(),
			Payload:        msg.Data(),
		},
		Ack: func() error {
			s.metrics.IngestOutcomes.WithLabelValues(chain, "ack").Inc()
			return msg.Ack()
		},
		Nak: func() error {
			s.metrics.IngestOutcomes.WithLabelValues(chain, "nak").Inc()
			return msg.Nak()
		},
	}

	if err := s.dispatcher.Submit(task); err != nil {
		s.metrics.IngestOutcomes.WithLabelValues(chain, "nak").Inc()
		msg.Nak()
	}
}

// rollbackJSON is the wire form of a reorg notice.
type rollbackJSON struct {
	RequestID string `json:"request_id"`
	ChainID   int64  `json:"chain_id"`
	FromBlock uint64 `json:"from_block"`
	ToBlock   uint64 `json:"to_block"`
}

func (s *Subscriber) handleRollback(chainID int64, chain string, msg jetstream.Msg) {
	var j rollbackJSON
	if err := json.Unmarshal(msg.Data(), &j); err != nil {
		s.metrics.IngestDecodeErrors.WithLabelValues(chain).Inc()
		s.log.Error().Err(err).Msg("undecodable rollback notice dropped")
		msg.Term()
		return
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		requestID = uuid.New()
	}

	notice := event.RollbackNotice{
		RequestID: requestID,
		ChainID:   chainID,
		FromBlock: j.FromBlock,
		ToBlock:   j.ToBlock,
	}
	if err := s.dispatcher.Rollback(notice); err != nil {
		s.log.Error().Err(err).
			Int64("chain", chainID).
			Uint64("from_block", j.FromBlock).
			Msg("rollback failed, redelivering")
		msg.Nak()
		return
	}
	msg.Ack()
}

// kindFromSubject extracts the event kind from chain.<id>.events.<kind>.
func kindFromSubject(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 {
		return subject
	}
	return subject[idx+1:]
}

// Stop halts all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.log.Info().Msg("chain subscribers stopped")
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
