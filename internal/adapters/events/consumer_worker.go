package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/contracts"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

// Poller abstracts the consumer so the worker loop can run against Kafka in
// deployment and a seeded fake in tests.
type Poller interface {
	Poll(ctx context.Context, max int) ([]Message, error)
}

// EventHandler is the application surface consumed events are fed into.
type EventHandler interface {
	HandleDomainEvent(ctx context.Context, event contracts.EventEnvelope) error
}

// ConsumerWorker polls the broker and dispatches envelopes to the
// application. Undecodable payloads and failed handlers go to the DLQ; the
// worker never stops on a single bad message.
type ConsumerWorker struct {
	logger   *slog.Logger
	poller   Poller
	handler  EventHandler
	dlq      ports.DLQPublisher
	interval time.Duration
	batch    int
}

func NewConsumerWorker(logger *slog.Logger, poller Poller, handler EventHandler, dlq ports.DLQPublisher, interval time.Duration, batch int) *ConsumerWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &ConsumerWorker{
		logger:   logger,
		poller:   poller,
		handler:  handler,
		dlq:      dlq,
		interval: interval,
		batch:    batch,
	}
}

// Run executes the poll-and-dispatch loop until context cancellation.
func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "consumer poll failed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "poll_events",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ConsumerWorker) processOnce(ctx context.Context) error {
	messages, err := w.poller.Poll(ctx, w.batch)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		var envelope contracts.EventEnvelope
		if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
			w.deadLetter(ctx, contracts.EventEnvelope{}, msg.Topic, "undecodable payload: "+err.Error())
			continue
		}
		if err := w.handler.HandleDomainEvent(ctx, envelope); err != nil {
			w.logger.WarnContext(ctx, "event handling failed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "handle_event",
				"outcome", "failure",
				"event_id", envelope.EventID,
				"event_type", envelope.EventType,
				"error", err,
			)
			w.deadLetter(ctx, envelope, msg.Topic, err.Error())
		}
	}
	return nil
}

func (w *ConsumerWorker) deadLetter(ctx context.Context, envelope contracts.EventEnvelope, topic, summary string) {
	now := time.Now().UTC()
	record := contracts.DLQRecord{
		OriginalEvent: envelope,
		ErrorSummary:  summary,
		RetryCount:    1,
		FirstSeenAt:   now,
		LastErrorAt:   now,
		SourceTopic:   topic,
		TraceID:       envelope.TraceID,
	}
	if err := w.dlq.PublishDLQ(ctx, record); err != nil {
		w.logger.ErrorContext(ctx, "dlq publish failed",
			"module", "events.consumer_worker",
			"layer", "adapter",
			"operation", "publish_dlq",
			"outcome", "failure",
			"event_id", envelope.EventID,
			"error", err,
		)
	}
}
