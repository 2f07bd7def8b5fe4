package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes settlement notifications to NATS for downstream
// consumers. Notices are fire-and-forget: published after persistence is
// confirmed, with no acknowledgement from subscribers.
// Subjects follow the pattern: wager.ledger.events.{event_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableNotice
}

// PublishableNotice is a settlement notification ready for outbound publishing.
type PublishableNotice struct {
	Sequence       int64       `json:"sequence"`
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	Market         *string     `json:"market,omitempty"`
	Payload        interface{} `json:"payload"`
	StateHash      []byte      `json:"state_hash"`
	Timestamp      time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableNotice) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case notice, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, notice); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", notice.Sequence, err)
				// Non-fatal: downstream consumers can query the instruction log directly
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, notice PublishableNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	// Build subject: wager.ledger.events.{event_type}.{market}
	subject := fmt.Sprintf("wager.ledger.events.%s", notice.EventType)
	if notice.Market != nil {
		subject = fmt.Sprintf("%s.%s", subject, *notice.Market)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "WAGER_LEDGER_EVENTS",
		Subjects:  []string{"wager.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream WAGER_LEDGER_EVENTS")
	return nil
}
