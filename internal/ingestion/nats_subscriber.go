package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds instructions
// into the deterministic core via the instructionChan. NATS JetStream is the
// primary high-throughput ingestion surface; each subject maps to one
// instruction type.
type NATSSubscriber struct {
	js              jetstream.JetStream
	instructionChan chan<- RawInstruction
	consumers       []jetstream.ConsumeContext
}

// RawInstruction is the received-but-untyped instruction from NATS (or the
// HTTP ingest surface), ready for the shell to validate and convert into a
// typed instruction.Instruction before sending to the core.
type RawInstruction struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to instruction types.
type SubjectConfig struct {
	Subject         string
	InstructionType string
	ConsumerName    string
	StreamName      string
}

// DefaultSubjects returns the standard subject configuration. Market-scoped
// subjects carry the market seed as the final token so producers can partition
// by market.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "wager.config.>", InstructionType: "InitializeConfig", ConsumerName: "ledger-config", StreamName: "WAGER_CONFIG"},
		{Subject: "wager.deposits.>", InstructionType: "FundAccount", ConsumerName: "ledger-deposits", StreamName: "WAGER_DEPOSITS"},
		{Subject: "wager.markets.open.>", InstructionType: "OpenMarket", ConsumerName: "ledger-market-open", StreamName: "WAGER_MARKETS"},
		{Subject: "wager.markets.resolve.>", InstructionType: "ResolveMarket", ConsumerName: "ledger-market-resolve", StreamName: "WAGER_MARKETS"},
		{Subject: "wager.bets.place.>", InstructionType: "PlaceBet", ConsumerName: "ledger-bet-place", StreamName: "WAGER_BETS"},
		{Subject: "wager.bets.claim.>", InstructionType: "ClaimPayout", ConsumerName: "ledger-bet-claim", StreamName: "WAGER_BETS"},
	}
}

// InstructionTypeForSubject resolves a subject to its instruction type by
// prefix match against the configured subjects.
func InstructionTypeForSubject(subject string) (string, bool) {
	for _, cfg := range DefaultSubjects() {
		prefix := strings.TrimSuffix(cfg.Subject, ">")
		if strings.HasPrefix(subject, prefix) {
			return cfg.InstructionType, true
		}
	}
	return "", false
}

// SubjectForInstructionType is the inverse mapping, used by the HTTP ingest
// surface to synthesize a subject for instructions that did not arrive via NATS.
func SubjectForInstructionType(instructionType string) (string, bool) {
	for _, cfg := range DefaultSubjects() {
		if cfg.InstructionType == instructionType {
			return strings.TrimSuffix(cfg.Subject, ">") + "http", true
		}
	}
	return "", false
}

func NewNATSSubscriber(js jetstream.JetStream, instructionChan chan<- RawInstruction) *NATSSubscriber {
	return &NATSSubscriber{
		js:              js,
		instructionChan: instructionChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawInstruction{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.instructionChan <- raw:
				// Successfully queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "WAGER_CONFIG",
			Subjects:  []string{"wager.config.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "WAGER_DEPOSITS",
			Subjects:  []string{"wager.deposits.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "WAGER_MARKETS",
			Subjects:  []string{"wager.markets.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "WAGER_BETS",
			Subjects:  []string{"wager.bets.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
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
