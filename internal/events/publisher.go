// Package events carries like events over Kafka. The publisher announces
// every persisted like; the listener applies likes persisted by peer
// instances so all servers show the same counts without refetching.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-timeline/internal/likes"
)

// Message header names.
const (
	HeaderOrigin        = "origin"
	HeaderEventType     = "event_type"
	HeaderCorrelationID = "correlation_id"
)

// EventTypeLikePersisted is the event_type header of like events.
const EventTypeLikePersisted = "paper.like.persisted"

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka settings shared by the publisher and the listener.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the like events topic.
	Topic string
	// GroupID is the consumer group of the listener. Each instance needs its
	// own group so that every instance sees every event.
	GroupID string
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int
	// BatchTimeout is the maximum time to wait for a batch to fill.
	BatchTimeout time.Duration
	// Origin identifies this instance in the origin header.
	Origin string
}

// Publisher implements likes.Publisher on a Kafka topic. Messages are keyed
// by paper id so events for one paper stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	origin string
	logger zerolog.Logger
}

var _ likes.Publisher = (*Publisher)(nil)

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(writer, cfg.Origin, logger)
}

func newPublisher(w messageWriter, origin string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		origin: origin,
		logger: logger.With().Str("component", "like_publisher").Logger(),
	}
}

// Publish writes ev as JSON.
func (p *Publisher) Publish(ctx context.Context, ev likes.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal like event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.PaperID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(EventTypeLikePersisted)},
			{Key: HeaderOrigin, Value: []byte(p.origin)},
		},
	}
	if ev.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(ev.CorrelationID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write like event %s: %w", ev.EventID, err)
	}

	p.logger.Debug().
		Str("event_id", ev.EventID).
		Str("paper_id", ev.PaperID).
		Int64("count", ev.Count).
		Msg("published like event")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
