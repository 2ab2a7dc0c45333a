package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-timeline/internal/likes"
)

// Handler applies a like persisted elsewhere.
type Handler interface {
	ApplyLikeEvent(ctx context.Context, ev likes.Event) error
}

// messageReader is the subset of *kafka.Reader used by the listener.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Read failures back off from minReadBackoff, doubling up to maxReadBackoff.
// A successful read resets the delay.
const (
	minReadBackoff = 250 * time.Millisecond
	maxReadBackoff = 10 * time.Second
)

// Listener consumes like events from peer instances.
type Listener struct {
	reader  messageReader
	handler Handler
	origin  string
	logger  zerolog.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

// NewListener creates a listener. Events whose origin header equals
// cfg.Origin were published by this instance and are skipped.
func NewListener(cfg Config, handler Handler, logger zerolog.Logger) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     3 * time.Second,
	})
	return newListener(reader, handler, cfg.Origin, logger)
}

func newListener(r messageReader, handler Handler, origin string, logger zerolog.Logger) *Listener {
	return &Listener{
		reader:  r,
		handler: handler,
		origin:  origin,
		logger:  logger.With().Str("component", "like_listener").Logger(),
		wait:    sleep,
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting like listener")

	var delay time.Duration
	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err == nil {
			delay = 0
			l.handle(ctx, msg)
			continue
		}
		if ctx.Err() == nil {
			delay = nextReadBackoff(delay)
			l.logger.Error().Err(err).Dur("retry_in", delay).Msg("failed to read message from Kafka")
			err = l.wait(ctx, delay)
		}
		if ctx.Err() != nil {
			l.logger.Info().Msg("like listener stopped via context cancellation")
			return ctx.Err()
		}
		if err != nil {
			return err
		}
	}
}

func nextReadBackoff(d time.Duration) time.Duration {
	if d < minReadBackoff {
		return minReadBackoff
	}
	return min(2*d, maxReadBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Listener) handle(ctx context.Context, msg kafka.Message) {
	if t := header(msg, HeaderEventType); t != "" && t != EventTypeLikePersisted {
		return
	}
	if origin := header(msg, HeaderOrigin); origin != "" && origin == l.origin {
		return
	}

	var ev likes.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		l.logger.Error().Err(err).
			Str("raw_value", string(msg.Value)).
			Msg("failed to unmarshal like event")
		return
	}
	if ev.Status != "success" {
		return
	}

	l.logger.Debug().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("paper_id", ev.PaperID).
		Int64("count", ev.Count).
		Msg("received like event")

	if err := l.handler.ApplyLikeEvent(ctx, ev); err != nil {
		l.logger.Warn().Err(err).
			Str("event_id", ev.EventID).
			Str("paper_id", ev.PaperID).
			Msg("failed to apply like event")
	}
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing like listener")
	return l.reader.Close()
}
