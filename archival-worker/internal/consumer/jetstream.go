package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaronwang/lot-auction/shared/events"
	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DurableName is the consumer name shared by every archival worker replica
const DurableName = "archival-worker"

// EventStore persists lot events
type EventStore interface {
	ApplyEvent(ctx context.Context, event *models.LotEvent) error
}

// outcome is how a message is settled
type outcome int

const (
	outcomeAck outcome = iota
	outcomeNak
	outcomeTerm
)

// Consumer pulls lot events from JetStream and persists them
type Consumer struct {
	js       jetstream.JetStream
	store    EventStore
	logger   *slog.Logger
	timeout  time.Duration
	nakDelay time.Duration
}

// NewConsumer creates a consumer on an existing NATS connection
func NewConsumer(natsConn *nats.Conn, store EventStore, logger *slog.Logger) (*Consumer, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Consumer{
		js:       js,
		store:    store,
		logger:   logger,
		timeout:  10 * time.Second,
		nakDelay: 2 * time.Second,
	}, nil
}

// Start consumes until ctx is cancelled. The durable consumer uses explicit
// acks, so a message is only removed once it was persisted.
func (c *Consumer) Start(ctx context.Context) error {
	if _, err := events.EnsureStream(ctx, c.js); err != nil {
		return err
	}

	cons, err := c.js.CreateOrUpdateConsumer(ctx, events.StreamName, jetstream.ConsumerConfig{
		Durable:       DurableName,
		Description:   "Persists lot events to PostgreSQL",
		FilterSubject: events.SubjectWildcard,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    10,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		c.settle(msg, c.process(ctx, msg.Data()))
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer consumeCtx.Stop()

	c.logger.Info("Consuming lot events",
		slog.String("stream", events.StreamName),
		slog.String("consumer", DurableName),
	)

	<-ctx.Done()
	return nil
}

// process persists one message and decides how to settle it
func (c *Consumer) process(ctx context.Context, data []byte) outcome {
	event, err := events.Decode(data)
	if err != nil {
		// Redelivery cannot fix a malformed payload.
		c.logger.Error("Dropping malformed event", slog.Any("error", err))
		return outcomeTerm
	}

	dbCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.ApplyEvent(dbCtx, event); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "Failed to persist event",
			slog.String("event_id", event.EventID),
			slog.String("lot_id", event.LotID),
			slog.Any("error", err),
		)
		return outcomeNak
	}

	c.logger.Info("Persisted event",
		slog.String("event_id", event.EventID),
		slog.String("type", string(event.Type)),
		slog.String("lot_id", event.LotID),
		slog.Uint64("version", event.Version),
	)
	return outcomeAck
}

func (c *Consumer) settle(msg jetstream.Msg, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = msg.Ack()
	case outcomeNak:
		err = msg.NakWithDelay(c.nakDelay)
	case outcomeTerm:
		err = msg.Term()
	}
	if err != nil {
		c.logger.Warn("Failed to settle message", slog.String("subject", msg.Subject()), slog.Any("error", err))
	}
}
