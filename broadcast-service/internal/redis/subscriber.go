package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaronwang/lot-auction/shared/events"
	"github.com/redis/go-redis/v9"
)

// Subscriber wraps Redis Pub/Sub functionality
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	logger *slog.Logger
}

// NewSubscriber creates a new Redis Pub/Sub subscriber
func NewSubscriber(addr, password string, db int, logger *slog.Logger) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Subscriber{
		client: rdb,
		logger: logger,
	}, nil
}

// SubscribeAll subscribes to every lot channel by pattern
func (s *Subscriber) SubscribeAll(ctx context.Context) error {
	pubsub := s.client.PSubscribe(ctx, events.ChannelPattern)
	// Wait for the subscription confirmation so errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", events.ChannelPattern, err)
	}
	s.pubsub = pubsub
	return nil
}

// Listen forwards messages to messageChan until ctx ends.
// This is a blocking operation - run in a goroutine
func (s *Subscriber) Listen(ctx context.Context, messageChan chan<- *Message) error {
	if s.pubsub == nil {
		return fmt.Errorf("not subscribed to any channel")
	}

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			if !json.Valid([]byte(msg.Payload)) {
				s.logger.Warn("Ignoring non-JSON message", slog.String("channel", msg.Channel))
				continue
			}

			lotID := events.LotIDFromChannel(msg.Channel)
			if lotID == "" {
				continue
			}

			select {
			case messageChan <- &Message{LotID: lotID, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Message is a lot event received from Pub/Sub
type Message struct {
	LotID   string
	Payload []byte // Raw JSON event
}

// Snapshot returns the latest stored snapshot of a lot, or nil when none
// has been stored yet
func (s *Subscriber) Snapshot(ctx context.Context, lotID string) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, events.SnapshotKey(lotID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}

// Close closes the subscriber
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}
