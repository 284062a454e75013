package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aaronwang/lot-auction/shared/events"
	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/redis/go-redis/v9"
)

// publishScript stores the snapshot only when its version is newer than the
// stored one, then publishes the event. Deliveries may arrive out of order;
// the stored snapshot never goes backwards.
//
// KEYS[1]: lot:{id}:snapshot
// KEYS[2]: lot:{id}:version
// ARGV[1]: snapshot version
// ARGV[2]: snapshot JSON
// ARGV[3]: channel
// ARGV[4]: event JSON
const publishScript = `
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
local incoming = tonumber(ARGV[1])
local stored = 0

if incoming > current then
	redis.call('SET', KEYS[1], ARGV[2])
	redis.call('SET', KEYS[2], incoming)
	stored = 1
end

redis.call('PUBLISH', ARGV[3], ARGV[4])
return stored
`

// Client publishes lot events to Redis for the broadcast service
type Client struct {
	client    *redis.Client
	publisher *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
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

	return &Client{
		client:    rdb,
		publisher: redis.NewScript(publishScript),
	}, nil
}

// Name implements service.EventSink
func (c *Client) Name() string { return "redis" }

// PublishLotEvent stores the event's snapshot as the lot's latest state and
// publishes the event on the lot's channel, atomically.
func (c *Client) PublishLotEvent(ctx context.Context, event *models.LotEvent) error {
	if event.Snapshot == nil {
		return fmt.Errorf("event %s has no snapshot", event.EventID)
	}

	snapshotJSON, err := json.Marshal(event.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	eventJSON, err := events.Encode(event)
	if err != nil {
		return err
	}

	keys := []string{events.SnapshotKey(event.LotID), events.VersionKey(event.LotID)}
	args := []any{event.Version, snapshotJSON, events.Channel(event.LotID), eventJSON}

	if err := c.publisher.Run(ctx, c.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("failed to execute publish script: %w", err)
	}
	return nil
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
