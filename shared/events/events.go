// Package events holds the channel, key and subject names shared by the
// gateway that publishes lot events and the services that consume them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// ChannelPrefix prefixes the Redis Pub/Sub channel of each lot
	ChannelPrefix = "lot_events:"
	// ChannelPattern matches every lot channel
	ChannelPattern = ChannelPrefix + "*"

	// StreamName is the JetStream stream carrying lot events for archival
	StreamName = "LOT_EVENTS"
	// SubjectPrefix prefixes the JetStream subject of each lot
	SubjectPrefix = "lot.events."
	// SubjectWildcard matches every lot subject
	SubjectWildcard = SubjectPrefix + "*"
)

// Channel returns the Redis channel for a lot
func Channel(lotID string) string { return ChannelPrefix + lotID }

// LotIDFromChannel extracts the lot id from a channel name.
// Example: "lot_events:P-123" -> "P-123"
func LotIDFromChannel(channel string) string {
	id, ok := strings.CutPrefix(channel, ChannelPrefix)
	if !ok {
		return ""
	}
	return id
}

// SnapshotKey holds the latest JSON snapshot of a lot
func SnapshotKey(lotID string) string { return fmt.Sprintf("lot:%s:snapshot", lotID) }

// VersionKey holds the version of the stored snapshot
func VersionKey(lotID string) string { return fmt.Sprintf("lot:%s:version", lotID) }

// Subject returns the JetStream subject for a lot
func Subject(lotID string) string { return SubjectPrefix + lotID }

// StreamConfig describes the archival stream. Both the publisher and the
// consumer declare it so either may start first.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Lot lifecycle and bid events for archival",
		Subjects:    []string{SubjectWildcard},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  2 * time.Minute,
		Replicas:    1,
	}
}

// EnsureStream creates or updates the archival stream
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, StreamConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", StreamName, err)
	}
	return stream, nil
}

// Encode marshals an event for either transport
func Encode(event *models.LotEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventID, err)
	}
	return data, nil
}

// Decode is the inverse of Encode and rejects events missing their identity
func Decode(data []byte) (*models.LotEvent, error) {
	var event models.LotEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.EventID == "" || event.LotID == "" || event.Type == "" {
		return nil, fmt.Errorf("event is missing id, lot or type")
	}
	return &event, nil
}
