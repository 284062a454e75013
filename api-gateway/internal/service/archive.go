package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaronwang/lot-auction/shared/events"
	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ArchivePublisher sends lot events to JetStream for the archival worker.
// JetStream gives at-least-once delivery; the event id is used as the
// message id so a retried publish is de-duplicated by the server.
type ArchivePublisher struct {
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewArchivePublisher creates the JetStream context and makes sure the
// stream exists
func NewArchivePublisher(natsConn *nats.Conn, logger *slog.Logger) (*ArchivePublisher, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := events.EnsureStream(ctx, js); err != nil {
		return nil, err
	}
	logger.Info("JetStream stream ready", slog.String("stream", events.StreamName))

	return &ArchivePublisher{js: js, logger: logger}, nil
}

// Name implements EventSink
func (p *ArchivePublisher) Name() string { return "jetstream" }

// PublishLotEvent implements EventSink
func (p *ArchivePublisher) PublishLotEvent(ctx context.Context, event *models.LotEvent) error {
	data, err := events.Encode(event)
	if err != nil {
		return err
	}

	subject := events.Subject(event.LotID)
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	p.logger.Debug("Archived event",
		slog.String("subject", subject),
		slog.Uint64("seq", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate),
	)
	return nil
}
