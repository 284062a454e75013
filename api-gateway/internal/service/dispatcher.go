package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
)

// EventSink is a downstream consumer of committed lot events
type EventSink interface {
	Name() string
	PublishLotEvent(ctx context.Context, event *models.LotEvent) error
}

// Dispatcher fans committed events out to every sink in the background.
// A failed delivery is logged and otherwise ignored: the write path never
// depends on broadcast or archival.
type Dispatcher struct {
	sinks   []EventSink
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the given sinks
func NewDispatcher(logger *slog.Logger, sinks ...EventSink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Notify implements auction.Notifier
func (d *Dispatcher) Notify(ctx context.Context, event models.LotEvent) {
	// Deliveries outlive the request that caused them.
	ctx = context.WithoutCancel(ctx)

	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			if err := sink.PublishLotEvent(ctx, &event); err != nil {
				d.logger.Warn("Event delivery failed",
					slog.String("sink", sink.Name()),
					slog.String("event_id", event.EventID),
					slog.String("type", string(event.Type)),
					slog.String("lot_id", event.LotID),
					slog.Any("error", err),
				)
				return
			}
			d.logger.Debug("Event delivered",
				slog.String("sink", sink.Name()),
				slog.String("event_id", event.EventID),
				slog.String("type", string(event.Type)),
			)
		}()
	}
}

// Wait blocks until in-flight deliveries finish or ctx ends
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
