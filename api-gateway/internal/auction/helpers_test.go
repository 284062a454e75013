package auction

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []models.LotEvent
}

func (r *recorder) Notify(_ context.Context, ev models.LotEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []models.LotEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LotEventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e := NewEngine(DefaultConfig(),
		WithNotifier(rec),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return t0 }),
	)
	return e, rec
}

// activeLot creates and activates a lot ending at t0+1h.
func activeLot(t *testing.T, e *Engine, id string, starting, increment int64) {
	t.Helper()
	ctx := context.Background()
	_, err := e.CreateLot(ctx, models.LotDraft{
		ID:             id,
		Vehicle:        models.Vehicle{Plate: "P" + id, Make: "Toyota", Line: "Hilux", Year: 2019},
		StartingPrice:  starting,
		BidIncrement:   increment,
		AuctionEndTime: t0.Add(time.Hour),
	}, t0.Add(-time.Hour))
	require.NoError(t, err)
	_, err = e.Activate(ctx, id, t0)
	require.NoError(t, err)
}
