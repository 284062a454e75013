// Package auction implements the in-memory lot engine: the bid ledger, the
// lot lifecycle, bid admission and administrative overrides. Every mutation
// of a lot runs inside that lot's exclusive scope; reads are served from
// snapshots and never block.
package auction

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/aaronwang/lot-auction/api-gateway/internal/extension"
	"github.com/aaronwang/lot-auction/shared/models"
	"github.com/google/uuid"
)

var lotIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Config holds engine tunables
type Config struct {
	ExtensionWindow  time.Duration
	ExtensionAmount  time.Duration
	DefaultDuration  time.Duration // end time assigned on activation when the listing left it unset
	LockTimeout      time.Duration
	SweepInterval    time.Duration
	SweepConcurrency int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		ExtensionWindow:  15 * time.Minute,
		ExtensionAmount:  15 * time.Minute,
		DefaultDuration:  24 * time.Hour,
		LockTimeout:      500 * time.Millisecond,
		SweepInterval:    10 * time.Second,
		SweepConcurrency: 8,
	}
}

// Notifier receives committed events. Implementations must not block;
// delivery failures never affect the engine.
type Notifier interface {
	Notify(ctx context.Context, event models.LotEvent)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, event models.LotEvent)

func (f NotifierFunc) Notify(ctx context.Context, event models.LotEvent) { f(ctx, event) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.LotEvent) {}

// Engine is the registry of live lots
type Engine struct {
	cfg      Config
	policy   extension.Policy
	lots     sync.Map // lotID -> *lot
	notifier Notifier
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithNotifier sets the event receiver
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now for the sweeper loop
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates an empty engine
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		policy:   extension.Policy{Window: cfg.ExtensionWindow, Amount: cfg.ExtensionAmount},
		notifier: nopNotifier{},
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's configuration
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) lookup(lotID string) (*lot, error) {
	v, ok := e.lots.Load(lotID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLotNotFound, lotID)
	}
	return v.(*lot), nil
}

// change is what a mutation reports back for event dispatch
type change struct {
	typ            models.LotEventType
	bid            *models.Bid
	previousPrice  int64
	extendedBy     time.Duration
	extensionCause models.ExtensionCause
	finishReason   models.FinishReason
}

// mutate runs fn inside the lot's scope. If fn reports changes the lot is
// re-published before the scope is released, and the resulting events are
// dispatched afterwards. fn must leave the lot untouched when it fails.
func (e *Engine) mutate(ctx context.Context, lotID string, now time.Time, fn func(l *lot) ([]change, error)) (*models.LotSnapshot, error) {
	l, err := e.lookup(lotID)
	if err != nil {
		return nil, err
	}

	if err := l.scope.acquire(ctx, e.cfg.LockTimeout); err != nil {
		if errors.Is(err, errScopeTimeout) {
			return nil, &ConflictError{LotID: lotID, Reason: "lot is busy, retry with fresh state"}
		}
		return nil, err
	}

	changes, err := fn(l)
	if err != nil {
		l.scope.release()
		return nil, err
	}
	if len(changes) == 0 {
		snap := l.snapshot()
		l.scope.release()
		return snap, nil
	}

	l.touch(now)
	snap := l.publish()
	l.scope.release()

	e.dispatch(ctx, snap, now, changes)
	return snap, nil
}

func (e *Engine) dispatch(ctx context.Context, snap *models.LotSnapshot, now time.Time, changes []change) {
	view := *snap
	view.Bids = nil

	for _, c := range changes {
		e.notifier.Notify(ctx, models.LotEvent{
			EventID:        uuid.NewString(),
			Type:           c.typ,
			LotID:          snap.ID,
			Version:        snap.Version,
			Timestamp:      now,
			Snapshot:       &view,
			Bid:            c.bid,
			PreviousPrice:  c.previousPrice,
			ExtendedBy:     c.extendedBy,
			ExtensionCause: c.extensionCause,
			FinishReason:   c.finishReason,
		})
	}
}

// CreateLot registers a new Scheduled lot on behalf of the listing workflow.
func (e *Engine) CreateLot(ctx context.Context, draft models.LotDraft, now time.Time) (*models.LotSnapshot, error) {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	rec := models.Lot{
		ID:               draft.ID,
		Vehicle:          draft.Vehicle,
		OwnerRef:         draft.OwnerRef,
		Status:           models.LotStatusScheduled,
		StartingPrice:    draft.StartingPrice,
		BidIncrement:     draft.BidIncrement,
		AuctionStartTime: draft.AuctionStartTime,
		AuctionEndTime:   draft.AuctionEndTime,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}

	l := newLot(rec)
	if _, loaded := e.lots.LoadOrStore(rec.ID, l); loaded {
		return nil, fmt.Errorf("%w: %s", ErrLotExists, rec.ID)
	}

	snap := l.snapshot()
	e.logger.Info("Lot created",
		slog.String("lot_id", rec.ID),
		slog.String("plate", rec.Vehicle.Plate),
		slog.Int64("starting_price", rec.StartingPrice),
		slog.Int64("bid_increment", rec.BidIncrement),
	)
	e.dispatch(ctx, snap, now, []change{{typ: models.EventLotCreated}})
	return snap, nil
}

func validateDraft(d models.LotDraft) error {
	if !lotIDPattern.MatchString(d.ID) {
		return validation("id", "must be 1-64 letters, digits, '-' or '_'")
	}
	if d.StartingPrice < 0 {
		return validation("starting_price", "must not be negative")
	}
	if d.BidIncrement <= 0 {
		return validation("bid_increment", "must be positive")
	}
	if _, ok := minimumBid(d.StartingPrice, d.BidIncrement); !ok {
		return validation("bid_increment", "too large for the starting price")
	}
	if !d.AuctionStartTime.IsZero() && !d.AuctionEndTime.IsZero() && !d.AuctionEndTime.After(d.AuctionStartTime) {
		return validation("auction_end_time", "must be after auction_start_time")
	}
	return nil
}

// Restore loads an archived lot and its ledger without emitting events.
// Bids must be in ledger order and strictly increasing.
func (e *Engine) Restore(rec models.Lot, bids []models.Bid) error {
	if !lotIDPattern.MatchString(rec.ID) {
		return validation("id", "must be 1-64 letters, digits, '-' or '_'")
	}
	if !rec.Status.Valid() {
		return validation("status", fmt.Sprintf("unknown status %q", rec.Status))
	}
	if rec.StartingPrice < 0 {
		return validation("starting_price", "must not be negative")
	}
	if rec.BidIncrement <= 0 {
		return validation("bid_increment", "must be positive")
	}

	l := &lot{scope: newScope(), rec: rec, ledger: newLedger(rec.ID)}
	for i, b := range bids {
		if b.LotID != rec.ID {
			return validation("bids", fmt.Sprintf("bid %s belongs to lot %s", b.ID, b.LotID))
		}
		if err := l.ledger.append(b, i); err != nil {
			return fmt.Errorf("failed to restore lot %s: %w", rec.ID, err)
		}
	}
	if _, ok := minimumBid(l.ledger.currentPrice(rec.StartingPrice), rec.BidIncrement); !ok {
		return validation("bid_increment", "too large for the current price")
	}
	l.publish()

	if _, loaded := e.lots.LoadOrStore(rec.ID, l); loaded {
		return fmt.Errorf("%w: %s", ErrLotExists, rec.ID)
	}
	return nil
}

// Snapshot returns the last published state of a lot without locking.
func (e *Engine) Snapshot(lotID string) (*models.LotSnapshot, error) {
	l, err := e.lookup(lotID)
	if err != nil {
		return nil, err
	}
	return l.snapshot(), nil
}

// List returns snapshots ordered by end time, soonest first. Lots without
// an end time sort last. An empty status matches every lot.
func (e *Engine) List(status models.LotStatus) []*models.LotSnapshot {
	var out []*models.LotSnapshot
	e.lots.Range(func(_, v any) bool {
		snap := v.(*lot).snapshot()
		if status == "" || snap.Status == status {
			out = append(out, snap)
		}
		return true
	})

	slices.SortFunc(out, func(a, b *models.LotSnapshot) int {
		switch {
		case a.AuctionEndTime.IsZero() && !b.AuctionEndTime.IsZero():
			return 1
		case !a.AuctionEndTime.IsZero() && b.AuctionEndTime.IsZero():
			return -1
		}
		if c := a.AuctionEndTime.Compare(b.AuctionEndTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
