package auction

import (
	"sync/atomic"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
)

// lot pairs the mutable record and ledger with the scope guarding them.
// rec and ledger may only be read or written while scope is held; view is
// the last published snapshot and is safe to load at any time.
type lot struct {
	scope  *scope
	rec    models.Lot
	ledger *ledger
	view   atomic.Pointer[models.LotSnapshot]
}

func newLot(rec models.Lot) *lot {
	l := &lot{
		scope:  newScope(),
		rec:    rec,
		ledger: newLedger(rec.ID),
	}
	l.publish()
	return l
}

// publish stores an immutable snapshot of the current state
func (l *lot) publish() *models.LotSnapshot {
	current := l.ledger.currentPrice(l.rec.StartingPrice)
	snap := &models.LotSnapshot{
		Lot:           l.rec,
		CurrentPrice:  current,
		MinimumBid:    l.minimumBid(),
		CurrentWinner: l.ledger.currentWinner(),
		UniqueBidders: l.ledger.uniqueBidderCount(),
		BidCount:      l.ledger.len(),
		Bids:          l.ledger.list(),
	}
	if high, ok := l.ledger.highest(); ok {
		snap.WinningBidID = high.ID
	}
	l.view.Store(snap)
	return snap
}

func (l *lot) minimumBid() int64 {
	minimum, _ := minimumBid(l.ledger.currentPrice(l.rec.StartingPrice), l.rec.BidIncrement)
	return minimum
}

func (l *lot) snapshot() *models.LotSnapshot {
	return l.view.Load()
}

// touch marks a committed mutation
func (l *lot) touch(now time.Time) {
	l.rec.Version++
	l.rec.UpdatedAt = now
}

func (l *lot) activate(now time.Time, defaultDuration time.Duration) error {
	r := &l.rec
	if r.Status != models.LotStatusScheduled {
		return &InvalidTransitionError{LotID: r.ID, From: r.Status, To: models.LotStatusActive}
	}

	start := r.AuctionStartTime
	if start.IsZero() {
		start = now
	}
	end := r.AuctionEndTime
	if end.IsZero() {
		if defaultDuration <= 0 {
			return validation("auction_end_time", "not set and no default duration configured")
		}
		end = start.Add(defaultDuration)
	}
	if !end.After(start) {
		return validation("auction_end_time", "must be after auction_start_time")
	}
	if !end.After(now) {
		return validation("auction_end_time", "already elapsed")
	}

	r.Status = models.LotStatusActive
	r.AuctionStartTime = start
	r.AuctionEndTime = end
	return nil
}

// finish reports whether anything changed. Finishing a finished lot is a
// successful no-op.
func (l *lot) finish(now time.Time, reason models.FinishReason) (bool, error) {
	r := &l.rec
	switch r.Status {
	case models.LotStatusFinished:
		return false, nil
	case models.LotStatusScheduled:
		if reason == models.FinishReasonExpired {
			return false, &InvalidTransitionError{LotID: r.ID, From: r.Status, To: models.LotStatusFinished}
		}
		reason = models.FinishReasonCancelled
	}

	r.Status = models.LotStatusFinished
	r.FinishReason = reason
	r.FinishedAt = now
	return true, nil
}

func (l *lot) updateIncrement(increment int64) error {
	r := &l.rec
	if r.Status == models.LotStatusFinished {
		return &InvalidStateError{LotID: r.ID, Op: "update increment", Status: r.Status}
	}
	if increment <= 0 {
		return validation("increment", "must be positive")
	}
	if _, ok := minimumBid(l.ledger.currentPrice(r.StartingPrice), increment); !ok {
		return validation("increment", "too large for the current price")
	}
	r.BidIncrement = increment
	return nil
}

func (l *lot) extendEndTime(d time.Duration, cause models.ExtensionCause) error {
	r := &l.rec
	if r.Status != models.LotStatusActive {
		return &InvalidStateError{LotID: r.ID, Op: "extend end time", Status: r.Status}
	}
	if d <= 0 {
		return validation("duration", "must be positive")
	}
	end := r.AuctionEndTime.Add(d)
	if !end.After(r.AuctionEndTime) {
		return validation("duration", "end time out of range")
	}
	r.AuctionEndTime = end
	r.IsExtended = true
	r.ExtensionCount++
	r.LastExtension = cause
	return nil
}

// open reports whether a bid at now may be considered. A lot activated
// ahead of its recorded start time only opens once that time is reached.
func (l *lot) open(now time.Time) bool {
	r := &l.rec
	return r.Status == models.LotStatusActive &&
		!now.Before(r.AuctionStartTime) &&
		now.Before(r.AuctionEndTime)
}

func (l *lot) expired(now time.Time) bool {
	return l.rec.Status == models.LotStatusActive && !now.Before(l.rec.AuctionEndTime)
}
