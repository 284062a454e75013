package auction

import (
	"context"
	"log/slog"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
)

// Activate moves a lot from Scheduled to Active.
func (e *Engine) Activate(ctx context.Context, lotID string, now time.Time) (*models.LotSnapshot, error) {
	snap, err := e.mutate(ctx, lotID, now, func(l *lot) ([]change, error) {
		if err := l.activate(now, e.cfg.DefaultDuration); err != nil {
			return nil, err
		}
		return []change{{typ: models.EventLotActivated}}, nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Lot activated",
		slog.String("lot_id", lotID),
		slog.Time("end_time", snap.AuctionEndTime),
	)
	return snap, nil
}

// Finish moves a lot to Finished. Calling it on a finished lot succeeds
// without changing anything. A Scheduled lot can only be finished as a
// cancellation; the expiry reason is rejected for it.
func (e *Engine) Finish(ctx context.Context, lotID string, now time.Time, reason models.FinishReason) (*models.LotSnapshot, error) {
	return e.mutate(ctx, lotID, now, func(l *lot) ([]change, error) {
		changed, err := l.finish(now, reason)
		if err != nil || !changed {
			return nil, err
		}
		return []change{e.finished(l)}, nil
	})
}

func (e *Engine) finished(l *lot) change {
	e.logger.Info("Lot finished",
		slog.String("lot_id", l.rec.ID),
		slog.String("reason", string(l.rec.FinishReason)),
		slog.String("winner", l.ledger.currentWinner()),
		slog.Int64("final_price", l.ledger.currentPrice(l.rec.StartingPrice)),
	)
	return change{typ: models.EventLotFinished, finishReason: l.rec.FinishReason}
}

// UpdateIncrement changes the minimum step for bids evaluated from now on.
// Past bids are not re-evaluated.
func (e *Engine) UpdateIncrement(ctx context.Context, lotID string, increment int64, now time.Time) (*models.LotSnapshot, error) {
	return e.mutate(ctx, lotID, now, func(l *lot) ([]change, error) {
		if err := l.updateIncrement(increment); err != nil {
			return nil, err
		}
		return []change{{typ: models.EventIncrementUpdated}}, nil
	})
}

// ExtendEndTime pushes the end time of an active lot by d.
func (e *Engine) ExtendEndTime(ctx context.Context, lotID string, d time.Duration, cause models.ExtensionCause, now time.Time) (*models.LotSnapshot, error) {
	return e.mutate(ctx, lotID, now, func(l *lot) ([]change, error) {
		if err := l.extendEndTime(d, cause); err != nil {
			return nil, err
		}
		return []change{{typ: models.EventLotExtended, extendedBy: d, extensionCause: cause}}, nil
	})
}

// Operator overrides. They share the bid path's scope, so an override and
// an in-flight bid on the same lot are strictly ordered.

// SetIncrement is the operator form of UpdateIncrement
func (e *Engine) SetIncrement(ctx context.Context, lotID string, increment int64, now time.Time) (*models.LotSnapshot, error) {
	return e.UpdateIncrement(ctx, lotID, increment, now)
}

// ExtendManually adds d to an active lot's end time. It is rejected once the
// end time has passed, since such a lot is only waiting for the sweep. Manual
// extensions never trigger the anti-sniping policy.
func (e *Engine) ExtendManually(ctx context.Context, lotID string, d time.Duration, now time.Time) (*models.LotSnapshot, error) {
	return e.mutate(ctx, lotID, now, func(l *lot) ([]change, error) {
		if l.expired(now) {
			return nil, &InvalidStateError{LotID: lotID, Op: "extend an elapsed auction", Status: l.rec.Status}
		}
		if err := l.extendEndTime(d, models.ExtensionCauseManual); err != nil {
			return nil, err
		}
		return []change{{typ: models.EventLotExtended, extendedBy: d, extensionCause: models.ExtensionCauseManual}}, nil
	})
}

// ForceActivate is the operator form of Activate
func (e *Engine) ForceActivate(ctx context.Context, lotID string, now time.Time) (*models.LotSnapshot, error) {
	return e.Activate(ctx, lotID, now)
}

// ForceFinish closes a lot immediately. Bids queued behind it on the scope
// observe the Finished status and fail with AuctionClosedError.
func (e *Engine) ForceFinish(ctx context.Context, lotID string, now time.Time) (*models.LotSnapshot, error) {
	return e.Finish(ctx, lotID, now, models.FinishReasonAdmin)
}
