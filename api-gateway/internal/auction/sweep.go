package auction

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aaronwang/lot-auction/shared/models"
	"golang.org/x/sync/errgroup"
)

// SweepResult summarises one sweep pass
type SweepResult struct {
	Candidates int
	Finished   int
	Skipped    int
}

// Sweep finishes every active lot whose end time is at or before now.
// Candidates are chosen from snapshots and re-checked under the scope, so a
// bid that extended the lot in between keeps it open. Busy lots are skipped
// and picked up by the next pass. Sweep is safe to re-run.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var due []string
	e.lots.Range(func(k, v any) bool {
		snap := v.(*lot).snapshot()
		if snap.Status == models.LotStatusActive && !now.Before(snap.AuctionEndTime) {
			due = append(due, k.(string))
		}
		return true
	})

	result := SweepResult{Candidates: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	var finished, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.cfg.SweepConcurrency, 1))

	for _, id := range due {
		g.Go(func() error {
			done, err := e.finishExpired(gctx, id, now)
			switch {
			case err == nil && done:
				finished.Add(1)
			case err == nil:
				skipped.Add(1)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				skipped.Add(1)
				e.logger.Warn("Sweep skipped lot",
					slog.String("lot_id", id),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}

	err := g.Wait()
	result.Finished = int(finished.Load())
	result.Skipped = int(skipped.Load())
	return result, err
}

func (e *Engine) finishExpired(ctx context.Context, lotID string, now time.Time) (bool, error) {
	var done bool
	_, err := e.mutate(ctx, lotID, now, func(l *lot) ([]change, error) {
		if !l.expired(now) {
			return nil, nil
		}
		if _, err := l.finish(now, models.FinishReasonExpired); err != nil {
			return nil, err
		}
		done = true
		return []change{e.finished(l)}, nil
	})
	return done, err
}

// RunSweeper sweeps immediately and then every SweepInterval until ctx ends.
func (e *Engine) RunSweeper(ctx context.Context) error {
	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Sweeper started", slog.Duration("interval", interval))
	for {
		e.sweepOnce(ctx)

		select {
		case <-ctx.Done():
			e.logger.Info("Sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) sweepOnce(ctx context.Context) {
	start := time.Now()
	res, err := e.Sweep(ctx, e.clock())
	if err != nil && ctx.Err() == nil {
		e.logger.Error("Sweep failed", slog.Any("error", err))
		return
	}
	if res.Candidates > 0 {
		e.logger.Info("Sweep completed",
			slog.Int("candidates", res.Candidates),
			slog.Int("finished", res.Finished),
			slog.Int("skipped", res.Skipped),
			slog.Duration("took", time.Since(start)),
		)
	}
}
