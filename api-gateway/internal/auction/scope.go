package auction

import (
	"context"
	"errors"
	"time"
)

var errScopeTimeout = errors.New("mutation scope busy")

// scope is the exclusive mutation region of one lot. A one-slot channel is
// used instead of sync.Mutex so acquisition can give up after a timeout.
type scope struct {
	slot chan struct{}
}

func newScope() *scope {
	return &scope{slot: make(chan struct{}, 1)}
}

func (s *scope) acquire(ctx context.Context, timeout time.Duration) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.slot <- struct{}{}:
		return nil
	case <-timer.C:
		return errScopeTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *scope) release() {
	<-s.slot
}
