// Package extension decides when a late bid pushes a lot's closing time.
package extension

import "time"

// ShouldExtend returns amount when bidTime lands strictly inside the trailing
// window before endTime. endTime must be the value in effect before the bid
// was accepted.
func ShouldExtend(endTime, bidTime time.Time, window, amount time.Duration) (time.Duration, bool) {
	if window <= 0 || amount <= 0 {
		return 0, false
	}
	if endTime.Sub(bidTime) < window {
		return amount, true
	}
	return 0, false
}

// Policy carries the configured window and extension amount
type Policy struct {
	Window time.Duration
	Amount time.Duration
}

// DefaultPolicy adds 15 minutes for any bid inside the last 15 minutes
func DefaultPolicy() Policy {
	return Policy{Window: 15 * time.Minute, Amount: 15 * time.Minute}
}

// Evaluate applies ShouldExtend with the policy's settings
func (p Policy) Evaluate(endTime, bidTime time.Time) (time.Duration, bool) {
	return ShouldExtend(endTime, bidTime, p.Window, p.Amount)
}
