package extension

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestShouldExtend(t *testing.T) {
	end := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		bidTime time.Time
		window  time.Duration
		amount  time.Duration
		wantOK  bool
		wantDur time.Duration
	}{
		{"well before window", end.Add(-time.Hour), 15 * time.Minute, 15 * time.Minute, false, 0},
		{"exactly at window edge", end.Add(-15 * time.Minute), 15 * time.Minute, 15 * time.Minute, false, 0},
		{"just inside window", end.Add(-15*time.Minute + time.Second), 15 * time.Minute, 15 * time.Minute, true, 15 * time.Minute},
		{"five minutes left", end.Add(-5 * time.Minute), 15 * time.Minute, 15 * time.Minute, true, 15 * time.Minute},
		{"last nanosecond", end.Add(-time.Nanosecond), 15 * time.Minute, 10 * time.Minute, true, 10 * time.Minute},
		{"zero window disables", end.Add(-time.Minute), 0, 15 * time.Minute, false, 0},
		{"zero amount disables", end.Add(-time.Minute), 15 * time.Minute, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ShouldExtend(end, tt.bidTime, tt.window, tt.amount)
			check.Equal(t, tt.wantOK, ok)
			check.Equal(t, tt.wantDur, got)
		})
	}
}

func TestPolicy_EndIncreasesByExtensionAmount(t *testing.T) {
	end := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	p := DefaultPolicy()

	d, ok := p.Evaluate(end, end.Add(-5*time.Minute))

	check.True(t, ok)
	check.Equal(t, end.Add(15*time.Minute), end.Add(d))
}

func TestPolicy_RepeatedLateBidsKeepExtending(t *testing.T) {
	end := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	p := Policy{Window: 10 * time.Minute, Amount: 5 * time.Minute}

	for i := 0; i < 5; i++ {
		d, ok := p.Evaluate(end, end.Add(-time.Minute))
		check.True(t, ok)
		end = end.Add(d)
	}

	check.Equal(t, time.Date(2026, 3, 1, 18, 25, 0, 0, time.UTC), end)
}
