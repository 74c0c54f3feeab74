package throttle

import (
	"context"
	"time"

	"github.com/datallboy/gotrack/internal/clock"
)

// Throttle paces writes so a payload of total bytes takes roughly duration
// to arrive, approximating real-time playback.
type Throttle struct {
	clock   clock.Clock
	rate    float64 // bytes per second
	total   int64
	written int64
	start   time.Time
}

// New returns nil when pacing is impossible (unknown size or duration).
// A nil *Throttle is valid and never sleeps.
func New(total int64, duration time.Duration, clk clock.Clock) *Throttle {
	if total <= 0 || duration <= 0 {
		return nil
	}
	return &Throttle{
		clock: clk,
		rate:  float64(total) / duration.Seconds(),
		total: total,
		start: clk.Now(),
	}
}

// Pace records n more bytes written and sleeps until the expected time for
// that many bytes has been reached.
func (t *Throttle) Pace(ctx context.Context, n int) error {
	if t == nil {
		return nil
	}
	t.written += int64(n)

	expected := time.Duration(float64(t.written) / t.rate * float64(time.Second))
	elapsed := t.clock.Now().Sub(t.start)

	if wait := expected - elapsed; wait > 0 {
		return t.clock.Sleep(ctx, wait)
	}
	return nil
}

// SecondsLeft estimates remaining playback time at the target rate.
func (t *Throttle) SecondsLeft() int {
	if t == nil {
		return 0
	}
	return int(float64(t.total-t.written) / t.rate)
}

// Percentage of the payload written so far.
func (t *Throttle) Percentage() float64 {
	if t == nil || t.total == 0 {
		return 0
	}
	return float64(t.written) / float64(t.total) * 100
}
