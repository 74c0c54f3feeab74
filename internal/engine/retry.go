package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/datallboy/gotrack/internal/clock"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/config"
)

// Budget bounds retries per track (LocalMax) and per process (GlobalMax).
// One Budget is shared by every session of a process.
type Budget struct {
	LocalMax  int
	GlobalMax int
	global    atomic.Int64
}

func NewBudget(localMax, globalMax int) *Budget {
	return &Budget{LocalMax: localMax, GlobalMax: globalMax}
}

// Global returns the number of failed attempts counted so far.
func (b *Budget) Global() int64 { return b.global.Load() }

// Exhausted reports whether the process-wide ceiling has been reached.
func (b *Budget) Exhausted() bool { return b.global.Load() >= int64(b.GlobalMax) }

// Backoff grows linearly by Increment, or geometrically when Multiplier > 1.
type Backoff struct {
	Initial    time.Duration
	Increment  time.Duration
	Multiplier float64
}

func BackoffFromConfig(c config.RetryConfig) Backoff {
	return Backoff{Initial: c.InitialDelay, Increment: c.Increment, Multiplier: c.Multiplier}
}

func (b Backoff) next(d time.Duration) time.Duration {
	if b.Multiplier > 1 {
		return time.Duration(float64(d) * b.Multiplier)
	}
	return d + b.Increment
}

// Retry runs op until it succeeds or returns a non-transient error. Every
// transient failure bumps the global then the local counter and runs cleanup.
// Reaching either ceiling ends the loop with domain.ErrRetryBudgetExhausted;
// otherwise it sleeps the current delay and tries again.
// The returned count is the number of times op ran.
func Retry(
	ctx context.Context,
	budget *Budget,
	backoff Backoff,
	clk clock.Clock,
	op func(ctx context.Context) error,
	cleanup func(),
	onRetry func(attempt int, delay time.Duration, err error),
) (int, error) {
	delay := backoff.Initial
	local := 0

	for {
		err := op(ctx)
		if err == nil {
			return local + 1, nil
		}

		if ctx.Err() != nil {
			if cleanup != nil {
				cleanup()
			}
			return local + 1, ctx.Err()
		}

		if !domain.IsTransient(err) {
			return local + 1, err
		}

		global := budget.global.Add(1)
		local++

		if cleanup != nil {
			cleanup()
		}

		if local >= budget.LocalMax || global >= int64(budget.GlobalMax) {
			return local, fmt.Errorf("%w after %d attempts (%d process-wide): %w",
				domain.ErrRetryBudgetExhausted, local, global, err)
		}

		if onRetry != nil {
			onRetry(local, delay, err)
		}

		if err := clk.Sleep(ctx, delay); err != nil {
			return local, err
		}
		delay = backoff.next(delay)
	}
}
