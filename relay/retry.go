package relay

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/omni/tally-relay/config"
	"github.com/omni/tally-relay/utils"
)

// Sleeper pauses for d or until ctx is done, whichever happens first.
type Sleeper func(ctx context.Context, d time.Duration) error

func ContextSleeper(ctx context.Context, d time.Duration) error {
	if utils.ContextSleep(ctx, d) == nil {
		return ctx.Err()
	}
	return nil
}

type RetryPolicy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewRetryPolicy(cfg *config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
}

// Schedule yields the delays between consecutive attempts: BaseDelay doubling
// every time, capped at MaxDelay, and MaxAttempts-1 of them in total.
func (p RetryPolicy) Schedule() retry.Backoff {
	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Nanosecond
	}
	return retry.WithMaxRetries(retries, retry.WithCappedDuration(p.MaxDelay, retry.NewExponential(base)))
}

// Delays drains a fresh Schedule.
func (p RetryPolicy) Delays() []time.Duration {
	schedule := p.Schedule()
	var delays []time.Duration
	for {
		d, stop := schedule.Next()
		if stop {
			return delays
		}
		delays = append(delays, d)
	}
}
