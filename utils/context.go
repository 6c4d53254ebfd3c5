package utils

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/omni/tally-relay/logging"
)

const (
	waitBaseDelay = time.Second
	waitMaxDelay  = 30 * time.Second
)

func ContextSleep(ctx context.Context, d time.Duration) *time.Time {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case t := <-timer.C:
		return &t
	}
}

// WaitFor calls check until it succeeds, backing off exponentially up to 30s
// between attempts. It only gives up when ctx is cancelled.
func WaitFor(ctx context.Context, logger logging.Logger, name string, check func(ctx context.Context) error) error {
	return waitFor(ctx, logger, name, waitBaseDelay, waitMaxDelay, check)
}

func waitFor(ctx context.Context, logger logging.Logger, name string, base, limit time.Duration, check func(ctx context.Context) error) error {
	backoff := retry.WithCappedDuration(limit, retry.NewExponential(base))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := check(ctx); err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"dependency": name,
				"attempt":    attempt,
			}).Warn("dependency is unreachable, waiting")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.WithField("dependency", name).Info("dependency is ready")
	return nil
}
