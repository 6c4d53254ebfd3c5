package relay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omni/tally-relay/relay"
)

func TestRetryPolicy_Delays(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name     string
		Policy   relay.RetryPolicy
		Expected []time.Duration
	}{
		{
			Name:     "default",
			Policy:   relay.RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
			Expected: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		},
		{
			Name:     "capped",
			Policy:   relay.RetryPolicy{MaxAttempts: 6, BaseDelay: 5 * time.Second, MaxDelay: 30 * time.Second},
			Expected: []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second},
		},
		{
			Name:   "single attempt",
			Policy: relay.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Second},
		},
		{
			Name:   "zero attempts",
			Policy: relay.RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Second},
		},
	} {
		require.Equal(t, test.Expected, test.Policy.Delays(), "Failed %s", test.Name)
	}
}

func TestRetryPolicy_ScheduleIsFresh(t *testing.T) {
	t.Parallel()

	policy := relay.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	require.Equal(t, policy.Delays(), policy.Delays())
}

func TestContextSleeper(t *testing.T) {
	t.Parallel()

	require.NoError(t, relay.ContextSleeper(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, relay.ContextSleeper(ctx, time.Hour), context.Canceled)
}
