package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/omni/tally-relay/entity"
	"github.com/omni/tally-relay/logging"
	"github.com/omni/tally-relay/solclient"
)

type BridgeExecutor interface {
	Submit(ctx context.Context, event *entity.TallyEvent) (*entity.BridgeReceipt, error)
}

// Executor mirrors one TallyEvent to its derived destination account.
type Executor struct {
	logger         logging.Logger
	client         solclient.Client
	policy         RetryPolicy
	sleep          Sleeper
	derive         func(programID solana.PublicKey, seed []byte) (solana.PublicKey, uint8, error)
	failedAttempts prometheus.Counter
}

func NewExecutor(logger logging.Logger, relayID string, client solclient.Client, policy RetryPolicy) *Executor {
	return &Executor{
		logger:         logger,
		client:         client,
		policy:         policy,
		sleep:          ContextSleeper,
		derive:         solclient.DeriveElectionAddress,
		failedAttempts: FailedBridgeAttempts.WithLabelValues(relayID),
	}
}

// WithSleeper replaces the backoff sleep, tests use it to avoid real delays.
func (e *Executor) WithSleeper(sleep Sleeper) *Executor {
	e.sleep = sleep
	return e
}

// Submit returns either a receipt, a *SubmitError, or the context error when ctx is cancelled mid-way.
func (e *Executor) Submit(ctx context.Context, event *entity.TallyEvent) (*entity.BridgeReceipt, error) {
	address, _, err := e.derive(e.client.ProgramID(), event.Seed())
	if err != nil {
		e.failedAttempts.Inc()
		return nil, &SubmitError{Attempts: 1, Err: err}
	}
	logger := e.logger.WithFields(logrus.Fields{
		"election_id":      event.ElectionID.String(),
		"election_account": address.String(),
		"tx_hash":          event.TxHash.String(),
		"block_number":     event.BlockNumber,
	})

	schedule := e.policy.Schedule()
	var attempt uint
	for {
		attempt++
		sig, err := e.submitOnce(ctx, address, event)
		if err == nil {
			if sig == "" {
				logger.WithField("attempt", attempt).Info("election account already holds the tally")
			} else {
				logger.WithFields(logrus.Fields{
					"attempt":   attempt,
					"signature": sig,
				}).Info("mirrored tally to destination chain")
			}
			return &entity.BridgeReceipt{
				Account:   address,
				Signature: sig,
				Attempts:  attempt,
			}, nil
		}
		e.failedAttempts.Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isPermanent(err) {
			logger.WithError(err).WithField("attempt", attempt).Error("permanent bridge failure")
			return nil, &SubmitError{Attempts: attempt, Err: err}
		}
		delay, stop := schedule.Next()
		if stop {
			logger.WithError(err).WithField("attempt", attempt).Error("bridge retry budget exhausted")
			return nil, &SubmitError{Attempts: attempt, Err: err}
		}
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("bridge attempt failed, retrying")
		if err = e.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// submitOnce reads the account first, so repeating it for the same event never
// writes different state. An empty signature means nothing had to be sent.
func (e *Executor) submitOnce(ctx context.Context, address solana.PublicKey, event *entity.TallyEvent) (string, error) {
	write := &solclient.TallyWrite{
		Election: address,
		Metadata: event.Metadata(),
		VotesA:   event.VotesA,
		VotesB:   event.VotesB,
	}
	account, err := e.client.GetElection(ctx, address)
	switch {
	case errors.Is(err, solclient.ErrAccountNotFound):
		write.Initialise = true
	case err != nil:
		return "", fmt.Errorf("can't read election account: %w", err)
	default:
		if !account.Authority.Equals(e.client.Authority()) {
			return "", fmt.Errorf("authority %s: %w", account.Authority, ErrForeignAuthority)
		}
		if account.HasTotals(event.VotesA, event.VotesB) {
			return "", nil
		}
		if account.Finalized {
			return "", fmt.Errorf("account holds A=%d B=%d: %w", account.VotesA, account.VotesB, ErrTallyConflict)
		}
	}
	sig, err := e.client.SubmitTally(ctx, write)
	if err != nil {
		return "", fmt.Errorf("can't submit tally: %w", err)
	}
	return sig.String(), nil
}
