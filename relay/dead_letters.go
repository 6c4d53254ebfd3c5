package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/omni/tally-relay/entity"
)

var ErrForeignDeadLetter = errors.New("dead letter belongs to another relay")

func (r *Relay) DeadLetters(ctx context.Context, limit uint64) ([]*entity.DeadLetter, error) {
	return r.repo.DeadLetters.FindByRelayID(ctx, r.id, limit)
}

// ReplayDeadLetter resubmits a dead-lettered event. The entry is deleted once
// the event is bridged, otherwise its error and attempt count are refreshed.
func (r *Relay) ReplayDeadLetter(ctx context.Context, id uint) (*entity.BridgeReceipt, error) {
	dl, err := r.getOwnDeadLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	event, err := dl.Event()
	if err != nil {
		return nil, fmt.Errorf("can't decode dead letter %d: %w", id, err)
	}
	logger := r.logger.WithFields(logrus.Fields{
		"dead_letter_id": id,
		"tx_hash":        event.TxHash.String(),
		"block_number":   event.BlockNumber,
	})

	receipt, err := r.executor.Submit(ctx, event)
	if err != nil {
		var submitErr *SubmitError
		if errors.As(err, &submitErr) {
			dl.Error = submitErr.Err.Error()
			dl.Attempts = submitErr.Attempts
			if err2 := r.repo.DeadLetters.Ensure(ctx, dl); err2 != nil {
				logger.WithError(err2).Error("can't update dead letter after failed replay")
			}
		}
		return nil, fmt.Errorf("can't replay dead letter %d: %w", id, err)
	}
	account := receipt.Account
	r.latest.Store(&account)

	if err = r.repo.DeadLetters.Delete(ctx, id); err != nil {
		return receipt, fmt.Errorf("replayed dead letter %d but can't delete it: %w", id, err)
	}
	logger.Info("replayed dead letter")
	if err = r.refreshDeadLetters(ctx); err != nil {
		logger.WithError(err).Warn("can't refresh dead letter queue depth")
	}
	return receipt, nil
}

// PurgeDeadLetter drops an entry without replaying it.
func (r *Relay) PurgeDeadLetter(ctx context.Context, id uint) error {
	if _, err := r.getOwnDeadLetter(ctx, id); err != nil {
		return err
	}
	if err := r.repo.DeadLetters.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.WithField("dead_letter_id", id).Warn("purged dead letter")
	return r.refreshDeadLetters(ctx)
}

func (r *Relay) getOwnDeadLetter(ctx context.Context, id uint) (*entity.DeadLetter, error) {
	dl, err := r.repo.DeadLetters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dl.RelayID != r.id {
		return nil, fmt.Errorf("dead letter %d belongs to %s: %w", id, dl.RelayID, ErrForeignDeadLetter)
	}
	return dl, nil
}
