package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type DeadLetter struct {
	ID           uint        `db:"id"`
	RelayID      string      `db:"relay_id"`
	EventBlock   uint64      `db:"event_block"`
	SourceTxHash common.Hash `db:"source_tx_hash"`
	LogIndex     uint        `db:"log_index"`
	Payload      []byte      `db:"payload"`
	Error        string      `db:"error"`
	Attempts     uint        `db:"attempts"`
	CreatedAt    *time.Time  `db:"created_at"`
	UpdatedAt    *time.Time  `db:"updated_at"`
}

func NewDeadLetter(relayID string, event *TallyEvent, err error, attempts uint) (*DeadLetter, error) {
	payload, err2 := event.MarshalPayload()
	if err2 != nil {
		return nil, err2
	}
	return &DeadLetter{
		RelayID:      relayID,
		EventBlock:   event.BlockNumber,
		SourceTxHash: event.TxHash,
		LogIndex:     event.LogIndex,
		Payload:      payload,
		Error:        err.Error(),
		Attempts:     attempts,
	}, nil
}

func (dl *DeadLetter) Event() (*TallyEvent, error) {
	return UnmarshalTallyPayload(dl.Payload)
}

type DeadLettersRepo interface {
	// Ensure inserts the entry, or refreshes error and accumulates attempts
	// when the same source log was already dead-lettered.
	Ensure(ctx context.Context, dl *DeadLetter) error
	GetByID(ctx context.Context, id uint) (*DeadLetter, error)
	FindByRelayID(ctx context.Context, relayID string, limit uint64) ([]*DeadLetter, error)
	CountByRelayID(ctx context.Context, relayID string) (uint, error)
	Delete(ctx context.Context, id uint) error
}
