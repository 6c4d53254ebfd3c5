package entity

import (
	"context"
	"time"
)

type RelayCursor struct {
	RelayID            string     `db:"relay_id"`
	LastProcessedBlock uint64     `db:"last_processed_block"`
	CreatedAt          *time.Time `db:"created_at"`
	UpdatedAt          *time.Time `db:"updated_at"`
}

type RelayCursorsRepo interface {
	// Init creates the cursor if it does not exist yet, leaving an existing one untouched.
	Init(ctx context.Context, cursor *RelayCursor) error
	// Advance moves the cursor forward, it never moves it backwards.
	Advance(ctx context.Context, relayID string, blockNumber uint64) error
	// Ensure unconditionally overwrites the cursor.
	Ensure(ctx context.Context, cursor *RelayCursor) error
	GetByRelayID(ctx context.Context, relayID string) (*RelayCursor, error)
}
