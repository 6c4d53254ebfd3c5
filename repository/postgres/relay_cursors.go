package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/tally-relay/db"
	"github.com/omni/tally-relay/entity"
)

type relayCursorsRepo basePostgresRepo

func NewRelayCursorsRepo(table string, db *db.DB) entity.RelayCursorsRepo {
	return (*relayCursorsRepo)(newBasePostgresRepo(table, db))
}

func (r *relayCursorsRepo) Init(ctx context.Context, cursor *entity.RelayCursor) error {
	q, args, err := sq.Insert(r.table).
		Columns("relay_id", "last_processed_block").
		Values(cursor.RelayID, cursor.LastProcessedBlock).
		Suffix("ON CONFLICT (relay_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't init relay cursor: %w", err)
	}
	return nil
}

func (r *relayCursorsRepo) Advance(ctx context.Context, relayID string, blockNumber uint64) error {
	q, args, err := sq.Update(r.table).
		Set("last_processed_block", blockNumber).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"relay_id": relayID}).
		Where(sq.Lt{"last_processed_block": blockNumber}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't advance relay cursor: %w", err)
	}
	return nil
}

func (r *relayCursorsRepo) Ensure(ctx context.Context, cursor *entity.RelayCursor) error {
	q, args, err := sq.Insert(r.table).
		Columns("relay_id", "last_processed_block").
		Values(cursor.RelayID, cursor.LastProcessedBlock).
		Suffix("ON CONFLICT (relay_id) DO UPDATE SET updated_at = NOW(), last_processed_block = EXCLUDED.last_processed_block").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert relay cursor: %w", err)
	}
	return nil
}

func (r *relayCursorsRepo) GetByRelayID(ctx context.Context, relayID string) (*entity.RelayCursor, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"relay_id": relayID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	cursor := new(entity.RelayCursor)
	err = r.db.GetContext(ctx, cursor, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get relay cursor by relay_id: %w", err)
	}
	return cursor, nil
}
