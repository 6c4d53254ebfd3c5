package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/tally-relay/db"
	"github.com/omni/tally-relay/entity"
)

type deadLettersRepo basePostgresRepo

func NewDeadLettersRepo(table string, db *db.DB) entity.DeadLettersRepo {
	return (*deadLettersRepo)(newBasePostgresRepo(table, db))
}

func (r *deadLettersRepo) Ensure(ctx context.Context, dl *entity.DeadLetter) error {
	q, args, err := sq.Insert(r.table).
		Columns("relay_id", "event_block", "source_tx_hash", "log_index", "payload", "error", "attempts").
		Values(dl.RelayID, dl.EventBlock, dl.SourceTxHash, dl.LogIndex, string(dl.Payload), dl.Error, dl.Attempts).
		Suffix("ON CONFLICT (relay_id, source_tx_hash, log_index) DO UPDATE SET updated_at = NOW(), error = EXCLUDED.error, payload = EXCLUDED.payload, attempts = " + r.table + ".attempts + EXCLUDED.attempts").
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	err = r.db.GetContext(ctx, &dl.ID, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert dead letter: %w", err)
	}
	return nil
}

func (r *deadLettersRepo) GetByID(ctx context.Context, id uint) (*entity.DeadLetter, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	dl := new(entity.DeadLetter)
	err = r.db.GetContext(ctx, dl, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get dead letter by id: %w", err)
	}
	return dl, nil
}

func (r *deadLettersRepo) FindByRelayID(ctx context.Context, relayID string, limit uint64) ([]*entity.DeadLetter, error) {
	builder := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"relay_id": relayID}).
		OrderBy("event_block", "log_index")
	if limit > 0 {
		builder = builder.Limit(limit)
	}
	q, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	dls := make([]*entity.DeadLetter, 0, 10)
	err = r.db.SelectContext(ctx, &dls, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get dead letters by relay_id: %w", err)
	}
	return dls, nil
}

func (r *deadLettersRepo) CountByRelayID(ctx context.Context, relayID string) (uint, error) {
	q, args, err := sq.Select("COUNT(*)").
		From(r.table).
		Where(sq.Eq{"relay_id": relayID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("can't build query: %w", err)
	}
	var count uint
	err = r.db.GetContext(ctx, &count, q, args...)
	if err != nil {
		return 0, fmt.Errorf("can't count dead letters: %w", err)
	}
	return count, nil
}

func (r *deadLettersRepo) Delete(ctx context.Context, id uint) error {
	q, args, err := sq.Delete(r.table).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't delete dead letter: %w", err)
	}
	return nil
}
