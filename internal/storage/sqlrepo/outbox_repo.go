package sqlrepo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

func (s *Store) addEvent(ctx context.Context, tx *sqlx.Tx, event models.DomainEvent) error {
	const q = `
		INSERT INTO outbox (event_id, event_type, aggregate_id, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`
	rec, err := models.NewOutboxRecord(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.db.Rebind(q),
		rec.EventID,
		rec.EventType,
		rec.AggregateID,
		[]byte(rec.Payload),
		rec.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

func (s *Store) GetPendingEvents(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	const q = `
		SELECT id, event_id, event_type, aggregate_id, payload, occurred_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY id ASC
		LIMIT ?
	`
	if limit <= 0 {
		return []models.OutboxRecord{}, nil
	}

	records := make([]models.OutboxRecord, 0, limit)
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(q), limit); err != nil {
		return nil, fmt.Errorf("get pending: %w", err)
	}
	return records, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, id int64) error {
	const q = `
		UPDATE outbox
		SET processed_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), s.clock().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}
