package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/repository"
)

// InsertNotifications stores inbox entries in one batch and returns them with ids assigned.
func (r *Repository) InsertNotifications(ctx context.Context, notifications []domain.Notification) ([]domain.Notification, error) {
	if len(notifications) == 0 {
		return nil, nil
	}
	const query = `INSERT INTO notifications (recipient_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	batch := &pgx.Batch{}
	for _, n := range notifications {
		batch.Queue(query, n.RecipientID, n.Kind, []byte(n.Payload), n.CreatedAt)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	stored := make([]domain.Notification, 0, len(notifications))
	for _, n := range notifications {
		if err := br.QueryRow().Scan(&n.ID); err != nil {
			return nil, mapWriteError(err)
		}
		stored = append(stored, n)
	}
	return stored, nil
}

// ListNotifications returns the newest inbox entries of a recipient.
func (r *Repository) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	const query = `SELECT id, recipient_id, kind, payload, created_at, read_at
		FROM notifications WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, recipientID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n       domain.Notification
			payload []byte
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Kind, &payload, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		n.Payload = payload
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkNotificationRead sets read_at on a recipient's inbox entry.
func (r *Repository) MarkNotificationRead(ctx context.Context, recipientID string, id int64) error {
	const query = `UPDATE notifications SET read_at = COALESCE(read_at, $3) WHERE id = $1 AND recipient_id = $2`
	tag, err := r.db.Exec(ctx, query, id, recipientID, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
