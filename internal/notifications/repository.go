package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/database"
	"github.com/joao-fontenele/printhub/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, n *domain.Notification) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, content, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.RecipientID, n.Type, n.Content, n.Status, []byte(n.Metadata), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListForRecipient returns one page, newest first, and the total number of
// matching rows.
func (r *Repository) ListForRecipient(ctx context.Context, recipientID string, status domain.NotificationStatus, page domain.PageRequest) ([]domain.Notification, int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, content, status, metadata, sent_at, read_at, created_at,
		       COUNT(*) OVER()
		FROM notifications
		WHERE recipient_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, recipientID, string(status), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := []domain.Notification{}
	var total int
	for rows.Next() {
		n, err := scanNotification(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(list) == 0 && page.Offset() > 0 {
		if err := r.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM notifications
			WHERE recipient_id = $1 AND ($2 = '' OR status = $2)
		`, recipientID, string(status)).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count notifications: %w", err)
		}
	}

	return list, total, nil
}

// MarkRead sets read_at on a notification owned by recipientID. Reading an
// already-read notification keeps the first timestamp.
func (r *Repository) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (*domain.Notification, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING id, recipient_id, type, content, status, metadata, sent_at, read_at, created_at
	`, id, recipientID, at)

	n, err := scanNotification(row, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("notification not found")
		}
		return nil, err
	}
	return n, nil
}

// MarkSent moves a PENDING notification to SENT. It reports false when the
// notification was not pending, which makes redelivered messages no-ops.
func (r *Repository) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET status = $2, sent_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.NotificationStatusSent, at, domain.NotificationStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark notification sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(s scanner, total *int) (*domain.Notification, error) {
	var (
		n        domain.Notification
		metadata []byte
		sentAt   sql.NullTime
		readAt   sql.NullTime
	)
	dest := []any{&n.ID, &n.RecipientID, &n.Type, &n.Content, &n.Status, &metadata, &sentAt, &readAt, &n.CreatedAt}
	if total != nil {
		dest = append(dest, total)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	n.Metadata = metadata
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	return &n, nil
}
