package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/attendly/attendly-backend-go/internal/domain/notification"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
)

type notificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) notification.Repository {
	return &notificationRepository{db: db}
}

// CreateBatch inserts the batch in one transaction. IDs are assigned
// here so callers can publish the notifications after the commit.
func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []*notification.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	return WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		q := GetQuerier(txCtx, r.db)

		query := `
			INSERT INTO notifications (id, recipient_id, request_id, kind, subject)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`

		for _, n := range notifications {
			if n.ID == "" {
				n.ID = uuid.New().String()
			}
			err := q.QueryRow(txCtx, query, n.ID, n.RecipientID, n.RequestID, n.Kind, n.Subject).
				Scan(&n.CreatedAt)
			if err != nil {
				return database.MarkRetryable(fmt.Errorf("failed to insert notification: %w", err))
			}
		}
		return nil
	})
}

func (r *notificationRepository) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]notification.Notification, error) {
	q := GetQuerier(ctx, r.db)

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, recipient_id, request_id, kind, subject, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := q.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var list []notification.Notification
	for rows.Next() {
		var n notification.Notification
		err := rows.Scan(&n.ID, &n.RecipientID, &n.RequestID, &n.Kind, &n.Subject, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return list, nil
}
