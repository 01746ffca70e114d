package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

// MySQLNotificationRepository stores notifications keyed by message id and
// the dead letters of the notification consumer.
type MySQLNotificationRepository struct {
	db *sql.DB
}

func NewMySQLNotificationRepository(db *sql.DB) *MySQLNotificationRepository {
	return &MySQLNotificationRepository{db: db}
}

func (m *MySQLNotificationRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE message_id = ? LIMIT 1`, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query notification: %w", err)
	}
	return true, nil
}

func (m *MySQLNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO notifications (message_id, booking_key, requester_id, resource_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.MessageID, n.BookingKey, n.RequesterID, n.ResourceID, n.RenderedMessage, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", translate(err))
	}
	return nil
}

func (m *MySQLNotificationRepository) Latest(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT message_id, booking_key, requester_id, resource_id, message, created_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.MessageID, &n.BookingKey, &n.RequesterID, &n.ResourceID, &n.RenderedMessage, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Append is the last-resort dead-letter sink used when the bus is down.
func (m *MySQLNotificationRepository) Append(ctx context.Context, dl domain.DeadLetter) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO dead_letters (original_topic, raw_payload, failure_reason, failed_at)
		VALUES (?, ?, ?, ?)`,
		dl.OriginalTopic, dl.RawPayload, dl.FailureReason, dl.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}
