package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/seat-booking/internal/port"
)

// MySQLOutbox leases outbox rows to publishers. A lease is a claimed_until
// timestamp; an expired lease makes the row claimable again.
type MySQLOutbox struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLOutbox(db *sql.DB) *MySQLOutbox {
	return &MySQLOutbox{db: db, now: time.Now}
}

func scanOutboxEntry(row rowScanner) (*port.OutboxEntry, error) {
	var (
		e       port.OutboxEntry
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.Topic, &payload, &e.Attempts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &e.Fact); err != nil {
		return nil, fmt.Errorf("decode outbox payload %d: %w", e.ID, err)
	}
	return &e, nil
}

func (m *MySQLOutbox) ClaimByMessageID(ctx context.Context, messageID string, lease time.Duration) (*port.OutboxEntry, bool, error) {
	now := m.now().UTC()
	result, err := m.db.ExecContext(ctx, `
		UPDATE outbox
		SET claimed_until = ?, attempts = attempts + 1
		WHERE message_id = ? AND sent_at IS NULL AND (claimed_until IS NULL OR claimed_until < ?)`,
		now.Add(lease), messageID, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("claim outbox entry: %w", translate(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, false, nil
	}

	e, err := scanOutboxEntry(m.db.QueryRowContext(ctx, `
		SELECT id, topic, payload, attempts FROM outbox WHERE message_id = ?`, messageID))
	if err != nil {
		return nil, false, fmt.Errorf("read outbox entry: %w", err)
	}
	return e, true, nil
}

// ClaimBatch skips rows locked by a concurrent forwarder so several relays
// can drain the outbox in parallel.
func (m *MySQLOutbox) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]port.OutboxEntry, error) {
	now := m.now().UTC()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, topic, payload, attempts
		FROM outbox
		WHERE sent_at IS NULL AND (claimed_until IS NULL OR claimed_until < ?)
		ORDER BY id
		LIMIT ?
		FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox batch: %w", translate(err))
	}

	var (
		entries []port.OutboxEntry
		ids     []any
	)
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		e.Attempts++
		entries = append(entries, *e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox batch: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := append([]any{now.Add(lease)}, ids...)
	_, err = tx.ExecContext(ctx, `
		UPDATE outbox SET claimed_until = ?, attempts = attempts + 1
		WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("lease outbox batch: %w", translate(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox lease: %w", translate(err))
	}
	return entries, nil
}

func (m *MySQLOutbox) MarkSent(ctx context.Context, id int64) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE outbox SET sent_at = ?, claimed_until = NULL, last_error = NULL WHERE id = ?`,
		m.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (m *MySQLOutbox) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE outbox SET claimed_until = NULL, last_error = ? WHERE id = ?`,
		reason, id)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
