package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

const selectBooking = `
	SELECT booking_key, resource_id, requester_id, unit_count, status, created_at
	FROM bookings`

// MySQLBookingRepository is the ledger. It also owns the outbox table so a
// booking and its fact commit together.
type MySQLBookingRepository struct {
	db        *sql.DB
	factTopic string
	now       func() time.Time
}

func NewMySQLBookingRepository(db *sql.DB, factTopic string) *MySQLBookingRepository {
	return &MySQLBookingRepository{db: db, factTopic: factTopic, now: time.Now}
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.Key, &b.ResourceID, &b.RequesterID, &b.UnitCount, &b.Status, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (m *MySQLBookingRepository) Create(ctx context.Context, b *domain.Booking, fact domain.Fact) (*domain.Booking, bool, error) {
	payload, err := json.Marshal(fact)
	if err != nil {
		return nil, false, fmt.Errorf("encode fact: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (booking_key, resource_id, requester_id, unit_count, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.Key, b.ResourceID, b.RequesterID, b.UnitCount, string(b.Status), b.CreatedAt,
	)
	if isDuplicate(err) {
		tx.Rollback()
		existing, ferr := m.FindByKey(ctx, b.Key)
		if ferr != nil {
			return nil, false, ferr
		}
		if existing == nil {
			return nil, false, fmt.Errorf("%w: booking %s vanished after duplicate insert", domain.ErrConflict, b.Key)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert booking: %w", translate(err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (message_id, topic, aggregate_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		fact.MessageID, m.factTopic, b.Key, payload, m.now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert outbox entry: %w", translate(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit booking: %w", translate(err))
	}

	stored := *b
	return &stored, true, nil
}

func (m *MySQLBookingRepository) FindByKey(ctx context.Context, key string) (*domain.Booking, error) {
	b, err := scanBooking(m.db.QueryRowContext(ctx, selectBooking+` WHERE booking_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query booking: %w", err)
	}
	return b, nil
}

func (m *MySQLBookingRepository) List(ctx context.Context) ([]domain.Booking, error) {
	rows, err := m.db.QueryContext(ctx, selectBooking+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (m *MySQLBookingRepository) ConfirmedUnitsByResource(ctx context.Context) (map[string]int, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT resource_id, SUM(unit_count)
		FROM bookings
		WHERE status = ?
		GROUP BY resource_id`, string(domain.BookingStatusConfirmed))
	if err != nil {
		return nil, fmt.Errorf("sum bookings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			units int
		)
		if err := rows.Scan(&id, &units); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		out[id] = units
	}
	return out, rows.Err()
}
