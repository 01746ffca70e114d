package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

const selectResource = `
	SELECT id, title, total_units, available_units, starts_at, version, created_at, updated_at
	FROM resources`

// MySQLInventory owns the seat counters. Every mutation is a conditional
// update so concurrent callers cannot oversell.
type MySQLInventory struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLInventory(db *sql.DB) *MySQLInventory {
	return &MySQLInventory{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*domain.Resource, error) {
	var (
		r        domain.Resource
		startsAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Title, &r.TotalUnits, &r.AvailableUnits, &startsAt, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if startsAt.Valid {
		r.StartsAt = startsAt.Time
	}
	return &r, nil
}

func (m *MySQLInventory) Register(ctx context.Context, req domain.RegisterResourceRequest) (*domain.Resource, error) {
	now := m.now().UTC()
	r := &domain.Resource{
		ID:             uuid.New().String(),
		Title:          req.Title,
		TotalUnits:     req.TotalUnits,
		AvailableUnits: req.TotalUnits,
		StartsAt:       req.StartsAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var startsAt sql.NullTime
	if !req.StartsAt.IsZero() {
		startsAt = sql.NullTime{Time: req.StartsAt.UTC(), Valid: true}
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO resources (id, title, total_units, available_units, starts_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		r.ID, r.Title, r.TotalUnits, r.AvailableUnits, startsAt, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert resource: %w", translate(err))
	}
	return r, nil
}

// Reserve locks the row, re-checks capacity and decrements in one
// transaction. The conditional update is the final guard.
func (m *MySQLInventory) Reserve(ctx context.Context, id string, count int) (*domain.Resource, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := scanResource(tx.QueryRowContext(ctx, selectResource+` WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock resource: %w", translate(err))
	}
	if !locked.CanReserve(count) {
		return nil, domain.ErrInsufficientCapacity
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE resources
		SET available_units = available_units - ?, version = version + 1, updated_at = ?
		WHERE id = ? AND available_units >= ?`,
		count, m.now().UTC(), id, count,
	)
	if err != nil {
		return nil, fmt.Errorf("reserve units: %w", translate(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, domain.ErrConflict
	}

	r, err := scanResource(tx.QueryRowContext(ctx, selectResource+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("read resource: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", translate(err))
	}
	return r, nil
}

// Release returns units, never lifting available above total.
func (m *MySQLInventory) Release(ctx context.Context, id string, count int) (*domain.Resource, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE resources
		SET available_units = LEAST(total_units, available_units + ?), version = version + 1, updated_at = ?
		WHERE id = ?`,
		count, m.now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("release units: %w", translate(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, domain.ErrNotFound
	}

	r, err := scanResource(tx.QueryRowContext(ctx, selectResource+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("read resource: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit release: %w", translate(err))
	}
	return r, nil
}

func (m *MySQLInventory) Get(ctx context.Context, id string) (*domain.Resource, error) {
	r, err := scanResource(m.db.QueryRowContext(ctx, selectResource+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query resource: %w", err)
	}
	return r, nil
}

func (m *MySQLInventory) List(ctx context.Context) ([]domain.Resource, error) {
	rows, err := m.db.QueryContext(ctx, selectResource+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Resource, 0)
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
