package port

import (
	"context"
	"time"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

type InventoryRepository interface {
	// Register creates a resource with all units available
	Register(ctx context.Context, req domain.RegisterResourceRequest) (*domain.Resource, error)

	// Reserve atomically takes count units, failing with ErrNotFound,
	// ErrInsufficientCapacity or ErrConflict
	Reserve(ctx context.Context, resourceID string, count int) (*domain.Resource, error)

	// Release returns count previously reserved units
	Release(ctx context.Context, resourceID string, count int) (*domain.Resource, error)

	Get(ctx context.Context, resourceID string) (*domain.Resource, error)
	List(ctx context.Context) ([]domain.Resource, error)
}

type BookingRepository interface {
	// Create inserts the booking and its outbox fact in one transaction. When
	// the key already exists the stored booking is returned with created=false.
	Create(ctx context.Context, booking *domain.Booking, fact domain.Fact) (stored *domain.Booking, created bool, err error)

	// FindByKey returns nil, nil when no booking has the key
	FindByKey(ctx context.Context, key string) (*domain.Booking, error)

	List(ctx context.Context) ([]domain.Booking, error)

	// ConfirmedUnitsByResource sums unit counts of confirmed bookings per resource
	ConfirmedUnitsByResource(ctx context.Context) (map[string]int, error)
}

// OutboxEntry is a fact waiting in the outbox, with its delivery bookkeeping.
type OutboxEntry struct {
	ID       int64
	Fact     domain.Fact
	Topic    string
	Attempts int
}

type OutboxRepository interface {
	// ClaimByMessageID leases a single unsent entry; ok is false when it is
	// already sent or leased by someone else
	ClaimByMessageID(ctx context.Context, messageID string, lease time.Duration) (entry *OutboxEntry, ok bool, err error)

	// ClaimBatch leases up to limit unsent entries whose lease has expired
	ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]OutboxEntry, error)

	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type NotificationRepository interface {
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)

	// Create fails with ErrDuplicateRequest when the message id is taken
	Create(ctx context.Context, n *domain.Notification) error

	Latest(ctx context.Context, limit int) ([]domain.Notification, error)
}

type DeadLetterRepository interface {
	Append(ctx context.Context, dl domain.DeadLetter) error
}
