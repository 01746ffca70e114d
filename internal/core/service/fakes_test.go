package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/port"
)

var errBoom = errors.New("boom")

type fakeInventory struct {
	mu         sync.Mutex
	resources  map[string]*domain.Resource
	reserveErr error
	releaseErr error
	reserves   int
	releases   int
}

func newFakeInventory(resources ...domain.Resource) *fakeInventory {
	f := &fakeInventory{resources: make(map[string]*domain.Resource)}
	for i := range resources {
		r := resources[i]
		f.resources[r.ID] = &r
	}
	return f
}

func (f *fakeInventory) Register(ctx context.Context, req domain.RegisterResourceRequest) (*domain.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &domain.Resource{
		ID:             fmt.Sprintf("res-%d", len(f.resources)+1),
		Title:          req.Title,
		TotalUnits:     req.TotalUnits,
		AvailableUnits: req.TotalUnits,
		StartsAt:       req.StartsAt,
	}
	f.resources[r.ID] = r
	out := *r
	return &out, nil
}

func (f *fakeInventory) Reserve(ctx context.Context, id string, count int) (*domain.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	r, ok := f.resources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !r.CanReserve(count) {
		return nil, domain.ErrInsufficientCapacity
	}
	f.reserves++
	r.AvailableUnits -= count
	r.Version++
	out := *r
	return &out, nil
}

func (f *fakeInventory) Release(ctx context.Context, id string, count int) (*domain.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	r, ok := f.resources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	f.releases++
	r.AvailableUnits = min(r.TotalUnits, r.AvailableUnits+count)
	r.Version++
	out := *r
	return &out, nil
}

func (f *fakeInventory) Get(ctx context.Context, id string) (*domain.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (f *fakeInventory) List(ctx context.Context) ([]domain.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Resource, 0, len(f.resources))
	for _, r := range f.resources {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeInventory) available(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resources[id].AvailableUnits
}

type fakeLedger struct {
	mu        sync.Mutex
	bookings  map[string]domain.Booking
	facts     []domain.Fact
	createErr error
	findErr   error
	// createDelay holds Create open so concurrent sagas overlap between
	// reserve and persist
	createDelay time.Duration
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bookings: make(map[string]domain.Booking)}
}

func (f *fakeLedger) Create(ctx context.Context, b *domain.Booking, fact domain.Fact) (*domain.Booking, bool, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	if existing, ok := f.bookings[b.Key]; ok {
		return &existing, false, nil
	}
	f.bookings[b.Key] = *b
	f.facts = append(f.facts, fact)
	out := *b
	return &out, true, nil
}

func (f *fakeLedger) FindByKey(ctx context.Context, key string) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	b, ok := f.bookings[key]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeLedger) List(ctx context.Context) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Booking, 0, len(f.bookings))
	for _, b := range f.bookings {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeLedger) ConfirmedUnitsByResource(ctx context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, b := range f.bookings {
		if b.Status == domain.BookingStatusConfirmed {
			out[b.ResourceID] += b.UnitCount
		}
	}
	return out, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

type fakePublisher struct {
	mu    sync.Mutex
	facts []domain.Fact
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, fact domain.Fact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.facts = append(f.facts, fact)
	return nil
}

type fakeLock struct {
	mu   sync.Mutex
	held map[string]string
	seq  int
	err  error
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]string)}
}

func (f *fakeLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	if _, ok := f.held[key]; ok {
		return "", false, nil
	}
	f.seq++
	token := fmt.Sprintf("token-%d", f.seq)
	f.held[key] = token
	return token, true, nil
}

func (f *fakeLock) Release(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
	}
	return nil
}

type outboxRow struct {
	entry   port.OutboxEntry
	sent    bool
	claimed bool
	lastErr string
}

type fakeOutbox struct {
	mu   sync.Mutex
	rows []*outboxRow
}

func (f *fakeOutbox) add(topic string, fact domain.Fact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, &outboxRow{entry: port.OutboxEntry{
		ID:    int64(len(f.rows) + 1),
		Fact:  fact,
		Topic: topic,
	}})
}

func (f *fakeOutbox) ClaimByMessageID(ctx context.Context, messageID string, lease time.Duration) (*port.OutboxEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.entry.Fact.MessageID == messageID {
			if r.sent || r.claimed {
				return nil, false, nil
			}
			r.claimed = true
			r.entry.Attempts++
			e := r.entry
			return &e, true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeOutbox) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]port.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []port.OutboxEntry
	for _, r := range f.rows {
		if len(out) == limit {
			break
		}
		if r.sent || r.claimed {
			continue
		}
		r.claimed = true
		r.entry.Attempts++
		out = append(out, r.entry)
	}
	return out, nil
}

func (f *fakeOutbox) MarkSent(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id-1]
	r.sent, r.claimed = true, false
	return nil
}

func (f *fakeOutbox) MarkFailed(ctx context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id-1]
	r.claimed, r.lastErr = false, reason
	return nil
}

func (f *fakeOutbox) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if !r.sent {
			n++
		}
	}
	return n
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []port.Message
	err      error
}

func (f *fakeWriter) WriteMessage(ctx context.Context, msg port.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func (f *fakeWriter) sent() []port.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]port.Message(nil), f.messages...)
}

type fakeNotifications struct {
	mu        sync.Mutex
	rows      map[string]domain.Notification
	order     []string
	createErr error
	lastLimit int
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{rows: make(map[string]domain.Notification)}
}

func (f *fakeNotifications) ExistsByMessageID(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeNotifications) Create(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.rows[n.MessageID]; ok {
		return domain.ErrDuplicateRequest
	}
	f.rows[n.MessageID] = *n
	f.order = append(f.order, n.MessageID)
	return nil
}

func (f *fakeNotifications) Latest(ctx context.Context, limit int) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	var out []domain.Notification
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.rows[f.order[i]])
	}
	return out, nil
}

func (f *fakeNotifications) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeDeadLetters struct {
	mu      sync.Mutex
	letters []domain.DeadLetter
	err     error
}

func (f *fakeDeadLetters) WriteDeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.letters = append(f.letters, dl)
	return nil
}

func (f *fakeDeadLetters) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.letters)
}

type fakeDispatcher struct {
	name string
	mu   sync.Mutex
	seen []string
	err  error
}

func (f *fakeDispatcher) Name() string { return f.name }

func (f *fakeDispatcher) Dispatch(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, n.MessageID)
	return f.err
}

func (f *fakeDispatcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
