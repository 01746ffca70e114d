package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/metrics"
	"github.com/rl1809/seat-booking/internal/port"
)

const tracerName = "github.com/rl1809/seat-booking/internal/core/service"

type SagaOptions struct {
	// StepTimeout bounds every external call the saga makes
	StepTimeout time.Duration
	LockTTL     time.Duration
	// LockWait is how long a duplicate request waits for the in-flight one.
	// It should cover a reserve plus a persist, 2 x StepTimeout.
	LockWait time.Duration
	LockPoll time.Duration
}

func DefaultSagaOptions() SagaOptions {
	return SagaOptions{
		StepTimeout: 5 * time.Second,
		LockTTL:     30 * time.Second,
		LockWait:    10 * time.Second,
		LockPoll:    50 * time.Millisecond,
	}
}

// BookingService coordinates reserve -> persist -> publish across the
// inventory and booking stores, releasing the reservation when persistence
// fails. The two stores never share a transaction.
type BookingService struct {
	inventory port.InventoryRepository
	ledger    port.BookingRepository
	publisher port.FactPublisher
	lock      port.RequestLock

	opts    SagaOptions
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	newKey       func() string
	newMessageID func() string
	now          func() time.Time
}

// NewBookingService wires the saga. lock may be nil, in which case concurrent
// duplicates are resolved by ledger uniqueness alone.
func NewBookingService(
	inventory port.InventoryRepository,
	ledger port.BookingRepository,
	publisher port.FactPublisher,
	lock port.RequestLock,
	opts SagaOptions,
	logger *zap.Logger,
	m *metrics.Metrics,
) *BookingService {
	return &BookingService{
		inventory:    inventory,
		ledger:       ledger,
		publisher:    publisher,
		lock:         lock,
		opts:         opts,
		logger:       logger,
		metrics:      m,
		tracer:       otel.Tracer(tracerName),
		newKey:       func() string { return uuid.New().String() },
		newMessageID: func() string { return uuid.New().String() },
		now:          time.Now,
	}
}

// bookingSaga is the per-request state record. Every transition is logged so
// a crash mid-saga leaves a trail naming the last state reached.
type bookingSaga struct {
	key string
	// clientKey is false for server-generated keys, which cannot race
	clientKey bool
	req       domain.BookingRequest
	state   domain.SagaState
	started time.Time
	logger  *zap.Logger
}

func (s *bookingSaga) transition(to domain.SagaState, fields ...zap.Field) {
	if !s.state.CanTransition(to) {
		s.logger.Error("illegal saga transition",
			zap.String("from", string(s.state)), zap.String("to", string(to)))
	}
	from := s.state
	s.state = to

	fields = append(fields,
		zap.String("from", string(from)),
		zap.String("state", string(to)),
	)
	if to == domain.SagaCompensationFailed {
		s.logger.Error("booking saga needs reconciliation: inventory under-counted",
			append(fields, zap.Bool("reconciliation_required", true))...)
		return
	}
	s.logger.Info("booking saga transition", fields...)
}

// Book runs the saga for one request. A repeated key returns the original
// booking with Created=false and never reserves twice.
func (s *BookingService) Book(ctx context.Context, req domain.BookingRequest) (*domain.BookingResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = s.newKey()
	}

	ctx, span := s.tracer.Start(ctx, "saga.Book", trace.WithAttributes(
		attribute.String("booking.key", key),
		attribute.String("resource.id", req.ResourceID),
		attribute.Int("booking.units", req.UnitCount),
	))
	defer span.End()

	saga := &bookingSaga{
		key:       key,
		clientKey: req.IdempotencyKey != "",
		req:       req,
		state:     domain.SagaReceived,
		started:   s.now(),
		logger: s.logger.With(
			zap.String("booking_key", key),
			zap.String("resource_id", req.ResourceID),
			zap.Int("unit_count", req.UnitCount),
		),
	}
	defer func() {
		if !saga.state.Terminal() {
			saga.logger.Warn("booking saga stopped before a terminal state",
				zap.String("state", string(saga.state)))
		}
		s.metrics.ObserveSaga(string(saga.state), s.now().Sub(saga.started))
	}()

	result, err := s.run(ctx, saga)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("reconciliation.required", isCompensationFailure(err)))
		span.SetStatus(codes.Error, string(saga.state))
		return nil, err
	}
	span.SetAttributes(attribute.String("saga.state", string(saga.state)))
	return result, nil
}

func (s *BookingService) run(ctx context.Context, saga *bookingSaga) (*domain.BookingResult, error) {
	existing, err := s.findByKey(ctx, saga.key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.duplicate(saga, existing), nil
	}

	existing, token, err := s.claim(ctx, saga)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.duplicate(saga, existing), nil
	}
	if token != "" {
		defer s.unclaim(ctx, saga, token)
	}

	if err := s.reserve(ctx, saga); err != nil {
		// Without the claim, a same-key racer may have taken the units we
		// were refused. Its booking is the answer.
		if errors.Is(err, domain.ErrInsufficientCapacity) || errors.Is(err, domain.ErrConflict) {
			existing, lerr := s.awaitWinner(ctx, saga, token == "")
			if lerr == nil && existing != nil {
				return s.duplicate(saga, existing), nil
			}
		}
		saga.transition(domain.SagaReservationDenied, zap.Error(err))
		return nil, err
	}

	now := s.now().UTC()
	booking := &domain.Booking{
		Key:         saga.key,
		ResourceID:  saga.req.ResourceID,
		RequesterID: saga.req.RequesterID,
		UnitCount:   saga.req.UnitCount,
		Status:      domain.BookingStatusConfirmed,
		CreatedAt:   now,
	}
	fact := domain.NewBookingConfirmed(s.newMessageID(), booking, now)

	stored, created, err := s.persist(ctx, booking, fact)
	if err != nil {
		return nil, s.compensate(ctx, saga, fmt.Errorf("persist booking: %w", err))
	}
	if !created {
		// A concurrent request with the same key won the insert. Give our
		// units back and answer with the winner's record.
		if err := s.compensate(ctx, saga, domain.ErrDuplicateRequest); isCompensationFailure(err) {
			trace.SpanFromContext(ctx).RecordError(err)
		}
		return &domain.BookingResult{Booking: stored, Created: false, State: domain.SagaPersisted}, nil
	}
	saga.transition(domain.SagaPersisted)

	s.publish(ctx, saga, fact)

	return &domain.BookingResult{Booking: stored, Created: true, State: saga.state}, nil
}

func (s *BookingService) duplicate(saga *bookingSaga, existing *domain.Booking) *domain.BookingResult {
	saga.transition(domain.SagaPersisted, zap.Bool("duplicate", true))
	return &domain.BookingResult{Booking: existing, Created: false, State: saga.state}
}

func (s *BookingService) findByKey(ctx context.Context, key string) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	b, err := s.ledger.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup booking %s: %w", key, err)
	}
	return b, nil
}

// claim takes the in-flight claim for the key. While someone else holds it,
// it polls the ledger for their booking until LockWait runs out.
func (s *BookingService) claim(ctx context.Context, saga *bookingSaga) (*domain.Booking, string, error) {
	if s.lock == nil {
		return nil, "", nil
	}

	deadline := s.now().Add(s.opts.LockWait)
	for {
		token, ok, err := s.acquire(ctx, saga.key)
		if err != nil {
			saga.logger.Warn("request lock unavailable, relying on ledger uniqueness", zap.Error(err))
			return nil, "", nil
		}
		if ok {
			// the previous holder may have finished between our lookup and the claim
			existing, err := s.findByKey(ctx, saga.key)
			if err != nil || existing != nil {
				s.unclaim(ctx, saga, token)
				return existing, "", err
			}
			return nil, token, nil
		}

		existing, err := s.findByKey(ctx, saga.key)
		if err != nil {
			return nil, "", err
		}
		if existing != nil {
			return existing, "", nil
		}
		if s.now().After(deadline) {
			saga.transition(domain.SagaReservationDenied, zap.String("reason", "request in flight"))
			return nil, "", fmt.Errorf("%w: request %s is already in flight", domain.ErrConflict, saga.key)
		}

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(s.opts.LockPoll):
		}
	}
}

func (s *BookingService) acquire(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()
	return s.lock.Acquire(ctx, key, s.opts.LockTTL)
}

func (s *BookingService) unclaim(ctx context.Context, saga *bookingSaga, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StepTimeout)
	defer cancel()
	if err := s.lock.Release(ctx, saga.key, token); err != nil {
		saga.logger.Warn("failed to release request lock", zap.Error(err))
	}
}

func (s *BookingService) reserve(ctx context.Context, saga *bookingSaga) error {
	ctx, span := s.tracer.Start(ctx, "saga.Reserve")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	res, err := s.inventory.Reserve(ctx, saga.req.ResourceID, saga.req.UnitCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		if domain.IsRejection(err) {
			return err
		}
		return fmt.Errorf("reserve units: %w", err)
	}

	saga.transition(domain.SagaReserved, zap.Int("available_units", res.AvailableUnits))
	return nil
}

// awaitWinner looks for a booking made under this key by a concurrent
// request. When poll is set it keeps looking for up to LockWait, since the
// other request may still be persisting.
func (s *BookingService) awaitWinner(ctx context.Context, saga *bookingSaga, poll bool) (*domain.Booking, error) {
	if !saga.clientKey {
		return nil, nil
	}

	deadline := s.now().Add(s.opts.LockWait)
	for {
		existing, err := s.findByKey(ctx, saga.key)
		if err != nil || existing != nil {
			return existing, err
		}
		if !poll || s.now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.LockPoll):
		}
	}
}

func (s *BookingService) persist(ctx context.Context, booking *domain.Booking, fact domain.Fact) (*domain.Booking, bool, error) {
	ctx, span := s.tracer.Start(ctx, "saga.Persist")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	stored, created, err := s.ledger.Create(ctx, booking, fact)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("booking.created", created))
	return stored, created, nil
}

// compensate releases the reservation taken by this saga. It runs on a
// context detached from the caller so a cancelled request still gives the
// units back.
func (s *BookingService) compensate(ctx context.Context, saga *bookingSaga, cause error) error {
	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "saga.Compensate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	if _, err := s.inventory.Release(ctx, saga.req.ResourceID, saga.req.UnitCount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compensation failed")
		saga.transition(domain.SagaCompensationFailed, zap.NamedError("cause", cause), zap.Error(err))
		return fmt.Errorf("%w (cause: %w, release: %v)", domain.ErrCompensationFailed, cause, err)
	}

	saga.transition(domain.SagaCompensated, zap.NamedError("cause", cause))
	return cause
}

// publish hands the fact to the publisher. The booking is already durable,
// so a failure here is only logged; the outbox forwarder retries it.
func (s *BookingService) publish(ctx context.Context, saga *bookingSaga, fact domain.Fact) {
	ctx, span := s.tracer.Start(ctx, "saga.Publish", trace.WithAttributes(
		attribute.String("messaging.message.id", fact.MessageID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, fact); err != nil {
		span.RecordError(err)
		saga.logger.Warn("publish deferred to outbox forwarder",
			zap.String("message_id", fact.MessageID), zap.Error(err))
	}
}

// Get returns the booking for key or ErrNotFound.
func (s *BookingService) Get(ctx context.Context, key string) (*domain.Booking, error) {
	b, err := s.findByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (s *BookingService) List(ctx context.Context) ([]domain.Booking, error) {
	return s.ledger.List(ctx)
}

// isCompensationFailure reports whether err left inventory needing repair.
func isCompensationFailure(err error) bool {
	return errors.Is(err, domain.ErrCompensationFailed)
}
