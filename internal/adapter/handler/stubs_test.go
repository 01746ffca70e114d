package handler

import (
	"context"
	"fmt"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

type stubBookings struct {
	bookings map[string]*domain.Booking
	err      error
	lastReq  domain.BookingRequest
}

func newStubBookings() *stubBookings {
	return &stubBookings{bookings: make(map[string]*domain.Booking)}
}

func (s *stubBookings) Book(ctx context.Context, req domain.BookingRequest) (*domain.BookingResult, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if b, ok := s.bookings[req.IdempotencyKey]; ok {
		return &domain.BookingResult{Booking: b, Created: false, State: domain.SagaPersisted}, nil
	}
	b := &domain.Booking{
		Key:         req.IdempotencyKey,
		ResourceID:  req.ResourceID,
		RequesterID: req.RequesterID,
		UnitCount:   req.UnitCount,
		Status:      domain.BookingStatusConfirmed,
	}
	s.bookings[b.Key] = b
	return &domain.BookingResult{Booking: b, Created: true, State: domain.SagaPersisted}, nil
}

func (s *stubBookings) Get(ctx context.Context, key string) (*domain.Booking, error) {
	b, ok := s.bookings[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (s *stubBookings) List(ctx context.Context) ([]domain.Booking, error) {
	out := make([]domain.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, *b)
	}
	return out, nil
}

type stubInventory struct {
	resources map[string]*domain.Resource
}

func (s *stubInventory) Register(ctx context.Context, req domain.RegisterResourceRequest) (*domain.Resource, error) {
	if req.TotalUnits <= 0 {
		return nil, fmt.Errorf("%w: total_units must be positive", domain.ErrInvalidRequest)
	}
	r := &domain.Resource{ID: "r1", Title: req.Title, TotalUnits: req.TotalUnits, AvailableUnits: req.TotalUnits}
	s.resources[r.ID] = r
	return r, nil
}

func (s *stubInventory) Get(ctx context.Context, id string) (*domain.Resource, error) {
	r, ok := s.resources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (s *stubInventory) List(ctx context.Context) ([]domain.Resource, error) {
	out := make([]domain.Resource, 0)
	for _, r := range s.resources {
		out = append(out, *r)
	}
	return out, nil
}

type stubReconciler struct {
	report *domain.ReconciliationReport
}

func (s *stubReconciler) Check(ctx context.Context) (*domain.ReconciliationReport, error) {
	return s.report, nil
}

type stubNotifications struct {
	limit int
}

func (s *stubNotifications) Latest(ctx context.Context, limit int) ([]domain.Notification, error) {
	s.limit = limit
	return []domain.Notification{{MessageID: "m-1", RequesterID: "u"}}, nil
}
