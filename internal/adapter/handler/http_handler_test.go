package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

type httpFixture struct {
	bookings  *stubBookings
	inventory *stubInventory
	router    http.Handler
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &httpFixture{
		bookings:  newStubBookings(),
		inventory: &stubInventory{resources: make(map[string]*domain.Resource)},
	}
	reconciler := &stubReconciler{report: &domain.ReconciliationReport{Resources: 1, Violations: []domain.Violation{}}}
	h := NewHTTPHandler(f.bookings, f.inventory, reconciler, logger)
	f.router = NewRouter(logger, http.NotFoundHandler(), h.Routes)
	return f
}

func (f *httpFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateBooking_CreatedThenDuplicate(t *testing.T) {
	f := newHTTPFixture(t)
	body := `{"resource_id":"evt-1","requester_id":"u1","unit_count":2}`
	headers := map[string]string{IdempotencyKeyHeader: "k1"}

	rec := f.do(http.MethodPost, "/bookings", body, headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var res domain.BookingResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.Booking.Key != "k1" {
		t.Errorf("unexpected result: %+v", res)
	}

	rec = f.do(http.MethodPost, "/bookings", body, headers)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for a repeated key, got %d", rec.Code)
	}
}

func TestCreateBooking_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "capacity", err: domain.ErrInsufficientCapacity, want: http.StatusConflict},
		{name: "conflict", err: domain.ErrConflict, want: http.StatusConflict},
		{name: "not found", err: domain.ErrNotFound, want: http.StatusNotFound},
		{name: "invalid", err: domain.ErrInvalidRequest, want: http.StatusBadRequest},
		{name: "compensation", err: domain.ErrCompensationFailed, want: http.StatusInternalServerError},
		{name: "other", err: errors.New("db exploded"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHTTPFixture(t)
			f.bookings.err = tt.err

			rec := f.do(http.MethodPost, "/bookings", `{"resource_id":"evt-1","requester_id":"u1","unit_count":1}`, nil)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if strings.Contains(rec.Body.String(), "exploded") {
				t.Error("internal error text leaked to the client")
			}
		})
	}
}

func TestCreateBooking_BadBody(t *testing.T) {
	f := newHTTPFixture(t)

	for _, body := range []string{`{`, `{"resource_id":"evt-1","unknown":1}`} {
		if rec := f.do(http.MethodPost, "/bookings", body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestCreateBooking_BodyKeyWithoutHeader(t *testing.T) {
	f := newHTTPFixture(t)

	f.do(http.MethodPost, "/bookings", `{"resource_id":"evt-1","requester_id":"u1","unit_count":1,"idempotency_key":"body-key"}`, nil)
	if f.bookings.lastReq.IdempotencyKey != "body-key" {
		t.Errorf("expected body key, got %q", f.bookings.lastReq.IdempotencyKey)
	}
}

func TestGetBooking(t *testing.T) {
	f := newHTTPFixture(t)
	f.do(http.MethodPost, "/bookings", `{"resource_id":"evt-1","requester_id":"u1","unit_count":1}`, map[string]string{IdempotencyKeyHeader: "k1"})

	if rec := f.do(http.MethodGet, "/bookings/k1", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/bookings/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/bookings", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestResources(t *testing.T) {
	f := newHTTPFixture(t)

	rec := f.do(http.MethodPost, "/resources", `{"title":"Concert","total_units":10}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/resources", `{"title":"Concert","total_units":0}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/resources/r1", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/resources/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestReconcileAndHealth(t *testing.T) {
	f := newHTTPFixture(t)

	rec := f.do(http.MethodGet, "/reconciliation", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"violations":[]`) {
		t.Errorf("unexpected reconciliation response %d: %s", rec.Code, rec.Body)
	}
	if rec := f.do(http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestNotificationRoutes(t *testing.T) {
	notifications := &stubNotifications{}
	logger := zaptest.NewLogger(t)
	router := NewRouter(logger, nil, NewNotificationHTTPHandler(notifications, logger).Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if notifications.limit != 5 {
		t.Errorf("expected limit 5, got %d", notifications.limit)
	}
}
