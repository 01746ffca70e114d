package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type BookingAPI interface {
	Book(ctx context.Context, req domain.BookingRequest) (*domain.BookingResult, error)
	Get(ctx context.Context, key string) (*domain.Booking, error)
	List(ctx context.Context) ([]domain.Booking, error)
}

type InventoryAPI interface {
	Register(ctx context.Context, req domain.RegisterResourceRequest) (*domain.Resource, error)
	Get(ctx context.Context, id string) (*domain.Resource, error)
	List(ctx context.Context) ([]domain.Resource, error)
}

type Reconciler interface {
	Check(ctx context.Context) (*domain.ReconciliationReport, error)
}

type NotificationAPI interface {
	Latest(ctx context.Context, limit int) ([]domain.Notification, error)
}

type HTTPHandler struct {
	bookings   BookingAPI
	inventory  InventoryAPI
	reconciler Reconciler
	logger     *zap.Logger
}

func NewHTTPHandler(bookings BookingAPI, inventory InventoryAPI, reconciler Reconciler, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		bookings:   bookings,
		inventory:  inventory,
		reconciler: reconciler,
		logger:     logger,
	}
}

// NewRouter builds the chi router shared by both services. metrics may be nil.
func NewRouter(logger *zap.Logger, metrics http.Handler, mount func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(AccessLog(logger))

	r.Get("/health", HealthCheck)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	mount(r)
	return r
}

func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/resources", func(r chi.Router) {
		r.Post("/", h.RegisterResource)
		r.Get("/", h.ListResources)
		r.Get("/{id}", h.GetResource)
	})
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Get("/", h.ListBookings)
		r.Get("/{key}", h.GetBooking)
	})
	r.Get("/reconciliation", h.Reconcile)
}

func (h *HTTPHandler) RegisterResource(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterResourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.inventory.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *HTTPHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	list, err := h.inventory.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HTTPHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.inventory.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateBooking answers 201 for a new booking and 200 when the key matched
// an existing one.
func (h *HTTPHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		req.IdempotencyKey = key
	}

	res, err := h.bookings.Book(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (h *HTTPHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.bookings.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *HTTPHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Check(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, msg)
}

type NotificationHTTPHandler struct {
	notifications NotificationAPI
	logger        *zap.Logger
}

func NewNotificationHTTPHandler(notifications NotificationAPI, logger *zap.Logger) *NotificationHTTPHandler {
	return &NotificationHTTPHandler{notifications: notifications, logger: logger}
}

func (h *NotificationHTTPHandler) Routes(r chi.Router) {
	r.Get("/notifications", h.Latest)
}

func (h *NotificationHTTPHandler) Latest(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.notifications.Latest(r.Context(), limit)
	if err != nil {
		h.logger.Error("list notifications failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AccessLog writes one structured line per request.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())))
		})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
