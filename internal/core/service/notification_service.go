package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/metrics"
	"github.com/rl1809/seat-booking/internal/platform/tracing"
	"github.com/rl1809/seat-booking/internal/port"
)

type Outcome string

const (
	OutcomeProcessed    Outcome = "processed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// NotificationService turns booking facts into notifications exactly once
// per message id.
type NotificationService struct {
	repo        port.NotificationRepository
	deadLetters port.DeadLetterWriter
	dispatchers []port.Dispatcher
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewNotificationService(
	repo port.NotificationRepository,
	deadLetters port.DeadLetterWriter,
	dispatchers []port.Dispatcher,
	logger *zap.Logger,
	m *metrics.Metrics,
) *NotificationService {
	return &NotificationService{
		repo:        repo,
		deadLetters: deadLetters,
		dispatchers: dispatchers,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
	}
}

// Consume blocks on sub, handling every delivery and always acknowledging it.
func (s *NotificationService) Consume(ctx context.Context, sub port.Subscriber) error {
	return sub.Subscribe(ctx, func(ctx context.Context, d port.Delivery) {
		msgCtx := tracing.Extract(ctx, d.Headers)
		s.HandleMessage(msgCtx, d.Topic, d.Value)
		if err := d.Ack(ctx); err != nil {
			s.logger.Warn("failed to acknowledge message",
				zap.String("topic", d.Topic), zap.Error(err))
		}
	})
}

// HandleMessage processes one raw message. It never fails: anything that
// cannot be parsed, validated or stored goes to the dead-letter channel.
func (s *NotificationService) HandleMessage(ctx context.Context, topic string, raw []byte) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = s.deadLetter(ctx, topic, raw, fmt.Errorf("panic: %v", r))
		}
		s.metrics.ObserveConsumed(string(outcome))
	}()

	fact, err := domain.ParseFact(raw)
	if err != nil {
		return s.deadLetter(ctx, topic, raw, err)
	}
	logger := s.logger.With(
		zap.String("message_id", fact.MessageID),
		zap.String("booking_key", fact.BookingKey))

	exists, err := s.repo.ExistsByMessageID(ctx, fact.MessageID)
	if err != nil {
		return s.deadLetter(ctx, topic, raw, fmt.Errorf("check message id: %w", err))
	}
	if exists {
		logger.Debug("duplicate fact skipped")
		return OutcomeDuplicate
	}

	n := domain.NotificationFromFact(fact, s.now())
	if err := s.repo.Create(ctx, n); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			logger.Debug("duplicate fact skipped on insert")
			return OutcomeDuplicate
		}
		return s.deadLetter(ctx, topic, raw, fmt.Errorf("store notification: %w", err))
	}

	s.dispatch(ctx, logger, n)
	logger.Info("notification created", zap.String("requester_id", n.RequesterID))
	return OutcomeProcessed
}

// dispatch runs side effects in parallel. They are best-effort: the
// notification row is already the durable record.
func (s *NotificationService) dispatch(ctx context.Context, logger *zap.Logger, n *domain.Notification) {
	var g errgroup.Group
	for _, d := range s.dispatchers {
		d := d
		g.Go(func() error {
			if err := d.Dispatch(ctx, n); err != nil {
				logger.Warn("notification dispatch failed",
					zap.String("dispatcher", d.Name()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *NotificationService) deadLetter(ctx context.Context, topic string, raw []byte, cause error) Outcome {
	dl := domain.DeadLetter{
		OriginalTopic: topic,
		RawPayload:    string(raw),
		FailureReason: cause.Error(),
		FailedAt:      s.now().UTC(),
	}
	if err := s.deadLetters.WriteDeadLetter(context.WithoutCancel(ctx), dl); err != nil {
		s.logger.Error("dead letter lost",
			zap.String("topic", topic),
			zap.String("failure_reason", dl.FailureReason),
			zap.ByteString("payload", raw),
			zap.Error(err))
	} else {
		s.logger.Warn("message dead-lettered",
			zap.String("topic", topic),
			zap.String("failure_reason", dl.FailureReason))
	}
	return OutcomeDeadLettered
}

const (
	defaultNotificationLimit = 100
	maxNotificationLimit     = 500
)

func (s *NotificationService) Latest(ctx context.Context, limit int) ([]domain.Notification, error) {
	switch {
	case limit <= 0:
		limit = defaultNotificationLimit
	case limit > maxNotificationLimit:
		limit = maxNotificationLimit
	}
	return s.repo.Latest(ctx, limit)
}
