package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/metrics"
	"github.com/rl1809/seat-booking/internal/platform/tracing"
	"github.com/rl1809/seat-booking/internal/port"
)

const (
	HeaderMessageID     = "message-id"
	HeaderEventType     = "event-type"
	HeaderSchemaVersion = "schema-version"
)

type OutboxOptions struct {
	PollInterval time.Duration
	BatchSize    int
	Lease        time.Duration
}

// OutboxRelay moves facts from the booking store's outbox to the bus. Publish
// is the fast path taken right after a booking commits; Run is the forwarder
// that picks up anything the fast path missed.
type OutboxRelay struct {
	outbox  port.OutboxRepository
	writer  port.MessageWriter
	opts    OutboxOptions
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewOutboxRelay(outbox port.OutboxRepository, writer port.MessageWriter, opts OutboxOptions, logger *zap.Logger, m *metrics.Metrics) *OutboxRelay {
	return &OutboxRelay{
		outbox:  outbox,
		writer:  writer,
		opts:    opts,
		logger:  logger,
		metrics: m,
	}
}

// Publish delivers one fact that is already in the outbox. It is a no-op when
// the entry was sent or is leased by the forwarder.
func (r *OutboxRelay) Publish(ctx context.Context, fact domain.Fact) error {
	entry, ok, err := r.outbox.ClaimByMessageID(ctx, fact.MessageID, r.opts.Lease)
	if err != nil {
		return fmt.Errorf("claim outbox entry %s: %w", fact.MessageID, err)
	}
	if !ok {
		return nil
	}
	return r.deliver(ctx, *entry)
}

// Run polls the outbox until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox forwarder started", zap.Duration("poll_interval", r.opts.PollInterval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox forwarder stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush claims one batch and tries to deliver each entry, returning how many
// were sent.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	entries, err := r.outbox.ClaimBatch(ctx, r.opts.BatchSize, r.opts.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}

	sent := 0
	for _, e := range entries {
		if err := r.deliver(ctx, e); err != nil {
			r.logger.Warn("outbox delivery failed",
				zap.String("message_id", e.Fact.MessageID),
				zap.Int("attempts", e.Attempts),
				zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		r.logger.Info("outbox flushed", zap.Int("sent", sent), zap.Int("claimed", len(entries)))
	}
	return sent, nil
}

func (r *OutboxRelay) deliver(ctx context.Context, e port.OutboxEntry) error {
	payload, err := json.Marshal(e.Fact)
	if err != nil {
		return fmt.Errorf("encode fact: %w", err)
	}

	headers := map[string]string{
		HeaderMessageID:     e.Fact.MessageID,
		HeaderEventType:     e.Fact.EventType,
		HeaderSchemaVersion: strconv.Itoa(e.Fact.SchemaVersion),
	}
	tracing.Inject(ctx, headers)

	err = r.writer.WriteMessage(ctx, port.Message{
		Topic:   e.Topic,
		Key:     []byte(e.Fact.BookingKey),
		Value:   payload,
		Headers: headers,
	})
	r.metrics.ObserveOutbox(err)
	if err != nil {
		if merr := r.outbox.MarkFailed(context.WithoutCancel(ctx), e.ID, err.Error()); merr != nil {
			r.logger.Error("failed to record outbox failure", zap.Int64("outbox_id", e.ID), zap.Error(merr))
		}
		return fmt.Errorf("publish fact %s: %w", e.Fact.MessageID, err)
	}

	// A crash here republishes once the lease lapses; consumers dedupe on message id.
	if err := r.outbox.MarkSent(context.WithoutCancel(ctx), e.ID); err != nil {
		return fmt.Errorf("mark outbox entry %d sent: %w", e.ID, err)
	}
	return nil
}
