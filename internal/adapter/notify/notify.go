// Package notify holds the outward side effects run after a notification is
// stored. None of them are durable; the notification row is.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Name() string { return "log" }

func (d *LogDispatcher) Dispatch(ctx context.Context, n *domain.Notification) error {
	d.logger.Info("notify requester",
		zap.String("requester_id", n.RequesterID),
		zap.String("booking_key", n.BookingKey),
		zap.String("message", n.RenderedMessage))
	return nil
}

// RedisPushDispatcher publishes the notification on a per-requester channel
// for any connected push gateway to fan out.
type RedisPushDispatcher struct {
	client *redis.Client
	prefix string
}

func NewRedisPushDispatcher(client *redis.Client, prefix string) *RedisPushDispatcher {
	return &RedisPushDispatcher{client: client, prefix: prefix}
}

func (d *RedisPushDispatcher) Name() string { return "redis-push" }

func (d *RedisPushDispatcher) Channel(requesterID string) string {
	return d.prefix + ":" + requesterID
}

func (d *RedisPushDispatcher) Dispatch(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := d.client.Publish(ctx, d.Channel(n.RequesterID), payload).Err(); err != nil {
		return fmt.Errorf("publish push notification: %w", err)
	}
	return nil
}
