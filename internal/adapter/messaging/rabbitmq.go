package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/retry"
	"github.com/rl1809/seat-booking/internal/port"
)

// RabbitMQ maps topics onto durable queues on the default exchange. Publishes
// wait for a broker confirm.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger

	mu       sync.Mutex
	declared map[string]bool
}

func DialRabbitMQ(ctx context.Context, url string, policy retry.Policy, logger *zap.Logger) (*RabbitMQ, error) {
	var conn *amqp.Connection
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		c, err := amqp.Dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn("rabbitmq not ready",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect rabbitmq: %w", domain.ErrTransientDependency, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	logger.Info("connected to rabbitmq")
	return &RabbitMQ{
		conn:     conn,
		channel:  channel,
		logger:   logger,
		declared: make(map[string]bool),
	}, nil
}

// DeclareQueue creates a durable queue if it doesn't exist.
func (r *RabbitMQ) DeclareQueue(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.declareLocked(name)
}

func (r *RabbitMQ) declareLocked(name string) error {
	if r.declared[name] {
		return nil
	}
	_, err := r.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.declared[name] = true
	return nil
}

func (r *RabbitMQ) WriteMessage(ctx context.Context, msg port.Message) error {
	r.mu.Lock()
	if err := r.declareLocked(msg.Topic); err != nil {
		r.mu.Unlock()
		return err
	}
	confirm, err := r.channel.PublishWithDeferredConfirmWithContext(ctx,
		"",        // exchange
		msg.Topic, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		toPublishing(msg),
	)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm from %s: %w", msg.Topic, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message on %s", msg.Topic)
	}
	return nil
}

// Subscriber consumes queue with manual acknowledgements.
func (r *RabbitMQ) Subscriber(queue string, prefetch int) *RabbitSubscriber {
	return &RabbitSubscriber{rmq: r, queue: queue, prefetch: prefetch}
}

func (r *RabbitMQ) Close() error {
	var errs []error
	if r.channel != nil {
		errs = append(errs, r.channel.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}

type RabbitSubscriber struct {
	rmq      *RabbitMQ
	queue    string
	prefetch int
}

func (s *RabbitSubscriber) Subscribe(ctx context.Context, handle func(context.Context, port.Delivery)) error {
	// consumers get their own channel so publisher confirms stay on the shared one
	ch, err := s.rmq.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", s.queue, err)
	}
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(
		s.queue, // queue name
		"",      // consumer tag
		false,   // auto-ack (false = manual ack)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", s.queue, err)
	}
	s.rmq.logger.Info("listening on queue", zap.String("queue", s.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", s.queue)
			}
			handle(ctx, fromDelivery(s.queue, d))
		}
	}
}

func (s *RabbitSubscriber) Close() error {
	return nil
}

func toPublishing(msg port.Message) amqp.Publishing {
	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.Headers["message-id"],
		CorrelationId: string(msg.Key),
		Timestamp:     time.Now().UTC(),
		Headers:       headers,
		Body:          msg.Value,
	}
}

func fromDelivery(queue string, d amqp.Delivery) port.Delivery {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	return port.Delivery{
		Message: port.Message{
			Topic:   queue,
			Key:     []byte(d.CorrelationId),
			Value:   d.Body,
			Headers: headers,
		},
		Ack: func(context.Context) error {
			return d.Ack(false)
		},
	}
}
