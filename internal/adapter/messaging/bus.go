package messaging

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/config"
	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/retry"
	"github.com/rl1809/seat-booking/internal/port"
)

// Bus is the configured broker: Kafka or RabbitMQ.
type Bus struct {
	Writer port.MessageWriter

	cfg         config.BusConfig
	logger      *zap.Logger
	rabbit      *RabbitMQ
	subscribers []port.Subscriber
}

// OpenBus connects to the configured broker with backoff and makes sure the
// fact topic and its dead-letter topic exist.
func OpenBus(ctx context.Context, cfg config.BusConfig, policy retry.Policy, logger *zap.Logger) (*Bus, error) {
	b := &Bus{cfg: cfg, logger: logger}
	topics := []string{cfg.FactTopic, domain.DeadLetterTopic(cfg.FactTopic)}

	switch cfg.Driver {
	case config.BusDriverKafka:
		if err := EnsureKafkaTopics(ctx, cfg.KafkaBrokers, topics, policy, logger); err != nil {
			return nil, err
		}
		b.Writer = NewKafkaWriter(cfg.KafkaBrokers)
	case config.BusDriverRabbitMQ:
		rmq, err := DialRabbitMQ(ctx, cfg.AMQPURL, policy, logger)
		if err != nil {
			return nil, err
		}
		for _, t := range topics {
			if err := rmq.DeclareQueue(t); err != nil {
				rmq.Close()
				return nil, err
			}
		}
		b.rabbit = rmq
		b.Writer = rmq
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
	return b, nil
}

// Subscriber reads topic under the configured consumer group.
func (b *Bus) Subscriber(topic string) port.Subscriber {
	var sub port.Subscriber
	if b.rabbit != nil {
		sub = b.rabbit.Subscriber(topic, 16)
	} else {
		sub = NewKafkaSubscriber(b.cfg.KafkaBrokers, topic, b.cfg.ConsumerGroup, b.logger)
	}
	b.subscribers = append(b.subscribers, sub)
	return sub
}

func (b *Bus) Close() error {
	var errs []error
	for _, s := range b.subscribers {
		errs = append(errs, s.Close())
	}
	if b.Writer != nil {
		errs = append(errs, b.Writer.Close())
	}
	return errors.Join(errs...)
}
