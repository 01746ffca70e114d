package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/retry"
	"github.com/rl1809/seat-booking/internal/port"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes with acks from all in-sync replicas. The topic is
// taken from each message.
type KafkaWriter struct {
	w kafkaWriter
}

func NewKafkaWriter(brokers []string) *KafkaWriter {
	return &KafkaWriter{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (k *KafkaWriter) WriteMessage(ctx context.Context, msg port.Message) error {
	return k.w.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: toKafkaHeaders(msg.Headers),
	})
}

func (k *KafkaWriter) Close() error {
	return k.w.Close()
}

// KafkaSubscriber reads one topic as part of a consumer group and commits
// offsets only when a delivery is acknowledged.
type KafkaSubscriber struct {
	r      kafkaReader
	logger *zap.Logger
	// pause after a failed fetch
	backoff time.Duration
}

func NewKafkaSubscriber(brokers []string, topic, group string, logger *zap.Logger) *KafkaSubscriber {
	return &KafkaSubscriber{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  group,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		logger:  logger,
		backoff: time.Second,
	}
}

func (k *KafkaSubscriber) Subscribe(ctx context.Context, handle func(context.Context, port.Delivery)) error {
	for {
		msg, err := k.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("kafka reader closed: %w", err)
			}
			k.logger.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(k.backoff):
			}
			continue
		}

		handle(ctx, port.Delivery{
			Message: port.Message{
				Topic:   msg.Topic,
				Key:     msg.Key,
				Value:   msg.Value,
				Headers: fromKafkaHeaders(msg.Headers),
			},
			Ack: func(ctx context.Context) error {
				return k.r.CommitMessages(ctx, msg)
			},
		})
	}
}

func (k *KafkaSubscriber) Close() error {
	return k.r.Close()
}

// EnsureKafkaTopics waits for the cluster and creates the topics if missing.
func EnsureKafkaTopics(ctx context.Context, brokers []string, topics []string, policy retry.Policy, logger *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	var conn *kafka.Conn
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		c, err := kafka.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, func(err error, attempt int, wait time.Duration) {
		logger.Warn("kafka not ready",
			zap.Strings("brokers", brokers),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("%w: connect kafka: %w", domain.ErrTransientDependency, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find kafka controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer cc.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 3, ReplicationFactor: 1})
	}
	if err := cc.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create kafka topics: %w", err)
	}

	logger.Info("kafka ready", zap.Strings("brokers", brokers), zap.Strings("topics", topics))
	return nil
}

func toKafkaHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafkaHeaders(h []kafka.Header) map[string]string {
	out := make(map[string]string, len(h))
	for _, kv := range h {
		out[kv.Key] = string(kv.Value)
	}
	return out
}
