package messaging

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/seat-booking/internal/config"
	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/platform/retry"
	"github.com/rl1809/seat-booking/internal/port"
)

type stubReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	errs      []error
	committed []int64
}

func (s *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(s.queue) > 0 {
		m := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *stubReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

func (s *stubReader) Close() error { return nil }

type stubWriter struct {
	written []kafka.Message
	err     error
}

func (s *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, msgs...)
	return nil
}

func (s *stubWriter) Close() error { return nil }

func TestKafkaWriter_MapsMessage(t *testing.T) {
	stub := &stubWriter{}
	w := &KafkaWriter{w: stub}

	err := w.WriteMessage(context.Background(), port.Message{
		Topic:   "booking.confirmed",
		Key:     []byte("k1"),
		Value:   []byte(`{}`),
		Headers: map[string]string{"message-id": "m-1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(stub.written) != 1 {
		t.Fatalf("expected 1 message, got %d", len(stub.written))
	}
	got := stub.written[0]
	if got.Topic != "booking.confirmed" || string(got.Key) != "k1" {
		t.Errorf("unexpected message: %+v", got)
	}
	if len(got.Headers) != 1 || got.Headers[0].Key != "message-id" || string(got.Headers[0].Value) != "m-1" {
		t.Errorf("unexpected headers: %+v", got.Headers)
	}
}

func TestKafkaSubscriber_DeliversAndCommits(t *testing.T) {
	reader := &stubReader{
		errs: []error{errors.New("leader not available")},
		queue: []kafka.Message{
			{Topic: "t", Offset: 1, Value: []byte("a"), Headers: []kafka.Header{{Key: "message-id", Value: []byte("m-1")}}},
			{Topic: "t", Offset: 2, Value: []byte("b")},
		},
	}
	sub := &KafkaSubscriber{r: reader, logger: zaptest.NewLogger(t), backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	var got []port.Delivery
	done := make(chan error, 1)
	go func() {
		done <- sub.Subscribe(ctx, func(ctx context.Context, d port.Delivery) {
			got = append(got, d)
			if err := d.Ack(ctx); err != nil {
				t.Errorf("ack: %v", err)
			}
			if len(got) == 2 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].Headers["message-id"] != "m-1" || string(got[1].Value) != "b" {
		t.Errorf("unexpected deliveries: %+v", got)
	}
	if len(reader.committed) != 2 || reader.committed[1] != 2 {
		t.Errorf("expected both offsets committed, got %v", reader.committed)
	}
}

func TestKafkaSubscriber_ClosedReader(t *testing.T) {
	sub := &KafkaSubscriber{r: &stubReader{errs: []error{io.EOF}}, logger: zaptest.NewLogger(t), backoff: time.Millisecond}

	err := sub.Subscribe(context.Background(), func(context.Context, port.Delivery) {})
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestOpenBus_UnknownDriver(t *testing.T) {
	_, err := OpenBus(context.Background(), config.BusConfig{Driver: "nats", FactTopic: "t"}, retry.DefaultPolicy(), zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestEnsureKafkaTopics_GivesUp(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := EnsureKafkaTopics(ctx, []string{"127.0.0.1:1"}, []string{"booking.confirmed"}, policy, zaptest.NewLogger(t))
	if !errors.Is(err, domain.ErrTransientDependency) {
		t.Fatalf("expected ErrTransientDependency, got %v", err)
	}
}
