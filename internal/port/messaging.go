package port

import (
	"context"

	"github.com/rl1809/seat-booking/internal/core/domain"
)

// Message is a transport-neutral bus message.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type MessageWriter interface {
	// WriteMessage returns only after the bus acknowledged the message
	WriteMessage(ctx context.Context, msg Message) error
	Close() error
}

// Delivery is one received message plus its acknowledgement.
type Delivery struct {
	Message
	Ack func(ctx context.Context) error
}

type Subscriber interface {
	// Subscribe blocks, calling handle for every delivery until ctx is done
	Subscribe(ctx context.Context, handle func(ctx context.Context, d Delivery)) error
	Close() error
}

type FactPublisher interface {
	Publish(ctx context.Context, fact domain.Fact) error
}

type DeadLetterWriter interface {
	WriteDeadLetter(ctx context.Context, dl domain.DeadLetter) error
}

// Dispatcher performs an outward notification side effect.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, n *domain.Notification) error
}
