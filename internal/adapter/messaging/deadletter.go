package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/port"
)

// DeadLetterPublisher sends dead letters to "<topic>.dlq" on the bus and falls
// back to a durable store when the bus refuses them.
type DeadLetterPublisher struct {
	writer   port.MessageWriter
	fallback port.DeadLetterRepository
	logger   *zap.Logger
}

func NewDeadLetterPublisher(writer port.MessageWriter, fallback port.DeadLetterRepository, logger *zap.Logger) *DeadLetterPublisher {
	return &DeadLetterPublisher{writer: writer, fallback: fallback, logger: logger}
}

func (p *DeadLetterPublisher) WriteDeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	payload, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	topic := domain.DeadLetterTopic(dl.OriginalTopic)
	busErr := p.writer.WriteMessage(ctx, port.Message{Topic: topic, Value: payload})
	if busErr == nil {
		return nil
	}
	if p.fallback == nil {
		return fmt.Errorf("publish dead letter to %s: %w", topic, busErr)
	}

	p.logger.Warn("dead-letter topic unavailable, storing locally",
		zap.String("topic", topic), zap.Error(busErr))
	if err := p.fallback.Append(ctx, dl); err != nil {
		return errors.Join(
			fmt.Errorf("publish dead letter to %s: %w", topic, busErr),
			fmt.Errorf("store dead letter: %w", err),
		)
	}
	return nil
}
