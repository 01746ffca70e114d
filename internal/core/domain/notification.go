package domain

import (
	"fmt"
	"time"
)

// Notification is materialized at most once per fact MessageID.
type Notification struct {
	MessageID       string    `json:"message_id"`
	BookingKey      string    `json:"booking_key"`
	RequesterID     string    `json:"requester_id"`
	ResourceID      string    `json:"resource_id"`
	RenderedMessage string    `json:"message"`
	CreatedAt       time.Time `json:"created_at"`
}

func NotificationFromFact(f *Fact, at time.Time) *Notification {
	return &Notification{
		MessageID:       f.MessageID,
		BookingKey:      f.BookingKey,
		RequesterID:     f.RequesterID,
		ResourceID:      f.ResourceID,
		RenderedMessage: fmt.Sprintf("Booking confirmed for %d seat(s) at event %s", f.UnitCount, f.ResourceID),
		CreatedAt:       at.UTC(),
	}
}

// DeadLetter is an append-only record of a message the consumer gave up on.
type DeadLetter struct {
	OriginalTopic string    `json:"originalTopic"`
	RawPayload    string    `json:"rawPayload"`
	FailureReason string    `json:"failureReason"`
	FailedAt      time.Time `json:"failedAt"`
}

// DeadLetterTopic derives the dead-letter channel name for a topic.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}
