package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventTypeBookingConfirmed = "booking.confirmed"
	FactSchemaVersion         = 1
)

// Fact is the versioned booking-confirmed event. The wire shape must stay
// backward compatible: fields may be added, never renamed or removed.
type Fact struct {
	EventType     string    `json:"eventType"`
	SchemaVersion int       `json:"schemaVersion"`
	MessageID     string    `json:"messageId"`
	BookingKey    string    `json:"bookingKey"`
	ResourceID    string    `json:"resourceId"`
	RequesterID   string    `json:"requesterId"`
	UnitCount     int       `json:"unitCount"`
	EmittedAt     time.Time `json:"emittedAt"`
}

// NewBookingConfirmed builds the fact for a booking. messageID is chosen by
// the caller so it is fixed before the fact is written anywhere.
func NewBookingConfirmed(messageID string, b *Booking, at time.Time) Fact {
	return Fact{
		EventType:     EventTypeBookingConfirmed,
		SchemaVersion: FactSchemaVersion,
		MessageID:     messageID,
		BookingKey:    b.Key,
		ResourceID:    b.ResourceID,
		RequesterID:   b.RequesterID,
		UnitCount:     b.UnitCount,
		EmittedAt:     at.UTC(),
	}
}

// ParseFact decodes and validates a raw payload. Every failure wraps
// ErrMalformedFact so callers can dead-letter without retrying.
func ParseFact(raw []byte) (*Fact, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedFact)
	}
	var f Fact
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFact, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fact) Validate() error {
	switch {
	case f.EventType != EventTypeBookingConfirmed:
		return fmt.Errorf("%w: unsupported eventType %q", ErrMalformedFact, f.EventType)
	case f.SchemaVersion != FactSchemaVersion:
		return fmt.Errorf("%w: unsupported schemaVersion %d", ErrMalformedFact, f.SchemaVersion)
	case f.MessageID == "":
		return fmt.Errorf("%w: missing messageId", ErrMalformedFact)
	case f.BookingKey == "" || f.ResourceID == "" || f.RequesterID == "":
		return fmt.Errorf("%w: missing booking reference", ErrMalformedFact)
	case f.UnitCount <= 0:
		return fmt.Errorf("%w: unitCount must be positive", ErrMalformedFact)
	}
	return nil
}
