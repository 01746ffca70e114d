package domain

import "time"

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is keyed by the idempotency token of the request that created it.
type Booking struct {
	Key         string        `json:"booking_key"`
	ResourceID  string        `json:"resource_id"`
	RequesterID string        `json:"requester_id"`
	UnitCount   int           `json:"unit_count"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// BookingRequest is the inbound shape handed to the orchestrator.
// IdempotencyKey is optional; a fresh key is generated when empty.
type BookingRequest struct {
	ResourceID     string `json:"resource_id"`
	RequesterID    string `json:"requester_id"`
	UnitCount      int    `json:"unit_count"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (r BookingRequest) Validate() error {
	switch {
	case r.ResourceID == "":
		return invalid("resource_id is required")
	case r.RequesterID == "":
		return invalid("requester_id is required")
	case r.UnitCount <= 0:
		return invalid("unit_count must be a positive integer")
	}
	return nil
}

// BookingResult is what the orchestrator hands back. Created is false when
// the request was resolved against an existing booking with the same key.
type BookingResult struct {
	Booking *Booking  `json:"booking"`
	Created bool      `json:"created"`
	State   SagaState `json:"state"`
}
