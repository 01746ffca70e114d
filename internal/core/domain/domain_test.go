package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseFact(t *testing.T) {
	b := &Booking{Key: "k1", ResourceID: "evt-1", RequesterID: "u1", UnitCount: 2}
	valid, err := json.Marshal(NewBookingConfirmed("m-1", b, time.Now()))
	if err != nil {
		t.Fatal(err)
	}

	f, err := ParseFact(valid)
	if err != nil {
		t.Fatalf("valid fact rejected: %v", err)
	}
	if f.MessageID != "m-1" || f.BookingKey != "k1" || f.UnitCount != 2 {
		t.Errorf("unexpected fact %+v", f)
	}

	malformed := map[string]string{
		"empty":           ``,
		"not json":        `{oops`,
		"wrong type":      `{"eventType":"booking.cancelled","schemaVersion":1,"messageId":"m","bookingKey":"k","resourceId":"r","requesterId":"u","unitCount":1}`,
		"wrong version":   `{"eventType":"booking.confirmed","schemaVersion":2,"messageId":"m","bookingKey":"k","resourceId":"r","requesterId":"u","unitCount":1}`,
		"unversioned":     `{"eventType":"booking.confirmed","messageId":"m","bookingKey":"k","resourceId":"r","requesterId":"u","unitCount":1}`,
		"no message id":   `{"eventType":"booking.confirmed","schemaVersion":1,"bookingKey":"k","resourceId":"r","requesterId":"u","unitCount":1}`,
		"zero units":      `{"eventType":"booking.confirmed","schemaVersion":1,"messageId":"m","bookingKey":"k","resourceId":"r","requesterId":"u","unitCount":0}`,
		"missing booking": `{"eventType":"booking.confirmed","schemaVersion":1,"messageId":"m","resourceId":"r","requesterId":"u","unitCount":1}`,
	}
	for name, raw := range malformed {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFact([]byte(raw)); !errors.Is(err, ErrMalformedFact) {
				t.Errorf("expected ErrMalformedFact, got %v", err)
			}
		})
	}
}

func TestBookingRequest_Validate(t *testing.T) {
	ok := BookingRequest{ResourceID: "r", RequesterID: "u", UnitCount: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	for _, req := range []BookingRequest{
		{RequesterID: "u", UnitCount: 1},
		{ResourceID: "r", UnitCount: 1},
		{ResourceID: "r", RequesterID: "u", UnitCount: 0},
		{ResourceID: "r", RequesterID: "u", UnitCount: -3},
	} {
		err := req.Validate()
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
		if !IsRejection(err) {
			t.Errorf("%+v: invalid request should be a rejection", req)
		}
	}
}

func TestSagaTransitions(t *testing.T) {
	legal := [][2]SagaState{
		{SagaReceived, SagaReserved},
		{SagaReceived, SagaReservationDenied},
		{SagaReceived, SagaPersisted},
		{SagaReserved, SagaPersisted},
		{SagaReserved, SagaCompensated},
		{SagaReserved, SagaCompensationFailed},
	}
	for _, tr := range legal {
		if !tr[0].CanTransition(tr[1]) {
			t.Errorf("%s -> %s should be legal", tr[0], tr[1])
		}
	}

	illegal := [][2]SagaState{
		{SagaReceived, SagaCompensated},
		{SagaPersisted, SagaCompensated},
		{SagaReservationDenied, SagaReserved},
		{SagaCompensated, SagaPersisted},
	}
	for _, tr := range illegal {
		if tr[0].CanTransition(tr[1]) {
			t.Errorf("%s -> %s should be illegal", tr[0], tr[1])
		}
	}

	if SagaReserved.Terminal() || SagaReceived.Terminal() {
		t.Error("in-progress states must not be terminal")
	}
	if !SagaCompensationFailed.Terminal() {
		t.Error("compensation_failed is terminal")
	}
}

func TestResource_Capacity(t *testing.T) {
	r := Resource{TotalUnits: 10, AvailableUnits: 3}
	if r.BookedUnits() != 7 {
		t.Errorf("expected 7 booked, got %d", r.BookedUnits())
	}
	if !r.CanReserve(3) || r.CanReserve(4) || r.CanReserve(0) {
		t.Error("CanReserve disagrees with available units")
	}
}

func TestDeadLetterTopic(t *testing.T) {
	if got := DeadLetterTopic("booking.confirmed"); got != "booking.confirmed.dlq" {
		t.Errorf("got %q", got)
	}
}
