package domain

// SagaState tracks one booking request through the reservation protocol.
type SagaState string

const (
	SagaReceived           SagaState = "received"
	SagaReserved           SagaState = "reserved"
	SagaPersisted          SagaState = "persisted"
	SagaReservationDenied  SagaState = "reservation_denied"
	SagaCompensated        SagaState = "compensated"
	SagaCompensationFailed SagaState = "compensation_failed"
)

func (s SagaState) Terminal() bool {
	switch s {
	case SagaPersisted, SagaReservationDenied, SagaCompensated, SagaCompensationFailed:
		return true
	}
	return false
}

var sagaTransitions = map[SagaState][]SagaState{
	SagaReceived: {SagaReserved, SagaReservationDenied, SagaPersisted},
	SagaReserved: {SagaPersisted, SagaCompensated, SagaCompensationFailed},
}

// CanTransition reports whether to is reachable from s in one step.
// Received -> Persisted covers the dedup fast path.
func (s SagaState) CanTransition(to SagaState) bool {
	for _, next := range sagaTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
