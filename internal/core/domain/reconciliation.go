package domain

import "time"

type ViolationKind string

const (
	ViolationNegativeAvailable ViolationKind = "negative_available"
	ViolationExceedsTotal      ViolationKind = "exceeds_total"
	ViolationBookedMismatch    ViolationKind = "booked_mismatch"
)

// Violation is one integrity problem found for a resource.
type Violation struct {
	ResourceID     string        `json:"resource_id"`
	Kind           ViolationKind `json:"kind"`
	TotalUnits     int           `json:"total_units"`
	AvailableUnits int           `json:"available_units"`
	BookedUnits    int           `json:"booked_units"`
	ConfirmedUnits int           `json:"confirmed_units"`
}

type ReconciliationReport struct {
	CheckedAt  time.Time   `json:"checked_at"`
	Resources  int         `json:"resources"`
	Violations []Violation `json:"violations"`
}

func (r *ReconciliationReport) Consistent() bool {
	return len(r.Violations) == 0
}
