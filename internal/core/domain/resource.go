package domain

import "time"

// Resource is an inventory-bearing entity, the seats of one event.
type Resource struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	TotalUnits     int       `json:"total_units"`
	AvailableUnits int       `json:"available_units"`
	StartsAt       time.Time `json:"starts_at"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BookedUnits is what the inventory believes has been handed out.
func (r *Resource) BookedUnits() int {
	return r.TotalUnits - r.AvailableUnits
}

// CanReserve reports whether count units fit into the remaining capacity.
func (r *Resource) CanReserve(count int) bool {
	return count > 0 && r.AvailableUnits >= count
}

type RegisterResourceRequest struct {
	Title      string    `json:"title"`
	TotalUnits int       `json:"total_units"`
	StartsAt   time.Time `json:"starts_at"`
}
