package model

import "time"

// ClosureType classifies why the space is unavailable.
type ClosureType string

const (
	ClosureMaintenance ClosureType = "maintenance"
	ClosureHoliday     ClosureType = "holiday"
	ClosureOther       ClosureType = "other"
)

// SpaceClosure is a range during which the space cannot be booked.
type SpaceClosure struct {
	ID        int64       `json:"id"`
	StartsAt  time.Time   `json:"starts_at"`
	EndsAt    time.Time   `json:"ends_at"`
	Type      ClosureType `json:"type"`
	Reason    string      `json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}

// Interval returns the closed range.
func (c *SpaceClosure) Interval() Interval {
	return Interval{Start: c.StartsAt, End: c.EndsAt}
}
