package model

import "time"

// Event is the part of an event the scheduler needs: its times and a title
// used to annotate the space block.
type Event struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	StartDatetime time.Time  `json:"start_datetime"`
	EndDatetime   *time.Time `json:"end_datetime,omitempty"`
}

// End returns the event end, or start plus fallback when no end is set.
func (e *Event) End(fallback time.Duration) time.Time {
	if e.EndDatetime != nil {
		return *e.EndDatetime
	}
	return e.StartDatetime.Add(fallback)
}
