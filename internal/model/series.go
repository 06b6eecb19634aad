package model

import "time"

// SeriesStatus is the state of a recurring series.
type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "active"
	SeriesCancelled SeriesStatus = "cancelled"
)

// RecurringSeries is a template for weekly reservation instances.
type RecurringSeries struct {
	ID              int64        `json:"id"`
	Owner           Owner        `json:"owner"`
	Rule            string       `json:"recurrence_rule"`
	StartTime       TimeOfDay    `json:"start_time"`
	EndTime         TimeOfDay    `json:"end_time"`
	SeriesStartDate time.Time    `json:"series_start_date"`
	SeriesEndDate   *time.Time   `json:"series_end_date,omitempty"`
	MaxAdvanceDays  int          `json:"max_advance_days"`
	Status          SeriesStatus `json:"status"`
	Notes           string       `json:"notes,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsActive reports whether the series still generates instances.
func (s *RecurringSeries) IsActive() bool {
	return s.Status == SeriesActive
}

// EndedBefore reports whether the series end date is strictly before day.
func (s *RecurringSeries) EndedBefore(day time.Time) bool {
	if s.SeriesEndDate == nil {
		return false
	}
	return StartOfDay(*s.SeriesEndDate).Before(StartOfDay(day))
}
