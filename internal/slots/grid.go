package slots

import (
	"context"
	"time"

	"practicespace/internal/model"
)

// Slot represents one step of the day grid.
type Slot struct {
	StartTime time.Time
	EndTime   time.Time
	Available bool
}

// SlotInfo is a simplified representation for API clients.
type SlotInfo struct {
	Start     string `json:"start"` // "10:00"
	End       string `json:"end"`   // "10:15"
	Available bool   `json:"available"`
}

// Slots returns the full step grid of the date with availability flags.
// A slot is available when it lies inside a free interval and is not past.
func (c *Calculator) Slots(ctx context.Context, date time.Time, q Query) ([]Slot, error) {
	d, err := c.load(ctx, date, q.ExcludeReservationID)
	if err != nil || d == nil {
		return nil, err
	}

	now := c.now()
	var out []Slot
	for _, start := range c.grid(d) {
		end := start.Add(c.cfg.Step)
		if end.After(d.close) {
			end = d.close
		}
		f, ok := d.freeAround(start)
		out = append(out, Slot{
			StartTime: start,
			EndTime:   end,
			Available: ok && !end.After(f.End) && !start.Before(now),
		})
	}
	return out, nil
}

// ToSlotInfo converts slots to SlotInfo.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		date := model.StartOfDay(s.StartTime)
		result[i] = SlotInfo{
			Start:     model.TimeOfDayOf(s.StartTime).String(),
			End:       timeOfDayOn(date, s.EndTime).String(),
			Available: s.Available,
		}
	}
	return result
}

// FreeRuns merges adjacent available slots into intervals, in grid order.
func FreeRuns(slots []Slot) []model.Interval {
	var runs []model.Interval
	for _, s := range slots {
		if !s.Available {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].End.Equal(s.StartTime) {
			runs[n-1].End = s.EndTime
			continue
		}
		runs = append(runs, model.Interval{Start: s.StartTime, End: s.EndTime})
	}
	return runs
}
