package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"practicespace/internal/model"
)

// Hours supplies the venue's opening window per local date.
type Hours interface {
	OperatingHours(date time.Time) (open, closeAt model.TimeOfDay, ok bool)
	Location() *time.Location
}

// ConflictFinder is the part of the conflict scanner the calculator reads.
type ConflictFinder interface {
	FindConflicts(ctx context.Context, start, end time.Time, excludeID int64) (model.ConflictSet, error)
}

// StartTimeCache memoizes unfiltered start options per venue-local day.
type StartTimeCache interface {
	GetStartTimes(ctx context.Context, day string) ([]model.TimeOfDay, bool)
	SetStartTimes(ctx context.Context, day string, times []model.TimeOfDay)
}

// Config holds the discretization and duration rules.
type Config struct {
	Step        time.Duration
	Buffer      time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Query narrows a lookup for a reservation being edited.
type Query struct {
	ExcludeReservationID int64
	// Selected is always part of the result when set.
	Selected *model.TimeOfDay
}

func (q Query) zero() bool {
	return q.ExcludeReservationID == 0 && q.Selected == nil
}

// Calculator derives bookable start and end times for a date.
type Calculator struct {
	hours  Hours
	finder ConflictFinder
	cfg    Config
	cache  StartTimeCache
	logger *zerolog.Logger
	now    func() time.Time
}

func NewCalculator(hours Hours, finder ConflictFinder, cfg Config, logger *zerolog.Logger) *Calculator {
	if cfg.Step <= 0 {
		cfg.Step = 15 * time.Minute
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = cfg.Step
	}
	if cfg.MaxDuration < cfg.MinDuration {
		cfg.MaxDuration = 24 * time.Hour
	}
	l := logger.With().Str("component", "slots").Logger()
	return &Calculator{hours: hours, finder: finder, cfg: cfg, logger: &l, now: time.Now}
}

// WithCache enables caching of start times for days after today.
func (c *Calculator) WithCache(cache StartTimeCache) *Calculator {
	c.cache = cache
	return c
}

// day is the opening window of a date with its free sub-intervals.
type day struct {
	date  time.Time
	open  time.Time
	close time.Time
	free  []model.Interval
}

func (c *Calculator) localDate(date time.Time) time.Time {
	loc := c.hours.Location()
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

func (c *Calculator) load(ctx context.Context, date time.Time, excludeID int64) (*day, error) {
	local := c.localDate(date)
	open, closeAt, ok := c.hours.OperatingHours(local)
	if !ok {
		return nil, nil
	}

	d := &day{date: local, open: open.On(local), close: closeAt.On(local)}

	// Widen the query so neighbours whose buffer reaches into the window count.
	set, err := c.finder.FindConflicts(ctx, d.open.Add(-c.cfg.Buffer), d.close.Add(c.cfg.Buffer), excludeID)
	if err != nil {
		return nil, fmt.Errorf("find conflicts: %w", err)
	}

	busy := make([]model.Interval, 0, set.Count())
	for _, r := range set.Reservations {
		busy = append(busy, r.Interval().Pad(c.cfg.Buffer, c.cfg.Buffer))
	}
	for _, r := range set.EventBlocks {
		busy = append(busy, r.Interval().Pad(c.cfg.Buffer, c.cfg.Buffer))
	}
	for i := range set.Closures {
		busy = append(busy, set.Closures[i].Interval())
	}

	d.free = subtract(model.Interval{Start: d.open, End: d.close}, busy)
	return d, nil
}

// subtract removes busy ranges from window and returns the ordered remainder.
func subtract(window model.Interval, busy []model.Interval) []model.Interval {
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	var free []model.Interval
	cursor := window.Start
	for _, b := range busy {
		if !b.End.After(cursor) {
			continue
		}
		if !b.Start.Before(window.End) {
			break
		}
		if b.Start.After(cursor) {
			free = append(free, model.Interval{Start: cursor, End: b.Start})
		}
		cursor = b.End
	}
	if cursor.Before(window.End) {
		free = append(free, model.Interval{Start: cursor, End: window.End})
	}
	return free
}

// freeAround returns the free interval containing t.
func (d *day) freeAround(t time.Time) (model.Interval, bool) {
	for _, f := range d.free {
		if !t.Before(f.Start) && t.Before(f.End) {
			return f, true
		}
	}
	return model.Interval{}, false
}

func (c *Calculator) grid(d *day) []time.Time {
	var out []time.Time
	for cursor := d.open; cursor.Before(d.close); cursor = cursor.Add(c.cfg.Step) {
		out = append(out, cursor)
	}
	return out
}

// AvailableStartTimes returns the ordered start options for date.
func (c *Calculator) AvailableStartTimes(ctx context.Context, date time.Time, q Query) ([]model.TimeOfDay, error) {
	local := c.localDate(date)
	dayKey := local.Format(model.DateLayout)
	now := c.now()
	cacheable := c.cache != nil && q.zero() && local.After(now)

	if cacheable {
		if cached, ok := c.cache.GetStartTimes(ctx, dayKey); ok {
			return cached, nil
		}
	}

	d, err := c.load(ctx, local, q.ExcludeReservationID)
	if err != nil {
		return nil, err
	}

	var out []model.TimeOfDay
	if d != nil {
		for _, start := range c.grid(d) {
			if start.Before(now) {
				continue
			}
			f, ok := d.freeAround(start)
			if !ok || start.Add(c.cfg.MinDuration).After(f.End) {
				continue
			}
			out = append(out, model.TimeOfDayOf(start))
		}
	}

	out = withSelected(out, q.Selected)
	if cacheable {
		c.cache.SetStartTimes(ctx, dayKey, out)
	}
	return out, nil
}

// ValidEndTimes returns the ordered end options strictly after start.
func (c *Calculator) ValidEndTimes(ctx context.Context, date time.Time, start model.TimeOfDay, q Query) ([]model.TimeOfDay, error) {
	d, err := c.load(ctx, date, q.ExcludeReservationID)
	if err != nil {
		return nil, err
	}

	var out []model.TimeOfDay
	if d != nil {
		startAt := start.On(d.date)
		if f, ok := d.freeAround(startAt); ok {
			limit := f.End
			if maxEnd := startAt.Add(c.cfg.MaxDuration); maxEnd.Before(limit) {
				limit = maxEnd
			}
			for end := startAt.Add(c.cfg.Step); !end.After(limit); end = end.Add(c.cfg.Step) {
				if end.Sub(startAt) < c.cfg.MinDuration {
					continue
				}
				out = append(out, timeOfDayOn(d.date, end))
			}
		}
	}

	return withSelected(out, q.Selected), nil
}

// timeOfDayOn renders t relative to date so next-day midnight becomes 24:00.
func timeOfDayOn(date, t time.Time) model.TimeOfDay {
	if t.Equal(model.EndOfDay.On(date)) {
		return model.EndOfDay
	}
	return model.TimeOfDayOf(t)
}

func withSelected(times []model.TimeOfDay, selected *model.TimeOfDay) []model.TimeOfDay {
	if selected == nil {
		return times
	}
	for _, t := range times {
		if t == *selected {
			return times
		}
	}
	out := append(append([]model.TimeOfDay(nil), times...), *selected)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
