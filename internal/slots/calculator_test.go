package slots

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicespace/internal/model"
)

// fixedHours opens every day except Sunday.
type fixedHours struct {
	open, close model.TimeOfDay
	loc         *time.Location
}

func (h fixedHours) OperatingHours(date time.Time) (model.TimeOfDay, model.TimeOfDay, bool) {
	if date.Weekday() == time.Sunday {
		return 0, 0, false
	}
	return h.open, h.close, true
}

func (h fixedHours) Location() *time.Location { return h.loc }

// stubFinder returns a fixed set, honouring the exclusion and the window.
type stubFinder struct {
	set   model.ConflictSet
	calls int
}

func (f *stubFinder) FindConflicts(_ context.Context, start, end time.Time, excludeID int64) (model.ConflictSet, error) {
	f.calls++
	var out model.ConflictSet
	for _, r := range f.set.Reservations {
		if r.ID != excludeID && model.Overlaps(start, end, r.ReservedAt, r.ReservedUntil) {
			out.Reservations = append(out.Reservations, r)
		}
	}
	for _, r := range f.set.EventBlocks {
		if r.ID != excludeID && model.Overlaps(start, end, r.ReservedAt, r.ReservedUntil) {
			out.EventBlocks = append(out.EventBlocks, r)
		}
	}
	for _, c := range f.set.Closures {
		if model.Overlaps(start, end, c.StartsAt, c.EndsAt) {
			out.Closures = append(out.Closures, c)
		}
	}
	return out, nil
}

type mapCache struct {
	data map[string][]model.TimeOfDay
}

func (m *mapCache) GetStartTimes(_ context.Context, day string) ([]model.TimeOfDay, bool) {
	v, ok := m.data[day]
	return v, ok
}

func (m *mapCache) SetStartTimes(_ context.Context, day string, times []model.TimeOfDay) {
	m.data[day] = times
}

var (
	tuesday = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	monday  = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
)

func at(hour, minute int) time.Time {
	return tuesday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func tod(s string) model.TimeOfDay { return model.MustTimeOfDay(s) }

func todPtr(s string) *model.TimeOfDay {
	t := tod(s)
	return &t
}

func newCalc(set model.ConflictSet, cfg Config) (*Calculator, *stubFinder) {
	logger := zerolog.New(io.Discard)
	finder := &stubFinder{set: set}
	c := NewCalculator(fixedHours{open: tod("09:00"), close: tod("12:00"), loc: time.UTC}, finder, cfg, &logger)
	c.now = func() time.Time { return monday }
	return c, finder
}

func strs(times []model.TimeOfDay) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.String()
	}
	return out
}

func TestAvailableStartTimes_SubtractsCommitments(t *testing.T) {
	set := model.ConflictSet{
		Reservations: []model.Reservation{{ID: 1, ReservedAt: at(10, 0), ReservedUntil: at(10, 30)}},
	}
	c, _ := newCalc(set, Config{Step: 30 * time.Minute, MinDuration: 30 * time.Minute})

	got, err := c.AvailableStartTimes(context.Background(), tuesday, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00", "11:30"}, strs(got))
}

func TestAvailableStartTimes_BufferAndMinDuration(t *testing.T) {
	set := model.ConflictSet{
		EventBlocks: []model.Reservation{{ID: 2, Kind: model.KindEvent, ReservedAt: at(10, 30), ReservedUntil: at(11, 0)}},
	}
	c, _ := newCalc(set, Config{Step: 15 * time.Minute, Buffer: 15 * time.Minute, MinDuration: time.Hour})

	got, err := c.AvailableStartTimes(context.Background(), tuesday, Query{})
	require.NoError(t, err)
	// busy 10:15-11:15; an hour must fit before it or before 12:00
	assert.Equal(t, []string{"09:00", "09:15"}, strs(got))
}

func TestAvailableStartTimes_ClosureIsNotPadded(t *testing.T) {
	set := model.ConflictSet{
		Closures: []model.SpaceClosure{{ID: 1, StartsAt: at(9, 0), EndsAt: at(10, 0)}},
	}
	c, _ := newCalc(set, Config{Step: 30 * time.Minute, Buffer: 30 * time.Minute, MinDuration: 30 * time.Minute})

	got, err := c.AvailableStartTimes(context.Background(), tuesday, Query{})
	require.NoError(t, err)
	assert.Equal(t, "10:00", got[0].String())
}

func TestAvailableStartTimes_ClosedDayAndPast(t *testing.T) {
	c, _ := newCalc(model.ConflictSet{}, Config{Step: 30 * time.Minute})

	sunday := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	got, err := c.AvailableStartTimes(context.Background(), sunday, Query{})
	require.NoError(t, err)
	assert.Empty(t, got)

	c.now = func() time.Time { return at(10, 10) }
	got, err = c.AvailableStartTimes(context.Background(), tuesday, Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30", "11:00", "11:30"}, strs(got))
}

func TestAvailableStartTimes_SelfExclusion(t *testing.T) {
	set := model.ConflictSet{
		Reservations: []model.Reservation{{ID: 7, ReservedAt: at(9, 0), ReservedUntil: at(12, 0)}},
	}
	c, _ := newCalc(set, Config{Step: time.Hour, MinDuration: time.Hour})

	got, err := c.AvailableStartTimes(context.Background(), tuesday, Query{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = c.AvailableStartTimes(context.Background(), tuesday, Query{ExcludeReservationID: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, strs(got))

	got, err = c.AvailableStartTimes(context.Background(), tuesday, Query{Selected: todPtr("10:00")})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, strs(got), "selected time always offered")
}

func TestValidEndTimes(t *testing.T) {
	set := model.ConflictSet{
		Reservations: []model.Reservation{{ID: 1, ReservedAt: at(11, 0), ReservedUntil: at(12, 0)}},
	}
	c, _ := newCalc(set, Config{Step: 15 * time.Minute, MinDuration: 30 * time.Minute, MaxDuration: 90 * time.Minute})

	got, err := c.ValidEndTimes(context.Background(), tuesday, tod("09:30"), Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:15", "10:30", "10:45", "11:00"}, strs(got))

	got, err = c.ValidEndTimes(context.Background(), tuesday, tod("09:00"), Query{})
	require.NoError(t, err)
	assert.Equal(t, "10:30", got[len(got)-1].String(), "capped by max duration")

	got, err = c.ValidEndTimes(context.Background(), tuesday, tod("11:15"), Query{Selected: todPtr("12:00")})
	require.NoError(t, err)
	assert.Equal(t, []string{"12:00"}, strs(got))
}

func TestValidEndTimes_Midnight(t *testing.T) {
	logger := zerolog.New(io.Discard)
	c := NewCalculator(fixedHours{open: tod("22:00"), close: model.EndOfDay, loc: time.UTC}, &stubFinder{},
		Config{Step: time.Hour, MinDuration: time.Hour}, &logger)
	c.now = func() time.Time { return monday }

	got, err := c.ValidEndTimes(context.Background(), tuesday, tod("23:00"), Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"24:00"}, strs(got))
}

func TestAvailableStartTimes_Cache(t *testing.T) {
	c, finder := newCalc(model.ConflictSet{}, Config{Step: time.Hour, MinDuration: time.Hour})
	cache := &mapCache{data: map[string][]model.TimeOfDay{}}
	c.WithCache(cache)

	first, err := c.AvailableStartTimes(context.Background(), tuesday, Query{})
	require.NoError(t, err)
	second, err := c.AvailableStartTimes(context.Background(), tuesday, Query{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, finder.calls)
	assert.Contains(t, cache.data, "2026-03-10")

	_, err = c.AvailableStartTimes(context.Background(), tuesday, Query{ExcludeReservationID: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, finder.calls, "edit queries bypass the cache")
}

func TestSlotsGrid(t *testing.T) {
	set := model.ConflictSet{
		Reservations: []model.Reservation{{ID: 1, ReservedAt: at(10, 0), ReservedUntil: at(11, 0)}},
	}
	c, _ := newCalc(set, Config{Step: 30 * time.Minute, MinDuration: 30 * time.Minute})

	grid, err := c.Slots(context.Background(), tuesday, Query{})
	require.NoError(t, err)
	require.Len(t, grid, 6)

	info := ToSlotInfo(grid)
	assert.Equal(t, SlotInfo{Start: "10:00", End: "10:30", Available: false}, info[2])
	assert.Equal(t, []model.Interval{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(11, 0), End: at(12, 0)},
	}, FreeRuns(grid))
}

func TestToSlotInfo_MidnightClose(t *testing.T) {
	info := ToSlotInfo([]Slot{
		{StartTime: at(23, 30), EndTime: at(23, 45), Available: true},
		{StartTime: at(23, 45), EndTime: at(24, 0), Available: true},
	})
	assert.Equal(t, "23:45", info[0].End)
	assert.Equal(t, SlotInfo{Start: "23:45", End: "24:00", Available: true}, info[1])
}

func TestSubtract(t *testing.T) {
	window := model.Interval{Start: at(9, 0), End: at(12, 0)}
	busy := []model.Interval{
		{Start: at(10, 0), End: at(10, 30)},
		{Start: at(8, 0), End: at(9, 15)},
		{Start: at(10, 15), End: at(11, 0)},
		{Start: at(11, 45), End: at(13, 0)},
	}
	free := subtract(window, busy)
	require.Len(t, free, 2)
	assert.Equal(t, model.Interval{Start: at(9, 15), End: at(10, 0)}, free[0])
	assert.Equal(t, model.Interval{Start: at(11, 0), End: at(11, 45)}, free[1])
}
