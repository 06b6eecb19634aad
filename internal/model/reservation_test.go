package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestReservation_Duration(t *testing.T) {
	r := Reservation{
		ReservedAt:    datetime(2026, 1, 15, 10, 0),
		ReservedUntil: datetime(2026, 1, 15, 12, 30),
	}
	assert.Equal(t, 2*time.Hour+30*time.Minute, r.Duration())
}

func TestHoursBetween(t *testing.T) {
	assert.True(t, decimal.NewFromInt(2).Equal(HoursBetween(datetime(2026, 1, 15, 10, 0), datetime(2026, 1, 15, 12, 0))))
	assert.True(t, decimal.RequireFromString("1.5").Equal(HoursBetween(datetime(2026, 1, 15, 10, 0), datetime(2026, 1, 15, 11, 30))))
	assert.True(t, decimal.RequireFromString("0.25").Equal(HoursBetween(datetime(2026, 1, 15, 10, 0), datetime(2026, 1, 15, 10, 15))))
}

func TestOwner(t *testing.T) {
	assert.True(t, UserOwner(7).Valid())
	assert.True(t, EventOwner(3).Valid())
	assert.False(t, Owner{Kind: "band", ID: 1}.Valid())
	assert.False(t, UserOwner(0).Valid())
	assert.Equal(t, "event:3", EventOwner(3).String())
}

func TestConflictSet_Minus(t *testing.T) {
	padded := ConflictSet{
		Reservations: []Reservation{{ID: 1}, {ID: 2}},
		EventBlocks:  []Reservation{{ID: 3, Kind: KindEvent}},
		Closures:     []SpaceClosure{{ID: 10}, {ID: 11}},
	}
	core := ConflictSet{
		Reservations: []Reservation{{ID: 2}},
		Closures:     []SpaceClosure{{ID: 11}},
	}

	diff := padded.Minus(core)
	assert.Len(t, diff.Reservations, 1)
	assert.Equal(t, int64(1), diff.Reservations[0].ID)
	assert.Len(t, diff.EventBlocks, 1)
	assert.Len(t, diff.Closures, 1)
	assert.Equal(t, int64(10), diff.Closures[0].ID)
	assert.Equal(t, 3, diff.Count())
	assert.True(t, core.Minus(padded).Empty())
}

func TestErrors(t *testing.T) {
	err := error(&ConflictError{Conflicts: ConflictSet{Closures: []SpaceClosure{{ID: 1}}}})
	ce, ok := IsConflict(err)
	assert.True(t, ok)
	assert.Len(t, ce.Conflicts.Closures, 1)
	assert.Contains(t, err.Error(), "1 closure(s)")

	assert.True(t, IsValidation(Invalid("reserved_until", "must be after reserved_at")))
	assert.True(t, IsNotFound(&NotFoundError{Entity: "reservation", ID: 4}))
	assert.True(t, IsState(&StateError{ID: 4, State: "refunded", Action: "pay"}))
	assert.False(t, IsNotFound(ErrForbidden))
}
