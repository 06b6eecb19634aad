package closures

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"practicespace/internal/config"
	"practicespace/internal/conflict"
	"practicespace/internal/db"
	"practicespace/internal/events"
	"practicespace/internal/model"
)

type mockAuthorizer struct {
	mock.Mock
}

func (m *mockAuthorizer) Authorize(ctx context.Context, actorID int64, action string) error {
	return m.Called(ctx, actorID, action).Error(0)
}

func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T) (*Service, *db.DB, *mockAuthorizer, *[]string) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	auth := &mockAuthorizer{}
	auth.On("Authorize", mock.Anything, int64(99), ActionManage).Return(nil)
	auth.On("Authorize", mock.Anything, int64(2), ActionManage).Return(model.ErrForbidden)

	got := &[]string{}
	bus := events.NewEventBus(&logger)
	bus.Subscribe(func(e events.Event) error {
		*got = append(*got, e.Type)
		return nil
	}, events.AllTypes...)

	return NewService(database, conflict.NewScanner(database, &logger), auth, bus, &logger), database, auth, got
}

func TestCreate_ReportsAffectedBookings(t *testing.T) {
	svc, database, _, got := newTestService(t)
	ctx := context.Background()

	require.NoError(t, database.CreateReservation(ctx, &model.Reservation{
		Kind: model.KindRehearsal, Owner: model.UserOwner(4),
		ReservedAt: at(10, 18), ReservedUntil: at(10, 20),
		Status: model.StatusConfirmed, PaymentStatus: model.PaymentPaid,
	}))

	c := &model.SpaceClosure{StartsAt: at(10, 0), EndsAt: at(11, 0), Type: model.ClosureMaintenance, Reason: "leak"}
	affected, err := svc.Create(ctx, 99, c)
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Len(t, affected.Reservations, 1)
	assert.Empty(t, affected.Closures)
	assert.Equal(t, []string{events.ClosureCreated}, *got)

	list, err := svc.List(ctx, at(9, 0), at(12, 0))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "leak", list[0].Reason)

	require.NoError(t, svc.Delete(ctx, 99, c.ID))
	assert.True(t, model.IsNotFound(svc.Delete(ctx, 99, c.ID)))
	assert.Equal(t, []string{events.ClosureCreated, events.ClosureDeleted}, *got)
}

func TestCreate_Forbidden(t *testing.T) {
	svc, _, _, got := newTestService(t)
	_, err := svc.Create(context.Background(), 2, &model.SpaceClosure{StartsAt: at(10, 0), EndsAt: at(11, 0)})
	assert.True(t, errors.Is(err, model.ErrForbidden))
	assert.Empty(t, *got)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), 99, &model.SpaceClosure{StartsAt: at(10, 0), EndsAt: at(10, 0)})
	assert.True(t, model.IsValidation(err))

	_, err = svc.List(context.Background(), at(10, 0), at(9, 0))
	assert.True(t, model.IsValidation(err))
}

func TestApplyVenue(t *testing.T) {
	svc, _, _, got := newTestService(t)
	ctx := context.Background()

	before, err := config.ParseVenueConfig([]byte(`
name: Hall A
timezone: UTC
defaults:
  hours: {open: "09:00", close: "23:00"}
`))
	require.NoError(t, err)
	after, err := config.ParseVenueConfig([]byte(`
name: Hall A
timezone: America/Chicago
defaults:
  hours: {open: "10:00", close: "22:00"}
holidays:
  - {date: "2026-03-17", name: "Patrick's Day"}
`))
	require.NoError(t, err)
	holder := config.NewVenueHolder(before)

	require.NoError(t, svc.ApplyVenue(ctx, holder, after))
	assert.Same(t, after, holder.Get())
	assert.Equal(t, "America/Chicago", holder.Location().String())
	assert.Equal(t, []string{events.VenueReloaded}, *got)

	list, err := svc.List(ctx, at(17, 0), at(19, 0))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.ClosureHoliday, list[0].Type)
	assert.Equal(t, "Patrick's Day", list[0].Reason)

	require.NoError(t, svc.ApplyVenue(ctx, holder, after))
	list, err = svc.List(ctx, at(17, 0), at(19, 0))
	require.NoError(t, err)
	assert.Len(t, list, 1, "holiday closures are not duplicated")
	assert.Len(t, *got, 2)
}
