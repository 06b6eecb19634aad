package recurring

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicespace/internal/conflict"
	"practicespace/internal/db"
	"practicespace/internal/events"
	"practicespace/internal/model"
	"practicespace/internal/pricing"
)

// Monday; the next Tuesday is 2026-03-10.
var now = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T) (*Generator, *db.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	engine := pricing.NewEngine(nil, pricing.Config{HourlyRateCents: 1000})
	g := NewGenerator(database, conflict.NewScanner(database, &logger), engine, events.NewEventBus(&logger),
		Config{}, &logger)
	g.now = func() time.Time { return now }
	return g, database
}

func tuesdaySeries(maxAdvance int) *model.RecurringSeries {
	return &model.RecurringSeries{
		Owner:           model.UserOwner(11),
		Rule:            "FREQ=WEEKLY;BYDAY=TU",
		StartTime:       model.MustTimeOfDay("14:00"),
		EndTime:         model.MustTimeOfDay("16:00"),
		SeriesStartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxAdvanceDays:  maxAdvance,
	}
}

func TestGenerateInstances_PlaceholderOnConflict(t *testing.T) {
	g, database := newTestGenerator(t)
	ctx := context.Background()

	blocker := &model.Reservation{
		Kind:          model.KindRehearsal,
		Owner:         model.UserOwner(5),
		ReservedAt:    time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		ReservedUntil: time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC),
		Status:        model.StatusConfirmed,
		PaymentStatus: model.PaymentPaid,
	}
	require.NoError(t, database.CreateReservation(ctx, blocker))

	s := tuesdaySeries(28)
	require.NoError(t, g.CreateSeries(ctx, s))

	created, err := g.GenerateInstances(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, created, 4)

	first := created[0]
	assert.Equal(t, "2026-03-10", first.InstanceDate)
	assert.Equal(t, model.StatusCancelled, first.Status)
	assert.Equal(t, model.ConflictCancellationReason, first.CancellationReason)

	for _, r := range created[1:] {
		assert.Equal(t, model.StatusPending, r.Status, r.InstanceDate)
		assert.Equal(t, int64(2000), r.CostCents)
		require.NotNil(t, r.RecurringSeriesID)
		assert.Equal(t, s.ID, *r.RecurringSeriesID)
	}
	assert.Equal(t, []string{"2026-03-17", "2026-03-24", "2026-03-31"},
		[]string{created[1].InstanceDate, created[2].InstanceDate, created[3].InstanceDate})
	assert.True(t, created[1].ReservedAt.Equal(time.Date(2026, 3, 17, 14, 0, 0, 0, time.UTC)))

	again, err := g.GenerateInstances(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, again, "rerun creates nothing")

	// freeing the date does not retry it
	blocker.Status = model.StatusCancelled
	require.NoError(t, database.UpdateReservation(ctx, blocker))
	again, err = g.GenerateInstances(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestGenerateInstances_RespectsEndDateAndHorizon(t *testing.T) {
	g, _ := newTestGenerator(t)
	ctx := context.Background()

	s := tuesdaySeries(60)
	end := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	s.SeriesEndDate = &end
	require.NoError(t, g.CreateSeries(ctx, s))

	created, err := g.GenerateInstances(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	h := tuesdaySeries(7)
	h.StartTime = model.MustTimeOfDay("17:00")
	h.EndTime = model.MustTimeOfDay("18:00")
	require.NoError(t, g.CreateSeries(ctx, h))
	created, err = g.GenerateInstances(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, created, 1, "a week ahead reaches one Tuesday")
	assert.Equal(t, "2026-03-10", created[0].InstanceDate)
}

func TestGenerateInstances_SkipsPastTimeToday(t *testing.T) {
	g, _ := newTestGenerator(t)
	ctx := context.Background()

	s := tuesdaySeries(1)
	s.Rule = "FREQ=WEEKLY;BYDAY=MO"
	s.StartTime = model.MustTimeOfDay("09:00")
	s.EndTime = model.MustTimeOfDay("10:00")
	require.NoError(t, g.CreateSeries(ctx, s))

	created, err := g.GenerateInstances(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestCreateSeries_Validation(t *testing.T) {
	g, _ := newTestGenerator(t)
	ctx := context.Background()

	bad := tuesdaySeries(10)
	bad.Rule = "FREQ=MONTHLY;BYDAY=TU"
	assert.True(t, model.IsValidation(g.CreateSeries(ctx, bad)))

	bad = tuesdaySeries(10)
	bad.EndTime = bad.StartTime
	assert.True(t, model.IsValidation(g.CreateSeries(ctx, bad)))

	bad = tuesdaySeries(10)
	end := bad.SeriesStartDate.AddDate(0, 0, -1)
	bad.SeriesEndDate = &end
	assert.True(t, model.IsValidation(g.CreateSeries(ctx, bad)))

	bad = tuesdaySeries(10)
	bad.Owner = model.Owner{}
	assert.True(t, model.IsValidation(g.CreateSeries(ctx, bad)))

	ok := tuesdaySeries(0)
	require.NoError(t, g.CreateSeries(ctx, ok))
	assert.Equal(t, 90, ok.MaxAdvanceDays)
}

func TestGenerateFutureInstancesForAllSeries(t *testing.T) {
	g, database := newTestGenerator(t)
	ctx := context.Background()

	active := tuesdaySeries(14)
	require.NoError(t, g.CreateSeries(ctx, active))

	cancelled := tuesdaySeries(14)
	cancelled.StartTime = model.MustTimeOfDay("18:00")
	cancelled.EndTime = model.MustTimeOfDay("19:00")
	require.NoError(t, g.CreateSeries(ctx, cancelled))
	_, err := g.CancelSeries(ctx, cancelled.ID, "band split")
	require.NoError(t, err)

	expired := tuesdaySeries(14)
	expired.StartTime = model.MustTimeOfDay("10:00")
	expired.EndTime = model.MustTimeOfDay("11:00")
	past := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	expired.SeriesEndDate = &past
	require.NoError(t, g.CreateSeries(ctx, expired))

	// A stored rule the parser rejects fails only its own series.
	broken := tuesdaySeries(14)
	broken.Rule = "FREQ=DAILY"
	broken.StartTime = model.MustTimeOfDay("20:00")
	broken.EndTime = model.MustTimeOfDay("21:00")
	broken.Status = model.SeriesActive
	require.NoError(t, database.CreateSeries(ctx, broken))

	result, err := g.GenerateFutureInstancesForAllSeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SeriesProcessed)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Placeholders)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, broken.ID, result.Failures[0].SeriesID)

	result, err = g.GenerateFutureInstancesForAllSeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
}

func TestCancelSeries(t *testing.T) {
	g, database := newTestGenerator(t)
	ctx := context.Background()

	s := tuesdaySeries(28)
	require.NoError(t, g.CreateSeries(ctx, s))
	created, err := g.GenerateInstances(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, created, 4)

	n, err := g.CancelSeries(ctx, s.ID, "moving out")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	rows, err := database.ListSeriesInstances(ctx, s.ID)
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, model.StatusCancelled, r.Status)
		assert.Equal(t, "moving out", r.CancellationReason)
	}

	n, err = g.CancelSeries(ctx, s.ID, "again")
	require.NoError(t, err)
	assert.Zero(t, n)

	created, err = g.GenerateInstances(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, created)

	_, err = g.CancelSeries(ctx, 777, "")
	assert.True(t, model.IsNotFound(err))
}
