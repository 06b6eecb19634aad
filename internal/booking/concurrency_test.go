package booking

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicespace/internal/conflict"
	"practicespace/internal/events"
	"practicespace/internal/eventsync"
	"practicespace/internal/model"
	"practicespace/internal/slots"
)

// nextWorkday returns a UTC midnight a week out that is not a day off.
func nextWorkday() time.Time {
	d := time.Now().UTC().AddDate(0, 0, 7).Truncate(24 * time.Hour)
	if d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func TestCreateReservation_OfferedStartNextToClosure(t *testing.T) {
	cfg := defaultConfig()
	cfg.Buffer = 30 * time.Minute
	cfg.MaxAdvance = 0
	f := newFixture(t, cfg)
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	day := nextWorkday()
	require.NoError(t, f.db.CreateClosure(ctx, &model.SpaceClosure{
		StartsAt: day.Add(9 * time.Hour),
		EndsAt:   day.Add(10 * time.Hour),
		Type:     model.ClosureMaintenance,
	}))

	calc := slots.NewCalculator(f.venue, conflict.NewScanner(f.db, &logger), slots.Config{
		Step:        15 * time.Minute,
		Buffer:      cfg.Buffer,
		MinDuration: cfg.MinDuration,
		MaxDuration: cfg.MaxDuration,
	}, &logger)

	starts, err := calc.AvailableStartTimes(ctx, day, slots.Query{})
	require.NoError(t, err)
	require.NotEmpty(t, starts)
	assert.Equal(t, "10:00", starts[0].String())

	first := starts[0].On(day)
	f.create(t, visitorID, first, first.Add(time.Hour))

	starts, err = calc.AvailableStartTimes(ctx, day, slots.Query{})
	require.NoError(t, err)
	require.NotEmpty(t, starts)
	assert.Equal(t, "11:30", starts[0].String(), "reservations keep the buffer")

	_, err = f.svc.CreateReservation(ctx, CreateRequest{UserID: memberID, Start: day.Add(11*time.Hour + 15*time.Minute), End: day.Add(12 * time.Hour)})
	_, ok := model.IsConflict(err)
	assert.True(t, ok, "got %v", err)

	next := starts[0].On(day)
	f.create(t, memberID, next, next.Add(time.Hour))
}

func TestCreateReservation_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	const writers = 8
	var (
		wg    sync.WaitGroup
		ready = make(chan struct{})
		errs  = make([]error, writers)
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-ready
			_, errs[i] = f.svc.CreateReservation(ctx, CreateRequest{
				UserID: visitorID,
				Start:  at(10, 19, 0),
				End:    at(10, 20, 0),
			})
		}(i)
	}
	close(ready)
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		_, ok := model.IsConflict(err)
		assert.True(t, ok, "unexpected error: %v", err)
	}
	assert.Equal(t, 1, created)

	live, err := f.db.ActiveReservationsOverlapping(ctx, at(10, 0, 0), at(11, 0, 0), 0)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestCreateReservation_ConcurrentWithEventSync(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	syncer := eventsync.NewSyncer(f.db, conflict.NewScanner(f.db, &logger), nil, events.NewEventBus(&logger), eventsync.Config{
		DefaultSetup:    30 * time.Minute,
		DefaultTeardown: 30 * time.Minute,
	}, &logger)

	const pairs = 4
	var (
		wg        sync.WaitGroup
		ready     = make(chan struct{})
		createErr = make([]error, pairs)
		syncRes   = make([]eventsync.Result, pairs)
		syncErr   = make([]error, pairs)
	)
	end := at(10, 21, 0)
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			<-ready
			_, createErr[i] = f.svc.CreateReservation(ctx, CreateRequest{
				UserID: visitorID,
				Start:  at(10, 20, 0),
				End:    at(10, 21, 0),
			})
		}(i)
		go func(i int) {
			defer wg.Done()
			<-ready
			syncRes[i], syncErr[i] = syncer.SyncEventBlock(ctx, &model.Event{
				ID:            int64(i + 1),
				Title:         "Showcase",
				StartDatetime: at(10, 19, 0),
				EndDatetime:   &end,
			}, eventsync.Options{})
		}(i)
	}
	close(ready)
	wg.Wait()

	written := 0
	for i := 0; i < pairs; i++ {
		require.NoError(t, syncErr[i])
		if syncRes[i].Written {
			written++
		}
		if createErr[i] == nil {
			written++
			continue
		}
		_, ok := model.IsConflict(createErr[i])
		assert.True(t, ok, "unexpected error: %v", createErr[i])
	}
	assert.Equal(t, 1, written, "exactly one writer wins the window")

	live, err := f.db.ActiveReservationsOverlapping(ctx, at(10, 18, 0), at(10, 22, 0), 0)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}
