package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"practicespace/internal/events"
)

func TestSubscribe_CountsByEntityAndAction(t *testing.T) {
	bus := events.NewEventBus(nil)
	Subscribe(bus)

	before := testutil.ToFloat64(scheduleEvents.WithLabelValues("reservation", "created"))
	bus.PublishJSON(events.ReservationCreated, map[string]int{"id": 1})
	bus.PublishJSON(events.ReservationCreated, map[string]int{"id": 2})
	bus.PublishJSON(events.EventBlockSynced, map[string]int{"id": 3})

	assert.Equal(t, before+2, testutil.ToFloat64(scheduleEvents.WithLabelValues("reservation", "created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(scheduleEvents.WithLabelValues("event_block", "synced")))
}

func TestObserveGeneration(t *testing.T) {
	ObserveGeneration(20*time.Millisecond, 3, 1, 0)

	assert.Equal(t, float64(3), testutil.ToFloat64(seriesInstances.WithLabelValues("created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(seriesInstances.WithLabelValues("placeholder")))
	assert.Equal(t, 1, testutil.CollectAndCount(generationDuration))
}

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}
