package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"practicespace/internal/events"
)

var (
	once sync.Once

	scheduleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "practicespace",
			Name:      "schedule_events_total",
			Help:      "Count of schedule changes by entity and action.",
		},
		[]string{"entity", "action"},
	)

	conflictsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "practicespace",
			Name:      "conflicts_rejected_total",
			Help:      "Count of writes refused because of conflicts.",
		},
		[]string{"operation"},
	)

	seriesInstances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "practicespace",
			Name:      "series_instances_total",
			Help:      "Count of recurring instances generated by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "practicespace",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "practicespace",
			Name:      "series_generation_duration_seconds",
			Help:      "Duration of batch series generation runs.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30},
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(scheduleEvents, conflictsRejected, seriesInstances, httpRequests, generationDuration)
	})
}

// IncConflictRejected counts a write refused by the conflict scan.
func IncConflictRejected(operation string) {
	conflictsRejected.WithLabelValues(operation).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveGeneration records one batch generation run.
func ObserveGeneration(d time.Duration, created, placeholders, failed int) {
	generationDuration.Observe(d.Seconds())
	seriesInstances.WithLabelValues("created").Add(float64(created))
	seriesInstances.WithLabelValues("placeholder").Add(float64(placeholders))
	seriesInstances.WithLabelValues("failed_series").Add(float64(failed))
}

// Subscribe counts every bus event as entity/action, split on the first dot.
func Subscribe(bus *events.EventBus) {
	bus.Subscribe(func(e events.Event) error {
		entity, action, ok := strings.Cut(e.Type, ".")
		if !ok {
			action = "unknown"
		}
		scheduleEvents.WithLabelValues(entity, action).Inc()
		return nil
	}, events.AllTypes...)
}
