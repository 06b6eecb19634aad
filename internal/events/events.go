package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types published by the scheduler.
const (
	ReservationCreated   = "reservation.created"
	ReservationConfirmed = "reservation.confirmed"
	ReservationPaid      = "reservation.paid"
	ReservationRefunded  = "reservation.refunded"
	ReservationCancelled = "reservation.cancelled"
	ReservationMoved     = "reservation.rescheduled"
	EventBlockSynced     = "event_block.synced"
	EventBlockRemoved    = "event_block.removed"
	SeriesGenerated      = "series.generated"
	SeriesCancelled      = "series.cancelled"
	ClosureCreated       = "closure.created"
	ClosureDeleted       = "closure.deleted"
	VenueReloaded        = "venue.reloaded"
)

// AllTypes lists every event type, for subscribers that want everything.
var AllTypes = []string{
	ReservationCreated, ReservationConfirmed, ReservationPaid, ReservationRefunded,
	ReservationCancelled, ReservationMoved, EventBlockSynced, EventBlockRemoved,
	SeriesGenerated, SeriesCancelled, ClosureCreated, ClosureDeleted,
	VenueReloaded,
}

// Event is a schedule change notification. Payload is the JSON-encoded
// reservation, series, closure or sync report that changed.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler consumes one event. A returned error is logged, not retried.
type EventHandler func(event Event) error

// EventBus fans events out to in-process subscribers such as the start-time
// cache, metrics and the AMQP forwarder.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus returns a bus with no subscribers.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "events").Logger()
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: &l}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type. Handler errors are logged.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Runs on the publisher goroutine.
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event_id", event.ID).Str("type", event.Type).Msg("Event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) {
	if b == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error().Err(err).Str("type", eventType).Msg("Failed to encode event payload")
		return
	}
	b.Publish(Event{Type: eventType, Payload: data})
}
