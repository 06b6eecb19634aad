package queue

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicespace/internal/events"
)

type sent struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	published []sent
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, sent{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestMessage(t *testing.T) {
	created := time.Date(2026, 3, 9, 12, 0, 0, 0, time.FixedZone("CST", -6*3600))
	msg := Message(events.Event{ID: "abc", Type: events.ReservationPaid, Payload: []byte(`{"id":1}`), CreatedAt: created})

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "abc", msg.MessageId)
	assert.Equal(t, events.ReservationPaid, msg.Type)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())
	assert.JSONEq(t, `{"id":1}`, string(msg.Body))
}

func TestForward(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ch := &fakeChannel{}
	p := NewPublisher(ch, "", &logger)

	bus := events.NewEventBus(&logger)
	p.Forward(bus)
	bus.PublishJSON(events.SeriesCancelled, map[string]int{"series_id": 3})

	require.Len(t, ch.published, 1)
	assert.Equal(t, DefaultExchange, ch.published[0].exchange)
	assert.Equal(t, events.SeriesCancelled, ch.published[0].key)
	assert.NotEmpty(t, ch.published[0].msg.MessageId)
	assert.JSONEq(t, `{"series_id":3}`, string(ch.published[0].msg.Body))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublish_Error(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := NewPublisher(ch, "custom", &logger)

	err := p.Publish(context.Background(), events.Event{Type: events.ClosureCreated})
	assert.ErrorContains(t, err, "publish closure.created")
}
