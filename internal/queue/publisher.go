// Package queue forwards schedule events to RabbitMQ so other systems can
// follow changes to the space's calendar.
package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"practicespace/internal/events"
)

const DefaultExchange = "practicespace.schedule"

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends bus events to a durable topic exchange, routed by event type.
type Publisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	timeout  time.Duration
	logger   *zerolog.Logger
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string, logger *zerolog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	p := NewPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an open channel.
func NewPublisher(ch Channel, exchange string, logger *zerolog.Logger) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	l := logger.With().Str("component", "queue").Logger()
	return &Publisher{ch: ch, exchange: exchange, timeout: 5 * time.Second, logger: &l}
}

// Message builds the persistent JSON message for e.
func Message(e events.Event) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         e.Type,
		Timestamp:    e.CreatedAt.UTC(),
		Body:         e.Payload,
	}
}

// Publish sends one event. The routing key is the event type.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, Message(e)); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Forward publishes every bus event. Failures are returned to the bus,
// which logs them; the schedule write has already committed.
func (p *Publisher) Forward(bus *events.EventBus) {
	bus.Subscribe(func(e events.Event) error {
		if err := p.Publish(context.Background(), e); err != nil {
			return err
		}
		p.logger.Debug().Str("event_id", e.ID).Str("type", e.Type).Msg("Event forwarded")
		return nil
	}, events.AllTypes...)
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
