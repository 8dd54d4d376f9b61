// Package mq publishes reservation lifecycle events to RabbitMQ for
// downstream consumers (notifications, analytics). The queue is durable;
// messages are persistent JSON.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/63Paulo/lan-party/internal/events"
	"github.com/63Paulo/lan-party/internal/model"
)

// Publisher forwards events to a RabbitMQ queue.
type Publisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *zerolog.Logger
}

// NewPublisher connects to RabbitMQ and declares the durable queue.
func NewPublisher(url, queue string, logger *zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue, logger: logger}, nil
}

// Publish sends one message to the queue.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// BridgeFrom subscribes the publisher to reservation events on the bus,
// plus any extra event types the caller names. Delivery is best-effort:
// a failed publish is logged, never propagated back into the write path.
func (p *Publisher) BridgeFrom(bus *events.Bus, extra ...string) {
	forward := func(event events.Event) error {
		var r model.Reservation
		if err := json.Unmarshal(event.Payload, &r); err != nil {
			p.logger.Error().Err(err).Str("event", event.Type).Msg("malformed event payload")
			return err
		}

		msg := ReservationMessage{
			Event:     event.Type,
			ID:        r.ID,
			Code:      r.Code,
			StationID: r.StationID,
			UserID:    r.UserID,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			Status:    string(r.Status),
			EmittedAt: event.CreatedAt,
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, body); err != nil {
			p.logger.Error().Err(err).Str("event", event.Type).Int64("reservation_id", r.ID).Msg("failed to publish to queue")
			return err
		}
		return nil
	}

	types := []string{
		events.ReservationCreated,
		events.ReservationUpdated,
		events.ReservationCancelled,
		events.ReservationRemoved,
	}
	types = append(types, extra...)
	for _, eventType := range types {
		bus.Subscribe(eventType, forward)
	}
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
