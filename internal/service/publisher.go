package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/config"
	"github.com/iliyamo/theatre-booking/internal/queue"
)

// EventPublisher publishes domain events.  Implementations must be safe
// for concurrent use.
type EventPublisher interface {
	PublishReservationCreated(ctx context.Context, ev queue.ReservationCreatedEvent) error
}

// Publisher publishes events to RabbitMQ.  Every call opens its own
// connection, so a broker outage never leaves a broken channel behind.
type Publisher struct {
	cfg config.QueueConfig
	log *zap.Logger
}

// NewPublisher returns a Publisher for cfg.  When the queue is disabled
// a no-op publisher is returned instead.
func NewPublisher(cfg config.QueueConfig, log *zap.Logger) EventPublisher {
	if !cfg.Enabled {
		return NopPublisher{}
	}
	return &Publisher{cfg: cfg, log: log.Named("publisher")}
}

// PublishReservationCreated sends ev to the reservation queue as a
// persistent JSON message.  Errors are logged and returned so the caller
// can choose to ignore them.
func (p *Publisher) PublishReservationCreated(ctx context.Context, ev queue.ReservationCreatedEvent) error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		p.log.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		p.log.Warn("queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         "reservation.created",
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.cfg.Queue, false, false, pub); err != nil {
		p.log.Warn("publish failed", zap.Error(err), zap.Uint64("reservation_id", ev.ReservationID))
		return err
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishReservationCreated(context.Context, queue.ReservationCreatedEvent) error {
	return nil
}
