package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/config"
)

// StartReservationConsumer connects to RabbitMQ, declares the reservation
// queue (durable) and consumes messages until ctx is cancelled.  Each
// message is appended to <BookingLogDir>/booking.log as a single line.
// Broker failures are retried with exponential backoff; a message that
// cannot be handled is rejected without requeue so the loop keeps going.
func StartReservationConsumer(ctx context.Context, cfg config.QueueConfig, log *zap.Logger) error {
	log = log.Named("reservation-consumer")
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, cfg, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg config.QueueConfig, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info("consuming", zap.String("queue", cfg.Queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := HandleMessage(cfg.BookingLogDir, d.Body); err != nil {
				log.Error("handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes a ReservationCreatedEvent and appends one line
// describing it to dir/booking.log.
func HandleMessage(dir string, body []byte) error {
	var ev ReservationCreatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ReservationID == 0 {
		return errors.New("event without reservation_id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single booking.log line.
func FormatLine(ev ReservationCreatedEvent) string {
	places := make([]string, len(ev.Tickets))
	for i, t := range ev.Tickets {
		places[i] = fmt.Sprintf("%d:%d-%d", t.PerformanceID, t.Row, t.Seat)
	}
	play, hall, show := "", "", ""
	if len(ev.Tickets) > 0 {
		play, hall, show = ev.Tickets[0].PlayTitle, ev.Tickets[0].HallName, ev.Tickets[0].ShowTime
	}
	return fmt.Sprintf("[%s] Reservation created | reservation_id=%d | user_id=%d | play=%q | hall=%q | show_time=%s | tickets=%d | places=[%s]\n",
		ev.CreatedAt, ev.ReservationID, ev.UserID, play, hall, show, len(ev.Tickets), strings.Join(places, ","))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
