// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

import (
	"time"

	"github.com/iliyamo/theatre-booking/internal/model"
)

// ReservationCreatedEvent is published after a reservation and its
// tickets are committed.  It carries enough information for downstream
// consumers to log, notify, or trigger analytics without querying the
// primary database.
type ReservationCreatedEvent struct {
	ReservationID uint64        `json:"reservation_id"`
	UserID        uint64        `json:"user_id"`
	CreatedAt     string        `json:"created_at"`
	Tickets       []TicketEvent `json:"tickets"`
}

// TicketEvent describes one booked place.
type TicketEvent struct {
	TicketID      uint64 `json:"ticket_id"`
	PerformanceID uint64 `json:"performance_id"`
	PlayTitle     string `json:"play_title"`
	HallName      string `json:"hall_name"`
	ShowTime      string `json:"show_time"`
	Row           uint32 `json:"row"`
	Seat          uint32 `json:"seat"`
}

// NewReservationCreatedEvent builds the event for a stored reservation.
func NewReservationCreatedEvent(r *model.Reservation) ReservationCreatedEvent {
	ev := ReservationCreatedEvent{
		ReservationID: r.ID,
		UserID:        r.UserID,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339Nano),
		Tickets:       make([]TicketEvent, len(r.Tickets)),
	}
	for i, t := range r.Tickets {
		ev.Tickets[i] = TicketEvent{
			TicketID:      t.ID,
			PerformanceID: t.PerformanceID,
			PlayTitle:     t.PlayTitle,
			HallName:      t.HallName,
			ShowTime:      t.ShowTime.UTC().Format(time.RFC3339),
			Row:           t.Row,
			Seat:          t.Seat,
		}
	}
	return ev
}
