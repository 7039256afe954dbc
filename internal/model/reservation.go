package model

import "time"

// Reservation groups the tickets a user booked in one request.  It is
// created atomically together with its tickets and deleting it removes
// them as well.
type Reservation struct {
	ID        uint64    // reservations.id
	UserID    uint64    // reservations.user_id
	CreatedAt time.Time // reservations.created_at
	Tickets   []Ticket
}

// Ticket is a claim on one place (Row, Seat) for one performance.  No
// two tickets share the same (PerformanceID, Row, Seat).
//
// PlayTitle, HallName and ShowTime are filled on the read path for
// display only.
type Ticket struct {
	ID            uint64 // tickets.id
	Row           uint32 // tickets.row
	Seat          uint32 // tickets.seat
	PerformanceID uint64 // tickets.performance_id
	ReservationID uint64 // tickets.reservation_id
	PlayTitle     string
	HallName      string
	ShowTime      time.Time
}

// SeatKey identifies a place for a performance.
type SeatKey struct {
	PerformanceID uint64
	Row           uint32
	Seat          uint32
}

// Key returns the ticket's place.
func (t Ticket) Key() SeatKey {
	return SeatKey{PerformanceID: t.PerformanceID, Row: t.Row, Seat: t.Seat}
}
