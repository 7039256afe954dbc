package model

import "time"

// Performance is a scheduled showing of a play in a theatre hall.
// PlayTitle and Hall are denormalised by read queries so handlers can
// render listings without extra lookups.
//
// Fields:
//  ID            – primary key identifier.
//  PlayID        – play being performed.
//  TheatreHallID – hall the performance takes place in.
//  ShowTime      – when the performance starts (UTC).
//  PlayTitle     – title of the play (read only).
//  Hall          – hall name and shape (read only).
//  TicketsTaken  – number of tickets sold (read only).
type Performance struct {
	ID            uint64    // performances.id
	PlayID        uint64    // performances.play_id
	TheatreHallID uint64    // performances.theatre_hall_id
	ShowTime      time.Time // performances.show_time
	PlayTitle     string
	Hall          TheatreHall
	TicketsTaken  int
}

// TicketsAvailable is the number of places still free.
func (p Performance) TicketsAvailable() int {
	return int(p.Hall.Capacity()) - p.TicketsTaken
}
