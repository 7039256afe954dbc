package model

import "strings"

// TheatreHall is an auditorium with a rectangular seating grid of
// Rows × SeatsInRow places.  Names are unique.
type TheatreHall struct {
	ID         uint64 `json:"id"`           // theatre_halls.id
	Name       string `json:"name"`         // theatre_halls.name
	Rows       uint32 `json:"rows"`         // theatre_halls.rows
	SeatsInRow uint32 `json:"seats_in_row"` // theatre_halls.seats_in_row
}

// Capacity is the number of places in the hall.  It is derived and never
// stored.
func (h TheatreHall) Capacity() uint32 {
	return h.Rows * h.SeatsInRow
}

// SameShape reports whether other describes the identical hall.  Names
// compare case-insensitively, as the unique index on name does.
func (h TheatreHall) SameShape(other TheatreHall) bool {
	return strings.EqualFold(h.Name, other.Name) && h.Rows == other.Rows && h.SeatsInRow == other.SeatsInRow
}

// Contains reports whether (row, seat) is a valid place in the hall.
// Rows and seats are numbered from 1.
func (h TheatreHall) Contains(row, seat uint32) bool {
	return row >= 1 && row <= h.Rows && seat >= 1 && seat <= h.SeatsInRow
}
