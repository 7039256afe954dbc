// Package service holds the workflows that span several repositories:
// booking tickets, rolling up play ratings and publishing events.
package service

import "github.com/iliyamo/theatre-booking/internal/repository"

// Error is a service error with a user facing message.  It unwraps to one
// of the repository sentinels so handlers can map it with errors.Is.
type Error struct {
	Msg  string
	Kind error
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

// ErrPerformanceNotFound is returned when a ticket names a performance
// that does not exist.
var ErrPerformanceNotFound = &Error{Msg: "performance not found", Kind: repository.ErrNotFound}

// ErrPlayNotFound is returned when a play addressed by id does not exist.
var ErrPlayNotFound = &Error{Msg: "play not found", Kind: repository.ErrNotFound}
