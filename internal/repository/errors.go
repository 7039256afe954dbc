// Package repository defines the data access layer and the error
// values shared across repositories.  Handlers translate the sentinels
// into HTTP statuses with errors.Is.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row addressed by id does not exist
// (or is not visible to the caller).  Handlers map it to 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers map it to 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals a state conflict such as a duplicate unique key.
// Handlers map it to 409.
var ErrConflict = errors.New("conflict")

// ErrSeatTaken is returned when a requested place already has a ticket.
// It wraps ErrConflict.
var ErrSeatTaken = &conflictError{msg: "this place is already reserved"}

// ErrHallShapeConflict is returned when a theatre hall with the same
// name but a different layout exists.  It wraps ErrConflict.
var ErrHallShapeConflict = &conflictError{msg: "theatre hall with this name already exists with a different layout"}

// ErrEmailExists is returned when registering an email that is taken.
// It wraps ErrConflict.
var ErrEmailExists = &conflictError{msg: "email already exists"}

type conflictError struct{ msg string }

func (e *conflictError) Error() string { return e.msg }
func (e *conflictError) Unwrap() error { return ErrConflict }

// MySQL server error numbers inspected by the repositories.
const (
	mysqlDupEntry        = 1062
	mysqlNoReferencedRow = 1452
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// isDuplicate reports whether err is a unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntry
}

// isLockFailure reports whether err means InnoDB gave up on a row or
// gap lock: a deadlock victim or a lock wait timeout.
func isLockFailure(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout)
}

// isMissingReference reports whether err is a foreign key violation on
// insert or update, i.e. the referenced row does not exist.
func isMissingReference(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlNoReferencedRow
}

// ErrUnknownReference is returned when a write names a related row
// (actor, genre, play, hall) that does not exist.  Handlers map it to
// 400 because the request body is at fault, not the URL.
var ErrUnknownReference = errors.New("unknown reference")
