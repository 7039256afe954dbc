package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/theatre-booking/internal/model"
)

// ReservationRepo persists reservations together with their tickets.  A
// reservation and its tickets are always written in one transaction and
// deleted together through the ON DELETE CASCADE foreign key.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// CreateWithTickets books every ticket for userID in a single
// transaction.  If any place is already taken, by an existing row or by
// a concurrent transaction racing on the unique index, nothing is
// written and ErrSeatTaken is returned.  The stored reservation is
// returned with ids and CreatedAt populated.
//
// The transaction runs at READ COMMITTED so the pre-check locks only
// existing rows and no gaps.  Two bookings of the same free place then
// both reach the insert; the later one waits on the unique index and
// fails with a duplicate key.  A deadlock or lock wait timeout on the
// ticket locks still means the place went to someone else.
func (r *ReservationRepo) CreateWithTickets(ctx context.Context, userID uint64, tickets []model.Ticket) (*model.Reservation, error) {
	if len(tickets) == 0 {
		return nil, errors.New("reservation without tickets")
	}
	var res *model.Reservation
	err := withTxOptions(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(tx *sql.Tx) error {
		// Fail early on places that are already sold.
		for _, t := range tickets {
			var id uint64
			err := tx.QueryRowContext(ctx,
				"SELECT id FROM tickets WHERE performance_id = ? AND `row` = ? AND seat = ? FOR UPDATE",
				t.PerformanceID, t.Row, t.Seat).Scan(&id)
			switch {
			case err == nil, isLockFailure(err):
				return ErrSeatTaken
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		out, err := tx.ExecContext(ctx, `INSERT INTO reservations (user_id) VALUES (?)`, userID)
		if err != nil {
			return err
		}
		rid, err := out.LastInsertId()
		if err != nil {
			return err
		}
		res = &model.Reservation{ID: uint64(rid), UserID: userID}
		if err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM reservations WHERE id = ?`, res.ID).Scan(&res.CreatedAt); err != nil {
			return err
		}
		res.CreatedAt = res.CreatedAt.UTC()

		var sb strings.Builder
		sb.WriteString("INSERT INTO tickets (`row`, seat, performance_id, reservation_id) VALUES ")
		args := make([]any, 0, len(tickets)*4)
		for i, t := range tickets {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?)")
			args = append(args, t.Row, t.Seat, t.PerformanceID, res.ID)
		}
		out, err = tx.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			switch {
			case isDuplicate(err), isLockFailure(err):
				return ErrSeatTaken
			case isMissingReference(err):
				return ErrUnknownReference
			}
			return err
		}
		// MySQL hands out consecutive ids for a multi-row insert and
		// reports the first one.
		first, err := out.LastInsertId()
		if err != nil {
			return err
		}
		res.Tickets = make([]model.Ticket, len(tickets))
		for i, t := range tickets {
			t.ID = uint64(first) + uint64(i)
			t.ReservationID = res.ID
			res.Tickets[i] = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

const reservationTicketsSelect = "SELECT t.id, t.`row`, t.seat, t.performance_id, t.reservation_id, p.title, h.name, pf.show_time" +
	` FROM tickets t
  JOIN performances pf ON pf.id = t.performance_id
  JOIN plays p ON p.id = pf.play_id
  JOIN theatre_halls h ON h.id = pf.theatre_hall_id`

// ListByUser returns the user's reservations newest first, each with
// its tickets ordered by row and seat.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, created_at FROM reservations WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	out := []model.Reservation{}
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		res.CreatedAt = res.CreatedAt.UTC()
		res.Tickets = []model.Ticket{}
		out = append(out, res)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]uint64, len(out))
	index := make(map[uint64]int, len(out))
	for i, res := range out {
		ids[i] = res.ID
		index[res.ID] = i
	}
	tickets, err := r.ticketsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		i := index[t.ReservationID]
		out[i].Tickets = append(out[i].Tickets, t)
	}
	return out, nil
}

// GetByIDForUser returns a reservation owned by userID.  Reservations
// of other users are reported as ErrNotFound.
func (r *ReservationRepo) GetByIDForUser(ctx context.Context, id, userID uint64) (*model.Reservation, error) {
	var res model.Reservation
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM reservations WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&res.ID, &res.UserID, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res.CreatedAt = res.CreatedAt.UTC()
	tickets, err := r.ticketsFor(ctx, []uint64{res.ID})
	if err != nil {
		return nil, err
	}
	res.Tickets = tickets
	return &res, nil
}

// DeleteForUser cancels a reservation owned by userID; its tickets are
// removed by the cascade.
func (r *ReservationRepo) DeleteForUser(ctx context.Context, id, userID uint64) error {
	out, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReservationRepo) ticketsFor(ctx context.Context, reservationIDs []uint64) ([]model.Ticket, error) {
	q := fmt.Sprintf("%s WHERE t.reservation_id IN (%s) ORDER BY t.reservation_id, t.`row`, t.seat",
		reservationTicketsSelect, placeholders(len(reservationIDs)))
	rows, err := r.db.QueryContext(ctx, q, idArgs(reservationIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Ticket{}
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.Row, &t.Seat, &t.PerformanceID, &t.ReservationID,
			&t.PlayTitle, &t.HallName, &t.ShowTime); err != nil {
			return nil, err
		}
		t.ShowTime = t.ShowTime.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
