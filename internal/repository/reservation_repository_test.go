package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/theatre-booking/internal/model"
)

func newMock(t *testing.T) (*ReservationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReservationRepo(db), mock
}

var (
	lockQuery      = regexp.QuoteMeta("SELECT id FROM tickets WHERE performance_id = ? AND `row` = ? AND seat = ? FOR UPDATE")
	insertResQuery = regexp.QuoteMeta("INSERT INTO reservations (user_id) VALUES (?)")
	createdAtQuery = regexp.QuoteMeta("SELECT created_at FROM reservations WHERE id = ?")
	insertTickets  = regexp.QuoteMeta("INSERT INTO tickets (`row`, seat, performance_id, reservation_id) VALUES (?, ?, ?, ?), (?, ?, ?, ?)")
)

func twoTickets() []model.Ticket {
	return []model.Ticket{
		{PerformanceID: 1, Row: 2, Seat: 3},
		{PerformanceID: 1, Row: 2, Seat: 4},
	}
}

func TestCreateWithTicketsCommits(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(1, 2, 3).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(lockQuery).WithArgs(1, 2, 4).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(insertResQuery).WithArgs(7).WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery(createdAtQuery).WithArgs(10).WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec(insertTickets).WithArgs(2, 3, 1, 10, 2, 4, 1, 10).WillReturnResult(sqlmock.NewResult(100, 2))
	mock.ExpectCommit()

	res, err := repo.CreateWithTickets(context.Background(), 7, twoTickets())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.ID)
	assert.Equal(t, uint64(7), res.UserID)
	assert.Equal(t, created, res.CreatedAt)
	require.Len(t, res.Tickets, 2)
	assert.Equal(t, uint64(100), res.Tickets[0].ID)
	assert.Equal(t, uint64(101), res.Tickets[1].ID)
	assert.Equal(t, uint64(10), res.Tickets[1].ReservationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithTicketsRejectsTakenPlace(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(1, 2, 3).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(55))
	mock.ExpectRollback()

	res, err := repo.CreateWithTickets(context.Background(), 7, twoTickets())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrSeatTaken)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithTicketsTranslatesDuplicateKey(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(insertResQuery).WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery(createdAtQuery).WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(insertTickets).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-2-3' for key 'uq_tickets_place'"})
	mock.ExpectRollback()

	_, err := repo.CreateWithTickets(context.Background(), 7, twoTickets())
	assert.ErrorIs(t, err, ErrSeatTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithTicketsTranslatesLockFailures(t *testing.T) {
	cases := []struct {
		name string
		err  *mysql.MySQLError
	}{
		{"deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock; try restarting transaction"}},
		{"lock wait timeout", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded; try restarting transaction"}},
	}
	for _, tc := range cases {
		t.Run(tc.name+" on ticket insert", func(t *testing.T) {
			repo, mock := newMock(t)

			mock.ExpectBegin()
			mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
			mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
			mock.ExpectExec(insertResQuery).WillReturnResult(sqlmock.NewResult(10, 1))
			mock.ExpectQuery(createdAtQuery).WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
			mock.ExpectExec(insertTickets).WillReturnError(tc.err)
			mock.ExpectRollback()

			res, err := repo.CreateWithTickets(context.Background(), 7, twoTickets())
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrSeatTaken)
			assert.ErrorIs(t, err, ErrConflict)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
		t.Run(tc.name+" on place check", func(t *testing.T) {
			repo, mock := newMock(t)

			mock.ExpectBegin()
			mock.ExpectQuery(lockQuery).WithArgs(1, 2, 3).WillReturnError(tc.err)
			mock.ExpectRollback()

			_, err := repo.CreateWithTickets(context.Background(), 7, twoTickets())
			assert.ErrorIs(t, err, ErrSeatTaken)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateWithTicketsUnknownPerformance(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(insertResQuery).WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectQuery(createdAtQuery).WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(insertTickets).WillReturnError(&mysql.MySQLError{Number: 1452})
	mock.ExpectRollback()

	_, err := repo.CreateWithTickets(context.Background(), 7, twoTickets())
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithTicketsRollsBackOnDriverError(t *testing.T) {
	repo, mock := newMock(t)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnError(boom)
	mock.ExpectRollback()

	_, err := repo.CreateWithTickets(context.Background(), 7, twoTickets())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithTicketsRequiresTickets(t *testing.T) {
	repo, mock := newMock(t)
	_, err := repo.CreateWithTickets(context.Background(), 7, nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByUserGroupsTickets(t *testing.T) {
	repo, mock := newMock(t)
	newer := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	show := time.Date(2026, 4, 1, 19, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE user_id = ? ORDER BY created_at DESC")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(2, 7, newer).
			AddRow(1, 7, older))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.reservation_id IN (?, ?) ORDER BY t.reservation_id, t.`row`, t.seat")).
		WithArgs(2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "row", "seat", "performance_id", "reservation_id", "title", "name", "show_time"}).
			AddRow(11, 1, 1, 3, 1, "Hamlet", "Blue", show).
			AddRow(21, 4, 2, 3, 2, "Hamlet", "Blue", show).
			AddRow(22, 4, 3, 3, 2, "Hamlet", "Blue", show))

	out, err := repo.ListByUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(2), out[0].ID)
	require.Len(t, out[0].Tickets, 2)
	assert.Equal(t, "Hamlet", out[0].Tickets[0].PlayTitle)
	assert.Equal(t, "Blue", out[0].Tickets[0].HallName)
	assert.Equal(t, show, out[0].Tickets[0].ShowTime)
	require.Len(t, out[1].Tickets, 1)
	assert.Equal(t, uint32(1), out[1].Tickets[0].Row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByUserEmpty(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM reservations").WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}))

	out, err := repo.ListByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDForUserHidesOtherUsers(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ? AND user_id = ?")).
		WithArgs(5, 8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}))

	_, err := repo.GetByIDForUser(context.Background(), 5, 8)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteForUser(t *testing.T) {
	repo, mock := newMock(t)
	q := regexp.QuoteMeta("DELETE FROM reservations WHERE id = ? AND user_id = ?")
	mock.ExpectExec(q).WithArgs(5, 7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(5, 8).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.DeleteForUser(context.Background(), 5, 7))
	assert.ErrorIs(t, repo.DeleteForUser(context.Background(), 5, 8), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
