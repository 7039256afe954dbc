package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/theatre-booking/internal/model"
)

func mockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestConflictErrorsWrapErrConflict(t *testing.T) {
	for _, err := range []error{ErrSeatTaken, ErrHallShapeConflict, ErrEmailExists} {
		assert.ErrorIs(t, err, ErrConflict, err.Error())
	}
	assert.Equal(t, "this place is already reserved", ErrSeatTaken.Error())
	assert.NotErrorIs(t, ErrNotFound, ErrConflict)
}

func TestMySQLErrorClassification(t *testing.T) {
	assert.True(t, isDuplicate(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isDuplicate(&mysql.MySQLError{Number: 1452}))
	assert.True(t, isMissingReference(&mysql.MySQLError{Number: 1452}))
	assert.False(t, isDuplicate(sql.ErrNoRows))
	assert.True(t, isLockFailure(&mysql.MySQLError{Number: 1213}))
	assert.True(t, isLockFailure(&mysql.MySQLError{Number: 1205}))
	assert.False(t, isLockFailure(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isLockFailure(sql.ErrNoRows))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?, ?, ?", placeholders(3))
	assert.Equal(t, []uint64{3, 1}, uniqueIDs([]uint64{3, 0, 1, 3}))
	assert.Equal(t, `%50\% off\_%`, likePattern("50% OFF_"))
}

var hallCols = []string{"id", "name", "rows", "seats_in_row"}

func TestHallGetOrCreateInserts(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewTheatreHallRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM theatre_halls WHERE name = ?")).WithArgs("Blue").
		WillReturnRows(sqlmock.NewRows(hallCols))
	mock.ExpectExec("INSERT INTO theatre_halls").WithArgs("Blue", 10, 12).
		WillReturnResult(sqlmock.NewResult(4, 1))

	h, created, err := repo.GetOrCreate(context.Background(), model.TheatreHall{Name: "Blue", Rows: 10, SeatsInRow: 12})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(4), h.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHallGetOrCreateReturnsExisting(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewTheatreHallRepo(db)

	mock.ExpectQuery("FROM theatre_halls WHERE name").
		WillReturnRows(sqlmock.NewRows(hallCols).AddRow(4, "Blue", 10, 12))

	h, created, err := repo.GetOrCreate(context.Background(), model.TheatreHall{Name: "Blue", Rows: 10, SeatsInRow: 12})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(4), h.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHallGetOrCreateIgnoresNameCase(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewTheatreHallRepo(db)

	mock.ExpectQuery("FROM theatre_halls WHERE name").
		WillReturnRows(sqlmock.NewRows(hallCols).AddRow(4, "Blue", 10, 12))

	h, created, err := repo.GetOrCreate(context.Background(), model.TheatreHall{Name: "blue", Rows: 10, SeatsInRow: 12})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(4), h.ID)
	assert.Equal(t, "Blue", h.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHallGetOrCreateShapeConflict(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewTheatreHallRepo(db)

	mock.ExpectQuery("FROM theatre_halls WHERE name").
		WillReturnRows(sqlmock.NewRows(hallCols).AddRow(4, "Blue", 10, 12))

	_, _, err := repo.GetOrCreate(context.Background(), model.TheatreHall{Name: "Blue", Rows: 8, SeatsInRow: 12})
	assert.ErrorIs(t, err, ErrHallShapeConflict)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestHallGetOrCreateLosesRace(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewTheatreHallRepo(db)

	mock.ExpectQuery("FROM theatre_halls WHERE name").WillReturnRows(sqlmock.NewRows(hallCols))
	mock.ExpectExec("INSERT INTO theatre_halls").WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectQuery("FROM theatre_halls WHERE name").
		WillReturnRows(sqlmock.NewRows(hallCols).AddRow(9, "Blue", 10, 12))

	h, created, err := repo.GetOrCreate(context.Background(), model.TheatreHall{Name: "Blue", Rows: 10, SeatsInRow: 12})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(9), h.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorDeleteMissing(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectExec("DELETE FROM actors").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, NewActorRepo(db).Delete(context.Background(), 3), ErrNotFound)
}

func TestReviewRatingStats(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(rating), 0), COUNT(*) FROM reviews WHERE play_id = ?")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(12, 3))

	sum, count, err := NewReviewRepo(db).RatingStats(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(12), sum)
	assert.Equal(t, int64(3), count)
}

var reviewCols = []string{"id", "play_id", "user_id", "rating", "comment", "created_at", "name"}

func TestReviewDeleteForUser(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewReviewRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("WHERE rv.id = ?").WithArgs(5).
		WillReturnRows(sqlmock.NewRows(reviewCols).AddRow(5, 2, 7, 4, nil, now, "Ann Lee"))
	_, err := repo.DeleteForUser(context.Background(), 5, 8)
	assert.ErrorIs(t, err, ErrForbidden)

	mock.ExpectQuery("WHERE rv.id = ?").WithArgs(5).
		WillReturnRows(sqlmock.NewRows(reviewCols).AddRow(5, 2, 7, 4, "great", now, "Ann Lee"))
	mock.ExpectExec("DELETE FROM reviews").WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))
	playID, err := repo.DeleteForUser(context.Background(), 5, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), playID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewCreateUnknownPlay(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectExec("INSERT INTO reviews").WillReturnError(&mysql.MySQLError{Number: 1452})
	err := NewReviewRepo(db).Create(context.Background(), &model.Review{PlayID: 99, UserID: 1, Rating: 3})
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs("ann@example.com", sqlmock.AnyArg(), "Ann", "", false).
		WillReturnError(&mysql.MySQLError{Number: 1062})

	_, err := NewUserRepo(db).Create(context.Background(), NewUser{Email: "  Ann@Example.com ", Password: "secret", FirstName: "Ann"}, 4)
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserGetByEmailMissing(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery("FROM users WHERE email=").WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := NewUserRepo(db).GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRotateRejectsRevoked(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash=\\? FOR UPDATE").WithArgs("old").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(7, time.Now().Add(time.Hour), time.Now()))
	mock.ExpectRollback()

	_, err := NewTokenRepo(db).Rotate(context.Background(), "old", "new", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRotate(t *testing.T) {
	db, mock := mockDB(t)
	exp := time.Now().Add(24 * time.Hour).UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM refresh_tokens WHERE token_hash=\\? FOR UPDATE").WithArgs("old").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(7, time.Now().Add(time.Hour), nil))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").WithArgs("old").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").WithArgs(7, "new", exp).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	uid, err := NewTokenRepo(db).Rotate(context.Background(), "old", "new", exp)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), uid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
