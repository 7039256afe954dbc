package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/theatre-booking/internal/model"
)

// PerformanceFilter narrows List.  Title matches the play title
// (case-insensitive substring), GenreIDs keeps performances of plays
// with any of the genres, Date keeps performances on that UTC day.
// Results are ordered by show time, newest first unless Ascending.
type PerformanceFilter struct {
	Title     string
	GenreIDs  []uint64
	Date      *time.Time
	Ascending bool
}

// PerformanceRepo manages persistence for performances.
type PerformanceRepo struct {
	db *sql.DB
}

// NewPerformanceRepo constructs a PerformanceRepo with the given DB handle.
func NewPerformanceRepo(db *sql.DB) *PerformanceRepo { return &PerformanceRepo{db: db} }

const performanceSelect = "SELECT pf.id, pf.play_id, pf.theatre_hall_id, pf.show_time, p.title, " +
	"h.id, h.name, h.`rows`, h.seats_in_row, " +
	"(SELECT COUNT(*) FROM tickets t WHERE t.performance_id = pf.id) " +
	"FROM performances pf " +
	"JOIN plays p ON p.id = pf.play_id " +
	"JOIN theatre_halls h ON h.id = pf.theatre_hall_id"

func scanPerformance(s interface{ Scan(...any) error }) (model.Performance, error) {
	var pf model.Performance
	err := s.Scan(&pf.ID, &pf.PlayID, &pf.TheatreHallID, &pf.ShowTime, &pf.PlayTitle,
		&pf.Hall.ID, &pf.Hall.Name, &pf.Hall.Rows, &pf.Hall.SeatsInRow, &pf.TicketsTaken)
	pf.ShowTime = pf.ShowTime.UTC()
	return pf, err
}

// List returns performances matching f.
func (r *PerformanceRepo) List(ctx context.Context, f PerformanceFilter) ([]model.Performance, error) {
	where := []string{}
	args := []any{}
	if t := strings.TrimSpace(f.Title); t != "" {
		where = append(where, "LOWER(p.title) LIKE ?")
		args = append(args, likePattern(t))
	}
	if ids := uniqueIDs(f.GenreIDs); len(ids) > 0 {
		where = append(where, "EXISTS (SELECT 1 FROM play_genres pg WHERE pg.play_id = p.id AND pg.genre_id IN ("+placeholders(len(ids))+"))")
		args = append(args, idArgs(ids)...)
	}
	if f.Date != nil {
		day := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, time.UTC)
		where = append(where, "pf.show_time >= ? AND pf.show_time < ?")
		args = append(args, day, day.AddDate(0, 0, 1))
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	order := "pf.show_time DESC, pf.id DESC"
	if f.Ascending {
		order = "pf.show_time ASC, pf.id ASC"
	}

	rows, err := r.db.QueryContext(ctx, performanceSelect+" WHERE "+cond+" ORDER BY "+order, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Performance{}
	for rows.Next() {
		pf, err := scanPerformance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pf)
	}
	return out, rows.Err()
}

// GetByID returns a performance with its play title and hall, or
// ErrNotFound.
func (r *PerformanceRepo) GetByID(ctx context.Context, id uint64) (*model.Performance, error) {
	pf, err := scanPerformance(r.db.QueryRowContext(ctx, performanceSelect+" WHERE pf.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

// Create schedules a performance.  A missing play or hall yields
// ErrUnknownReference.
func (r *PerformanceRepo) Create(ctx context.Context, pf *model.Performance) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO performances (play_id, theatre_hall_id, show_time) VALUES (?, ?, ?)`,
		pf.PlayID, pf.TheatreHallID, pf.ShowTime.UTC())
	if err != nil {
		if isMissingReference(err) {
			return ErrUnknownReference
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	pf.ID = uint64(id)
	return nil
}

// Delete removes a performance and, by cascade, its tickets.
func (r *PerformanceRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM performances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TakenPlaces lists the (row, seat) pairs already sold for a
// performance, ordered by row then seat.
func (r *PerformanceRepo) TakenPlaces(ctx context.Context, id uint64) ([]model.SeatKey, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT `row`, seat FROM tickets WHERE performance_id = ? ORDER BY `row`, seat", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SeatKey{}
	for rows.Next() {
		k := model.SeatKey{PerformanceID: id}
		if err := rows.Scan(&k.Row, &k.Seat); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
