package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/theatre-booking/internal/model"
)

// TheatreHallRepo persists theatre halls.  Hall names are unique, which
// makes creation idempotent by (name, rows, seats_in_row).
type TheatreHallRepo struct {
	db *sql.DB // db is the underlying database connection
}

// NewTheatreHallRepo constructs a TheatreHallRepo with the given DB handle.
func NewTheatreHallRepo(db *sql.DB) *TheatreHallRepo {
	return &TheatreHallRepo{db: db}
}

const hallColumns = "id, name, `rows`, seats_in_row"

// List returns all halls, optionally restricted to names containing
// the given substring (case-insensitive).
func (r *TheatreHallRepo) List(ctx context.Context, name string) ([]model.TheatreHall, error) {
	q := `SELECT ` + hallColumns + ` FROM theatre_halls`
	var args []any
	if name = strings.TrimSpace(name); name != "" {
		q += ` WHERE LOWER(name) LIKE ?`
		args = append(args, likePattern(name))
	}
	q += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TheatreHall{}
	for rows.Next() {
		var h model.TheatreHall
		if err := rows.Scan(&h.ID, &h.Name, &h.Rows, &h.SeatsInRow); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetByID retrieves a hall by its ID.  It returns ErrNotFound when no
// row is found.
func (r *TheatreHallRepo) GetByID(ctx context.Context, id uint64) (*model.TheatreHall, error) {
	return r.getOne(ctx, `SELECT `+hallColumns+` FROM theatre_halls WHERE id = ?`, id)
}

// GetByName retrieves a hall by its exact name.
func (r *TheatreHallRepo) GetByName(ctx context.Context, name string) (*model.TheatreHall, error) {
	return r.getOne(ctx, `SELECT `+hallColumns+` FROM theatre_halls WHERE name = ?`, name)
}

func (r *TheatreHallRepo) getOne(ctx context.Context, q string, arg any) (*model.TheatreHall, error) {
	var h model.TheatreHall
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&h.ID, &h.Name, &h.Rows, &h.SeatsInRow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetOrCreate returns the hall named h.Name when it has the same shape,
// inserting it first when no hall with that name exists.  created
// reports whether a row was inserted.  A hall with the same name but a
// different shape yields ErrHallShapeConflict.  A concurrent insert of
// the same name is resolved by re-reading the winner.
func (r *TheatreHallRepo) GetOrCreate(ctx context.Context, h model.TheatreHall) (*model.TheatreHall, bool, error) {
	existing, err := r.GetByName(ctx, h.Name)
	switch {
	case err == nil:
		return r.matchShape(existing, h)
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	res, err := r.db.ExecContext(ctx, "INSERT INTO theatre_halls (name, `rows`, seats_in_row) VALUES (?, ?, ?)",
		h.Name, h.Rows, h.SeatsInRow)
	if err != nil {
		if isDuplicate(err) {
			existing, err := r.GetByName(ctx, h.Name)
			if err != nil {
				return nil, false, err
			}
			return r.matchShape(existing, h)
		}
		return nil, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	h.ID = uint64(id)
	return &h, true, nil
}

func (r *TheatreHallRepo) matchShape(existing *model.TheatreHall, want model.TheatreHall) (*model.TheatreHall, bool, error) {
	if !existing.SameShape(want) {
		return nil, false, ErrHallShapeConflict
	}
	return existing, false, nil
}

// Delete removes a hall; its performances and their tickets cascade.
func (r *TheatreHallRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM theatre_halls WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
