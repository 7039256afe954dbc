package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/theatre-booking/internal/model"
)

// ReviewRepo persists play reviews.
type ReviewRepo struct {
	db *sql.DB
}

// NewReviewRepo constructs a ReviewRepo with the given DB handle.
func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

const reviewSelect = `SELECT rv.id, rv.play_id, rv.user_id, rv.rating, rv.comment, rv.created_at,
       TRIM(CONCAT(u.first_name, ' ', u.last_name))
  FROM reviews rv JOIN users u ON u.id = rv.user_id`

func scanReview(s interface{ Scan(...any) error }) (model.Review, error) {
	var (
		rv      model.Review
		comment sql.NullString
	)
	if err := s.Scan(&rv.ID, &rv.PlayID, &rv.UserID, &rv.Rating, &comment, &rv.CreatedAt, &rv.UserName); err != nil {
		return rv, err
	}
	if comment.Valid {
		c := comment.String
		rv.Comment = &c
	}
	rv.CreatedAt = rv.CreatedAt.UTC()
	return rv, nil
}

// List returns reviews newest first.  A non-zero playID restricts the
// result to that play.
func (r *ReviewRepo) List(ctx context.Context, playID uint64) ([]model.Review, error) {
	q := reviewSelect
	var args []any
	if playID != 0 {
		q += ` WHERE rv.play_id = ?`
		args = append(args, playID)
	}
	q += ` ORDER BY rv.created_at DESC, rv.id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// GetByID returns a review or ErrNotFound.
func (r *ReviewRepo) GetByID(ctx context.Context, id uint64) (*model.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE rv.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

// Create inserts a review and reloads it so CreatedAt and UserName are
// populated.  An unknown play yields ErrUnknownReference.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (play_id, user_id, rating, comment) VALUES (?, ?, ?, ?)`,
		rv.PlayID, rv.UserID, rv.Rating, rv.Comment)
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
	stored, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*rv = *stored
	return nil
}

// DeleteForUser removes a review written by userID.  Reviews of other
// users are reported as ErrForbidden, missing ones as ErrNotFound.  The
// play id is returned so callers can refresh its rating.
func (r *ReviewRepo) DeleteForUser(ctx context.Context, id, userID uint64) (uint64, error) {
	rv, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if rv.UserID != userID {
		return 0, ErrForbidden
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id); err != nil {
		return 0, err
	}
	return rv.PlayID, nil
}

// RatingStats returns the sum and count of a play's review ratings.
func (r *ReviewRepo) RatingStats(ctx context.Context, playID uint64) (sum, count int64, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(rating), 0), COUNT(*) FROM reviews WHERE play_id = ?`, playID).
		Scan(&sum, &count)
	return sum, count, err
}
