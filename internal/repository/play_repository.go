package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/theatre-booking/internal/model"
)

// PlayFilter narrows List.  Title is a case-insensitive substring and
// GenreIDs keeps plays having at least one of the genres.
type PlayFilter struct {
	Title    string
	GenreIDs []uint64
}

// PlayRepo persists plays and their actor/genre links.
type PlayRepo struct {
	db *sql.DB
}

// NewPlayRepo constructs a PlayRepo with the given DB handle.
func NewPlayRepo(db *sql.DB) *PlayRepo { return &PlayRepo{db: db} }

const playColumns = `p.id, p.title, p.description, p.rating, p.image,
       (SELECT COUNT(*) FROM reviews rv WHERE rv.play_id = p.id)`

func scanPlay(s interface{ Scan(...any) error }) (model.Play, error) {
	var (
		p      model.Play
		rating sql.NullFloat64
		image  sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Title, &p.Description, &rating, &image, &p.ReviewCount); err != nil {
		return p, err
	}
	if rating.Valid {
		v := rating.Float64
		p.Rating = &v
	}
	if image.Valid {
		v := image.String
		p.Image = &v
	}
	return p, nil
}

// List returns plays matching f with actors and genres loaded.
func (r *PlayRepo) List(ctx context.Context, f PlayFilter) ([]model.Play, error) {
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
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+playColumns+` FROM plays p WHERE `+cond+` ORDER BY p.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plays := []model.Play{}
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, plays); err != nil {
		return nil, err
	}
	return plays, nil
}

// GetByID returns one play with relations or ErrNotFound.
func (r *PlayRepo) GetByID(ctx context.Context, id uint64) (*model.Play, error) {
	p, err := scanPlay(r.db.QueryRowContext(ctx, `SELECT `+playColumns+` FROM plays p WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	plays := []model.Play{p}
	if err := r.loadRelations(ctx, plays); err != nil {
		return nil, err
	}
	return &plays[0], nil
}

// Exists reports whether a play with id exists.
func (r *PlayRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM plays WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Create inserts the play and links it to the given actors and genres
// in one transaction.  Unknown ids yield ErrUnknownReference.
func (r *PlayRepo) Create(ctx context.Context, p *model.Play, actorIDs, genreIDs []uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO plays (title, description) VALUES (?, ?)`, p.Title, p.Description)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p.ID = uint64(id)
		if err := replaceLinks(ctx, tx, "play_actors", "actor_id", p.ID, actorIDs); err != nil {
			return err
		}
		return replaceLinks(ctx, tx, "play_genres", "genre_id", p.ID, genreIDs)
	})
}

// Update overwrites title and description.  actorIDs/genreIDs replace
// the links when non-nil and leave them untouched when nil.
func (r *PlayRepo) Update(ctx context.Context, p *model.Play, actorIDs, genreIDs *[]uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM plays WHERE id = ? FOR UPDATE`, p.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE plays SET title = ?, description = ? WHERE id = ?`, p.Title, p.Description, p.ID); err != nil {
			return err
		}
		if actorIDs != nil {
			if err := replaceLinks(ctx, tx, "play_actors", "actor_id", p.ID, *actorIDs); err != nil {
				return err
			}
		}
		if genreIDs != nil {
			if err := replaceLinks(ctx, tx, "play_genres", "genre_id", p.ID, *genreIDs); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a play; performances, tickets and reviews cascade.
func (r *PlayRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM plays WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetImage stores the relative image path of a play.
func (r *PlayRepo) SetImage(ctx context.Context, id uint64, path string) error {
	if ok, err := r.Exists(ctx, id); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	_, err := r.db.ExecContext(ctx, `UPDATE plays SET image = ? WHERE id = ?`, path, id)
	return err
}

// SetRating stores the rolled-up rating; nil clears it.
func (r *PlayRepo) SetRating(ctx context.Context, id uint64, rating *float64) error {
	var v sql.NullFloat64
	if rating != nil {
		v = sql.NullFloat64{Float64: *rating, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `UPDATE plays SET rating = ? WHERE id = ?`, v, id)
	return err
}

// replaceLinks rewrites the rows of a play link table.
func replaceLinks(ctx context.Context, tx *sql.Tx, table, column string, playID uint64, ids []uint64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE play_id = ?`, playID); err != nil {
		return err
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	query := `INSERT INTO ` + table + ` (play_id, ` + column + `) VALUES `
	args := make([]any, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?)"
		args = append(args, playID, id)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isMissingReference(err) {
			return fmt.Errorf("%w: %s", ErrUnknownReference, strings.TrimSuffix(column, "_id"))
		}
		return err
	}
	return nil
}

// loadRelations fills Actors and Genres of every play with two queries.
func (r *PlayRepo) loadRelations(ctx context.Context, plays []model.Play) error {
	if len(plays) == 0 {
		return nil
	}
	index := make(map[uint64]int, len(plays))
	ids := make([]uint64, 0, len(plays))
	for i := range plays {
		index[plays[i].ID] = i
		ids = append(ids, plays[i].ID)
		plays[i].Actors = []model.Actor{}
		plays[i].Genres = []model.Genre{}
	}
	in := placeholders(len(ids))

	arows, err := r.db.QueryContext(ctx, `SELECT pa.play_id, a.id, a.first_name, a.last_name
		FROM play_actors pa JOIN actors a ON a.id = pa.actor_id
		WHERE pa.play_id IN (`+in+`) ORDER BY a.id`, idArgs(ids)...)
	if err != nil {
		return err
	}
	defer arows.Close()
	for arows.Next() {
		var playID uint64
		var a model.Actor
		if err := arows.Scan(&playID, &a.ID, &a.FirstName, &a.LastName); err != nil {
			return err
		}
		if i, ok := index[playID]; ok {
			plays[i].Actors = append(plays[i].Actors, a)
		}
	}
	if err := arows.Err(); err != nil {
		return err
	}

	grows, err := r.db.QueryContext(ctx, `SELECT pg.play_id, g.id, g.name
		FROM play_genres pg JOIN genres g ON g.id = pg.genre_id
		WHERE pg.play_id IN (`+in+`) ORDER BY g.id`, idArgs(ids)...)
	if err != nil {
		return err
	}
	defer grows.Close()
	for grows.Next() {
		var playID uint64
		var g model.Genre
		if err := grows.Scan(&playID, &g.ID, &g.Name); err != nil {
			return err
		}
		if i, ok := index[playID]; ok {
			plays[i].Genres = append(plays[i].Genres, g)
		}
	}
	return grows.Err()
}
