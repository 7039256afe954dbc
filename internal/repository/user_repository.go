package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser carries the fields accepted at registration.
type NewUser struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	IsStaff   bool
}

// ProfileUpdate lists the profile fields to change.  Nil fields are left
// as they are.
type ProfileUpdate struct {
	Email     *string
	Password  *string
	FirstName *string
	LastName  *string
}

const userColumns = "id,email,password_hash,first_name,last_name,is_staff,is_active,created_at,updated_at"

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create hashes the password, inserts the user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, nu NewUser, cost int) (uint64, error) {
	hash, err := utils.HashPassword(nu.Password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, first_name, last_name, is_staff) VALUES (?,?,?,?,?)",
		normalizeEmail(nu.Email), hash, strings.TrimSpace(nu.FirstName), strings.TrimSpace(nu.LastName), nu.IsStaff)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func scanUser(s interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsStaff, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdateProfile applies the non-nil fields of upd and returns the
// stored user.  A new password is re-hashed with cost.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, upd ProfileUpdate, cost int) (model.User, error) {
	var (
		sets []string
		args []any
	)
	if upd.Email != nil {
		sets = append(sets, "email=?")
		args = append(args, normalizeEmail(*upd.Email))
	}
	if upd.FirstName != nil {
		sets = append(sets, "first_name=?")
		args = append(args, strings.TrimSpace(*upd.FirstName))
	}
	if upd.LastName != nil {
		sets = append(sets, "last_name=?")
		args = append(args, strings.TrimSpace(*upd.LastName))
	}
	if upd.Password != nil {
		hash, err := utils.HashPassword(*upd.Password, cost)
		if err != nil {
			return model.User{}, err
		}
		sets = append(sets, "password_hash=?")
		args = append(args, hash)
	}
	if len(sets) > 0 {
		args = append(args, id)
		_, err := r.DB.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ",")+" WHERE id=?", args...)
		if err != nil {
			if isDuplicate(err) {
				return model.User{}, ErrEmailExists
			}
			return model.User{}, err
		}
		// RowsAffected is 0 when nothing changed; existence is
		// checked by the read below.
	}
	return r.GetByID(ctx, id)
}

// EnsureStaff creates a staff account for email unless one exists.  An
// existing user with that email is promoted to staff; its password is
// left untouched.  It reports whether a new row was inserted.
func (r *UserRepo) EnsureStaff(ctx context.Context, email, password string, cost int) (bool, error) {
	u, err := r.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !u.IsStaff {
			if _, err := r.DB.ExecContext(ctx, "UPDATE users SET is_staff=1 WHERE id=?", u.ID); err != nil {
				return false, err
			}
		}
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, err
	}
	_, err = r.Create(ctx, NewUser{Email: email, Password: password, IsStaff: true}, cost)
	if errors.Is(err, ErrEmailExists) {
		// Lost a race with another instance seeding the same account.
		return false, nil
	}
	return err == nil, err
}
