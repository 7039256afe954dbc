package model

import "time"

// User represents an account as stored in the `users` table.  Staff
// users may manage the catalog; everybody else can only review plays
// and book tickets.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address used to log in.
//  PasswordHash – bcrypt hashed password.
//  FirstName    – optional given name.
//  LastName     – optional family name.
//  IsStaff      – whether the user may mutate the catalog.
//  IsActive     – whether the account may log in.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	FirstName    string    // users.first_name
	LastName     string    // users.last_name
	IsStaff      bool      // users.is_staff
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Role names carried in access tokens.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Role maps the staff flag to the role claim.
func (u User) Role() string {
	if u.IsStaff {
		return RoleAdmin
	}
	return RoleUser
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token handed to the client is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
