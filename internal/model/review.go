package model

import "time"

// Review is a user's 1..5 rating of a play with an optional comment.
type Review struct {
	ID        uint64    // reviews.id
	PlayID    uint64    // reviews.play_id
	UserID    uint64    // reviews.user_id
	Rating    uint8     // reviews.rating
	Comment   *string   // reviews.comment (nullable)
	CreatedAt time.Time // reviews.created_at
	UserName  string    // first and last name of the author, read only
}

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)
