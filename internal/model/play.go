package model

// Play is a stage work that can be scheduled as performances.  Actors
// and genres are many-to-many relations loaded separately by the
// repository.  Rating is the rounded mean of the play's reviews and is
// nil when the play has not been reviewed.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – play title (max 64 chars).
//  Description – free text.
//  Rating      – mean review rating rounded to 2 decimals (nullable).
//  Image       – relative path of the uploaded poster (nullable).
//  Actors      – actors appearing in the play.
//  Genres      – genres of the play.
//  ReviewCount – number of reviews, filled by list queries.
type Play struct {
	ID          uint64   // plays.id
	Title       string   // plays.title
	Description string   // plays.description
	Rating      *float64 // plays.rating (nullable)
	Image       *string  // plays.image (nullable)
	Actors      []Actor
	Genres      []Genre
	ReviewCount int
}
