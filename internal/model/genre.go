package model

// Genre classifies plays (drama, comedy, ...).  A play may carry
// several genres.
type Genre struct {
	ID   uint64 `json:"id"`   // genres.id
	Name string `json:"name"` // genres.name
}
