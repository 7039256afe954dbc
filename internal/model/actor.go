package model

// Actor is a performer that can appear in many plays.
//
// Fields:
//  ID        – primary key identifier.
//  FirstName – given name (max 64 chars).
//  LastName  – family name (max 64 chars).
type Actor struct {
	ID        uint64 `json:"id"`         // actors.id
	FirstName string `json:"first_name"` // actors.first_name
	LastName  string `json:"last_name"`  // actors.last_name
}

// FullName joins first and last name the way listings display it.
func (a Actor) FullName() string {
	return a.FirstName + " " + a.LastName
}
