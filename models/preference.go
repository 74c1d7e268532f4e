package models

import "time"

type TermType string

const (
	TermArtist TermType = "artist"
	TermGenre  TermType = "genre"
	TermAlbum  TermType = "album"
)

// PreferenceTerm is one user-configured interest value. Values are stored
// normalized; the store enforces set semantics over (type, value).
type PreferenceTerm struct {
	ID        int64     `json:"id" db:"id"`
	Type      TermType  `json:"type" db:"type"`
	Value     string    `json:"value" db:"value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
