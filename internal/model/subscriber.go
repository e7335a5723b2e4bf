package model

import "time"

// Subscriber is the DB entity persisted in the subscribers table.
type Subscriber struct {
	ID              int64     `db:"id"               json:"id"`
	Name            string    `db:"name"             json:"name"`
	Email           string    `db:"email"            json:"email"` // display casing
	EmailNormalized string    `db:"email_normalized" json:"-"`     // unique key
	CreatedAt       time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updated_at"`
}

// ImportSummary is the outcome of one CSV import.
type ImportSummary struct {
	Inserted         int `json:"inserted_count"`
	SkippedDuplicate int `json:"skipped_duplicate_count"`
	SkippedInvalid   int `json:"skipped_invalid_count"`
}
