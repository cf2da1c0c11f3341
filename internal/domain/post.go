package domain

import "time"

// Post is an authored entry on the board. Score is a cached aggregate:
// it must always equal the sum of vote values for the post, and only the
// vote transaction in the repository is allowed to change it.
type Post struct {
	ID        int64
	Title     string
	Body      string
	AuthorID  int64
	Score     int
	CreatedAt time.Time
	UpdatedAt time.Time
}
