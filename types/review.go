package types

import "time"

// Score bounds for a review.
const (
	MinScore = 1
	MaxScore = 10
)

// Review is a user's scored opinion of a title.
// At most one review exists per (title, author) pair.
type Review struct {
	ID       int `json:"id" db:"id"`
	TitleID  int `json:"-" db:"title_id"`
	AuthorID int `json:"-" db:"author_id"`

	// Author is the username of AuthorID, filled on reads.
	Author string `json:"author" db:"author"`

	Text    string    `json:"text" db:"text"`
	Score   int       `json:"score" db:"score"`
	PubDate time.Time `json:"pub_date" db:"pub_date"`
}

// Comment is a reply attached to a review.
type Comment struct {
	ID       int `json:"id" db:"id"`
	ReviewID int `json:"-" db:"review_id"`
	AuthorID int `json:"-" db:"author_id"`

	// Author is the username of AuthorID, filled on reads.
	Author string `json:"author" db:"author"`

	Text    string    `json:"text" db:"text"`
	PubDate time.Time `json:"pub_date" db:"pub_date"`
}
