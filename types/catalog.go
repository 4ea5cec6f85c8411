package types

import "time"

// Category groups titles by kind (film, book, music).
type Category struct {
	ID   int    `json:"-" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// Genre is a tag a title may carry any number of.
type Genre struct {
	ID   int    `json:"-" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// Title represents a reviewable work.
type Title struct {
	// ID is the unique identifier of the title.
	ID int `json:"id" db:"id"`

	// Name is the human-readable name of the work.
	Name string `json:"name" db:"name"`

	// Year is the release year. It is never in the future.
	Year int `json:"year" db:"year"`

	// Rating is the mean of the title's review scores, computed at query
	// time. It is nil when the title has no reviews.
	Rating *float64 `json:"rating" db:"rating"`

	Description string `json:"description" db:"description"`

	// Genres carries the genres attached to the title.
	Genres []Genre `json:"genre" db:"-"`

	// Category is nil when the title has none or its category was deleted.
	Category *Category `json:"category" db:"-"`

	CreatedAt time.Time `json:"-" db:"created_at"`
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// TitleFilter narrows a title listing. Empty strings and a nil Year disable
// a criterion.
type TitleFilter struct {
	// Name matches titles whose name contains the value.
	Name string

	// Category and Genre match by slug.
	Category string
	Genre    string

	// Year is a pointer because 0 is a valid release year.
	Year *int
}
