package types

// PageRequest selects a window of a listing.
type PageRequest struct {
	Offset int
	Limit  int

	// Search is a free-text criterion whose meaning depends on the listing.
	Search string
}
