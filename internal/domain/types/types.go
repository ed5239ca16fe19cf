// Package types contains common types used across the application
package types

// Entry is one row of the divergence board: a property ranked by how far its
// estimate sits above (positive) or below (negative) its asking price.
type Entry struct {
	Rank        int     `json:"rank"`
	PropertyID  string  `json:"property_id"`
	FMV         float64 `json:"fmv"`
	AskingPrice float64 `json:"asking_price"`
	Divergence  float64 `json:"divergence"`
	Confidence  string  `json:"confidence"`
	GuessCount  int     `json:"guess_count"`
}

// PropertyStats counts a property's guesses. Meme and retracted guesses are
// stored but excluded from its estimate.
type PropertyStats struct {
	PropertyID      string `json:"property_id"`
	StoredGuesses   int    `json:"stored_guesses"`
	ActiveGuesses   int    `json:"active_guesses"`
	ExcludedGuesses int    `json:"excluded_guesses"`
}
