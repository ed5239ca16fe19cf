// Package fmv turns a property's crowd guesses plus its official WOZ value and
// asking price into a single fair market value estimate.
//
// Everything in this package is a pure function of its inputs: no I/O, no
// shared state, no retained references to caller-owned slices. Callers load
// guesses from storage, validate them at the boundary and cache results if
// they need to.
package fmv

// Confidence grades an estimate by how many guesses back it.
type Confidence string

// Confidence tiers, ordered from weakest to strongest.
const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// String returns the wire representation of the tier.
func (c Confidence) String() string { return string(c) }

// WeightedGuess is one contributor's price opinion together with the
// contributor's reputation at evaluation time.
type WeightedGuess struct {
	GuessedPrice float64 `json:"guessedPrice" yaml:"price"`
	Karma        int     `json:"karma" yaml:"karma"`
}

// Distribution is the spread of the raw (untrimmed) guesses.
type Distribution struct {
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Result is the reconciled estimate for one property.
//
// FMV is nil only when there are no guesses and no official value.
// Distribution is nil iff GuessCount is zero. Divergence is nil whenever FMV or
// the asking price is missing, or the asking price is not positive.
type Result struct {
	FMV          *float64      `json:"fmv"`
	Confidence   Confidence    `json:"confidence"`
	GuessCount   int           `json:"guessCount"`
	Distribution *Distribution `json:"distribution"`
	WOZValue     *float64      `json:"wozValue"`
	AskingPrice  *float64      `json:"askingPrice"`
	Divergence   *float64      `json:"divergence"`

	// OutliersTrimmed counts guesses left out of the crowd mean. Not serialized.
	OutliersTrimmed int `json:"-"`
}

// Float returns a pointer to v. Handy for building nullable inputs.
func Float(v float64) *float64 { return &v }
