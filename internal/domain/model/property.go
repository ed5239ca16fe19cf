package model

import (
	"time"

	"github.com/google/uuid"
)

// Property is a listed home together with its reference values. Either value
// may be unknown.
type Property struct {
	ID      string `json:"id" yaml:"id"`
	Address string `json:"address" yaml:"address"`
	// WOZValue is the official municipal valuation.
	WOZValue *float64 `json:"woz_value" yaml:"woz_value"`
	// AskingPrice comes from the active listing, if any.
	AskingPrice *float64  `json:"asking_price" yaml:"asking_price"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// User is a guesser and the reputation their guesses are weighted with.
type User struct {
	ID     uuid.UUID `json:"id" yaml:"id"`
	Handle string    `json:"handle" yaml:"handle"`
	Karma  int       `json:"karma" yaml:"karma"`
}
