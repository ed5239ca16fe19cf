package model

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation errors for guesses.
var (
	ErrMissingProperty = errors.New("missing property id")
	ErrMissingUser     = errors.New("missing user id")
	ErrInvalidPrice    = errors.New("price must be a positive finite amount")
)

// Guess is one user's price opinion for a property. A user holds at most one
// active guess per property; submitting again replaces it.
type Guess struct {
	ID         uuid.UUID `json:"id"`
	PropertyID string    `json:"property_id"`
	UserID     uuid.UUID `json:"user_id"`
	Price      float64   `json:"price"`
	// Meme guesses are kept for the record but never feed an estimate.
	Meme      bool      `json:"meme"`
	Retracted bool      `json:"retracted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate rejects guesses the estimator must never see.
func (g Guess) Validate() error {
	switch {
	case strings.TrimSpace(g.PropertyID) == "":
		return ErrMissingProperty
	case g.UserID == uuid.Nil:
		return ErrMissingUser
	case !ValidPrice(g.Price):
		return ErrInvalidPrice
	}
	return nil
}

// ValidPrice reports whether p is a positive finite amount.
func ValidPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}
