package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// propertyRequest mirrors the OpenAPI schema for PUT /properties/{id}.
type propertyRequest struct {
	Address     string   `json:"address" validate:"max=256"`
	WOZValue    *float64 `json:"woz_value" validate:"omitempty,gt=0,lte=1000000000"`
	AskingPrice *float64 `json:"asking_price" validate:"omitempty,gt=0,lte=1000000000"`
}

// guessRequest mirrors the OpenAPI schema for POST /properties/{id}/guesses.
type guessRequest struct {
	Price float64 `json:"price" validate:"gt=0,lte=1000000000"`
	Meme  bool    `json:"meme"`
}

// karmaRequest mirrors the OpenAPI schema for PUT /users/{id}/karma.
type karmaRequest struct {
	Handle string `json:"handle" validate:"max=64"`
	Karma  *int   `json:"karma" validate:"required"`
}

// validationMessage reports the first failed rule.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Sprintf("validation error: %s - %s", ve[0].Field(), ve[0].Tag())
	}
	return "validation error: invalid request"
}
