package auth

import "errors"

// Sentinel kinds for token handling.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoUser       = errors.New("no authenticated user")
)
