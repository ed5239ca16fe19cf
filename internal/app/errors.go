package service

import (
	"errors"

	"github.com/huishype/huishype/internal/adapters/repository"
)

// Sentinel kinds returned by Service.
var (
	ErrBackpressure = errors.New("backpressure")
	ErrStopped      = errors.New("service not running")
	ErrNoStore      = errors.New("service has no store")

	// Storage kinds, re-exported so callers need not import the repository.
	ErrNotFound     = repository.ErrNotFound
	ErrInvalidInput = repository.ErrInvalidInput
	ErrInvalidLimit = repository.ErrInvalidLimit
)
