// Package repository persists properties, users and guesses, and ranks
// estimates on the in-memory divergence board.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
	"github.com/huishype/huishype/pkg/metrics"
)

// Store provides durable access to the estimation inputs. SQLiteStore and
// PostgresStore share these semantics.
type Store interface {
	// EnsureSchema creates missing tables and indexes.
	EnsureSchema(ctx context.Context) error
	Close() error

	// UpsertProperty inserts or replaces a property's address and reference values.
	UpsertProperty(ctx context.Context, p model.Property) (model.Property, error)
	// GetProperty returns ErrNotFound for an unknown id.
	GetProperty(ctx context.Context, id string) (model.Property, error)
	ListPropertyIDs(ctx context.Context) ([]string, error)

	UpsertUser(ctx context.Context, u model.User) error
	// GetUser returns ErrNotFound for an unknown id.
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)

	// SaveGuess stores the user's guess for a property, replacing any earlier
	// one and clearing its retraction. Unknown users are created with zero
	// karma. It returns ErrNotFound if the property does not exist.
	SaveGuess(ctx context.Context, g model.Guess) (model.Guess, error)
	// RetractGuess marks the user's guess retracted. It returns ErrNotFound if
	// there is no active guess.
	RetractGuess(ctx context.Context, propertyID string, userID uuid.UUID) error
	// ActiveGuesses returns the non-meme, non-retracted guesses for a property
	// weighted by each guesser's current karma.
	ActiveGuesses(ctx context.Context, propertyID string) ([]fmv.WeightedGuess, error)
	// CountGuesses counts every stored guess for a property, memes and
	// retractions included.
	CountGuesses(ctx context.Context, propertyID string) (int, error)
}

// observe records the latency of one store operation.
func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
