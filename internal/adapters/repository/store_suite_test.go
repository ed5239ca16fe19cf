package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
)

// runStoreSuite exercises the Store contract against a fresh, empty store
// returned by open.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Run("PropertyRoundTrip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.GetProperty(ctx, "p-1")
		assert.True(t, errors.Is(err, ErrNotFound))

		saved, err := s.UpsertProperty(ctx, model.Property{ID: "p-1", Address: "Damrak 1", WOZValue: fmv.Float(400000)})
		require.NoError(t, err)
		assert.False(t, saved.UpdatedAt.IsZero())

		got, err := s.GetProperty(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "Damrak 1", got.Address)
		require.NotNil(t, got.WOZValue)
		assert.Equal(t, 400000.0, *got.WOZValue)
		assert.Nil(t, got.AskingPrice)

		_, err = s.UpsertProperty(ctx, model.Property{ID: "p-1", Address: "Damrak 1", AskingPrice: fmv.Float(450000)})
		require.NoError(t, err)
		got, err = s.GetProperty(ctx, "p-1")
		require.NoError(t, err)
		assert.Nil(t, got.WOZValue)
		require.NotNil(t, got.AskingPrice)
		assert.Equal(t, 450000.0, *got.AskingPrice)

		_, err = s.UpsertProperty(ctx, model.Property{})
		assert.True(t, errors.Is(err, ErrInvalidInput))

		_, err = s.UpsertProperty(ctx, model.Property{ID: "a-0"})
		require.NoError(t, err)
		ids, err := s.ListPropertyIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a-0", "p-1"}, ids)
	})

	t.Run("UserRoundTrip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		id := uuid.New()

		_, err := s.GetUser(ctx, id)
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, s.UpsertUser(ctx, model.User{ID: id, Handle: "anna", Karma: 12}))
		require.NoError(t, s.UpsertUser(ctx, model.User{ID: id, Handle: "anna", Karma: 15}))
		u, err := s.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.User{ID: id, Handle: "anna", Karma: 15}, u)

		assert.True(t, errors.Is(s.UpsertUser(ctx, model.User{}), ErrInvalidInput))
	})

	t.Run("GuessLifecycle", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		_, err := s.UpsertProperty(ctx, model.Property{ID: "p-1"})
		require.NoError(t, err)

		alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
		require.NoError(t, s.UpsertUser(ctx, model.User{ID: alice, Karma: 10}))

		// Unknown property.
		_, err = s.SaveGuess(ctx, model.Guess{PropertyID: "nope", UserID: alice, Price: 1})
		assert.True(t, errors.Is(err, ErrNotFound))

		// Invalid price never reaches the table.
		_, err = s.SaveGuess(ctx, model.Guess{PropertyID: "p-1", UserID: alice, Price: -5})
		assert.True(t, errors.Is(err, ErrInvalidInput))

		first, err := s.SaveGuess(ctx, model.Guess{PropertyID: "p-1", UserID: alice, Price: 300000})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, first.ID)

		// bob is unknown and gets created with zero karma.
		_, err = s.SaveGuess(ctx, model.Guess{PropertyID: "p-1", UserID: bob, Price: 320000})
		require.NoError(t, err)
		u, err := s.GetUser(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, 0, u.Karma)

		_, err = s.SaveGuess(ctx, model.Guess{PropertyID: "p-1", UserID: carol, Price: 1, Meme: true})
		require.NoError(t, err)

		active, err := s.ActiveGuesses(ctx, "p-1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []fmv.WeightedGuess{
			{GuessedPrice: 300000, Karma: 10},
			{GuessedPrice: 320000, Karma: 0},
		}, active)

		n, err := s.CountGuesses(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		// Re-submitting replaces the guess and keeps its identity.
		second, err := s.SaveGuess(ctx, model.Guess{PropertyID: "p-1", UserID: alice, Price: 310000})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 310000.0, second.Price)

		// Karma is read at query time.
		require.NoError(t, s.UpsertUser(ctx, model.User{ID: alice, Karma: 20}))

		require.NoError(t, s.RetractGuess(ctx, "p-1", bob))
		assert.True(t, errors.Is(s.RetractGuess(ctx, "p-1", bob), ErrNotFound))
		assert.True(t, errors.Is(s.RetractGuess(ctx, "p-1", uuid.New()), ErrNotFound))

		active, err = s.ActiveGuesses(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, []fmv.WeightedGuess{{GuessedPrice: 310000, Karma: 20}}, active)

		// A new guess after retraction restores it.
		revived, err := s.SaveGuess(ctx, model.Guess{PropertyID: "p-1", UserID: bob, Price: 330000})
		require.NoError(t, err)
		assert.False(t, revived.Retracted)
		active, err = s.ActiveGuesses(ctx, "p-1")
		require.NoError(t, err)
		assert.Len(t, active, 2)

		n, err = s.CountGuesses(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("NoGuesses", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		_, err := s.UpsertProperty(ctx, model.Property{ID: "empty"})
		require.NoError(t, err)

		active, err := s.ActiveGuesses(ctx, "empty")
		require.NoError(t, err)
		assert.NotNil(t, active)
		assert.Empty(t, active)
	})
}
