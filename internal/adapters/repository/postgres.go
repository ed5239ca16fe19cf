package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS properties (
	   id           TEXT PRIMARY KEY,
	   address      TEXT NOT NULL DEFAULT '',
	   woz_value    DOUBLE PRECISION,
	   asking_price DOUBLE PRECISION,
	   updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	 )`,
	`CREATE TABLE IF NOT EXISTS users (
	   id     UUID PRIMARY KEY,
	   handle TEXT NOT NULL DEFAULT '',
	   karma  INTEGER NOT NULL DEFAULT 0
	 )`,
	`CREATE TABLE IF NOT EXISTS guesses (
	   id          UUID PRIMARY KEY,
	   property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	   user_id     UUID NOT NULL REFERENCES users(id),
	   price       DOUBLE PRECISION NOT NULL,
	   meme        BOOLEAN NOT NULL DEFAULT FALSE,
	   retracted   BOOLEAN NOT NULL DEFAULT FALSE,
	   created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	   updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	   UNIQUE (property_id, user_id)
	 )`,
	`CREATE INDEX IF NOT EXISTS idx_guesses_property ON guesses(property_id)`,
}

// PostgresStore is the Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool and verifies it.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// EnsureSchema implements Store.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertProperty implements Store.
func (s *PostgresStore) UpsertProperty(ctx context.Context, p model.Property) (model.Property, error) {
	defer observe("upsert_property", time.Now())

	if p.ID == "" {
		return model.Property{}, fmt.Errorf("%w: empty property id", ErrInvalidInput)
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO properties (id, address, woz_value, asking_price, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   address = EXCLUDED.address,
		   woz_value = EXCLUDED.woz_value,
		   asking_price = EXCLUDED.asking_price,
		   updated_at = NOW()
		 RETURNING updated_at`,
		p.ID, p.Address, p.WOZValue, p.AskingPrice,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return model.Property{}, fmt.Errorf("upsert property %s: %w", p.ID, err)
	}
	return p, nil
}

// GetProperty implements Store.
func (s *PostgresStore) GetProperty(ctx context.Context, id string) (model.Property, error) {
	defer observe("get_property", time.Now())

	var p model.Property
	err := s.pool.QueryRow(ctx,
		`SELECT id, address, woz_value, asking_price, updated_at FROM properties WHERE id = $1`, id,
	).Scan(&p.ID, &p.Address, &p.WOZValue, &p.AskingPrice, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Property{}, fmt.Errorf("property %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Property{}, fmt.Errorf("get property %s: %w", id, err)
	}
	return p, nil
}

// ListPropertyIDs implements Store.
func (s *PostgresStore) ListPropertyIDs(ctx context.Context) ([]string, error) {
	defer observe("list_properties", time.Now())

	rows, err := s.pool.Query(ctx, `SELECT id FROM properties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return ids, nil
}

// UpsertUser implements Store.
func (s *PostgresStore) UpsertUser(ctx context.Context, u model.User) error {
	defer observe("upsert_user", time.Now())

	if u.ID == uuid.Nil {
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, handle, karma) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET handle = EXCLUDED.handle, karma = EXCLUDED.karma`,
		u.ID, u.Handle, u.Karma,
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser implements Store.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	defer observe("get_user", time.Now())

	var u model.User
	err := s.pool.QueryRow(ctx, `SELECT id, handle, karma FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Handle, &u.Karma)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// SaveGuess implements Store.
func (s *PostgresStore) SaveGuess(ctx context.Context, g model.Guess) (model.Guess, error) {
	defer observe("save_guess", time.Now())

	if err := g.Validate(); err != nil {
		return model.Guess{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Guess{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM properties WHERE id = $1`, g.PropertyID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Guess{}, fmt.Errorf("property %s: %w", g.PropertyID, ErrNotFound)
	}
	if err != nil {
		return model.Guess{}, fmt.Errorf("check property %s: %w", g.PropertyID, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, g.UserID); err != nil {
		return model.Guess{}, fmt.Errorf("ensure user %s: %w", g.UserID, err)
	}

	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	saved := model.Guess{PropertyID: g.PropertyID, UserID: g.UserID}
	err = tx.QueryRow(ctx,
		`INSERT INTO guesses (id, property_id, user_id, price, meme, retracted)
		 VALUES ($1, $2, $3, $4, $5, FALSE)
		 ON CONFLICT (property_id, user_id) DO UPDATE SET
		   price = EXCLUDED.price,
		   meme = EXCLUDED.meme,
		   retracted = FALSE,
		   updated_at = NOW()
		 RETURNING id, price, meme, retracted, created_at, updated_at`,
		g.ID, g.PropertyID, g.UserID, g.Price, g.Meme,
	).Scan(&saved.ID, &saved.Price, &saved.Meme, &saved.Retracted, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return model.Guess{}, fmt.Errorf("save guess: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Guess{}, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// RetractGuess implements Store.
func (s *PostgresStore) RetractGuess(ctx context.Context, propertyID string, userID uuid.UUID) error {
	defer observe("retract_guess", time.Now())

	tag, err := s.pool.Exec(ctx,
		`UPDATE guesses SET retracted = TRUE, updated_at = NOW()
		 WHERE property_id = $1 AND user_id = $2 AND NOT retracted`,
		propertyID, userID,
	)
	if err != nil {
		return fmt.Errorf("retract guess: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("guess by %s on %s: %w", userID, propertyID, ErrNotFound)
	}
	return nil
}

// ActiveGuesses implements Store.
func (s *PostgresStore) ActiveGuesses(ctx context.Context, propertyID string) ([]fmv.WeightedGuess, error) {
	defer observe("active_guesses", time.Now())

	rows, err := s.pool.Query(ctx,
		`SELECT g.price, u.karma
		 FROM guesses g JOIN users u ON u.id = g.user_id
		 WHERE g.property_id = $1 AND NOT g.meme AND NOT g.retracted
		 ORDER BY g.created_at, g.id`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("active guesses %s: %w", propertyID, err)
	}
	defer rows.Close()

	out := []fmv.WeightedGuess{}
	for rows.Next() {
		var wg fmv.WeightedGuess
		if err := rows.Scan(&wg.GuessedPrice, &wg.Karma); err != nil {
			return nil, fmt.Errorf("scan guess: %w", err)
		}
		out = append(out, wg)
	}
	return out, rows.Err()
}

// CountGuesses implements Store.
func (s *PostgresStore) CountGuesses(ctx context.Context, propertyID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM guesses WHERE property_id = $1`, propertyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count guesses %s: %w", propertyID, err)
	}
	return n, nil
}

// Truncate removes all rows. Intended for tests.
func (s *PostgresStore) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE guesses, users, properties`)
	return err
}
