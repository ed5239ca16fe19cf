package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS properties (
  id           TEXT PRIMARY KEY,
  address      TEXT NOT NULL DEFAULT '',
  woz_value    REAL,
  asking_price REAL,
  updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
  id     TEXT PRIMARY KEY,
  handle TEXT NOT NULL DEFAULT '',
  karma  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS guesses (
  id          TEXT PRIMARY KEY,
  property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
  user_id     TEXT NOT NULL REFERENCES users(id),
  price       REAL NOT NULL,
  meme        INTEGER NOT NULL DEFAULT 0,
  retracted   INTEGER NOT NULL DEFAULT 0,
  created_at  TIMESTAMP NOT NULL,
  updated_at  TIMESTAMP NOT NULL,
  UNIQUE (property_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_guesses_property ON guesses(property_id);
`

// SQLiteStore is the embedded Store backed by mattn/go-sqlite3.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Each connection to :memory: is its own database, and sqlite serialises
	// writers anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA foreign_keys=ON;`} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// EnsureSchema implements Store.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertProperty implements Store.
func (s *SQLiteStore) UpsertProperty(ctx context.Context, p model.Property) (model.Property, error) {
	defer observe("upsert_property", time.Now())

	if p.ID == "" {
		return model.Property{}, fmt.Errorf("%w: empty property id", ErrInvalidInput)
	}
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO properties (id, address, woz_value, asking_price, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   address = excluded.address,
		   woz_value = excluded.woz_value,
		   asking_price = excluded.asking_price,
		   updated_at = excluded.updated_at`,
		p.ID, p.Address, p.WOZValue, p.AskingPrice, p.UpdatedAt,
	)
	if err != nil {
		return model.Property{}, fmt.Errorf("upsert property %s: %w", p.ID, err)
	}
	return p, nil
}

// GetProperty implements Store.
func (s *SQLiteStore) GetProperty(ctx context.Context, id string) (model.Property, error) {
	defer observe("get_property", time.Now())

	var p model.Property
	err := s.db.QueryRowContext(ctx,
		`SELECT id, address, woz_value, asking_price, updated_at FROM properties WHERE id = ?`, id,
	).Scan(&p.ID, &p.Address, &p.WOZValue, &p.AskingPrice, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Property{}, fmt.Errorf("property %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Property{}, fmt.Errorf("get property %s: %w", id, err)
	}
	return p, nil
}

// ListPropertyIDs implements Store.
func (s *SQLiteStore) ListPropertyIDs(ctx context.Context) ([]string, error) {
	defer observe("list_properties", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM properties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan property id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertUser implements Store.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u model.User) error {
	defer observe("upsert_user", time.Now())

	if u.ID == uuid.Nil {
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, handle, karma) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET handle = excluded.handle, karma = excluded.karma`,
		u.ID, u.Handle, u.Karma,
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser implements Store.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	defer observe("get_user", time.Now())

	var u model.User
	err := s.db.QueryRowContext(ctx, `SELECT id, handle, karma FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Handle, &u.Karma)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// SaveGuess implements Store.
func (s *SQLiteStore) SaveGuess(ctx context.Context, g model.Guess) (model.Guess, error) {
	defer observe("save_guess", time.Now())

	if err := g.Validate(); err != nil {
		return model.Guess{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Guess{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM properties WHERE id = ?`, g.PropertyID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Guess{}, fmt.Errorf("property %s: %w", g.PropertyID, ErrNotFound)
	}
	if err != nil {
		return model.Guess{}, fmt.Errorf("check property %s: %w", g.PropertyID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, g.UserID); err != nil {
		return model.Guess{}, fmt.Errorf("ensure user %s: %w", g.UserID, err)
	}

	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO guesses (id, property_id, user_id, price, meme, retracted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (property_id, user_id) DO UPDATE SET
		   price = excluded.price,
		   meme = excluded.meme,
		   retracted = 0,
		   updated_at = excluded.updated_at`,
		g.ID, g.PropertyID, g.UserID, g.Price, g.Meme, now, now,
	); err != nil {
		return model.Guess{}, fmt.Errorf("save guess: %w", err)
	}

	saved := model.Guess{PropertyID: g.PropertyID, UserID: g.UserID}
	if err := tx.QueryRowContext(ctx,
		`SELECT id, price, meme, retracted, created_at, updated_at FROM guesses WHERE property_id = ? AND user_id = ?`,
		g.PropertyID, g.UserID,
	).Scan(&saved.ID, &saved.Price, &saved.Meme, &saved.Retracted, &saved.CreatedAt, &saved.UpdatedAt); err != nil {
		return model.Guess{}, fmt.Errorf("reload guess: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Guess{}, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// RetractGuess implements Store.
func (s *SQLiteStore) RetractGuess(ctx context.Context, propertyID string, userID uuid.UUID) error {
	defer observe("retract_guess", time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE guesses SET retracted = 1, updated_at = ?
		 WHERE property_id = ? AND user_id = ? AND retracted = 0`,
		time.Now().UTC(), propertyID, userID,
	)
	if err != nil {
		return fmt.Errorf("retract guess: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retract guess: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("guess by %s on %s: %w", userID, propertyID, ErrNotFound)
	}
	return nil
}

// ActiveGuesses implements Store.
func (s *SQLiteStore) ActiveGuesses(ctx context.Context, propertyID string) ([]fmv.WeightedGuess, error) {
	defer observe("active_guesses", time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT g.price, u.karma
		 FROM guesses g JOIN users u ON u.id = g.user_id
		 WHERE g.property_id = ? AND g.meme = 0 AND g.retracted = 0
		 ORDER BY g.created_at, g.id`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("active guesses %s: %w", propertyID, err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStore) CountGuesses(ctx context.Context, propertyID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM guesses WHERE property_id = ?`, propertyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count guesses %s: %w", propertyID, err)
	}
	return n, nil
}
