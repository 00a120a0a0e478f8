// Package history provides PostgreSQL-backed storage of completed matches.
// Each row captures who was paired with whom, the filters the pair agreed
// on, and when the match was formed. Writes come from the matcher's
// notifier path and are best-effort; reads serve profile/statistics
// queries.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store manages match history in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Record is a single completed match to be persisted.
type Record struct {
	MatchID    string
	UserA      string
	UserB      string
	Difficulty string
	Language   string
	Categories []string // shared categories at match time
	CreatedAt  time.Time
}

// Open connects to PostgreSQL, applies any pending migrations, and returns
// a ready Store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle without running migrations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("history: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("history: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("history: migrate up: %w", err)
	}
	return nil
}

// Record inserts a completed match.
func (s *Store) Record(ctx context.Context, rec *Record) error {
	const query = `
		INSERT INTO match_history (match_id, user_a, user_b, difficulty, language, categories, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		rec.MatchID,
		rec.UserA,
		rec.UserB,
		rec.Difficulty,
		rec.Language,
		pq.Array(rec.Categories),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// RecentForUser returns the user's most recent matches, newest first.
func (s *Store) RecentForUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	const query = `
		SELECT match_id, user_a, user_b, difficulty, language, categories, created_at
		FROM match_history
		WHERE user_a = $1 OR user_b = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.MatchID,
			&rec.UserA,
			&rec.UserB,
			&rec.Difficulty,
			&rec.Language,
			pq.Array(&rec.Categories),
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountForUser returns how many matches the user has completed.
func (s *Store) CountForUser(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM match_history
		WHERE user_a = $1 OR user_b = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return count, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
