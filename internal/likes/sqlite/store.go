// Package sqlite stores like counters in a local SQLite file. It backs the
// CLI when no hosted table is available.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/likes"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements likes.Store and likes.Incrementer.
type Store struct {
	db    *sql.DB
	table string
	key   string
	count string
}

// Open opens (or creates) the database at path and ensures the table exists.
func Open(path, table, keyColumn, countColumn string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	s, err := New(db, table, keyColumn, countColumn)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Table and column names must be plain identifiers.
func New(db *sql.DB, table, keyColumn, countColumn string) (*Store, error) {
	if keyColumn == "" {
		keyColumn = "id"
	}
	if countColumn == "" {
		countColumn = "likes"
	}
	for field, name := range map[string]string{"table": table, "key_column": keyColumn, "count_column": countColumn} {
		if !identPattern.MatchString(name) {
			return nil, domain.NewValidationError(field, fmt.Sprintf("invalid identifier %q", name))
		}
	}
	return &Store{db: db, table: table, key: keyColumn, count: countColumn}, nil
}

// Init creates the table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	// The title column is only separate when rows are keyed by id.
	titleCol := ",\n  title TEXT NOT NULL DEFAULT ''"
	if s.key == "title" {
		titleCol = ""
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  %s TEXT PRIMARY KEY,
  %s INTEGER NOT NULL DEFAULT 0%s,
  created_at TEXT NOT NULL
)`, s.table, s.key, s.count, titleCol)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchAll implements likes.Store.
func (s *Store) FetchAll(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, %s FROM %s", s.key, s.count, s.table))
	if err != nil {
		return nil, fmt.Errorf("querying likes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scanning like: %w", err)
		}
		out[key] = count
	}
	return out, rows.Err()
}

// Get implements likes.Store.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", s.count, s.table, s.key), key).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NewNotFoundError("like", key)
	}
	if err != nil {
		return 0, fmt.Errorf("getting like %s: %w", key, err)
	}
	return count, nil
}

// Insert implements likes.Store.
func (s *Store) Insert(ctx context.Context, rec likes.Record) error {
	query, args := s.insertSQL(rec, "ON CONFLICT DO NOTHING")
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("inserting like %s: %w", rec.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting like %s: %w", rec.Key, err)
	}
	if n == 0 {
		return domain.NewAlreadyExistsError("like", rec.Key)
	}
	return nil
}

// Update implements likes.Store.
func (s *Store) Update(ctx context.Context, key string, count int64) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", s.table, s.count, s.key), count, key)
	if err != nil {
		return fmt.Errorf("updating like %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating like %s: %w", key, err)
	}
	if n == 0 {
		return domain.NewNotFoundError("like", key)
	}
	return nil
}

// Upsert implements likes.Store.
func (s *Store) Upsert(ctx context.Context, rec likes.Record) error {
	query, args := s.insertSQL(rec, fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s", s.key, s.count, s.count))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting like %s: %w", rec.Key, err)
	}
	return nil
}

// Increment implements likes.Incrementer.
func (s *Store) Increment(ctx context.Context, rec likes.Record, delta int64) (int64, error) {
	rec.Count = delta
	query, args := s.insertSQL(rec, fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s = %s.%s + excluded.%s RETURNING %s",
		s.key, s.count, s.table, s.count, s.count, s.count))

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("incrementing like %s: %w", rec.Key, err)
	}
	return count, nil
}

func (s *Store) insertSQL(rec likes.Record, conflict string) (string, []any) {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	createdAt := created.UTC().Format(time.RFC3339)

	if s.key == "title" {
		return fmt.Sprintf("INSERT INTO %s (%s, %s, created_at) VALUES (?, ?, ?) %s",
			s.table, s.key, s.count, conflict), []any{rec.Key, rec.Count, createdAt}
	}
	return fmt.Sprintf("INSERT INTO %s (%s, %s, title, created_at) VALUES (?, ?, ?, ?) %s",
		s.table, s.key, s.count, conflict), []any{rec.Key, rec.Count, rec.Title, createdAt}
}
