package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/likes"
)

var _ LikeRepository = (*PgLikeRepository)(nil)

// PgLikeRepository is a PostgreSQL implementation of LikeRepository. The
// key column must carry a primary key or unique constraint.
type PgLikeRepository struct {
	db       DBTX
	table    string
	key      string
	count    string
	hasTitle bool
}

// NewPgLikeRepository creates a repository over table. Empty column names
// fall back to id and likes. A separate title column is written only when
// rows are keyed by id.
func NewPgLikeRepository(db DBTX, table, keyColumn, countColumn string) *PgLikeRepository {
	if table == "" {
		table = "paper_likes"
	}
	if keyColumn == "" {
		keyColumn = string(likes.KeyByID)
	}
	if countColumn == "" {
		countColumn = "likes"
	}
	return &PgLikeRepository{
		db:       db,
		table:    ident(table),
		key:      ident(keyColumn),
		count:    ident(countColumn),
		hasTitle: keyColumn != string(likes.KeyByTitle),
	}
}

// FetchAll returns every counter keyed by the key column.
func (r *PgLikeRepository) FetchAll(ctx context.Context) (map[string]int64, error) {
	query := fmt.Sprintf(`SELECT %s::text, COALESCE(%s, 0) FROM %s`, r.key, r.count, r.table)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch likes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating likes: %w", err)
	}

	return counts, nil
}

// Get returns the counter for key.
func (r *PgLikeRepository) Get(ctx context.Context, key string) (int64, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, r.count, r.table, r.key)

	var count int64
	err := r.db.QueryRow(ctx, query, key).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.NewNotFoundError("like", key)
		}
		return 0, fmt.Errorf("failed to get like %s: %w", key, err)
	}
	return count, nil
}

// Insert creates a row. An existing key is reported as domain.ErrAlreadyExists.
func (r *PgLikeRepository) Insert(ctx context.Context, rec likes.Record) error {
	query, args := r.insertSQL(rec, fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", r.key))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("like", rec.Key)
		}
		return fmt.Errorf("failed to insert like %s: %w", rec.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewAlreadyExistsError("like", rec.Key)
	}
	return nil
}

// Update sets the counter of an existing row.
func (r *PgLikeRepository) Update(ctx context.Context, key string, count int64) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE %s = $1`, r.table, r.count, r.key)

	tag, err := r.db.Exec(ctx, query, key, count)
	if err != nil {
		return fmt.Errorf("failed to update like %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("like", key)
	}
	return nil
}

// Upsert inserts rec or overwrites the counter of the existing row.
func (r *PgLikeRepository) Upsert(ctx context.Context, rec likes.Record) error {
	query, args := r.insertSQL(rec, fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s",
		r.key, r.count, r.count))

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert like %s: %w", rec.Key, err)
	}
	return nil
}

// Increment adds delta to the counter in one statement and returns the
// stored value. A missing row is created with delta as its count.
func (r *PgLikeRepository) Increment(ctx context.Context, rec likes.Record, delta int64) (int64, error) {
	rec.Count = delta
	query, args := r.insertSQL(rec, fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s = %s.%s + EXCLUDED.%s RETURNING %s",
		r.key, r.count, r.table, r.count, r.count, r.count))

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment like %s: %w", rec.Key, err)
	}
	return count, nil
}

func (r *PgLikeRepository) insertSQL(rec likes.Record, conflict string) (string, []interface{}) {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	if !r.hasTitle {
		return fmt.Sprintf(`INSERT INTO %s (%s, %s, created_at) VALUES ($1, $2, $3) %s`,
			r.table, r.key, r.count, conflict), []interface{}{rec.Key, rec.Count, created}
	}
	return fmt.Sprintf(`INSERT INTO %s (%s, title, %s, created_at) VALUES ($1, $2, $3, $4) %s`,
			r.table, r.key, r.count, conflict),
		[]interface{}{rec.Key, rec.Title, rec.Count, created}
}
