// Package memory provides an in-process like store for tests, demos and
// sessions without a remote table.
package memory

import (
	"context"
	"sync"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/likes"
)

// Store keeps rows in a map. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	rows map[string]likes.Record
}

// New creates a Store seeded with counts.
func New(seed map[string]int64) *Store {
	s := &Store{rows: make(map[string]likes.Record, len(seed))}
	for k, v := range seed {
		s.rows[k] = likes.Record{Key: k, Count: v}
	}
	return s
}

// FetchAll implements likes.Store.
func (s *Store) FetchAll(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.rows))
	for k, r := range s.rows {
		out[k] = r.Count
	}
	return out, nil
}

// Get implements likes.Store.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[key]
	if !ok {
		return 0, domain.NewNotFoundError("like", key)
	}
	return r.Count, nil
}

// Insert implements likes.Store.
func (s *Store) Insert(ctx context.Context, rec likes.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[rec.Key]; ok {
		return domain.NewAlreadyExistsError("like", rec.Key)
	}
	s.rows[rec.Key] = rec
	return nil
}

// Update implements likes.Store.
func (s *Store) Update(ctx context.Context, key string, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[key]
	if !ok {
		return domain.NewNotFoundError("like", key)
	}
	r.Count = count
	s.rows[key] = r
	return nil
}

// Upsert implements likes.Store.
func (s *Store) Upsert(ctx context.Context, rec likes.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rows[rec.Key]; ok {
		r.Count = rec.Count
		s.rows[rec.Key] = r
		return nil
	}
	s.rows[rec.Key] = rec
	return nil
}

// Increment implements likes.Incrementer.
func (s *Store) Increment(ctx context.Context, rec likes.Record, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[rec.Key]
	if !ok {
		r = rec
		r.Count = 0
	}
	r.Count += delta
	s.rows[rec.Key] = r
	return r.Count, nil
}

// Record returns the stored row for key.
func (s *Store) Record(key string) (likes.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[key]
	return r, ok
}
