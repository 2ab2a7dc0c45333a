// Package postgrest stores like counters in a table exposed over a
// PostgREST-compatible REST API, such as a hosted Supabase project.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/likes"
	"github.com/helixir/paper-timeline/internal/transport"
)

// Config describes the remote table.
type Config struct {
	// BaseURL is the REST root, e.g. https://project.supabase.co/rest/v1.
	BaseURL     string
	Table       string
	KeyColumn   string
	CountColumn string
	// TitleColumn is written on insert when it differs from KeyColumn.
	TitleColumn string
}

// Store implements likes.Store over PostgREST.
type Store struct {
	client *transport.HTTPClient
	cfg    Config
}

// New creates a Store. Authentication headers (apikey, Authorization) are
// expected on the client configuration.
func New(client *transport.HTTPClient, cfg Config) *Store {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Table == "" {
		cfg.Table = "likes"
	}
	if cfg.KeyColumn == "" {
		cfg.KeyColumn = "id"
	}
	if cfg.CountColumn == "" {
		cfg.CountColumn = "likes"
	}
	if cfg.TitleColumn == "" {
		cfg.TitleColumn = "title"
	}
	return &Store{client: client, cfg: cfg}
}

func (s *Store) endpoint(q url.Values) string {
	u := s.cfg.BaseURL + "/" + url.PathEscape(s.cfg.Table)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// keyValue keeps integer ids numeric so int8 key columns accept them.
func (s *Store) keyValue(key string) any {
	if s.cfg.KeyColumn == "id" {
		if n, err := strconv.ParseInt(key, 10, 64); err == nil {
			return n
		}
	}
	return key
}

// FetchAll implements likes.Store.
func (s *Store) FetchAll(ctx context.Context) (map[string]int64, error) {
	q := url.Values{}
	q.Set("select", s.cfg.KeyColumn+","+s.cfg.CountColumn)

	body, err := s.client.Get(ctx, s.endpoint(q))
	if err != nil {
		return nil, err
	}
	rows, err := s.decodeRows(body)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.key] = r.count
	}
	return out, nil
}

// Get implements likes.Store.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	q := url.Values{}
	q.Set("select", s.cfg.KeyColumn+","+s.cfg.CountColumn)
	q.Set(s.cfg.KeyColumn, "eq."+key)
	q.Set("limit", "1")

	body, err := s.client.Get(ctx, s.endpoint(q))
	if err != nil {
		return 0, err
	}
	rows, err := s.decodeRows(body)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, domain.NewNotFoundError("like", key)
	}
	return rows[0].count, nil
}

// Insert implements likes.Store.
func (s *Store) Insert(ctx context.Context, rec likes.Record) error {
	resp, err := s.send(ctx, http.MethodPost, s.endpoint(nil), s.row(rec), "return=minimal")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return domain.NewAlreadyExistsError("like", rec.Key)
	}
	_, err = transport.ReadBody("postgrest", resp)
	return err
}

// Update implements likes.Store.
func (s *Store) Update(ctx context.Context, key string, count int64) error {
	q := url.Values{}
	q.Set(s.cfg.KeyColumn, "eq."+key)
	q.Set("select", s.cfg.KeyColumn)

	resp, err := s.send(ctx, http.MethodPatch, s.endpoint(q), map[string]any{s.cfg.CountColumn: count}, "return=representation")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := transport.ReadBody("postgrest", resp)
	if err != nil {
		return err
	}
	var updated []json.RawMessage
	if err := json.Unmarshal(body, &updated); err != nil {
		return fmt.Errorf("decode update response: %w", err)
	}
	if len(updated) == 0 {
		return domain.NewNotFoundError("like", key)
	}
	return nil
}

// Upsert implements likes.Store.
func (s *Store) Upsert(ctx context.Context, rec likes.Record) error {
	q := url.Values{}
	q.Set("on_conflict", s.cfg.KeyColumn)

	resp, err := s.send(ctx, http.MethodPost, s.endpoint(q), s.row(rec), "resolution=merge-duplicates,return=minimal")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = transport.ReadBody("postgrest", resp)
	return err
}

func (s *Store) row(rec likes.Record) map[string]any {
	row := map[string]any{
		s.cfg.KeyColumn:   s.keyValue(rec.Key),
		s.cfg.CountColumn: rec.Count,
	}
	if s.cfg.TitleColumn != s.cfg.KeyColumn {
		row[s.cfg.TitleColumn] = rec.Title
	}
	if !rec.CreatedAt.IsZero() {
		row["created_at"] = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	return row
}

func (s *Store) send(ctx context.Context, method, endpoint string, payload any, prefer string) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", prefer)
	return s.client.Do(req)
}

type countRow struct {
	key   string
	count int64
}

func (s *Store) decodeRows(body []byte) ([]countRow, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}

	rows := make([]countRow, 0, len(raw))
	for _, r := range raw {
		key, ok := r[s.cfg.KeyColumn]
		if !ok {
			continue
		}
		var count int64
		if c, ok := r[s.cfg.CountColumn]; ok && string(c) != "null" {
			if err := json.Unmarshal(c, &count); err != nil {
				return nil, fmt.Errorf("decode %s: %w", s.cfg.CountColumn, err)
			}
		}
		rows = append(rows, countRow{key: rawKey(key), count: count})
	}
	return rows, nil
}

// rawKey renders a JSON scalar as the string form used for remote keys.
func rawKey(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}
