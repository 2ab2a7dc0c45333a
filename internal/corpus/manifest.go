package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/helixir/paper-timeline/internal/domain"
)

// Fetcher retrieves the raw bytes at a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// ManifestSource loads a manifest listing document locations and then
// fetches every document concurrently behind a single barrier.
type ManifestSource struct {
	fetcher     Fetcher
	manifest    string
	concurrency int
}

// ManifestOption configures a ManifestSource.
type ManifestOption func(*ManifestSource)

// WithConcurrency caps the number of in-flight document fetches.
// Zero or negative leaves fetches unbounded.
func WithConcurrency(n int) ManifestOption {
	return func(s *ManifestSource) {
		s.concurrency = n
	}
}

// NewManifestSource creates a source for the manifest at location.
func NewManifestSource(fetcher Fetcher, manifest string, opts ...ManifestOption) *ManifestSource {
	s := &ManifestSource{fetcher: fetcher, manifest: manifest}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (s *ManifestSource) Name() string {
	return "manifest"
}

// Location returns the manifest location.
func (s *ManifestSource) Location() string {
	return s.manifest
}

// Load implements Source. The result keeps manifest order. The first
// failing document cancels the remaining fetches.
func (s *ManifestSource) Load(ctx context.Context) (domain.Corpus, error) {
	locations, err := s.locations(ctx)
	if err != nil {
		return nil, err
	}

	papers := make(domain.Corpus, len(locations))
	err = s.fetchAll(ctx, locations, func(i int, location string, body []byte) error {
		p, err := domain.DecodeDocument(location, body)
		if err != nil {
			return err
		}
		papers[i] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return papers, nil
}

// Documents fetches every document without keeping the decoded paper. Each
// body is still decoded once so that invalid documents fail the whole batch
// and the key is the resolved paper id.
func (s *ManifestSource) Documents(ctx context.Context) ([]StoredDocument, error) {
	locations, err := s.locations(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]StoredDocument, len(locations))
	err = s.fetchAll(ctx, locations, func(i int, location string, body []byte) error {
		p, err := domain.DecodeDocument(location, body)
		if err != nil {
			return err
		}
		docs[i] = StoredDocument{Key: p.ID.String(), Body: body}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *ManifestSource) locations(ctx context.Context) ([]string, error) {
	data, err := s.fetcher.Fetch(ctx, s.manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrManifestUnavailable, s.manifest, err)
	}

	entries, err := DecodeManifest(s.manifest, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrManifestUnavailable, s.manifest, err)
	}

	for i, e := range entries {
		entries[i] = ResolveLocation(s.manifest, e)
	}
	return entries, nil
}

func (s *ManifestSource) fetchAll(ctx context.Context, locations []string, fn func(i int, location string, body []byte) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}

	for i, loc := range locations {
		i, loc := i, loc
		g.Go(func() error {
			body, err := s.fetcher.Fetch(gctx, loc)
			if err != nil {
				return domain.NewDocumentError(loc, err)
			}
			return fn(i, loc, body)
		})
	}
	return g.Wait()
}

// DecodeManifest parses a manifest into document locations. Manifests named
// *.yaml or *.yml are read as a YAML list; anything else must be a JSON array
// of strings. Blank entries are skipped.
func DecodeManifest(location string, data []byte) ([]string, error) {
	var entries []string

	ext := strings.ToLower(path.Ext(stripQuery(location)))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode yaml manifest: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode json manifest: %w", err)
		}
	}

	out := entries[:0]
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// ResolveLocation resolves a manifest entry against the manifest location.
// Absolute URLs and absolute paths are returned unchanged; relative entries
// are resolved like a browser resolves a relative link.
func ResolveLocation(base, ref string) string {
	if r, err := url.Parse(ref); err == nil && r.IsAbs() {
		return ref
	}
	if b, err := url.Parse(base); err == nil && b.IsAbs() {
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return b.ResolveReference(r).String()
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(base), filepath.FromSlash(ref))
}

func stripQuery(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		return location[:i]
	}
	return location
}
