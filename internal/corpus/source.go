// Package corpus loads the paper collection for a session.
//
// Every source implements the same contract: Load returns the full corpus in
// source order or fails as a whole. There is no partial-success mode; a
// manifest that cannot be read fails with domain.ErrManifestUnavailable and
// any single document that cannot be fetched or decoded fails the batch with
// domain.ErrDocumentUnavailable.
//
// Example usage:
//
//	fetcher := corpus.NewSchemeFetcher(corpus.NewFileFetcher(), map[string]corpus.Fetcher{
//		"https": corpus.NewHTTPFetcher(httpClient),
//	})
//	src := corpus.NewManifestSource(fetcher, "https://example.org/papers_index.json")
//	loader := corpus.NewLoader(src, time.Minute, metrics, logger)
//	papers, err := loader.Load(ctx)
package corpus

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/observability"
)

// Source produces a corpus.
type Source interface {
	// Load retrieves every document. It never returns a partial corpus.
	Load(ctx context.Context) (domain.Corpus, error)

	// Name identifies the source kind for logs and metrics.
	Name() string
}

// Loader wraps a Source with a bounded timeout, logging and metrics.
type Loader struct {
	source  Source
	timeout time.Duration
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewLoader creates a Loader. A zero timeout leaves the load unbounded.
func NewLoader(source Source, timeout time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *Loader {
	var location string
	if l, ok := source.(interface{ Location() string }); ok {
		location = l.Location()
	}
	return &Loader{
		source:  source,
		timeout: timeout,
		metrics: metrics,
		logger:  observability.WithLoadContext(observability.WithComponent(logger, "corpus"), source.Name(), location),
	}
}

// Load runs the wrapped source.
func (l *Loader) Load(ctx context.Context) (domain.Corpus, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	papers, err := l.source.Load(ctx)
	elapsed := time.Since(start)
	l.metrics.RecordCorpusLoad(l.source.Name(), len(papers), elapsed.Seconds(), err)

	if err != nil {
		l.logger.Error().
			Err(err).
			Str("error_kind", domain.ErrorKind(err)).
			Dur("elapsed", elapsed).
			Msg("corpus load failed")
		return nil, err
	}

	l.logger.Info().
		Int("documents", len(papers)).
		Dur("elapsed", elapsed).
		Msg("corpus loaded")
	return papers, nil
}

// Name reports the wrapped source's name.
func (l *Loader) Name() string {
	return l.source.Name()
}
