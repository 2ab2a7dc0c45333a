// Package app assembles the timeline's components from configuration.
// The server and the command-line client share it.
package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-timeline/internal/config"
	"github.com/helixir/paper-timeline/internal/corpus"
	"github.com/helixir/paper-timeline/internal/database"
	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/events"
	"github.com/helixir/paper-timeline/internal/likes"
	"github.com/helixir/paper-timeline/internal/likes/dynamo"
	"github.com/helixir/paper-timeline/internal/likes/memory"
	"github.com/helixir/paper-timeline/internal/likes/postgrest"
	"github.com/helixir/paper-timeline/internal/likes/sqlite"
	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/observability"
	"github.com/helixir/paper-timeline/internal/repository"
	"github.com/helixir/paper-timeline/internal/timeline"
	"github.com/helixir/paper-timeline/internal/transport"
	"github.com/helixir/paper-timeline/internal/view"
)

// NewHTTPClient builds a rate-limited client from configured settings.
func NewHTTPClient(name string, cfg config.HTTPClientConfig, headers map[string]string) *transport.HTTPClient {
	return transport.NewHTTPClient(transport.HTTPClientConfig{
		Name:       name,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.Burst,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Second,
		Headers:    headers,
	})
}

// NewAWSSession creates the session shared by S3 and DynamoDB. A custom
// endpoint (LocalStack, MinIO) switches S3 to path-style addressing.
func NewAWSSession(cfg config.AWSConfig) (*session.Session, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}

// NewFetcher routes manifest and document locations by scheme: local
// paths to the file system, http(s) to client and s3 to the session.
func NewFetcher(client *transport.HTTPClient, sess *session.Session) *corpus.SchemeFetcher {
	httpFetcher := corpus.NewHTTPFetcher(client)
	schemes := map[string]corpus.Fetcher{
		"http":  httpFetcher,
		"https": httpFetcher,
	}
	if sess != nil {
		schemes["s3"] = corpus.NewS3FetcherWithClient(s3.New(sess))
	}
	return corpus.NewSchemeFetcher(corpus.NewFileFetcher(), schemes)
}

// NewManifestSource builds the manifest source of cfg.
func NewManifestSource(cfg *config.Config) (*corpus.ManifestSource, error) {
	var sess *session.Session
	if strings.HasPrefix(strings.ToLower(cfg.Corpus.Manifest), "s3://") {
		var err error
		if sess, err = NewAWSSession(cfg.AWS); err != nil {
			return nil, err
		}
	}
	fetcher := NewFetcher(NewHTTPClient("corpus", cfg.Corpus.HTTP, nil), sess)
	return corpus.NewManifestSource(fetcher, cfg.Corpus.Manifest, corpus.WithConcurrency(cfg.Corpus.Concurrency)), nil
}

// NewSource builds the configured corpus source wrapped in a Loader. db
// is required only by the postgres source.
func NewSource(cfg *config.Config, db *database.DB, metrics *observability.Metrics, logger zerolog.Logger) (corpus.Source, error) {
	var src corpus.Source
	switch cfg.Corpus.Source {
	case config.CorpusSourceManifest, "":
		ms, err := NewManifestSource(cfg)
		if err != nil {
			return nil, err
		}
		src = ms
	case config.CorpusSourcePostgres:
		if db == nil {
			return nil, domain.NewValidationError("corpus.source", "postgres source requires a database")
		}
		src = corpus.NewTableSource(repository.NewPgPaperRepository(db, cfg.Corpus.Table), cfg.Corpus.Table)
	case config.CorpusSourcePostgREST:
		client := NewHTTPClient("postgrest", cfg.Likes.PostgREST.HTTP, postgrestHeaders(cfg.Likes.PostgREST.APIKey))
		src = corpus.NewRESTTableSource(client, cfg.Likes.PostgREST.URL, cfg.Corpus.Table)
	default:
		return nil, domain.NewValidationError("corpus.source", fmt.Sprintf("unsupported source %q", cfg.Corpus.Source))
	}
	return corpus.NewLoader(src, cfg.Corpus.LoadTimeout, metrics, logger), nil
}

// NewStore builds the configured like store. The none backend returns a
// nil Store; the engine then reports every remote call as unconfigured.
// Stores holding resources implement io.Closer.
func NewStore(cfg *config.Config, db *database.DB, logger zerolog.Logger) (likes.Store, error) {
	lc := cfg.Likes
	log := observability.WithStoreContext(logger, lc.Backend, lc.Table)

	var store likes.Store
	switch lc.Backend {
	case config.LikeBackendNone, "":
		log.Warn().Msg("no like store configured; likes are kept in memory only and not persisted")
		return nil, nil
	case config.LikeBackendMemory:
		store = memory.New(nil)
	case config.LikeBackendPostgres:
		if db == nil {
			return nil, domain.NewValidationError("likes.backend", "postgres backend requires a database")
		}
		store = repository.NewPgLikeRepository(db, lc.Table, lc.KeyColumn, lc.CountColumn)
	case config.LikeBackendPostgREST:
		client := NewHTTPClient("postgrest", lc.PostgREST.HTTP, postgrestHeaders(lc.PostgREST.APIKey))
		store = postgrest.New(client, postgrest.Config{
			BaseURL:     lc.PostgREST.URL,
			Table:       lc.Table,
			KeyColumn:   lc.KeyColumn,
			CountColumn: lc.CountColumn,
		})
	case config.LikeBackendDynamoDB:
		sess, err := NewAWSSession(cfg.AWS)
		if err != nil {
			return nil, err
		}
		store = dynamo.New(sess, lc.Table, lc.KeyColumn, lc.CountColumn)
	case config.LikeBackendSQLite:
		s, err := sqlite.Open(lc.SQLite.Path, lc.Table, lc.KeyColumn, lc.CountColumn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite like store: %w", err)
		}
		store = s
	default:
		return nil, domain.NewValidationError("likes.backend", fmt.Sprintf("unsupported backend %q", lc.Backend))
	}

	log.Info().Str("key_column", lc.KeyColumn).Msg("like store configured")
	return store, nil
}

func postgrestHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{
		"apikey":        apiKey,
		"Authorization": "Bearer " + apiKey,
	}
}

// NewEngine builds the like engine over store.
func NewEngine(cfg *config.Config, store likes.Store, logger zerolog.Logger, options ...likes.EngineOption) (*likes.Engine, error) {
	schema, err := likes.ParseKeySchema(cfg.Likes.KeyColumn)
	if err != nil {
		return nil, err
	}
	return likes.NewEngine(store, likes.Options{
		Schema:            schema,
		FetchTimeout:      cfg.Likes.FetchTimeout,
		WriteTimeout:      cfg.Likes.WriteTimeout,
		RollbackOnFailure: cfg.Likes.RollbackOnFailure,
		AtomicIncrement:   cfg.Likes.AtomicIncrement,
	}, logger, options...), nil
}

// NewTimeline builds the application state from the view settings.
func NewTimeline(
	cfg *config.Config,
	source corpus.Source,
	engine *likes.Engine,
	renderer timeline.Renderer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*timeline.Timeline, error) {
	loc, ok := locale.Lookup(cfg.View.Locale)
	if !ok {
		return nil, domain.NewValidationError("view.locale", fmt.Sprintf("unsupported locale %q", cfg.View.Locale))
	}
	sort, err := view.ParseSortMode(cfg.View.DefaultSort)
	if err != nil {
		return nil, err
	}
	return timeline.New(source, engine, timeline.Options{
		Locale:      loc,
		DefaultSort: sort,
		Renderer:    renderer,
		Metrics:     metrics,
	}, logger), nil
}

// Origin identifies this process in like events: host name and pid.
func Origin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// EventsConfig translates the Kafka settings. Without a configured group
// each instance gets its own, so every instance sees every like.
func EventsConfig(cfg config.KafkaConfig, origin string) events.Config {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "paper-timeline-" + origin
	}
	return events.Config{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		GroupID:      groupID,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Origin:       origin,
	}
}
