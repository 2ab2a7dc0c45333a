// Package config provides configuration management for the paper timeline service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Corpus source kinds.
const (
	CorpusSourceManifest  = "manifest"
	CorpusSourcePostgres  = "postgres"
	CorpusSourcePostgREST = "postgrest"
)

// Like store backends.
const (
	LikeBackendNone      = "none"
	LikeBackendMemory    = "memory"
	LikeBackendPostgres  = "postgres"
	LikeBackendPostgREST = "postgrest"
	LikeBackendDynamoDB  = "dynamodb"
	LikeBackendSQLite    = "sqlite"
)

// Remote key columns.
const (
	KeyColumnID    = "id"
	KeyColumnTitle = "title"
)

// Config holds all configuration for the paper timeline service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Corpus contains document source settings.
	Corpus CorpusConfig `mapstructure:"corpus"`
	// Likes contains remote like counter settings.
	Likes LikesConfig `mapstructure:"likes"`
	// AWS contains settings shared by the S3 fetcher and the DynamoDB store.
	AWS AWSConfig `mapstructure:"aws"`
	// Kafka contains like event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// View contains presentation defaults.
	View ViewConfig `mapstructure:"view"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 10).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 1).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// CorpusConfig describes where documents come from.
type CorpusConfig struct {
	// Source is manifest, postgres or postgrest.
	Source string `mapstructure:"source"`
	// Manifest is the manifest location: an http(s) URL, an s3://bucket/key URL or a file path.
	Manifest string `mapstructure:"manifest"`
	// Table is the documents table for the postgres and postgrest sources.
	Table string `mapstructure:"table"`
	// LoadTimeout bounds a whole corpus load. Zero disables the bound.
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	// Concurrency caps parallel document fetches. Zero means unbounded.
	Concurrency int `mapstructure:"concurrency"`
	// HTTP contains client settings for remote manifests and documents.
	HTTP HTTPClientConfig `mapstructure:"http"`
}

// HTTPClientConfig holds outbound HTTP client settings.
type HTTPClientConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the rate limiter burst size.
	Burst int `mapstructure:"burst"`
	// MaxRetries is the number of retries on 429 and 5xx responses.
	MaxRetries int `mapstructure:"max_retries"`
}

// LikesConfig holds remote like counter settings.
type LikesConfig struct {
	// Backend is none, memory, postgres, postgrest, dynamodb or sqlite.
	Backend string `mapstructure:"backend"`
	// Table is the remote table name.
	Table string `mapstructure:"table"`
	// KeyColumn selects the remote key: id or title.
	KeyColumn string `mapstructure:"key_column"`
	// CountColumn is the name of the counter column (likes or count).
	CountColumn string `mapstructure:"count_column"`
	// FetchTimeout bounds the initial bulk read.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// WriteTimeout bounds each persisted like.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RollbackOnFailure undoes the optimistic increment when a write fails.
	RollbackOnFailure bool `mapstructure:"rollback_on_failure"`
	// AtomicIncrement uses a server-side increment when the backend supports it.
	AtomicIncrement bool `mapstructure:"atomic_increment"`
	// PostgREST contains settings for the hosted REST table backend.
	PostgREST PostgRESTConfig `mapstructure:"postgrest"`
	// SQLite contains settings for the embedded backend.
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// PostgRESTConfig holds settings for a PostgREST-compatible endpoint.
type PostgRESTConfig struct {
	// URL is the REST root, for example https://xyz.supabase.co/rest/v1.
	URL string `mapstructure:"url"`
	// APIKey is sent as apikey and bearer token (loaded from TIMELINE_LIKES_POSTGREST_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// HTTP contains client settings for the REST endpoint.
	HTTP HTTPClientConfig `mapstructure:"http"`
}

// SQLiteConfig holds settings for the embedded like store.
type SQLiteConfig struct {
	// Path is the database file.
	Path string `mapstructure:"path"`
}

// AWSConfig holds AWS session settings.
type AWSConfig struct {
	// Region is the AWS region.
	Region string `mapstructure:"region"`
	// Endpoint overrides the service endpoint (localstack and similar).
	Endpoint string `mapstructure:"endpoint"`
}

// KafkaConfig holds Kafka settings for like events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic like events are published to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// Consume applies like events published by peer instances.
	Consume bool `mapstructure:"consume"`
	// GroupID is the consumer group. Empty derives one per instance.
	GroupID string `mapstructure:"group_id"`
}

// ViewConfig holds presentation defaults.
type ViewConfig struct {
	// Locale drives period labels and keyword collation (en, zh-CN).
	Locale string `mapstructure:"locale"`
	// DefaultSort is the initial sort mode (date, keyword, likes).
	DefaultSort string `mapstructure:"default_sort"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// NeedsDatabase reports whether any configured component uses PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Corpus.Source == CorpusSourcePostgres || c.Likes.Backend == LikeBackendPostgres
}

// DatabaseTables lists the PostgreSQL tables the configured components read
// or write.
func (c *Config) DatabaseTables() []string {
	var tables []string
	if c.Corpus.Source == CorpusSourcePostgres {
		tables = append(tables, c.Corpus.Table)
	}
	if c.Likes.Backend == LikeBackendPostgres {
		tables = append(tables, c.Likes.Table)
	}
	return tables
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TIMELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-timeline")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Likes.PostgREST.APIKey = os.Getenv("TIMELINE_LIKES_POSTGREST_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "timeline")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paper_timeline")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "paper_timeline")

	// Corpus defaults
	v.SetDefault("corpus.source", CorpusSourceManifest)
	v.SetDefault("corpus.manifest", "papers_index.json")
	v.SetDefault("corpus.table", "papers")
	v.SetDefault("corpus.load_timeout", "60s")
	v.SetDefault("corpus.concurrency", 0)
	v.SetDefault("corpus.http.timeout", "30s")
	v.SetDefault("corpus.http.rate_limit", 20.0)
	v.SetDefault("corpus.http.burst", 20)
	v.SetDefault("corpus.http.max_retries", 2)

	// Like store defaults
	v.SetDefault("likes.backend", LikeBackendNone)
	v.SetDefault("likes.table", "paper_likes")
	v.SetDefault("likes.key_column", KeyColumnID)
	v.SetDefault("likes.count_column", "likes")
	v.SetDefault("likes.fetch_timeout", "15s")
	v.SetDefault("likes.write_timeout", "10s")
	v.SetDefault("likes.rollback_on_failure", false)
	v.SetDefault("likes.atomic_increment", false)
	v.SetDefault("likes.postgrest.url", "")
	v.SetDefault("likes.postgrest.http.timeout", "10s")
	v.SetDefault("likes.postgrest.http.rate_limit", 10.0)
	v.SetDefault("likes.postgrest.http.burst", 10)
	v.SetDefault("likes.postgrest.http.max_retries", 1)
	v.SetDefault("likes.sqlite.path", "likes.db")

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint", "")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.paper_timeline.likes")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.consume", true)
	v.SetDefault("kafka.group_id", "")

	// View defaults
	v.SetDefault("view.locale", "en")
	v.SetDefault("view.default_sort", "date")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.NeedsDatabase() {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Corpus.Source {
	case CorpusSourceManifest:
		if c.Corpus.Manifest == "" {
			return fmt.Errorf("corpus manifest is required for source %q", c.Corpus.Source)
		}
	case CorpusSourcePostgres:
		if c.Corpus.Table == "" {
			return fmt.Errorf("corpus table is required for source %q", c.Corpus.Source)
		}
	case CorpusSourcePostgREST:
		if c.Likes.PostgREST.URL == "" {
			return fmt.Errorf("likes.postgrest.url is required for corpus source %q", c.Corpus.Source)
		}
	default:
		return fmt.Errorf("invalid corpus source: %s", c.Corpus.Source)
	}
	if c.Corpus.Concurrency < 0 {
		return fmt.Errorf("corpus concurrency must not be negative")
	}

	switch c.Likes.Backend {
	case LikeBackendNone, LikeBackendMemory, LikeBackendPostgres, LikeBackendDynamoDB:
	case LikeBackendPostgREST:
		if c.Likes.PostgREST.URL == "" {
			return fmt.Errorf("likes.postgrest.url is required for backend %q", c.Likes.Backend)
		}
	case LikeBackendSQLite:
		if c.Likes.SQLite.Path == "" {
			return fmt.Errorf("likes.sqlite.path is required for backend %q", c.Likes.Backend)
		}
	default:
		return fmt.Errorf("invalid likes backend: %s", c.Likes.Backend)
	}
	if c.Likes.KeyColumn != KeyColumnID && c.Likes.KeyColumn != KeyColumnTitle {
		return fmt.Errorf("invalid likes key column: %s", c.Likes.KeyColumn)
	}
	if c.Likes.Table == "" || c.Likes.CountColumn == "" {
		return fmt.Errorf("likes table and count column are required")
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka brokers and topic are required when kafka is enabled")
	}

	switch c.View.Locale {
	case "en", "zh-CN":
	default:
		return fmt.Errorf("invalid view locale: %s", c.View.Locale)
	}
	switch c.View.DefaultSort {
	case "date", "keyword", "likes":
	default:
		return fmt.Errorf("invalid default sort: %s", c.View.DefaultSort)
	}

	return nil
}
