// Package config defines the top-level configuration for the trade DVM
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/tradedvm/internal/geo"
	"github.com/alanyoungcy/tradedvm/internal/listing"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/trade"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEDVM_* environment variables.
type Config struct {
	Relay    RelayConfig    `toml:"relay"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	NATS     NATSConfig     `toml:"nats"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Codec    CodecConfig    `toml:"codec"`
	Cache    CacheConfig    `toml:"cache"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// RelayConfig lists the relays to ingest from and the event kinds to request.
type RelayConfig struct {
	URLs         []string `toml:"urls"`
	Kinds        []int    `toml:"kinds"`
	Authors      []string `toml:"authors"`
	SinceHours   int      `toml:"since_hours"`
	PingInterval duration `toml:"ping_interval"`
	MaxBackoff   duration `toml:"max_backoff"`
}

// PostgresConfig holds database connection parameters.
type PostgresConfig struct {
	// DSN is a full connection string. When set, Host/Port/User/... are ignored.
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// KeyPrefix is prepended to every object key, e.g. "tradedvm/".
	KeyPrefix string `toml:"key_prefix"`
	// Event batches larger than this go through the multipart uploader.
	MultipartThresholdMB int `toml:"multipart_threshold_mb"`
}

// NATSConfig holds the broker used to publish validation outcomes.
type NATSConfig struct {
	Enabled       bool   `toml:"enabled"`
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
	Name          string `toml:"name"`
}

// PipelineConfig holds ingestion parameters.
type PipelineConfig struct {
	Workers              int      `toml:"workers"`
	BatchSize            int      `toml:"batch_size"`
	FlushInterval        duration `toml:"flush_interval"`
	ArchiveEvents        bool     `toml:"archive_events"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveCron          string   `toml:"archive_cron"`
	// EventRetentionDays bounds raw event batches in object storage; 0 keeps them.
	EventRetentionDays int      `toml:"event_retention_days"`
	DedupTTL           duration `toml:"dedup_ttl"`
}

// CodecConfig controls listing tag encoding.
type CodecConfig struct {
	GeohashPrecision    int  `toml:"geohash_precision"`
	DDMaxResolution     int  `toml:"dd_max_resolution"`
	IncludeGeohash      bool `toml:"include_geohash"`
	IncludeGPS          bool `toml:"include_gps"`
	IncludeInventory    bool `toml:"include_inventory"`
	IncludeAvailability bool `toml:"include_availability"`
	IncludeDelivery     bool `toml:"include_delivery"`
}

// TagOptions converts the codec section into encoder options.
func (c CodecConfig) TagOptions() listing.TagOptions {
	return listing.TagOptions{
		GeohashPrecision:    c.GeohashPrecision,
		DDMaxResolution:     c.DDMaxResolution,
		IncludeGeohash:      c.IncludeGeohash,
		IncludeGPS:          c.IncludeGPS,
		IncludeInventory:    c.IncludeInventory,
		IncludeAvailability: c.IncludeAvailability,
		IncludeDelivery:     c.IncludeDelivery,
	}
}

// CacheConfig sizes the in-process and Redis listing caches.
type CacheConfig struct {
	LRUSize    int      `toml:"lru_size"`
	ListingTTL duration `toml:"listing_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	APIKey       string   `toml:"api_key"`
	RateLimitRPS int      `toml:"rate_limit_rps"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	kinds := []int{nostr.KindListing}
	kinds = append(kinds, trade.TradeKinds[:]...)
	return Config{
		Relay: RelayConfig{
			URLs:         []string{"wss://relay.damus.io"},
			Kinds:        kinds,
			SinceHours:   24,
			PingInterval: duration{30 * time.Second},
			MaxBackoff:   duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradedvm",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "tradedvm",
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradedvm-events",
			ForcePathStyle: true,

			KeyPrefix:            "tradedvm/",
			MultipartThresholdMB: 16,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "tradedvm",
			Name:          "tradedvm",
		},
		Pipeline: PipelineConfig{
			Workers:              8,
			BatchSize:            500,
			FlushInterval:        duration{30 * time.Second},
			ArchiveEvents:        true,
			ArchiveRetentionDays: 30,
			ArchiveCron:          "0 3 * * *",
			EventRetentionDays:   90,
			DedupTTL:             duration{72 * time.Hour},
		},
		Codec: CodecConfig{
			GeohashPrecision: geo.DefaultGeohashPrecision,
			DDMaxResolution:  geo.DefaultDDMaxResolution,
			IncludeGeohash:   true,
			IncludeGPS:       true,
		},
		Cache: CacheConfig{
			LRUSize:    4096,
			ListingTTL: duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRPS: 20,
		},
		Notify: NotifyConfig{
			Events: []string{"listing_rejected", "archive_complete", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"ingest": true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: ingest, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Relay is only needed when ingesting.
	if c.Ingests() {
		if len(c.Relay.URLs) == 0 {
			errs = append(errs, "relay: at least one url is required for mode "+c.Mode)
		}
		for _, u := range c.Relay.URLs {
			if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
				errs = append(errs, fmt.Sprintf("relay: url %q must use ws:// or wss://", u))
			}
		}
		if len(c.Relay.Kinds) == 0 {
			errs = append(errs, "relay: kinds must not be empty")
		}
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.MultipartThresholdMB < 0 {
			errs = append(errs, "s3: multipart_threshold_mb must be >= 0")
		}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats: url must not be empty when enabled")
	}

	if c.Pipeline.Workers < 1 {
		errs = append(errs, "pipeline: workers must be >= 1")
	}
	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, "pipeline: batch_size must be >= 1")
	}
	if c.Pipeline.FlushInterval.Duration <= 0 {
		errs = append(errs, "pipeline: flush_interval must be > 0")
	}
	if c.Pipeline.EventRetentionDays < 0 {
		errs = append(errs, "pipeline: event_retention_days must be >= 0")
	}

	if c.Codec.GeohashPrecision < 1 || c.Codec.GeohashPrecision > geo.MaxGeohashPrecision {
		errs = append(errs, fmt.Sprintf("codec: geohash_precision must be 1-%d, got %d", geo.MaxGeohashPrecision, c.Codec.GeohashPrecision))
	}
	if c.Codec.DDMaxResolution < 0 {
		errs = append(errs, "codec: dd_max_resolution must be >= 0")
	}

	if c.Cache.LRUSize < 1 {
		errs = append(errs, "cache: lru_size must be >= 1")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Ingests reports whether the mode runs the relay pipeline.
func (c *Config) Ingests() bool {
	m := strings.ToLower(c.Mode)
	return m == "ingest" || m == "full"
}

// Serves reports whether the mode runs the HTTP API.
func (c *Config) Serves() bool {
	m := strings.ToLower(c.Mode)
	return (m == "server" || m == "full") && c.Server.Enabled
}
