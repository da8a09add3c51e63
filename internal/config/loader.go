package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEDVM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEDVM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Relay ──
	setStringSlice(&cfg.Relay.URLs, "TRADEDVM_RELAY_URLS")
	setIntSlice(&cfg.Relay.Kinds, "TRADEDVM_RELAY_KINDS")
	setStringSlice(&cfg.Relay.Authors, "TRADEDVM_RELAY_AUTHORS")
	setInt(&cfg.Relay.SinceHours, "TRADEDVM_RELAY_SINCE_HOURS")
	setDuration(&cfg.Relay.PingInterval, "TRADEDVM_RELAY_PING_INTERVAL")
	setDuration(&cfg.Relay.MaxBackoff, "TRADEDVM_RELAY_MAX_BACKOFF")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEDVM_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADEDVM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEDVM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEDVM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEDVM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEDVM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEDVM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEDVM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEDVM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEDVM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEDVM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEDVM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEDVM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEDVM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEDVM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEDVM_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "TRADEDVM_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADEDVM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADEDVM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEDVM_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEDVM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEDVM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEDVM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEDVM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEDVM_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.KeyPrefix, "TRADEDVM_S3_KEY_PREFIX")
	setInt(&cfg.S3.MultipartThresholdMB, "TRADEDVM_S3_MULTIPART_THRESHOLD_MB")

	// ── NATS ──
	setBool(&cfg.NATS.Enabled, "TRADEDVM_NATS_ENABLED")
	setStr(&cfg.NATS.URL, "TRADEDVM_NATS_URL")
	setStr(&cfg.NATS.SubjectPrefix, "TRADEDVM_NATS_SUBJECT_PREFIX")
	setStr(&cfg.NATS.Name, "TRADEDVM_NATS_NAME")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.Workers, "TRADEDVM_PIPELINE_WORKERS")
	setInt(&cfg.Pipeline.BatchSize, "TRADEDVM_PIPELINE_BATCH_SIZE")
	setDuration(&cfg.Pipeline.FlushInterval, "TRADEDVM_PIPELINE_FLUSH_INTERVAL")
	setBool(&cfg.Pipeline.ArchiveEvents, "TRADEDVM_PIPELINE_ARCHIVE_EVENTS")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "TRADEDVM_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "TRADEDVM_PIPELINE_ARCHIVE_CRON")
	setInt(&cfg.Pipeline.EventRetentionDays, "TRADEDVM_PIPELINE_EVENT_RETENTION_DAYS")
	setDuration(&cfg.Pipeline.DedupTTL, "TRADEDVM_PIPELINE_DEDUP_TTL")

	// ── Codec ──
	setInt(&cfg.Codec.GeohashPrecision, "TRADEDVM_CODEC_GEOHASH_PRECISION")
	setInt(&cfg.Codec.DDMaxResolution, "TRADEDVM_CODEC_DD_MAX_RESOLUTION")
	setBool(&cfg.Codec.IncludeGeohash, "TRADEDVM_CODEC_INCLUDE_GEOHASH")
	setBool(&cfg.Codec.IncludeGPS, "TRADEDVM_CODEC_INCLUDE_GPS")
	setBool(&cfg.Codec.IncludeInventory, "TRADEDVM_CODEC_INCLUDE_INVENTORY")
	setBool(&cfg.Codec.IncludeAvailability, "TRADEDVM_CODEC_INCLUDE_AVAILABILITY")
	setBool(&cfg.Codec.IncludeDelivery, "TRADEDVM_CODEC_INCLUDE_DELIVERY")

	// ── Cache ──
	setInt(&cfg.Cache.LRUSize, "TRADEDVM_CACHE_LRU_SIZE")
	setDuration(&cfg.Cache.ListingTTL, "TRADEDVM_CACHE_LISTING_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEDVM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEDVM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEDVM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADEDVM_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitRPS, "TRADEDVM_SERVER_RATE_LIMIT_RPS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEDVM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEDVM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEDVM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEDVM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEDVM_MODE")
	setStr(&cfg.LogLevel, "TRADEDVM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setIntSlice(dst *[]int, key string) {
	if v := os.Getenv(key); v != "" {
		var out []int
		for _, p := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return
			}
			out = append(out, n)
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
