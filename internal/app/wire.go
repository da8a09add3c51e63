package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/tradedvm/internal/blob/s3"
	"github.com/alanyoungcy/tradedvm/internal/cache/redis"
	"github.com/alanyoungcy/tradedvm/internal/config"
	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/metrics"
	"github.com/alanyoungcy/tradedvm/internal/notify"
	"github.com/alanyoungcy/tradedvm/internal/server/handler"
	"github.com/alanyoungcy/tradedvm/internal/store/postgres"
)

// Dependencies bundles the concrete infrastructure every mode builds on. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Listings domain.ListingStore
	Rejects  domain.RejectStore
	Messages domain.TradeMessageStore
	Audit    domain.AuditStore

	// Caches
	ListingCache domain.ListingCache
	SeenSet      domain.SeenSet
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus

	// Blob storage; nil unless s3.enabled.
	Archiver     domain.Archiver
	EventArchive *s3blob.EventArchive

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Checks probes each backing service for the health endpoint.
	Checks map[string]handler.CheckFunc
}

// Wire connects to every configured backend and returns the dependencies
// with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.CheckFunc),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail("postgres migrations", err)
		}
	}

	pool := pgClient.Pool()
	rejects := postgres.NewRejectStore(pool)
	messages := postgres.NewTradeMessageStore(pool)
	deps.Listings = postgres.NewListingStore(pool)
	deps.Rejects = rejects
	deps.Messages = messages
	deps.Audit = postgres.NewAuditStore(pool)
	deps.Checks["postgres"] = pgClient.Health

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
		ClientName: "tradedvm-" + cfg.Mode,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.ListingCache = redis.NewListingCache(redisClient, cfg.Cache.ListingTTL.Duration)
	deps.SeenSet = redis.NewSeenSet(redisClient, cfg.Pipeline.DedupTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimitRPS, 0)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Checks["redis"] = redisClient.Ping

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			KeyPrefix:      cfg.S3.KeyPrefix,
		})
		if err != nil {
			return fail("s3", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(writer, rejects, messages, deps.Audit)
		deps.EventArchive = s3blob.NewEventArchive(writer, reader, int64(cfg.S3.MultipartThresholdMB)<<20)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.NATS.Enabled {
		nc, err := notify.ConnectNATS(cfg.NATS.URL, cfg.NATS.Name, logger)
		if err != nil {
			return fail("nats", err)
		}
		closers = append(closers, func() { _ = nc.Drain() })
		senders = append(senders, notify.NewNATSSender(nc, cfg.NATS.SubjectPrefix))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Bool("nats", cfg.NATS.Enabled),
		slog.Any("notify_senders", deps.Notifier.Senders()),
	)
	return deps, cleanup, nil
}
