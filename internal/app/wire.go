package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/marginterm/internal/blob/s3"
	"github.com/alanyoungcy/marginterm/internal/cache/redis"
	"github.com/alanyoungcy/marginterm/internal/config"
	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/metrics"
	"github.com/alanyoungcy/marginterm/internal/notify"
	"github.com/alanyoungcy/marginterm/internal/server/handler"
	"github.com/alanyoungcy/marginterm/internal/store/postgres"
)

// Dependencies bundles every infrastructure-level dependency that the
// application modes need to operate. It is constructed by Wire and torn down
// by the returned cleanup function.
type Dependencies struct {
	// Stores (nil when Postgres is not wired)
	ActionStore domain.ActionStore
	AuditStore  domain.AuditStore

	// Caches
	PriceCache      domain.PriceCache
	BookCache       domain.OrderbookCache
	PreferenceStore domain.PreferenceStore
	RateLimiter     domain.RateLimiter
	LockManager     domain.LockManager
	SignalBus       domain.SignalBus

	// Blob storage (nil when S3 is not wired)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	Metrics *metrics.Metrics

	// Checks are the health probes of every wired backend.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- PostgreSQL ---
	if cfg.NeedsPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			ApplicationName: "marginterm-" + cfg.Mode,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "wire: applied migrations", slog.Any("migrations", applied))
			}
		}

		pool := pgClient.Pool()
		deps.ActionStore = postgres.NewActionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.BookCache = redis.NewOrderbookCache(redisClient)
	deps.PreferenceStore = redis.NewPreferenceStore(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	bus := redis.NewSignalBus(redisClient)
	deps.SignalBus = bus
	deps.Metrics.WatchBusDrops(bus.Dropped)
	deps.Checks["redis"] = redisClient.Ping

	// --- S3 blob storage ---
	if cfg.NeedsS3() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client, 0)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
		// The archiver needs the action history it moves out of Postgres.
		if deps.ActionStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.ActionStore, deps.AuditStore)
		}
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(senders(cfg.Notify), cfg.Notify.Outcomes, logger).
		AlwaysSender(notify.NewBusSender(deps.SignalBus))

	return deps, cleanup, nil
}

// senders builds the external notification channels that are configured.
func senders(cfg config.NotifyConfig) []notify.Sender {
	var out []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		out = append(out, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if cfg.WebhookURL != "" {
		out = append(out, notify.NewWebhookSender(cfg.WebhookURL, cfg.WebhookSecret))
	}
	return out
}
