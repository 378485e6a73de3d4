package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/arbitrage"
	s3blob "github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/blob/s3"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/cache/redis"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/config"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/metrics"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/notify"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/platform/hyperliquid"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/platform/kraken"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/scanner"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/server/handler"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/store/postgres"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/venue"
)

var _ scanner.CycleObserver = (*redis.OpportunityBus)(nil)

// Dependencies bundles every concrete dependency the modes need. Optional
// backends are nil when disabled in config. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	Venues  *venue.Registry
	Engine  *arbitrage.Engine
	Metrics *metrics.Metrics

	// Stores
	SnapshotStore *postgres.SnapshotStore
	AuditStore    domain.AuditStore

	// Caches
	SignalBus      domain.SignalBus
	OpportunityBus *redis.OpportunityBus
	BookMirror     domain.BookMirror
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager

	// Blob storage
	SnapshotAppender *s3blob.SnapshotAppender
	Archiver         domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks are probed by GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// NewVenueRegistry registers the supported venues, configured from cfg.
func NewVenueRegistry(cfg *config.Config) *venue.Registry {
	reg := venue.NewRegistry()
	reg.Register(hyperliquid.VenueName, func(context.Context) (domain.Venue, error) {
		return hyperliquid.NewClient(cfg.Hyperliquid.BaseURL, cfg.Hyperliquid.Timeout.Duration), nil
	})
	reg.Register(kraken.VenueName, func(context.Context) (domain.Venue, error) {
		return kraken.NewClient(kraken.Config{
			BaseURL:    cfg.Kraken.BaseURL,
			Quote:      cfg.Scanner.QuoteCurrency,
			DepthCount: cfg.Kraken.DepthCount,
			Timeout:    cfg.Kraken.Timeout.Duration,
		}), nil
	})
	return reg
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
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Venues: NewVenueRegistry(cfg),
		Engine: arbitrage.NewEngine(arbitrage.EngineConfig{
			Tiers:              cfg.Scanner.Tiers(),
			ThresholdPct:       cfg.Scanner.Threshold(),
			ThresholdInclusive: cfg.Scanner.ThresholdInclusive,
		}),
		Metrics:      metrics.New(),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Health
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.OpportunityBus = redis.NewOpportunityBus(deps.SignalBus)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		if cfg.Scanner.MirrorBooks {
			deps.BookMirror = redis.NewBookMirror(redisClient, bookMirrorTTL(cfg))
		}
		deps.HealthChecks["redis"] = redisClient.Ping
	}

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
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail("s3", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		reader := s3blob.NewReader(s3Client)
		writer := s3blob.NewWriter(s3Client)
		deps.SnapshotAppender = s3blob.NewSnapshotAppender(reader, writer, s3Client.Prefix(), logger)
		// The archive reads rows back out of Postgres.
		if deps.SnapshotStore != nil {
			deps.Archiver = s3blob.NewArchiver(reader, writer, deps.SnapshotStore, deps.AuditStore, s3Client.Prefix())
		}
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(buildSenders(cfg, logger), cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildSenders returns the configured chat senders, or the log sender when
// none is configured so alerts are never silently dropped.
func buildSenders(cfg *config.Config, logger *slog.Logger) []notify.Sender {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		senders = append(senders, notify.NewLogSender(logger))
	}
	return senders
}

// bookMirrorTTL keeps mirrored books for a few cycles' worth of pacing so a
// stalled scanner's books expire.
func bookMirrorTTL(cfg *config.Config) time.Duration {
	ttl := 10 * (cfg.Scanner.CycleBackoff.Duration + cfg.Scanner.CycleInterval.Duration)
	return max(ttl, 5*time.Minute)
}

// alertSink combines the notifier with the audit log when Postgres is on.
func (d *Dependencies) alertSink() domain.AlertSink {
	if d.AuditStore == nil {
		return d.Notifier
	}
	return notify.Fanout{d.Notifier, notify.NewAuditSink(d.AuditStore)}
}

// snapshotSinks returns the enabled persistence sinks. When persist is false
// only the live redis bus is included.
func (d *Dependencies) snapshotSinks(persist bool) []domain.SnapshotSink {
	var sinks []domain.SnapshotSink
	if persist {
		if d.SnapshotStore != nil {
			sinks = append(sinks, d.SnapshotStore)
		}
		if d.SnapshotAppender != nil {
			sinks = append(sinks, d.SnapshotAppender)
		}
	}
	if d.OpportunityBus != nil {
		sinks = append(sinks, d.OpportunityBus)
	}
	return sinks
}

// sinkNames lists sink names for logging.
func sinkNames(sinks []domain.SnapshotSink) string {
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}
