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
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Scanner ──
	setStr(&cfg.Scanner.VenueA, "ARBSCAN_SCANNER_VENUE_A")
	setStr(&cfg.Scanner.VenueB, "ARBSCAN_SCANNER_VENUE_B")
	setStr(&cfg.Scanner.QuoteCurrency, "ARBSCAN_SCANNER_QUOTE_CURRENCY")
	setStringSlice(&cfg.Scanner.Symbols, "ARBSCAN_SCANNER_SYMBOLS")
	setFloat64Slice(&cfg.Scanner.NotionalTiers, "ARBSCAN_SCANNER_NOTIONAL_TIERS")
	setFloat64(&cfg.Scanner.OpportunityThresholdPct, "ARBSCAN_SCANNER_OPPORTUNITY_THRESHOLD_PCT")
	setBool(&cfg.Scanner.ThresholdInclusive, "ARBSCAN_SCANNER_THRESHOLD_INCLUSIVE")
	setDuration(&cfg.Scanner.InterSymbolDelay, "ARBSCAN_SCANNER_INTER_SYMBOL_DELAY")
	setDuration(&cfg.Scanner.CycleInterval, "ARBSCAN_SCANNER_CYCLE_INTERVAL")
	setDuration(&cfg.Scanner.CycleBackoff, "ARBSCAN_SCANNER_CYCLE_BACKOFF")
	setDuration(&cfg.Scanner.CallTimeout, "ARBSCAN_SCANNER_CALL_TIMEOUT")
	setBool(&cfg.Scanner.ReconnectOnError, "ARBSCAN_SCANNER_RECONNECT_ON_ERROR")
	setInt(&cfg.Scanner.MaxAlertLength, "ARBSCAN_SCANNER_MAX_ALERT_LENGTH")
	setStr(&cfg.Scanner.BucketLayout, "ARBSCAN_SCANNER_BUCKET_LAYOUT")
	setBool(&cfg.Scanner.AlertOpportunities, "ARBSCAN_SCANNER_ALERT_OPPORTUNITIES")
	setDuration(&cfg.Scanner.CycleLockTTL, "ARBSCAN_SCANNER_CYCLE_LOCK_TTL")
	setBool(&cfg.Scanner.MirrorBooks, "ARBSCAN_SCANNER_MIRROR_BOOKS")

	// ── Venues ──
	setStr(&cfg.Hyperliquid.BaseURL, "ARBSCAN_HYPERLIQUID_BASE_URL")
	setDuration(&cfg.Hyperliquid.Timeout, "ARBSCAN_HYPERLIQUID_TIMEOUT")
	setStr(&cfg.Kraken.BaseURL, "ARBSCAN_KRAKEN_BASE_URL")
	setInt(&cfg.Kraken.DepthCount, "ARBSCAN_KRAKEN_DEPTH_COUNT")
	setDuration(&cfg.Kraken.Timeout, "ARBSCAN_KRAKEN_TIMEOUT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBSCAN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBSCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBSCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCAN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBSCAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBSCAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBSCAN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSCAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBSCAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCAN_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "ARBSCAN_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBSCAN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBSCAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCAN_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "ARBSCAN_S3_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARBSCAN_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ARBSCAN_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "ARBSCAN_ARCHIVE_CRON")
	setBool(&cfg.Archive.PruneAfter, "ARBSCAN_ARCHIVE_PRUNE_AFTER")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCAN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCAN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBSCAN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "ARBSCAN_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_TOKEN") // compatibility alias
	setStr(&cfg.Notify.TelegramChatID, "ARBSCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID") // compatibility alias
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBSCAN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCAN_MODE")
	setStr(&cfg.LogLevel, "ARBSCAN_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
	if cleaned := splitList(os.Getenv(key)); len(cleaned) > 0 {
		*dst = cleaned
	}
}

// setFloat64Slice replaces dst only if every element parses.
func setFloat64Slice(dst *[]float64, key string) {
	parts := splitList(os.Getenv(key))
	if len(parts) == 0 {
		return
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return
		}
		out = append(out, f)
	}
	*dst = out
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}
