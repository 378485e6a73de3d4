// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Scanner     ScannerConfig     `toml:"scanner"`
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Kraken      KrakenConfig      `toml:"kraken"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Archive     ArchiveConfig     `toml:"archive"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// ScannerConfig controls the scan loop and the opportunity threshold.
type ScannerConfig struct {
	VenueA                  string    `toml:"venue_a"`
	VenueB                  string    `toml:"venue_b"`
	QuoteCurrency           string    `toml:"quote_currency"`
	Symbols                 []string  `toml:"symbols"`
	NotionalTiers           []float64 `toml:"notional_tiers"`
	OpportunityThresholdPct float64   `toml:"opportunity_threshold_pct"`
	// ThresholdInclusive treats a spread equal to the threshold as actionable.
	ThresholdInclusive bool     `toml:"threshold_inclusive"`
	InterSymbolDelay   duration `toml:"inter_symbol_delay"`
	CycleInterval      duration `toml:"cycle_interval"`
	CycleBackoff       duration `toml:"cycle_backoff"`
	CallTimeout        duration `toml:"call_timeout"`
	ReconnectOnError   bool     `toml:"reconnect_on_error"`
	MaxAlertLength     int      `toml:"max_alert_length"`
	BucketLayout       string   `toml:"bucket_layout"`
	AlertOpportunities bool     `toml:"alert_opportunities"`
	CycleLockTTL       duration `toml:"cycle_lock_ttl"`
	MirrorBooks        bool     `toml:"mirror_books"`
}

// Tiers returns the notional tiers as decimals, in configured order.
func (s ScannerConfig) Tiers() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.NotionalTiers))
	for i, t := range s.NotionalTiers {
		out[i] = decimal.NewFromFloat(t)
	}
	return out
}

// Threshold returns the opportunity threshold in percent as a decimal.
func (s ScannerConfig) Threshold() decimal.Decimal {
	return decimal.NewFromFloat(s.OpportunityThresholdPct)
}

// HyperliquidConfig holds Hyperliquid API endpoints.
type HyperliquidConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// KrakenConfig holds Kraken API endpoints and depth parameters.
type KrakenConfig struct {
	BaseURL    string   `toml:"base_url"`
	DepthCount int      `toml:"depth_count"`
	Timeout    duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
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
	Prefix         string `toml:"prefix"`
}

// ArchiveConfig controls the Postgres → S3 cold archive job.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
	PruneAfter    bool   `toml:"prune_after"`
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
	Enabled            bool     `toml:"enabled"`
	Port               int      `toml:"port"`
	CORSOrigins        []string `toml:"cors_origins"`
	APIKey             string   `toml:"api_key"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Scanner: ScannerConfig{
			VenueA:                  "hyperliquid",
			VenueB:                  "kraken",
			QuoteCurrency:           "USD",
			NotionalTiers:           []float64{1000, 10000},
			OpportunityThresholdPct: 1.0,
			ThresholdInclusive:      false,
			InterSymbolDelay:        duration{time.Second},
			CycleInterval:           duration{0},
			CycleBackoff:            duration{20 * time.Second},
			CallTimeout:             duration{15 * time.Second},
			ReconnectOnError:        true,
			MaxAlertLength:          3900,
			BucketLayout:            "2006-01-02-15",
			AlertOpportunities:      true,
		},
		Hyperliquid: HyperliquidConfig{
			BaseURL: "https://api.hyperliquid.xyz",
			Timeout: duration{30 * time.Second},
		},
		Kraken: KrakenConfig{
			BaseURL:    "https://api.kraken.com",
			DepthCount: 100,
			Timeout:    duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscan-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{domain.EventOpportunity, domain.EventScanError, domain.EventReconnect},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":   true,
	"record": true,
	"full":   true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values. Every problem found
// is reported in a single *domain.ConfigurationError. knownVenues lists the
// venue names that can be built; nil skips that check.
func (c *Config) Validate(knownVenues ...string) error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, record, full, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	errs = append(errs, c.Scanner.validate(knownVenues)...)

	if c.Hyperliquid.BaseURL == "" {
		errs = append(errs, "hyperliquid: base_url must not be empty")
	}
	if c.Kraken.BaseURL == "" {
		errs = append(errs, "kraken: base_url must not be empty")
	}
	if c.Kraken.DepthCount < 0 {
		errs = append(errs, "kraken: depth_count must be >= 0")
	}

	// Persistence requirements per mode.
	if (mode == "record" || mode == "full") && !c.Postgres.Enabled && !c.S3.Enabled {
		errs = append(errs, "mode "+mode+" needs postgres.enabled or s3.enabled to persist snapshots")
	}
	if mode == "server" && !c.Postgres.Enabled {
		errs = append(errs, "mode server needs postgres.enabled")
	}

	if c.Postgres.Enabled {
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
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Scanner.CycleLockTTL.Duration > 0 && !c.Redis.Enabled {
		errs = append(errs, "scanner: cycle_lock_ttl needs redis.enabled")
	}
	if c.Scanner.MirrorBooks && !c.Redis.Enabled {
		errs = append(errs, "scanner: mirror_books needs redis.enabled")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Archive.Enabled {
		if !c.Postgres.Enabled || !c.S3.Enabled {
			errs = append(errs, "archive: needs both postgres.enabled and s3.enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron %q must have 5 fields", c.Archive.Cron))
		}
	}

	if (mode == "full" || mode == "server") && c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit_per_minute needs redis.enabled")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return &domain.ConfigurationError{Problems: errs}
	}
	return nil
}

func (s *ScannerConfig) validate(knownVenues []string) []string {
	var errs []string

	if s.VenueA == "" || s.VenueB == "" {
		errs = append(errs, "scanner: venue_a and venue_b must be set")
	} else if s.VenueA == s.VenueB {
		errs = append(errs, fmt.Sprintf("scanner: venue_a and venue_b must differ (both %q)", s.VenueA))
	}
	if knownVenues != nil {
		known := make(map[string]bool, len(knownVenues))
		for _, v := range knownVenues {
			known[v] = true
		}
		sorted := append([]string(nil), knownVenues...)
		sort.Strings(sorted)
		for _, v := range []string{s.VenueA, s.VenueB} {
			if v != "" && !known[v] {
				errs = append(errs, fmt.Sprintf("scanner: unknown venue %q (valid: %s)", v, strings.Join(sorted, ", ")))
			}
		}
	}
	if s.QuoteCurrency == "" {
		errs = append(errs, "scanner: quote_currency must not be empty")
	}

	if len(s.NotionalTiers) == 0 {
		errs = append(errs, "scanner: notional_tiers must not be empty")
	}
	for i, t := range s.NotionalTiers {
		if !finite(t) {
			errs = append(errs, fmt.Sprintf("scanner: notional_tiers[%d] must be finite, got %g", i, t))
			continue
		}
		if t <= 0 {
			errs = append(errs, fmt.Sprintf("scanner: notional_tiers[%d] must be > 0, got %g", i, t))
		}
		if i > 0 && t <= s.NotionalTiers[i-1] {
			errs = append(errs, "scanner: notional_tiers must be strictly increasing")
		}
	}
	if !finite(s.OpportunityThresholdPct) {
		errs = append(errs, fmt.Sprintf("scanner: opportunity_threshold_pct must be finite, got %g", s.OpportunityThresholdPct))
	} else if s.OpportunityThresholdPct < 0 {
		errs = append(errs, "scanner: opportunity_threshold_pct must be >= 0")
	}

	if s.InterSymbolDelay.Duration < 0 {
		errs = append(errs, "scanner: inter_symbol_delay must be >= 0")
	}
	if s.CycleInterval.Duration < 0 {
		errs = append(errs, "scanner: cycle_interval must be >= 0")
	}
	if s.CycleBackoff.Duration < 0 {
		errs = append(errs, "scanner: cycle_backoff must be >= 0")
	}
	if s.CallTimeout.Duration <= 0 {
		errs = append(errs, "scanner: call_timeout must be > 0")
	}
	if s.MaxAlertLength <= 0 {
		errs = append(errs, "scanner: max_alert_length must be > 0")
	}
	if s.BucketLayout == "" || time.Unix(0, 0).UTC().Format(s.BucketLayout) == s.BucketLayout {
		errs = append(errs, fmt.Sprintf("scanner: bucket_layout %q must be a time layout", s.BucketLayout))
	}
	return errs
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
