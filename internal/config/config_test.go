package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

var venues = []string{"hyperliquid", "kraken"}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate(venues...))
	assert.Equal(t, []float64{1000, 10000}, cfg.Scanner.NotionalTiers)
	assert.Equal(t, 1.0, cfg.Scanner.OpportunityThresholdPct)
	assert.False(t, cfg.Scanner.ThresholdInclusive)
	assert.Equal(t, time.Second, cfg.Scanner.InterSymbolDelay.Duration)
	assert.Equal(t, 20*time.Second, cfg.Scanner.CycleBackoff.Duration)
	assert.Equal(t, 3900, cfg.Scanner.MaxAlertLength)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Scanner.NotionalTiers = []float64{1000, -5, 500}
	cfg.Scanner.OpportunityThresholdPct = -1
	cfg.Scanner.VenueB = "hyperliquid"
	cfg.Scanner.CallTimeout.Duration = 0
	cfg.Scanner.BucketLayout = "hourly"

	err := cfg.Validate(venues...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	var ce *domain.ConfigurationError
	require.True(t, errors.As(err, &ce))
	joined := strings.Join(ce.Problems, "\n")
	assert.Contains(t, joined, `unknown mode "trade"`)
	assert.Contains(t, joined, "notional_tiers[1] must be > 0")
	assert.Contains(t, joined, "strictly increasing")
	assert.Contains(t, joined, "opportunity_threshold_pct")
	assert.Contains(t, joined, "must differ")
	assert.Contains(t, joined, "call_timeout")
	assert.Contains(t, joined, "bucket_layout")
}

func TestValidateEmptyTiers(t *testing.T) {
	cfg := Defaults()
	cfg.Scanner.NotionalTiers = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notional_tiers must not be empty")
}

func TestValidateRejectsNonFiniteNumbers(t *testing.T) {
	cases := []struct {
		name      string
		tiers     []float64
		threshold float64
		want      string
	}{
		{"nan tier", []float64{math.NaN()}, 1, "notional_tiers[0] must be finite"},
		{"inf tier", []float64{1000, math.Inf(1)}, 1, "notional_tiers[1] must be finite"},
		{"nan threshold", []float64{1000}, math.NaN(), "opportunity_threshold_pct must be finite"},
		{"inf threshold", []float64{1000}, math.Inf(1), "opportunity_threshold_pct must be finite"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Scanner.NotionalTiers = tc.tiers
			cfg.Scanner.OpportunityThresholdPct = tc.threshold

			err := cfg.Validate(venues...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadRejectsNaNTierFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scanner]\nnotional_tiers = [nan]\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(venues...), domain.ErrConfiguration)
}

func TestValidateUnknownVenue(t *testing.T) {
	cfg := Defaults()
	cfg.Scanner.VenueB = "binance"
	err := cfg.Validate(venues...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown venue "binance"`)

	// Without a venue list the name is not checked.
	assert.NoError(t, cfg.Validate())
}

func TestValidateModeRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "record"
	err := cfg.Validate(venues...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.enabled or s3.enabled")

	cfg.S3.Enabled = true
	assert.NoError(t, cfg.Validate(venues...))

	cfg.Mode = "server"
	require.Error(t, cfg.Validate(venues...))
	cfg.Postgres.Enabled = true
	assert.NoError(t, cfg.Validate(venues...))

	cfg.Scanner.CycleLockTTL.Duration = time.Minute
	require.Error(t, cfg.Validate(venues...))
	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate(venues...))
}

func TestValidateTelegramPair(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "123:abc"
	require.Error(t, cfg.Validate(venues...))
	cfg.Notify.TelegramChatID = "42"
	assert.NoError(t, cfg.Validate(venues...))
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"
log_level = "debug"

[scanner]
notional_tiers = [500.0, 5000.0, 50000.0]
opportunity_threshold_pct = 0.75
threshold_inclusive = true
inter_symbol_delay = "250ms"
cycle_backoff = "45s"
symbols = ["btc", "eth"]

[postgres]
enabled = true

[s3]
enabled = true
bucket = "from-file"
`), 0o600))

	t.Setenv("ARBSCAN_S3_BUCKET", "from-env")
	t.Setenv("ARBSCAN_SCANNER_CYCLE_BACKOFF", "1m")
	t.Setenv("ARBSCAN_SCANNER_NOTIONAL_TIERS", "100, 200")
	t.Setenv("ARBSCAN_NOTIFY_TELEGRAM_TOKEN", "secret-token")
	t.Setenv("ARBSCAN_NOTIFY_TELEGRAM_CHAT_ID", "99")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(venues...))

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []float64{100, 200}, cfg.Scanner.NotionalTiers)
	assert.Equal(t, 0.75, cfg.Scanner.OpportunityThresholdPct)
	assert.True(t, cfg.Scanner.ThresholdInclusive)
	assert.Equal(t, 250*time.Millisecond, cfg.Scanner.InterSymbolDelay.Duration)
	assert.Equal(t, time.Minute, cfg.Scanner.CycleBackoff.Duration)
	assert.Equal(t, []string{"btc", "eth"}, cfg.Scanner.Symbols)
	assert.Equal(t, "from-env", cfg.S3.Bucket)
	// Untouched defaults survive the file merge.
	assert.Equal(t, "kraken", cfg.Scanner.VenueB)
	assert.Equal(t, 3900, cfg.Scanner.MaxAlertLength)

	red := RedactedConfig(cfg)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "secret-token", cfg.Notify.TelegramToken)
	red.Scanner.NotionalTiers[0] = 1
	assert.Equal(t, 100.0, cfg.Scanner.NotionalTiers[0])
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scanner]\ncycle_backoff = \"soon\"\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBadFloatSliceEnvIsIgnored(t *testing.T) {
	t.Setenv("ARBSCAN_SCANNER_NOTIONAL_TIERS", "100,abc")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 10000}, cfg.Scanner.NotionalTiers)
}

func TestScannerDecimals(t *testing.T) {
	s := Defaults().Scanner
	s.NotionalTiers = []float64{1000, 2500.5}
	s.OpportunityThresholdPct = 0.25

	tiers := s.Tiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, "1000", tiers[0].String())
	assert.Equal(t, "2500.5", tiers[1].String())
	assert.Equal(t, "0.25", s.Threshold().String())
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}
