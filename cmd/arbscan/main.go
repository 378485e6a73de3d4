// Command arbscan compares Hyperliquid and Kraken order books and reports
// price dislocations. It loads configuration, validates it, wires
// dependencies, sets up signal handling, and runs the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/app"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty for defaults + env)")
	mode := flag.String("mode", "", "override the configured mode (scan, record, full, server)")
	printConfig := flag.Bool("print-config", false, "print the effective configuration with secrets redacted and exit")
	flag.Parse()

	logger := newLogger("info")
	slog.SetDefault(logger)

	path := *configPath
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !flagSet("config") {
			// The default file is optional; env vars can carry everything.
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if *printConfig {
		if err := toml.NewEncoder(os.Stdout).Encode(config.RedactedConfig(cfg)); err != nil {
			logger.Error("failed to print config", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	venues := app.NewVenueRegistry(cfg).List()
	if err := cfg.Validate(venues...); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("arbscan starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", path),
		slog.Any("notional_tiers", cfg.Scanner.NotionalTiers),
		slog.Float64("threshold_pct", cfg.Scanner.OpportunityThresholdPct),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		application.Close()
		os.Exit(1)
	}

	logger.Info("arbscan stopped")
}

// newLogger returns a JSON logger at the named level; unknown names mean info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
