package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/cache/redis"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/pipeline"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/scanner"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/server"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/server/handler"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// ScanMode runs the scheduler with alerts only. Snapshots go to the live
// redis bus when it is enabled but are not persisted.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	sched, err := a.newScheduler(deps, false, true)
	if err != nil {
		return err
	}
	return ignoreCanceled(sched.Run(ctx))
}

// RecordMode runs the scheduler with every persistence sink. Opportunity
// alerts follow scanner.alert_opportunities; error alerts are always sent.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting record mode")

	sched, err := a.newScheduler(deps, true, a.cfg.Scanner.AlertOpportunities)
	if err != nil {
		return err
	}
	return ignoreCanceled(sched.Run(ctx))
}

// FullMode runs the recording scheduler, the HTTP API with its WebSocket hub
// and the archive cron.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	sched, err := a.newScheduler(deps, true, a.cfg.Scanner.AlertOpportunities)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(sched.Run(ctx))
	})

	if a.cfg.Server.Enabled {
		status := func(context.Context) (any, error) { return sched.Status(), nil }
		a.startHTTPServer(ctx, g, deps, status)
	}
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// ServerMode serves the HTTP API without scanning. Scanner status comes from
// the newest cycle summary on the redis stream.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	var status handler.StatusFunc
	if deps.OpportunityBus != nil {
		status = func(ctx context.Context) (any, error) {
			summary, ok, err := deps.OpportunityBus.LatestCycle(ctx)
			if err != nil || !ok {
				return nil, err
			}
			return summary, nil
		}
	}
	a.startHTTPServer(ctx, g, deps, status)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// newScheduler builds the scan loop. persist adds the Postgres and S3 sinks;
// alertOpps controls opportunity alerts.
func (a *App) newScheduler(deps *Dependencies, persist, alertOpps bool) (*scanner.Scheduler, error) {
	venueA, err := deps.Venues.Get(a.cfg.Scanner.VenueA)
	if err != nil {
		return nil, err
	}
	venueB, err := deps.Venues.Get(a.cfg.Scanner.VenueB)
	if err != nil {
		return nil, err
	}

	sinks := deps.snapshotSinks(persist)
	a.logger.Info("scheduler configured",
		slog.String("sinks", sinkNames(sinks)),
		slog.Any("notifiers", deps.Notifier.Senders()),
		slog.Bool("alert_opportunities", alertOpps),
	)

	sc := a.cfg.Scanner
	return scanner.New(scanner.Config{
		Symbols:            sc.Symbols,
		InterSymbolDelay:   sc.InterSymbolDelay.Duration,
		CycleInterval:      sc.CycleInterval.Duration,
		CycleBackoff:       sc.CycleBackoff.Duration,
		CallTimeout:        sc.CallTimeout.Duration,
		ReconnectOnError:   sc.ReconnectOnError,
		MaxAlertLength:     sc.MaxAlertLength,
		BucketLayout:       sc.BucketLayout,
		AlertOpportunities: alertOpps,
		CycleLockTTL:       sc.CycleLockTTL.Duration,
	}, scanner.Deps{
		VenueA:  venueA,
		VenueB:  venueB,
		Engine:  deps.Engine,
		Alerts:  deps.alertSink(),
		Sinks:   sinks,
		Books:   deps.BookMirror,
		Lock:    deps.LockManager,
		Metrics: deps.Metrics,
		Logger:  a.logger,
	}), nil
}

// startHTTPServer adds the HTTP server and, when redis is wired, the
// WebSocket hub to g. The server is shut down gracefully when ctx is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, status handler.StatusFunc) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:           a.cfg.Mode,
			Channels:       []string{redis.ChannelOpportunities, redis.ChannelStatus},
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			StartedAt:      time.Now().UTC(),
			ReplayStream:   redis.StreamSnapshots,
		})
		g.Go(func() error {
			return ignoreCanceled(hub.Run(ctx))
		})
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger, deps.HealthChecks),
		Scanner:       handler.NewScannerHandler(a.cfg.Mode, status, a.logger),
		Opportunities: handler.NewOpportunityHandler(nil, a.logger),
		Metrics:       deps.Metrics.Handler(),
	}
	if deps.SnapshotStore != nil {
		handlers.Opportunities = handler.NewOpportunityHandler(deps.SnapshotStore, a.logger)
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver adds the archive cron to g when archiving is enabled and
// both Postgres and S3 are wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled {
		return
	}
	if deps.Archiver == nil {
		a.logger.WarnContext(ctx, "archive enabled but postgres or s3 is not wired; archiver disabled")
		return
	}

	arch := pipeline.NewArchiver(deps.Archiver, deps.SnapshotStore, pipeline.ArchiverConfig{
		RetentionDays: a.cfg.Archive.RetentionDays,
		Prune:         a.cfg.Archive.PruneAfter,
	}, a.logger)
	g.Go(func() error {
		return ignoreCanceled(arch.RunCron(ctx, a.cfg.Archive.Cron))
	})
}

// ignoreCanceled maps a clean shutdown to a nil error so errgroup reports
// only real failures.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
