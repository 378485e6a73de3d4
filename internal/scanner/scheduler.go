// Package scanner drives the fetch → score → report loop across two venues.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/arbitrage"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/metrics"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/orderbook"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/venue"
)

// DefaultBucketLayout buckets persisted snapshots by UTC hour.
const DefaultBucketLayout = "2006-01-02-15"

const cycleLockKey = "arbscan:cycle"

// Config controls pacing, retry and reporting.
type Config struct {
	// Symbols, if set, restricts the universe to these symbols.
	Symbols            []string
	InterSymbolDelay   time.Duration
	CycleInterval      time.Duration
	CycleBackoff       time.Duration
	CallTimeout        time.Duration
	ReconnectOnError   bool
	MaxAlertLength     int
	BucketLayout       string
	AlertOpportunities bool
	// CycleLockTTL > 0 takes a distributed lock around each cycle.
	CycleLockTTL time.Duration
}

// Deps are the scheduler's collaborators. VenueA, VenueB and Engine are
// required; the rest are optional.
type Deps struct {
	VenueA  domain.VenueFactory
	VenueB  domain.VenueFactory
	Engine  *arbitrage.Engine
	Alerts  domain.AlertSink
	Sinks   []domain.SnapshotSink
	Books   domain.BookMirror
	Lock    domain.LockManager
	Metrics *metrics.Metrics
	Clock   Clock
	Logger  *slog.Logger
}

// CycleObserver is implemented by sinks that also want a per-cycle summary.
type CycleObserver interface {
	CycleCompleted(ctx context.Context, summary domain.CycleSummary) error
}

// CycleReport describes one completed cycle.
type CycleReport struct {
	Cycle         int64
	StartedAt     time.Time
	FinishedAt    time.Time
	BucketKey     string
	Universe      []string
	Snapshots     []domain.OpportunitySnapshot
	Opportunities []domain.OpportunitySnapshot
	// Skipped maps symbols dropped for malformed books to the reason.
	Skipped map[string]string
	// NoQuote lists symbols where a venue had an empty bid or ask side.
	NoQuote []string
	// NoQuoteRows are the marker rows persisted for NoQuote symbols.
	NoQuoteRows []domain.OpportunitySnapshot
	// LockHeld is set when another instance held the cycle lock.
	LockHeld bool
}

// Scheduler owns the two venue handles and runs scan cycles until its
// context is cancelled. It never exits on a cycle error.
type Scheduler struct {
	cfg     Config
	deps    Deps
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	state  atomic.Int32
	cycles atomic.Int64

	// venue handles are only touched by the Run goroutine.
	venueA domain.Venue
	venueB domain.Venue

	mu     sync.RWMutex
	status Status
}

// New creates a scheduler.
func New(cfg Config, deps Deps) *Scheduler {
	if cfg.BucketLayout == "" {
		cfg.BucketLayout = DefaultBucketLayout
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Scheduler{
		cfg:     cfg,
		deps:    deps,
		clock:   deps.Clock,
		logger:  deps.Logger.With(slog.String("component", "scanner")),
		metrics: deps.Metrics,
	}
	s.status.State = StateIdle.String()
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Status returns a copy of the scheduler status.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.State = s.State().String()
	st.Cycles = s.cycles.Load()
	return st
}

// Run connects both venues and scans until ctx is cancelled, which is the
// only condition under which it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scanner started",
		slog.Duration("inter_symbol_delay", s.cfg.InterSymbolDelay),
		slog.Duration("cycle_backoff", s.cfg.CycleBackoff),
	)
	defer func() {
		s.setState(StateIdle)
		s.logger.Info("scanner stopped", slog.Int64("cycles", s.cycles.Load()))
	}()

	needConnect := s.venueA == nil || s.venueB == nil
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if needConnect {
			s.setState(StateReconnecting)
			// The first connect is not a reconnect.
			if s.venueA != nil {
				s.alert(ctx, domain.EventReconnect, "Arb scanner reconnecting", "Attempting to reconnect...")
			}
			if err := s.reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.recordFailure(err)
				s.alert(ctx, domain.EventReconnect, "Reconnecting venues failed", err.Error())
				if err := s.sleep(ctx, s.cfg.CycleBackoff); err != nil {
					return err
				}
				continue
			}
			needConnect = false
		}

		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "scan cycle aborted", slog.String("error", err.Error()))
			s.recordFailure(err)
			s.alert(ctx, domain.EventScanError, "Arb scanner error", err.Error())
			if err := s.sleep(ctx, s.cfg.CycleBackoff); err != nil {
				return err
			}
			needConnect = s.cfg.ReconnectOnError
			continue
		}

		if err := s.sleep(ctx, s.cfg.CycleInterval); err != nil {
			return err
		}
	}
}

// RunCycle performs one fetch → score → report pass over the symbol universe.
// It connects the venues first if Run has not.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	if s.venueA == nil || s.venueB == nil {
		if err := s.reconnect(ctx); err != nil {
			return CycleReport{}, err
		}
	}

	start := s.clock.Now()
	report := CycleReport{
		Cycle:     s.cycles.Add(1),
		StartedAt: start,
		BucketKey: start.UTC().Format(s.cfg.BucketLayout),
		Skipped:   make(map[string]string),
	}
	logger := s.logger.With(slog.Int64("cycle", report.Cycle))

	if s.deps.Lock != nil && s.cfg.CycleLockTTL > 0 {
		unlock, err := s.deps.Lock.Acquire(ctx, cycleLockKey, s.cfg.CycleLockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			logger.InfoContext(ctx, "cycle lock held elsewhere, skipping")
			report.LockHeld = true
			report.FinishedAt = s.clock.Now()
			s.metrics.CycleDone("lock_held", report.FinishedAt.Sub(start))
			return report, nil
		case err != nil:
			logger.WarnContext(ctx, "cycle lock unavailable, scanning unlocked", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	s.setState(StateFetching)
	universe, err := s.universe(ctx)
	if err != nil {
		s.metrics.CycleDone("error", s.clock.Now().Sub(start))
		return report, err
	}
	report.Universe = universe
	s.metrics.Universe(len(universe))
	logger.DebugContext(ctx, "symbol universe", slog.Int("symbols", len(universe)))

	for i, sym := range universe {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if i > 0 {
			s.setState(StateSleeping)
			if err := s.sleep(ctx, s.cfg.InterSymbolDelay); err != nil {
				return report, err
			}
		}

		s.setState(StateFetching)
		bookA, bookB, err := s.fetchPair(ctx, sym)
		if err != nil {
			var mb *domain.MalformedBookError
			if errors.As(err, &mb) && ctx.Err() == nil {
				logger.WarnContext(ctx, "skipping symbol", slog.String("symbol", sym), slog.String("error", err.Error()))
				report.Skipped[sym] = err.Error()
				s.metrics.Skipped("malformed")
				continue
			}
			s.metrics.CycleDone("error", s.clock.Now().Sub(start))
			return report, fmt.Errorf("scanner: %s: %w", sym, err)
		}

		s.setState(StateScoring)
		snap, ok := s.deps.Engine.Score(bookA, bookB)
		if !ok {
			marker := s.deps.Engine.NoQuote(bookA, bookB)
			marker.BucketKey = report.BucketKey
			report.NoQuote = append(report.NoQuote, sym)
			report.NoQuoteRows = append(report.NoQuoteRows, marker)
			s.metrics.Skipped("no_quote")
			continue
		}
		snap.BucketKey = report.BucketKey
		report.Snapshots = append(report.Snapshots, snap)
		if snap.Actionable {
			report.Opportunities = append(report.Opportunities, snap)
		}
		s.metrics.Scored(sym, snap.MidSpreadPct.InexactFloat64(), snap.Actionable, string(snap.Direction))
	}

	s.setState(StateReporting)
	s.reportCycle(ctx, &report)

	report.FinishedAt = s.clock.Now()
	s.metrics.CycleDone("ok", report.FinishedAt.Sub(start))
	s.recordSuccess(report)
	logger.InfoContext(ctx, "scan cycle complete",
		slog.Int("universe", len(report.Universe)),
		slog.Int("snapshots", len(report.Snapshots)),
		slog.Int("opportunities", len(report.Opportunities)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("elapsed", report.FinishedAt.Sub(start)),
	)
	return report, nil
}

// universe lists symbols on both venues and intersects them.
func (s *Scheduler) universe(ctx context.Context) ([]string, error) {
	symsA, err := s.listSymbols(ctx, s.venueA)
	if err != nil {
		return nil, err
	}
	symsB, err := s.listSymbols(ctx, s.venueB)
	if err != nil {
		return nil, err
	}
	return venue.Intersect(symsA, symsB, s.cfg.Symbols), nil
}

func (s *Scheduler) listSymbols(ctx context.Context, v domain.Venue) ([]string, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	start := s.clock.Now()
	syms, err := v.ListSymbols(callCtx)
	s.metrics.VenueCall(v.Name(), "symbols", s.clock.Now().Sub(start), err)
	if err != nil {
		return nil, classify(ctx, v.Name(), "list symbols", err)
	}
	return syms, nil
}

func (s *Scheduler) fetchPair(ctx context.Context, sym string) (a, b domain.BookSnapshot, err error) {
	a, err = s.fetchBook(ctx, s.venueA, sym)
	if err != nil {
		return a, b, err
	}
	b, err = s.fetchBook(ctx, s.venueB, sym)
	return a, b, err
}

func (s *Scheduler) fetchBook(ctx context.Context, v domain.Venue, sym string) (domain.BookSnapshot, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	start := s.clock.Now()
	raw, err := v.FetchBook(callCtx, sym)
	s.metrics.VenueCall(v.Name(), "book", s.clock.Now().Sub(start), err)
	if err != nil {
		return domain.BookSnapshot{}, classify(ctx, v.Name(), "fetch book", err)
	}
	if raw.CapturedAt.IsZero() {
		raw.CapturedAt = s.clock.Now().UTC()
	}

	snap, err := orderbook.NormalizeBook(v.Name(), sym, raw)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	if s.deps.Books != nil {
		if err := s.deps.Books.SetSnapshot(ctx, snap); err != nil {
			s.logger.DebugContext(ctx, "book mirror write failed",
				slog.String("venue", v.Name()), slog.String("symbol", sym), slog.String("error", err.Error()))
		}
	}
	return snap, nil
}

func (s *Scheduler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// classify turns a per-call deadline into a connectivity error. Parent
// cancellation passes through untouched.
func classify(parent context.Context, venueName, op string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, domain.ErrVenueConnectivity) || errors.Is(err, domain.ErrMalformedBook) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.VenueConnectivityError{Venue: venueName, Op: op, Err: err}
	}
	return err
}

// reconnect rebuilds both venue handles. Existing handles are kept unless
// both factories succeed.
func (s *Scheduler) reconnect(ctx context.Context) error {
	a, err := s.deps.VenueA(ctx)
	if err != nil {
		return fmt.Errorf("scanner: connect venue a: %w", err)
	}
	b, err := s.deps.VenueB(ctx)
	if err != nil {
		return fmt.Errorf("scanner: connect venue b: %w", err)
	}

	first := s.venueA == nil
	s.venueA, s.venueB = a, b
	s.mu.Lock()
	s.status.VenueA, s.status.VenueB = a.Name(), b.Name()
	s.mu.Unlock()

	if !first {
		s.metrics.Reconnected()
		s.logger.InfoContext(ctx, "venues reconnected", slog.String("venue_a", a.Name()), slog.String("venue_b", b.Name()))
	}
	return nil
}

// reportCycle sends alerts for actionable snapshots and hands every snapshot
// to the persistence sinks. Failures are logged and counted only.
func (s *Scheduler) reportCycle(ctx context.Context, report *CycleReport) {
	if s.cfg.AlertOpportunities {
		for _, opp := range report.Opportunities {
			title, body := arbitrage.FormatOpportunity(opp)
			s.alert(ctx, domain.EventOpportunity, title, body)
		}
	}

	// No-quote markers go to the sinks with the scored rows.
	rows := slices.Concat(report.Snapshots, report.NoQuoteRows)
	if len(rows) > 0 {
		for _, sink := range s.deps.Sinks {
			if err := sink.Append(ctx, rows, report.BucketKey); err != nil {
				s.metrics.SinkFailed(sink.Name())
				s.logger.WarnContext(ctx, "snapshot sink append failed",
					slog.String("sink", sink.Name()),
					slog.Int("snapshots", len(rows)),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	summary := domain.CycleSummary{
		Cycle:         report.Cycle,
		StartedAt:     report.StartedAt.UTC(),
		FinishedAt:    s.clock.Now().UTC(),
		Universe:      len(report.Universe),
		Scored:        len(report.Snapshots),
		Skipped:       len(report.Skipped),
		Opportunities: len(report.Opportunities),
		BucketKey:     report.BucketKey,
	}
	for _, sink := range s.deps.Sinks {
		obs, ok := sink.(CycleObserver)
		if !ok {
			continue
		}
		if err := obs.CycleCompleted(ctx, summary); err != nil {
			s.logger.DebugContext(ctx, "cycle summary publish failed",
				slog.String("sink", sink.Name()), slog.String("error", err.Error()))
		}
	}
}

func (s *Scheduler) alert(ctx context.Context, event, title, message string) {
	if s.deps.Alerts == nil {
		return
	}
	msg := arbitrage.Truncate(message, s.cfg.MaxAlertLength)
	if err := s.deps.Alerts.Notify(ctx, event, title, msg); err != nil {
		s.metrics.AlertFailed(event)
		s.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	s.setState(StateSleeping)
	return s.clock.Sleep(ctx, d)
}

func (s *Scheduler) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.metrics.State(st.String(), allStateNames())
	}
}

func (s *Scheduler) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.ConsecutiveFailures++
	s.status.LastError = err.Error()
	s.status.LastErrorAt = s.clock.Now().UTC()
}

func (s *Scheduler) recordSuccess(r CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.ConsecutiveFailures = 0
	s.status.LastCycleStart = r.StartedAt.UTC()
	s.status.LastCycleEnd = r.FinishedAt.UTC()
	s.status.LastBucketKey = r.BucketKey
	s.status.Universe = len(r.Universe)
	s.status.LastSnapshots = len(r.Snapshots)
	s.status.LastOpportunities = len(r.Opportunities)
}
