package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/arbitrage"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeVenue struct {
	name    string
	symbols []string
	books   map[string]domain.RawBook
	bookErr map[string]error
	listErr error
	// failOnce errors are returned by the next FetchBook call only.
	failOnce error
	block    bool

	mu      sync.Mutex
	fetched []string
}

func (v *fakeVenue) Name() string { return v.name }

func (v *fakeVenue) ListSymbols(ctx context.Context) ([]string, error) {
	if v.listErr != nil {
		return nil, v.listErr
	}
	return v.symbols, nil
}

func (v *fakeVenue) FetchBook(ctx context.Context, symbol string) (domain.RawBook, error) {
	v.mu.Lock()
	v.fetched = append(v.fetched, symbol)
	fail := v.failOnce
	v.failOnce = nil
	v.mu.Unlock()

	if v.block {
		<-ctx.Done()
		return domain.RawBook{}, ctx.Err()
	}
	if fail != nil {
		return domain.RawBook{}, fail
	}
	if err := v.bookErr[symbol]; err != nil {
		return domain.RawBook{}, err
	}
	return v.books[symbol], nil
}

func (v *fakeVenue) fetchedSymbols() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.fetched...)
}

type alertRecord struct {
	event, title, message string
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []alertRecord
}

func (a *fakeAlerts) Notify(_ context.Context, event, title, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alertRecord{event, title, message})
	return nil
}

func (a *fakeAlerts) byEvent(event string) []alertRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []alertRecord
	for _, r := range a.alerts {
		if r.event == event {
			out = append(out, r)
		}
	}
	return out
}

type fakeSink struct {
	mu        sync.Mutex
	appends   [][]domain.OpportunitySnapshot
	buckets   []string
	summaries []domain.CycleSummary
	err       error
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Append(_ context.Context, snaps []domain.OpportunitySnapshot, bucketKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, snaps)
	s.buckets = append(s.buckets, bucketKey)
	return s.err
}

func (s *fakeSink) CycleCompleted(_ context.Context, summary domain.CycleSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return nil
}

type heldLock struct{ acquired int }

func (l *heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.acquired++
	return nil, domain.ErrLockHeld
}

// --------------------------------------------------------------------------
// Fixtures
// --------------------------------------------------------------------------

func rawBook(bidPx, bidQty, askPx, askQty string) domain.RawBook {
	return domain.RawBook{
		Bids: []domain.RawLevel{{Price: bidPx, Quantity: bidQty}},
		Asks: []domain.RawLevel{{Price: askPx, Quantity: askQty}},
	}
}

// venueA is 2% rich on ETH and flat on BTC.
func newVenueA() *fakeVenue {
	return &fakeVenue{
		name:    "hyperliquid",
		symbols: []string{"ETH", "BTC", "HYPE"},
		books: map[string]domain.RawBook{
			"ETH": rawBook("3059", "100", "3061", "100"),
			"BTC": rawBook("64999", "10", "65001", "10"),
		},
	}
}

func newVenueB() *fakeVenue {
	return &fakeVenue{
		name:    "kraken",
		symbols: []string{"XBT", "ETH", "ADA"},
		books: map[string]domain.RawBook{
			"ETH": rawBook("2999", "100", "3001", "100"),
			"BTC": rawBook("64999", "10", "65001", "10"),
		},
	}
}

func testEngine() *arbitrage.Engine {
	return arbitrage.NewEngine(arbitrage.EngineConfig{
		Tiers:        []decimal.Decimal{decimal.NewFromInt(1000), decimal.NewFromInt(10000)},
		ThresholdPct: decimal.NewFromInt(1),
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		InterSymbolDelay:   time.Second,
		CycleInterval:      5 * time.Second,
		CycleBackoff:       20 * time.Second,
		ReconnectOnError:   true,
		MaxAlertLength:     3900,
		AlertOpportunities: true,
	}
}

type harness struct {
	sched           *Scheduler
	clock           *fakeClock
	alerts          *fakeAlerts
	sink            *fakeSink
	a, b            *fakeVenue
	factoryA        int
	factoryB        int
	factoryBErrFrom int
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		clock:  newFakeClock(),
		alerts: &fakeAlerts{},
		sink:   &fakeSink{},
		a:      newVenueA(),
		b:      newVenueB(),
	}
	h.sched = New(cfg, Deps{
		VenueA: func(context.Context) (domain.Venue, error) {
			h.factoryA++
			return h.a, nil
		},
		VenueB: func(context.Context) (domain.Venue, error) {
			h.factoryB++
			if h.factoryBErrFrom > 0 && h.factoryB >= h.factoryBErrFrom {
				return nil, errors.New("dial kraken: no route to host")
			}
			return h.b, nil
		},
		Engine: testEngine(),
		Alerts: h.alerts,
		Sinks:  []domain.SnapshotSink{h.sink},
		Clock:  h.clock,
		Logger: discardLogger(),
	})
	return h
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRunCycle_ScoresUniverseAndReports(t *testing.T) {
	h := newHarness(t, testConfig())

	report, err := h.sched.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH"}, report.Universe)
	require.Len(t, report.Snapshots, 2)
	require.Len(t, report.Opportunities, 1)
	assert.Equal(t, "ETH", report.Opportunities[0].Symbol)
	assert.Equal(t, "2024-05-01-12", report.BucketKey)

	// Fixed delay between the two symbols only.
	assert.Equal(t, []time.Duration{time.Second}, h.clock.slept())

	opps := h.alerts.byEvent(domain.EventOpportunity)
	require.Len(t, opps, 1)
	assert.Equal(t, "ETH opportunity", opps[0].title)
	assert.True(t, strings.HasPrefix(opps[0].message, "ETH opportunity detected with 2.0"), opps[0].message)

	require.Len(t, h.sink.appends, 1)
	assert.Len(t, h.sink.appends[0], 2)
	assert.Equal(t, []string{"2024-05-01-12"}, h.sink.buckets)
	for _, s := range h.sink.appends[0] {
		assert.Equal(t, "2024-05-01-12", s.BucketKey)
	}
	require.Len(t, h.sink.summaries, 1)
	assert.Equal(t, 1, h.sink.summaries[0].Opportunities)

	st := h.sched.Status()
	assert.Equal(t, int64(1), st.Cycles)
	assert.Equal(t, 2, st.Universe)
	assert.Equal(t, 1, st.LastOpportunities)
	assert.Equal(t, "hyperliquid", st.VenueA)
	assert.Equal(t, StateReporting.String(), st.State)
}

func TestRunCycle_NoOpportunityAlertsWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AlertOpportunities = false
	h := newHarness(t, cfg)

	report, err := h.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Opportunities, 1)
	assert.Empty(t, h.alerts.byEvent(domain.EventOpportunity))
	assert.Len(t, h.sink.appends, 1)
}

func TestRunCycle_MalformedSymbolIsSkipped(t *testing.T) {
	h := newHarness(t, testConfig())
	h.b.books["BTC"] = rawBook("not-a-price", "1", "65001", "1")

	report, err := h.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.Skipped, "BTC")
	require.Len(t, report.Snapshots, 1)
	assert.Equal(t, "ETH", report.Snapshots[0].Symbol)
}

func TestRunCycle_EmptySideIsNoQuote(t *testing.T) {
	h := newHarness(t, testConfig())
	h.a.books["BTC"] = domain.RawBook{Asks: []domain.RawLevel{{Price: "65001", Quantity: "1"}}}

	report, err := h.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC"}, report.NoQuote)
	assert.Len(t, report.Snapshots, 1)

	// The marker row is persisted after the scored ones.
	require.Len(t, report.NoQuoteRows, 1)
	require.Len(t, h.sink.appends, 1)
	rows := h.sink.appends[0]
	require.Len(t, rows, 2)
	assert.Equal(t, "ETH", rows[0].Symbol)
	assert.False(t, rows[0].NoQuote)
	assert.Equal(t, "BTC", rows[1].Symbol)
	assert.True(t, rows[1].NoQuote)
	assert.False(t, rows[1].Actionable)
	assert.Equal(t, report.BucketKey, rows[1].BucketKey)
	assert.True(t, rows[1].VenueBMid.Equal(decimal.NewFromInt(65000)))
}

func TestRunCycle_OnlyNoQuoteRowsStillReachSinks(t *testing.T) {
	h := newHarness(t, testConfig())
	h.a.books["ETH"] = domain.RawBook{}
	h.a.books["BTC"] = domain.RawBook{}

	report, err := h.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Snapshots)
	assert.ElementsMatch(t, []string{"BTC", "ETH"}, report.NoQuote)
	require.Len(t, h.sink.appends, 1)
	assert.Len(t, h.sink.appends[0], 2)
}

func TestRunCycle_ConnectivityAbortsCycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.b.bookErr = map[string]error{
		"BTC": &domain.VenueConnectivityError{Venue: "kraken", Op: "Depth", Err: errors.New("EOF")},
	}

	_, err := h.sched.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrVenueConnectivity))
	// ETH is never fetched once BTC fails.
	assert.Equal(t, []string{"BTC"}, h.a.fetchedSymbols())
	assert.Empty(t, h.sink.appends)
}

func TestRunCycle_CallTimeoutIsConnectivity(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	h := newHarness(t, cfg)
	h.a.block = true

	_, err := h.sched.RunCycle(context.Background())
	var ve *domain.VenueConnectivityError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "hyperliquid", ve.Venue)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunCycle_CancelledBetweenSymbols(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.clock.onSleep = func(time.Duration) { cancel() }

	_, err := h.sched.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"BTC"}, h.a.fetchedSymbols())
	assert.Empty(t, h.sink.appends)
}

func TestRunCycle_LockHeldSkipsCycle(t *testing.T) {
	h := newHarness(t, testConfig())
	lock := &heldLock{}
	h.sched.deps.Lock = lock
	h.sched.cfg.CycleLockTTL = time.Minute

	report, err := h.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, report.LockHeld)
	assert.Equal(t, 1, lock.acquired)
	assert.Empty(t, h.a.fetchedSymbols())
}

func TestRun_BacksOffAndReconnectsAfterError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAlertLength = 24
	h := newHarness(t, cfg)
	h.b.failOnce = &domain.VenueConnectivityError{
		Venue: "kraken", Op: "Depth", Err: errors.New(strings.Repeat("connection reset ", 20)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.clock.onSleep = func(d time.Duration) {
		if d == cfg.CycleInterval {
			cancel()
		}
	}

	err := h.sched.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	errs := h.alerts.byEvent(domain.EventScanError)
	require.Len(t, errs, 1)
	assert.Len(t, []rune(errs[0].message), 24)

	// initial connect + one reconnect, announced once
	reconnects := h.alerts.byEvent(domain.EventReconnect)
	require.Len(t, reconnects, 1)
	assert.Equal(t, "Arb scanner reconnecting", reconnects[0].title)
	assert.Equal(t, "Attempting to reconnect...", reconnects[0].message)
	assert.Equal(t, 2, h.factoryA)
	assert.Equal(t, 2, h.factoryB)

	slept := h.clock.slept()
	require.NotEmpty(t, slept)
	assert.Equal(t, cfg.CycleBackoff, slept[0])
	assert.Equal(t, cfg.CycleInterval, slept[len(slept)-1])

	st := h.sched.Status()
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, StateIdle, h.sched.State())
	require.Len(t, h.sink.appends, 1)
}

func TestRun_NoReconnectWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectOnError = false
	h := newHarness(t, cfg)
	h.b.failOnce = &domain.VenueConnectivityError{Venue: "kraken", Op: "Depth", Err: errors.New("EOF")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.clock.onSleep = func(d time.Duration) {
		if d == cfg.CycleInterval {
			cancel()
		}
	}

	require.ErrorIs(t, h.sched.Run(ctx), context.Canceled)
	assert.Equal(t, 1, h.factoryA)
	assert.Equal(t, 1, h.factoryB)
}

func TestRun_ReconnectFailureKeepsTrying(t *testing.T) {
	h := newHarness(t, testConfig())
	h.factoryBErrFrom = 2
	h.b.failOnce = &domain.VenueConnectivityError{Venue: "kraken", Op: "Depth", Err: errors.New("EOF")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backoffs := 0
	h.clock.onSleep = func(d time.Duration) {
		if d == 20*time.Second {
			backoffs++
			if backoffs == 3 {
				cancel()
			}
		}
	}

	require.ErrorIs(t, h.sched.Run(ctx), context.Canceled)
	assert.Len(t, h.alerts.byEvent(domain.EventScanError), 1)
	// Each attempt is announced, then its failure reported.
	reconnects := h.alerts.byEvent(domain.EventReconnect)
	require.Len(t, reconnects, 4)
	assert.Equal(t, "Attempting to reconnect...", reconnects[0].message)
	assert.Equal(t, "Reconnecting venues failed", reconnects[1].title)
	assert.Contains(t, reconnects[1].message, "no route to host")
	assert.Equal(t, "Attempting to reconnect...", reconnects[2].message)
	st := h.sched.Status()
	assert.Equal(t, 3, st.ConsecutiveFailures)
	assert.Contains(t, st.LastError, "no route to host")
	// The failed rebuilds never replaced the live handles.
	assert.Same(t, h.b, h.sched.venueB)
}

func TestRunCycle_SinkFailureDoesNotFailCycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sink.err = errors.New("s3 down")

	_, err := h.sched.RunCycle(context.Background())
	assert.NoError(t, err)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
