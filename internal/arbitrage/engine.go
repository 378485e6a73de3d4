// Package arbitrage scores a symbol's books on two venues into an
// OpportunitySnapshot and filters the ones worth alerting on.
package arbitrage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/orderbook"
)

var hundred = decimal.NewFromInt(100)

// EngineConfig configures scoring and the actionable threshold.
type EngineConfig struct {
	// Tiers are the notionals each snapshot is priced at, in order.
	Tiers []decimal.Decimal
	// ThresholdPct is compared against |mid spread %|.
	ThresholdPct decimal.Decimal
	// ThresholdInclusive makes a spread equal to the threshold actionable.
	ThresholdInclusive bool
}

// Engine is stateless apart from its configuration and safe for concurrent use.
type Engine struct {
	cfg   EngineConfig
	now   func() time.Time
	newID func() string
}

// NewEngine creates a scoring engine.
func NewEngine(cfg EngineConfig) *Engine {
	tiers := make([]decimal.Decimal, len(cfg.Tiers))
	copy(tiers, cfg.Tiers)
	cfg.Tiers = tiers
	return &Engine{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Tiers returns the configured notional tiers.
func (e *Engine) Tiers() []decimal.Decimal {
	out := make([]decimal.Decimal, len(e.cfg.Tiers))
	copy(out, e.cfg.Tiers)
	return out
}

// Score compares venue A's book against venue B's for the same symbol.
// ok is false when either venue is missing a bid or an ask, or the
// snapshots are for different symbols; there is nothing to compare then.
func (e *Engine) Score(a, b domain.BookSnapshot) (snap domain.OpportunitySnapshot, ok bool) {
	if a.Symbol != b.Symbol {
		return domain.OpportunitySnapshot{}, false
	}
	midA, okA := a.Mid()
	midB, okB := b.Mid()
	if !okA || !okB {
		return domain.OpportunitySnapshot{}, false
	}

	spread := spreadPct(midA, midB)
	dir := domain.DirectionSellABuyB
	if spread.IsNegative() {
		dir = domain.DirectionBuyASellB
	}
	sideA, sideB := dir.Sides()
	bookA, bookB := a.SideOf(sideA), b.SideOf(sideB)

	tiers := make([]domain.TierQuote, 0, len(e.cfg.Tiers))
	for _, notional := range e.cfg.Tiers {
		tiers = append(tiers, e.quoteTier(notional, a.Venue, bookA, b.Venue, bookB))
	}

	snap = domain.OpportunitySnapshot{
		ID:           e.newID(),
		Symbol:       a.Symbol,
		VenueA:       a.Venue,
		VenueB:       b.Venue,
		VenueAMid:    midA,
		VenueBMid:    midB,
		MidSpreadPct: spread,
		Direction:    dir,
		Tiers:        tiers,
		ObservedAt:   e.observedAt(a, b),
	}
	snap.Actionable = e.Actionable(snap)
	return snap, true
}

// NoQuote builds the marker row for a pair Score rejected because a side was
// empty. Whichever mids exist are kept.
func (e *Engine) NoQuote(a, b domain.BookSnapshot) domain.OpportunitySnapshot {
	midA, _ := a.Mid()
	midB, _ := b.Mid()
	return domain.OpportunitySnapshot{
		ID:         e.newID(),
		Symbol:     a.Symbol,
		VenueA:     a.Venue,
		VenueB:     b.Venue,
		VenueAMid:  midA,
		VenueBMid:  midB,
		ObservedAt: e.observedAt(a, b),
		NoQuote:    true,
	}
}

// observedAt is the later of the two capture times.
func (e *Engine) observedAt(a, b domain.BookSnapshot) time.Time {
	observed := a.CapturedAt
	if b.CapturedAt.After(observed) {
		observed = b.CapturedAt
	}
	if observed.IsZero() {
		observed = e.now()
	}
	return observed.UTC()
}

// Actionable reports whether the snapshot's mid spread clears the threshold.
func (e *Engine) Actionable(snap domain.OpportunitySnapshot) bool {
	mag := snap.MidSpreadPct.Abs()
	if e.cfg.ThresholdInclusive {
		return mag.GreaterThanOrEqual(e.cfg.ThresholdPct)
	}
	return mag.GreaterThan(e.cfg.ThresholdPct)
}

// Filter returns the actionable snapshots, preserving input order.
func (e *Engine) Filter(snaps []domain.OpportunitySnapshot) []domain.OpportunitySnapshot {
	var out []domain.OpportunitySnapshot
	for _, s := range snaps {
		if e.Actionable(s) {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) quoteTier(notional decimal.Decimal, venueA string, bookA domain.BookSide,
	venueB string, bookB domain.BookSide) domain.TierQuote {
	q := domain.TierQuote{Notional: notional}

	pxA, err := orderbook.ImmediateExecutionPrice(bookA, notional)
	if err != nil {
		q.Unavailable = unavailableReason(venueA, err)
		return q
	}
	pxB, err := orderbook.ImmediateExecutionPrice(bookB, notional)
	if err != nil {
		q.VenueAExecPrice = pxA
		q.Unavailable = unavailableReason(venueB, err)
		return q
	}

	q.VenueAExecPrice = pxA
	q.VenueBExecPrice = pxB
	q.ExecSpreadPct = spreadPct(pxA, pxB)
	q.Available = true
	return q
}

func unavailableReason(venue string, err error) string {
	var il *domain.InsufficientLiquidityError
	if errors.As(err, &il) {
		return fmt.Sprintf("insufficient %s liquidity on %s (%s available)",
			il.Side, venue, il.Available.StringFixed(2))
	}
	return fmt.Sprintf("%s: %v", venue, err)
}

// spreadPct is 100 * (a - b) / b.
func spreadPct(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Mul(hundred).Div(b)
}
