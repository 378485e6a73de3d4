package arbitrage

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func side(s domain.Side, pairs ...string) domain.BookSide {
	out := domain.BookSide{Side: s}
	for i := 0; i+1 < len(pairs); i += 2 {
		out.Levels = append(out.Levels, domain.PriceLevel{Price: d(pairs[i]), Quantity: d(pairs[i+1])})
	}
	return out
}

func book(venue string, bid, ask domain.BookSide) domain.BookSnapshot {
	return domain.BookSnapshot{
		Venue:      venue,
		Symbol:     "ETH",
		Bid:        bid,
		Ask:        ask,
		CapturedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestEngine(threshold string, inclusive bool) *Engine {
	e := NewEngine(EngineConfig{
		Tiers:              []decimal.Decimal{d("1000"), d("10000")},
		ThresholdPct:       d(threshold),
		ThresholdInclusive: inclusive,
	})
	e.newID = func() string { return "snap-1" }
	return e
}

func TestScore_MidSpreadAtThreshold(t *testing.T) {
	// A mid 101, B mid 100 -> exactly 1.0%.
	a := book("hyperliquid", side(domain.SideBid, "100.5", "100"), side(domain.SideAsk, "101.5", "100"))
	b := book("kraken", side(domain.SideBid, "99.5", "100"), side(domain.SideAsk, "100.5", "100"))

	strict := newTestEngine("1.0", false)
	snap, ok := strict.Score(a, b)
	require.True(t, ok)
	assert.True(t, snap.VenueAMid.Equal(d("101")))
	assert.True(t, snap.VenueBMid.Equal(d("100")))
	assert.True(t, snap.MidSpreadPct.Equal(d("1")), "got %s", snap.MidSpreadPct)
	assert.False(t, snap.Actionable, "strict threshold excludes equality")
	assert.Empty(t, strict.Filter([]domain.OpportunitySnapshot{snap}))

	inclusive := newTestEngine("1.0", true)
	snap, ok = inclusive.Score(a, b)
	require.True(t, ok)
	assert.True(t, snap.Actionable, "inclusive threshold admits equality")
	assert.Len(t, inclusive.Filter([]domain.OpportunitySnapshot{snap}), 1)
}

func TestScore_EmptySideIsNoOpportunity(t *testing.T) {
	e := newTestEngine("1.0", false)
	full := book("kraken", side(domain.SideBid, "99", "10"), side(domain.SideAsk, "100", "10"))

	noBid := book("hyperliquid", domain.BookSide{Side: domain.SideBid}, side(domain.SideAsk, "101", "1"))
	_, ok := e.Score(noBid, full)
	assert.False(t, ok)

	noAsk := book("kraken", side(domain.SideBid, "99", "10"), domain.BookSide{Side: domain.SideAsk})
	_, ok = e.Score(full, noAsk)
	assert.False(t, ok)
}

func TestNoQuoteMarker(t *testing.T) {
	e := newTestEngine("1.0", false)
	full := book("kraken", side(domain.SideBid, "99", "10"), side(domain.SideAsk, "101", "10"))
	noBid := book("hyperliquid", domain.BookSide{Side: domain.SideBid}, side(domain.SideAsk, "101", "1"))
	noBid.CapturedAt = noBid.CapturedAt.Add(time.Second)

	m := e.NoQuote(noBid, full)
	assert.True(t, m.NoQuote)
	assert.Equal(t, "snap-1", m.ID)
	assert.Equal(t, "ETH", m.Symbol)
	assert.Equal(t, "hyperliquid", m.VenueA)
	assert.Equal(t, "kraken", m.VenueB)
	assert.True(t, m.VenueAMid.IsZero())
	assert.True(t, m.VenueBMid.Equal(d("100")))
	assert.True(t, m.MidSpreadPct.IsZero())
	assert.Empty(t, m.Direction)
	assert.Empty(t, m.Tiers)
	assert.False(t, m.Actionable)
	assert.Equal(t, noBid.CapturedAt, m.ObservedAt)
}

func TestScore_SymbolMismatch(t *testing.T) {
	e := newTestEngine("1.0", false)
	a := book("hyperliquid", side(domain.SideBid, "99", "10"), side(domain.SideAsk, "100", "10"))
	b := a
	b.Symbol = "BTC"
	_, ok := e.Score(a, b)
	assert.False(t, ok)
}

func TestScore_DirectionAndTierPricing(t *testing.T) {
	e := newTestEngine("0.5", false)

	// A rich: sell A bids, buy B asks.
	a := book("hyperliquid",
		side(domain.SideBid, "102", "10", "101", "200"),
		side(domain.SideAsk, "103", "5"))
	b := book("kraken",
		side(domain.SideBid, "99", "5"),
		side(domain.SideAsk, "100", "20", "100.5", "200"))

	snap, ok := e.Score(a, b)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionSellABuyB, snap.Direction)
	assert.True(t, snap.Actionable)
	require.Len(t, snap.Tiers, 2)

	t1 := snap.Tiers[0]
	require.True(t, t1.Available)
	assert.True(t, t1.VenueAExecPrice.Equal(d("102")), "got %s", t1.VenueAExecPrice)
	assert.True(t, t1.VenueBExecPrice.Equal(d("100")))

	t2 := snap.Tiers[1]
	require.True(t, t2.Available)
	assert.True(t, t2.VenueAExecPrice.LessThan(d("102")))
	assert.True(t, t2.VenueBExecPrice.GreaterThan(d("100")))
	assert.True(t, t2.ExecSpreadPct.LessThan(snap.MidSpreadPct))

	// Mirror image: A cheap, so buy A asks and sell B bids.
	snap, ok = e.Score(
		book("hyperliquid", side(domain.SideBid, "97", "50"), side(domain.SideAsk, "98", "50")),
		book("kraken", side(domain.SideBid, "100", "50"), side(domain.SideAsk, "101", "50")),
	)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionBuyASellB, snap.Direction)
	assert.True(t, snap.MidSpreadPct.IsNegative())
	assert.True(t, snap.Actionable)
	assert.True(t, snap.Tiers[0].VenueAExecPrice.Equal(d("98")))
	assert.True(t, snap.Tiers[0].VenueBExecPrice.Equal(d("100")))
}

func TestScore_TierUnavailableDoesNotAbort(t *testing.T) {
	e := newTestEngine("1.0", false)
	a := book("hyperliquid", side(domain.SideBid, "105", "20"), side(domain.SideAsk, "106", "20"))
	b := book("kraken", side(domain.SideBid, "99", "20"), side(domain.SideAsk, "100", "20"))

	snap, ok := e.Score(a, b)
	require.True(t, ok)
	require.Len(t, snap.Tiers, 2)
	assert.True(t, snap.Tiers[0].Available)
	assert.False(t, snap.Tiers[1].Available)
	assert.Contains(t, snap.Tiers[1].Unavailable, "hyperliquid")
	assert.True(t, snap.Actionable)
}

func TestScore_ObservedAtUsesLatestCapture(t *testing.T) {
	e := newTestEngine("1.0", false)
	a := book("hyperliquid", side(domain.SideBid, "99", "10"), side(domain.SideAsk, "100", "10"))
	b := book("kraken", side(domain.SideBid, "99", "10"), side(domain.SideAsk, "100", "10"))
	b.CapturedAt = a.CapturedAt.Add(2 * time.Second)

	snap, ok := e.Score(a, b)
	require.True(t, ok)
	assert.Equal(t, b.CapturedAt, snap.ObservedAt)
	assert.Equal(t, "snap-1", snap.ID)
	assert.False(t, snap.Actionable)
}

func TestFormatOpportunity(t *testing.T) {
	e := newTestEngine("1.0", false)
	snap, ok := e.Score(
		book("hyperliquid", side(domain.SideBid, "105", "20"), side(domain.SideAsk, "106", "20")),
		book("kraken", side(domain.SideBid, "99", "200"), side(domain.SideAsk, "100", "200")),
	)
	require.True(t, ok)

	title, body := FormatOpportunity(snap)
	assert.Equal(t, "ETH opportunity", title)
	first := strings.SplitN(body, "\n", 2)[0]
	assert.Equal(t, "ETH opportunity detected with 6.0, 5.0, n/a", first)
	assert.Contains(t, body, "unavailable (")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "héé", Truncate("hééllo", 3))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Len(t, []rune(Truncate(strings.Repeat("x", 5000), 3900)), 3900)
}
