package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// memBus is an in-memory domain.SignalBus.
type memBus struct {
	published map[string][][]byte
	streams   map[string][]domain.StreamMessage
	failOn    string
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streams: map[string][]domain.StreamMessage{}}
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	if channel == m.failOn {
		return errors.New("publish failed")
	}
	m.published[channel] = append(m.published[channel], payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (m *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if stream == m.failOn {
		return errors.New("xadd failed")
	}
	id := fmt.Sprintf("%d-0", len(m.streams[stream])+1)
	m.streams[stream] = append(m.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (m *memBus) StreamRead(_ context.Context, stream, _ string, _ int) ([]domain.StreamMessage, error) {
	return m.streams[stream], nil
}

func (m *memBus) StreamLatest(_ context.Context, stream string) (domain.StreamMessage, bool, error) {
	msgs := m.streams[stream]
	if len(msgs) == 0 {
		return domain.StreamMessage{}, false, nil
	}
	return msgs[len(msgs)-1], true, nil
}

func snapshot(symbol string, actionable bool) domain.OpportunitySnapshot {
	return domain.OpportunitySnapshot{
		ID:           "id-" + symbol,
		Symbol:       symbol,
		VenueA:       "hyperliquid",
		VenueB:       "kraken",
		MidSpreadPct: decimal.RequireFromString("1.5"),
		Direction:    domain.DirectionSellABuyB,
		Actionable:   actionable,
		ObservedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestOpportunityBusAppend(t *testing.T) {
	bus := newMemBus()
	ob := NewOpportunityBus(bus)

	err := ob.Append(context.Background(), []domain.OpportunitySnapshot{
		snapshot("BTC", true),
		snapshot("ETH", false),
	}, "2024-05-01-10")
	require.NoError(t, err)

	require.Len(t, bus.streams[StreamSnapshots], 2)
	require.Len(t, bus.published[ChannelOpportunities], 1)

	var got domain.OpportunitySnapshot
	require.NoError(t, json.Unmarshal(bus.published[ChannelOpportunities][0], &got))
	assert.Equal(t, "BTC", got.Symbol)
	assert.Equal(t, "2024-05-01-10", got.BucketKey)
	assert.True(t, got.MidSpreadPct.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "redis", ob.Name())
}

func TestOpportunityBusAppendJoinsFailures(t *testing.T) {
	bus := newMemBus()
	bus.failOn = ChannelOpportunities
	ob := NewOpportunityBus(bus)

	err := ob.Append(context.Background(), []domain.OpportunitySnapshot{
		snapshot("BTC", true),
		snapshot("ETH", true),
	}, "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish failed")
	// Stream appends still happened for both.
	assert.Len(t, bus.streams[StreamSnapshots], 2)
}

func TestOpportunityBusCycles(t *testing.T) {
	bus := newMemBus()
	ob := NewOpportunityBus(bus)
	ctx := context.Background()

	_, ok, err := ob.LatestCycle(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	for i := int64(1); i <= 2; i++ {
		require.NoError(t, ob.CycleCompleted(ctx, domain.CycleSummary{Cycle: i, Universe: 10, Scored: 9}))
	}
	assert.Len(t, bus.published[ChannelStatus], 2)

	latest, ok, err := ob.LatestCycle(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), latest.Cycle)
	assert.Equal(t, 9, latest.Scored)
}

func TestOpportunityBusLatestCycleBadPayload(t *testing.T) {
	bus := newMemBus()
	bus.streams[StreamCycles] = []domain.StreamMessage{{ID: "1-0", Payload: []byte("{")}}

	_, ok, err := NewOpportunityBus(bus).LatestCycle(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestBookKeys(t *testing.T) {
	assert.Equal(t, "book:kraken:BTC:levels", bookLevelsKey("kraken", "BTC"))
	assert.Equal(t, "book:hyperliquid:ETH:bbo", bookBBOKey("hyperliquid", "ETH"))
	assert.Equal(t, "lock:arbscan:cycle", lockKey("arbscan:cycle"))
	assert.Equal(t, "ratelimit:api:1.2.3.4", rateLimitKey("api:1.2.3.4"))
}

func TestBBOFields(t *testing.T) {
	at := time.UnixMilli(1700000000123).UTC()
	snap := domain.BookSnapshot{
		Venue:  "kraken",
		Symbol: "BTC",
		Bid: domain.BookSide{Side: domain.SideBid, Levels: []domain.PriceLevel{
			{Price: decimal.RequireFromString("99"), Quantity: decimal.NewFromInt(1)},
		}},
		Ask: domain.BookSide{Side: domain.SideAsk, Levels: []domain.PriceLevel{
			{Price: decimal.RequireFromString("101"), Quantity: decimal.NewFromInt(1)},
		}},
		CapturedAt: at,
	}

	fields := bboFields(snap)
	assert.Equal(t, "99", fields["bid"])
	assert.Equal(t, "101", fields["ask"])
	assert.Equal(t, "100", fields["mid"])
	assert.Equal(t, int64(1700000000123), fields["ts"])

	snap.Ask.Levels = nil
	fields = bboFields(snap)
	assert.NotContains(t, fields, "ask")
	assert.NotContains(t, fields, "mid")
}

func TestPayloadBytes(t *testing.T) {
	b, ok := payloadBytes(map[string]interface{}{"payload": "abc"})
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), b)

	_, ok = payloadBytes(map[string]interface{}{"other": "abc"})
	assert.False(t, ok)
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("arbscan:*"))
	assert.False(t, hasPattern(ChannelOpportunities))
}
