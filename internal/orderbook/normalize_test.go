package orderbook

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

func raw(pairs ...string) []domain.RawLevel {
	out := make([]domain.RawLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.RawLevel{Price: pairs[i], Quantity: pairs[i+1]})
	}
	return out
}

func TestNormalize_PreservesVenueOrder(t *testing.T) {
	side, err := Normalize(domain.SideBid, raw("100.5", "2", "100", "0.25", "99.75", "10"))
	require.NoError(t, err)
	require.Len(t, side.Levels, 3)
	assert.Equal(t, domain.SideBid, side.Side)
	assert.True(t, side.Levels[0].Price.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, side.Levels[1].Quantity.Equal(decimal.RequireFromString("0.25")))
	assert.True(t, side.Levels[2].Price.Equal(decimal.RequireFromString("99.75")))
}

func TestNormalize_EmptyIsValid(t *testing.T) {
	side, err := Normalize(domain.SideAsk, nil)
	require.NoError(t, err)
	assert.True(t, side.Empty())
	_, ok := side.Best()
	assert.False(t, ok)
}

func TestNormalize_DropsZeroQuantity(t *testing.T) {
	side, err := Normalize(domain.SideAsk, raw("10", "0", "11", "1"))
	require.NoError(t, err)
	require.Len(t, side.Levels, 1)
	assert.True(t, side.Levels[0].Price.Equal(decimal.NewFromInt(11)))
}

func TestNormalize_Malformed(t *testing.T) {
	cases := []struct {
		name string
		side domain.Side
		in   []domain.RawLevel
	}{
		{"unparseable price", domain.SideBid, raw("abc", "1")},
		{"unparseable quantity", domain.SideBid, raw("100", "")},
		{"negative quantity", domain.SideAsk, raw("100", "-1")},
		{"zero price", domain.SideAsk, raw("0", "1")},
		{"negative price", domain.SideBid, raw("-5", "1")},
		{"bids out of order", domain.SideBid, raw("99", "1", "100", "1")},
		{"asks out of order", domain.SideAsk, raw("101", "1", "100", "1")},
		{"unknown side", domain.Side("mid"), raw("100", "1")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.side, tc.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedBook))
			var mb *domain.MalformedBookError
			assert.True(t, errors.As(err, &mb))
		})
	}
}

func TestNormalize_EqualPricesAllowed(t *testing.T) {
	side, err := Normalize(domain.SideAsk, raw("100", "1", "100", "2"))
	require.NoError(t, err)
	assert.Len(t, side.Levels, 2)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := [][]domain.RawLevel{
		raw("100", "2", "99", "3"),
		raw("0.000123", "1000000", "0.00012", "5"),
		raw(" 42.10 ", "1.500", "42", "0", "41.9", "7"),
		nil,
	}
	for _, in := range inputs {
		first, err := Normalize(domain.SideBid, in)
		require.NoError(t, err)
		second, err := Normalize(domain.SideBid, first.Raw())
		require.NoError(t, err)
		require.Len(t, second.Levels, len(first.Levels))
		for i := range first.Levels {
			assert.True(t, first.Levels[i].Price.Equal(second.Levels[i].Price))
			assert.True(t, first.Levels[i].Quantity.Equal(second.Levels[i].Quantity))
		}
	}
}

func TestNormalizeBook_AnnotatesVenueAndSymbol(t *testing.T) {
	_, err := NormalizeBook("kraken", "ETH", domain.RawBook{
		Bids: raw("100", "1"),
		Asks: raw("x", "1"),
	})
	var mb *domain.MalformedBookError
	require.True(t, errors.As(err, &mb))
	assert.Equal(t, "kraken", mb.Venue)
	assert.Equal(t, "ETH", mb.Symbol)
	assert.Contains(t, mb.Error(), "kraken")
}

func TestNormalizeBook_Mid(t *testing.T) {
	snap, err := NormalizeBook("hyperliquid", "BTC", domain.RawBook{
		Bids: raw("100", "1"),
		Asks: raw("102", "1"),
	})
	require.NoError(t, err)
	mid, ok := snap.Mid()
	require.True(t, ok)
	assert.True(t, mid.Equal(decimal.NewFromInt(101)))

	snap.Ask = domain.BookSide{Side: domain.SideAsk}
	_, ok = snap.Mid()
	assert.False(t, ok)
}
