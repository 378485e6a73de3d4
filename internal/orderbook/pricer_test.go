package orderbook

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustSide(t *testing.T, side domain.Side, pairs ...string) domain.BookSide {
	t.Helper()
	s, err := Normalize(side, raw(pairs...))
	require.NoError(t, err)
	return s
}

func TestImmediateExecutionPrice_BestLevelCoversTarget(t *testing.T) {
	// 100*2 = 200 >= 150
	side := mustSide(t, domain.SideBid, "100", "2", "99", "3")
	px, err := ImmediateExecutionPrice(side, d("150"))
	require.NoError(t, err)
	assert.True(t, px.Equal(d("100")), "got %s", px)
}

func TestImmediateExecutionPrice_WalksIntoSecondLevel(t *testing.T) {
	// 100 from level 0, residual 50 at 99 -> 50/99 qty.
	side := mustSide(t, domain.SideBid, "100", "1", "99", "2")
	px, err := ImmediateExecutionPrice(side, d("150"))
	require.NoError(t, err)

	want := d("14850").Div(d("149")) // 150 / (1 + 50/99)
	assert.True(t, px.Round(8).Equal(want.Round(8)), "got %s want %s", px, want)
	assert.True(t, px.Round(4).Equal(d("99.6644")))
}

func TestImmediateExecutionPrice_ExactBoundary(t *testing.T) {
	side := mustSide(t, domain.SideAsk, "10", "5", "11", "5")
	px, err := ImmediateExecutionPrice(side, d("50"))
	require.NoError(t, err)
	assert.True(t, px.Equal(d("10")))

	// Exactly the whole book.
	px, err = ImmediateExecutionPrice(side, d("105"))
	require.NoError(t, err)
	assert.True(t, px.Round(10).Equal(d("10.5")), "got %s", px)
}

func TestImmediateExecutionPrice_ZeroTargetIsBestPrice(t *testing.T) {
	side := mustSide(t, domain.SideAsk, "101", "0.5", "102", "1")
	px, err := ImmediateExecutionPrice(side, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, px.Equal(d("101")))
}

func TestImmediateExecutionPrice_EmptySide(t *testing.T) {
	_, err := ImmediateExecutionPrice(domain.BookSide{Side: domain.SideBid}, d("1000"))
	require.Error(t, err)
	var il *domain.InsufficientLiquidityError
	require.True(t, errors.As(err, &il))
	assert.True(t, il.Available.IsZero())
	assert.True(t, errors.Is(err, domain.ErrInsufficientLiquidity))
}

func TestImmediateExecutionPrice_DepthExhausted(t *testing.T) {
	side := mustSide(t, domain.SideBid, "100", "1", "99", "1")
	_, err := ImmediateExecutionPrice(side, d("1000"))
	var il *domain.InsufficientLiquidityError
	require.True(t, errors.As(err, &il))
	assert.True(t, il.Available.Equal(d("199")))
	assert.True(t, il.Target.Equal(d("1000")))
	assert.Equal(t, domain.SideBid, il.Side)
}

func TestImmediateExecutionPrice_NegativeTarget(t *testing.T) {
	side := mustSide(t, domain.SideBid, "100", "1")
	_, err := ImmediateExecutionPrice(side, d("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidNotional)
}

func TestImmediateExecutionPrice_BoundedByBestAndBoundary(t *testing.T) {
	books := []domain.BookSide{
		mustSide(t, domain.SideBid, "100", "1", "99.5", "2", "98", "10"),
		mustSide(t, domain.SideAsk, "0.5012", "300", "0.5013", "100", "0.52", "10000"),
		mustSide(t, domain.SideAsk, "25000", "0.01", "25010", "0.02", "25100", "1"),
		mustSide(t, domain.SideBid, "7", "1", "7", "1", "7", "1"),
	}
	for _, book := range books {
		depth := book.Depth()
		for _, frac := range []string{"0", "0.01", "0.1", "0.33", "0.5", "0.77", "0.99", "1"} {
			target := depth.Mul(d(frac))
			px, err := ImmediateExecutionPrice(book, target)
			require.NoError(t, err, "target %s", target)

			best := book.Levels[0].Price
			boundary := boundaryPrice(book, target)
			lo, hi := decimal.Min(best, boundary), decimal.Max(best, boundary)
			pr := px.Round(10)
			assert.True(t, pr.GreaterThanOrEqual(lo.Round(10)) && pr.LessThanOrEqual(hi.Round(10)),
				"price %s outside [%s, %s] for target %s", px, lo, hi, target)
		}
	}
}

func TestImmediateExecutionPrice_MonotoneInTarget(t *testing.T) {
	bids := mustSide(t, domain.SideBid, "100", "1", "99", "2", "97", "3", "90", "10")
	asks := mustSide(t, domain.SideAsk, "101", "1", "102", "2", "104", "3", "110", "10")

	prevBid, prevAsk := d("1e9"), decimal.Zero
	for target := int64(0); target <= 1200; target += 25 {
		bp, err := ImmediateExecutionPrice(bids, decimal.NewFromInt(target))
		require.NoError(t, err)
		ap, err := ImmediateExecutionPrice(asks, decimal.NewFromInt(target))
		require.NoError(t, err)

		assert.True(t, bp.Round(10).LessThanOrEqual(prevBid.Round(10)), "bid price rose at %d", target)
		assert.True(t, ap.Round(10).GreaterThanOrEqual(prevAsk.Round(10)), "ask price fell at %d", target)
		prevBid, prevAsk = bp, ap
	}
}

func boundaryPrice(side domain.BookSide, target decimal.Decimal) decimal.Decimal {
	cum := decimal.Zero
	for _, l := range side.Levels {
		cum = cum.Add(l.Notional())
		if cum.GreaterThanOrEqual(target) {
			return l.Price
		}
	}
	return side.Levels[len(side.Levels)-1].Price
}
