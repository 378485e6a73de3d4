package orderbook

import (
	"github.com/shopspring/decimal"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// ImmediateExecutionPrice returns the volume-weighted average price paid (or
// received) when filling target notional by walking side from the best level.
//
// If the best level alone covers target, its price is returned as is. Otherwise
// every level before the boundary is taken whole and the boundary level
// contributes only the residual notional, converted to quantity at its price.
// A side that cannot absorb target yields *domain.InsufficientLiquidityError.
func ImmediateExecutionPrice(side domain.BookSide, target decimal.Decimal) (decimal.Decimal, error) {
	if target.IsNegative() {
		return decimal.Zero, domain.ErrInvalidNotional
	}
	if len(side.Levels) == 0 {
		return decimal.Zero, &domain.InsufficientLiquidityError{
			Side:      side.Side,
			Target:    target,
			Available: decimal.Zero,
		}
	}

	cumNotional := decimal.Zero
	cumQty := decimal.Zero
	for k, lvl := range side.Levels {
		notional := lvl.Notional()
		if cumNotional.Add(notional).GreaterThanOrEqual(target) {
			if k == 0 {
				return lvl.Price, nil
			}
			residualQty := target.Sub(cumNotional).Div(lvl.Price)
			return target.Div(cumQty.Add(residualQty)), nil
		}
		cumNotional = cumNotional.Add(notional)
		cumQty = cumQty.Add(lvl.Quantity)
	}

	return decimal.Zero, &domain.InsufficientLiquidityError{
		Side:      side.Side,
		Target:    target,
		Available: cumNotional,
	}
}
