// Package orderbook turns venue book payloads into validated decimal book
// sides and walks them to price an immediate fill of a given notional.
package orderbook

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// Normalize parses raw venue levels into a BookSide, keeping the venue's
// order. Zero-quantity levels are dropped. An empty input yields an empty side.
//
// The returned error is always a *domain.MalformedBookError; callers fill in
// Venue and Symbol.
func Normalize(side domain.Side, raw []domain.RawLevel) (domain.BookSide, error) {
	if side != domain.SideBid && side != domain.SideAsk {
		return domain.BookSide{}, &domain.MalformedBookError{Reason: fmt.Sprintf("unknown side %q", side)}
	}

	out := domain.BookSide{Side: side, Levels: make([]domain.PriceLevel, 0, len(raw))}
	for i, r := range raw {
		price, err := decimal.NewFromString(strings.TrimSpace(r.Price))
		if err != nil {
			return domain.BookSide{}, &domain.MalformedBookError{
				Reason: fmt.Sprintf("%s level %d: price %q", side, i, r.Price),
				Err:    err,
			}
		}
		qty, err := decimal.NewFromString(strings.TrimSpace(r.Quantity))
		if err != nil {
			return domain.BookSide{}, &domain.MalformedBookError{
				Reason: fmt.Sprintf("%s level %d: quantity %q", side, i, r.Quantity),
				Err:    err,
			}
		}
		if !price.IsPositive() {
			return domain.BookSide{}, &domain.MalformedBookError{
				Reason: fmt.Sprintf("%s level %d: non-positive price %s", side, i, price),
			}
		}
		if qty.IsNegative() {
			return domain.BookSide{}, &domain.MalformedBookError{
				Reason: fmt.Sprintf("%s level %d: negative quantity %s", side, i, qty),
			}
		}
		if qty.IsZero() {
			continue
		}
		if n := len(out.Levels); n > 0 && side.Better(price, out.Levels[n-1].Price) {
			return domain.BookSide{}, &domain.MalformedBookError{
				Reason: fmt.Sprintf("%s level %d: price %s improves on previous level %s",
					side, i, price, out.Levels[n-1].Price),
			}
		}
		out.Levels = append(out.Levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return out, nil
}

// NormalizeBook normalizes both sides of a raw book into a snapshot.
func NormalizeBook(venue, symbol string, raw domain.RawBook) (domain.BookSnapshot, error) {
	bid, err := Normalize(domain.SideBid, raw.Bids)
	if err != nil {
		return domain.BookSnapshot{}, annotate(err, venue, symbol)
	}
	ask, err := Normalize(domain.SideAsk, raw.Asks)
	if err != nil {
		return domain.BookSnapshot{}, annotate(err, venue, symbol)
	}
	return domain.BookSnapshot{
		Venue:      venue,
		Symbol:     symbol,
		Bid:        bid,
		Ask:        ask,
		CapturedAt: raw.CapturedAt,
	}, nil
}

func annotate(err error, venue, symbol string) error {
	if mb, ok := err.(*domain.MalformedBookError); ok {
		mb.Venue = venue
		mb.Symbol = symbol
		return mb
	}
	return err
}
