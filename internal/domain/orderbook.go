package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one half of an order book.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Better reports whether price a is strictly better than b on this side:
// higher for bids, lower for asks.
func (s Side) Better(a, b decimal.Decimal) bool {
	if s == SideBid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// RawLevel is a price level as the venue sent it.
type RawLevel struct {
	Price    string
	Quantity string
}

// RawBook is an unnormalized book fetched from a venue.
type RawBook struct {
	Bids       []RawLevel
	Asks       []RawLevel
	CapturedAt time.Time
}

// PriceLevel is a single price+quantity entry in a book side.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Notional returns price * quantity.
func (l PriceLevel) Notional() decimal.Decimal {
	return l.Price.Mul(l.Quantity)
}

// BookSide is an ordered sequence of levels, best price first.
type BookSide struct {
	Side   Side         `json:"side"`
	Levels []PriceLevel `json:"levels"`
}

// Empty reports whether the side has no liquidity.
func (b BookSide) Empty() bool { return len(b.Levels) == 0 }

// Best returns the top-of-book level.
func (b BookSide) Best() (PriceLevel, bool) {
	if len(b.Levels) == 0 {
		return PriceLevel{}, false
	}
	return b.Levels[0], true
}

// Depth returns the total notional resting on the side.
func (b BookSide) Depth() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Levels {
		total = total.Add(l.Notional())
	}
	return total
}

// Raw renders the side back to venue wire form.
func (b BookSide) Raw() []RawLevel {
	out := make([]RawLevel, len(b.Levels))
	for i, l := range b.Levels {
		out[i] = RawLevel{Price: l.Price.String(), Quantity: l.Quantity.String()}
	}
	return out
}

// BookSnapshot is one venue's normalized book for one symbol, captured once
// per scan cycle.
type BookSnapshot struct {
	Venue      string    `json:"venue"`
	Symbol     string    `json:"symbol"`
	Bid        BookSide  `json:"bid"`
	Ask        BookSide  `json:"ask"`
	CapturedAt time.Time `json:"captured_at"`
}

// Mid returns (best bid + best ask) / 2. ok is false if either side is empty.
func (s BookSnapshot) Mid() (mid decimal.Decimal, ok bool) {
	bid, okBid := s.Bid.Best()
	ask, okAsk := s.Ask.Best()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// SideOf returns the requested book side.
func (s BookSnapshot) SideOf(side Side) BookSide {
	if side == SideBid {
		return s.Bid
	}
	return s.Ask
}
