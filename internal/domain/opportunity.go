package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction names which way a dislocation would be traded.
type Direction string

const (
	// DirectionSellABuyB prices venue A's bids against venue B's asks.
	DirectionSellABuyB Direction = "sell_a_buy_b"
	// DirectionBuyASellB prices venue A's asks against venue B's bids.
	DirectionBuyASellB Direction = "buy_a_sell_b"
)

// Sides returns the book side to walk on venue A and venue B.
func (d Direction) Sides() (a, b Side) {
	if d == DirectionBuyASellB {
		return SideAsk, SideBid
	}
	return SideBid, SideAsk
}

// TierQuote is the execution-aware comparison for one notional tier.
type TierQuote struct {
	Notional        decimal.Decimal `json:"notional"`
	VenueAExecPrice decimal.Decimal `json:"venue_a_exec_price"`
	VenueBExecPrice decimal.Decimal `json:"venue_b_exec_price"`
	ExecSpreadPct   decimal.Decimal `json:"exec_spread_pct"`
	Available       bool            `json:"available"`
	Unavailable     string          `json:"unavailable,omitempty"`
}

// OpportunitySnapshot is the scored comparison of one symbol across both
// venues at one point in time.
type OpportunitySnapshot struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	VenueA       string          `json:"venue_a"`
	VenueB       string          `json:"venue_b"`
	VenueAMid    decimal.Decimal `json:"venue_a_mid"`
	VenueBMid    decimal.Decimal `json:"venue_b_mid"`
	MidSpreadPct decimal.Decimal `json:"mid_spread_pct"`
	Direction    Direction       `json:"direction"`
	Tiers        []TierQuote     `json:"tiers"`
	Actionable   bool            `json:"actionable"`
	BucketKey    string          `json:"bucket_key,omitempty"`
	ObservedAt   time.Time       `json:"observed_at"`
	// NoQuote marks a row recorded for a symbol where a venue had an empty
	// bid or ask side. Its missing mids are zero and it has no direction or
	// tiers.
	NoQuote bool `json:"no_quote,omitempty"`
}

// Tier returns the quote for the given notional.
func (o OpportunitySnapshot) Tier(notional decimal.Decimal) (TierQuote, bool) {
	for _, t := range o.Tiers {
		if t.Notional.Equal(notional) {
			return t, true
		}
	}
	return TierQuote{}, false
}

// CycleSummary is published once per completed scan cycle.
type CycleSummary struct {
	Cycle         int64     `json:"cycle"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Universe      int       `json:"universe"`
	Scored        int       `json:"scored"`
	Skipped       int       `json:"skipped"`
	Opportunities int       `json:"opportunities"`
	BucketKey     string    `json:"bucket_key"`
}
