package arbitrage

import (
	"strings"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// FormatOpportunity renders an alert title and body for an actionable
// snapshot. Numbers are rounded to one decimal here and nowhere else.
//
// Body first line: "<SYM> opportunity detected with <mid%>, <tier1%>, <tier2%>",
// then one line per tier with both execution prices.
func FormatOpportunity(s domain.OpportunitySnapshot) (title, body string) {
	var b strings.Builder
	b.WriteString(s.Symbol)
	b.WriteString(" opportunity detected with ")
	b.WriteString(s.MidSpreadPct.StringFixed(1))
	for _, t := range s.Tiers {
		b.WriteString(", ")
		if t.Available {
			b.WriteString(t.ExecSpreadPct.StringFixed(1))
		} else {
			b.WriteString("n/a")
		}
	}
	b.WriteString("\n")
	b.WriteString(string(s.Direction))
	b.WriteString(": ")
	b.WriteString(s.VenueA + " mid " + s.VenueAMid.String())
	b.WriteString(", ")
	b.WriteString(s.VenueB + " mid " + s.VenueBMid.String())
	for _, t := range s.Tiers {
		b.WriteString("\n")
		b.WriteString(t.Notional.String())
		b.WriteString(": ")
		if !t.Available {
			b.WriteString("unavailable (" + t.Unavailable + ")")
			continue
		}
		b.WriteString(s.VenueA + "=" + t.VenueAExecPrice.StringFixed(6))
		b.WriteString(" " + s.VenueB + "=" + t.VenueBExecPrice.StringFixed(6))
		b.WriteString(" spread=" + t.ExecSpreadPct.StringFixed(1) + "%")
	}
	return s.Symbol + " opportunity", b.String()
}

// Truncate cuts msg to at most max runes.
func Truncate(msg string, max int) string {
	if max <= 0 {
		return msg
	}
	r := []rune(msg)
	if len(r) <= max {
		return msg
	}
	return string(r[:max])
}
