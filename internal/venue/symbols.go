package venue

import (
	"sort"
	"strings"
)

// aliases maps venue-specific base asset codes to the common ticker.
var aliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// CanonicalSymbol upper-cases a base asset code and resolves known aliases.
func CanonicalSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if a, ok := aliases[s]; ok {
		return a
	}
	return s
}

// Intersect returns the symbols present in both lists, deduplicated and
// sorted. If allow is non-empty only symbols in it are kept.
func Intersect(a, b []string, allow []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, s := range b {
		inB[CanonicalSymbol(s)] = struct{}{}
	}
	var allowed map[string]struct{}
	if len(allow) > 0 {
		allowed = make(map[string]struct{}, len(allow))
		for _, s := range allow {
			allowed[CanonicalSymbol(s)] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, s := range a {
		c := CanonicalSymbol(s)
		if _, ok := inB[c]; !ok {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[c]; !ok {
				continue
			}
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
