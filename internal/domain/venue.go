package domain

import "context"

// Venue is a read-only market data source.
type Venue interface {
	Name() string
	// ListSymbols returns normalized base symbols (e.g. "BTC", "ETH").
	ListSymbols(ctx context.Context) ([]string, error)
	FetchBook(ctx context.Context, symbol string) (RawBook, error)
}

// VenueFactory builds a fresh venue handle. The scanner calls it at start and
// again on every reconnect.
type VenueFactory func(ctx context.Context) (Venue, error)
