// Package hyperliquid is a read-only client for the Hyperliquid info API.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/venue"
)

// VenueName is the registry name of this venue.
const VenueName = "hyperliquid"

// DefaultBaseURL is the mainnet API root.
const DefaultBaseURL = "https://api.hyperliquid.xyz"

// Client queries public market data from Hyperliquid.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	mu    sync.RWMutex
	coins map[string]string // canonical symbol -> coin name as listed
}

var _ domain.Venue = (*Client)(nil)

// NewClient creates a new Hyperliquid info client. timeout bounds each HTTP
// round trip; zero means 30s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		coins:      make(map[string]string),
	}
}

// Name returns the venue name.
func (c *Client) Name() string { return VenueName }

// ListSymbols returns the canonical symbol of every perp coin with a mid
// price. Spot entries ("@n" indices and "BASE/QUOTE" pairs) are excluded.
// Coin names are case-sensitive ("kPEPE"), so the listed name is remembered
// for FetchBook.
func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	body, err := c.doInfo(ctx, "allMids", infoRequest{Type: "allMids"})
	if err != nil {
		return nil, err
	}

	var mids map[string]string
	if err := json.Unmarshal(body, &mids); err != nil {
		return nil, &domain.VenueConnectivityError{Venue: VenueName, Op: "allMids", Err: fmt.Errorf("decode: %w", err)}
	}

	coins := make(map[string]string, len(mids))
	for coin := range mids {
		if strings.HasPrefix(coin, "@") || strings.Contains(coin, "/") {
			continue
		}
		sym := venue.CanonicalSymbol(coin)
		// On a collision the canonically spelled coin wins, then the
		// lexically smaller one.
		if prev, exists := coins[sym]; exists && (prev == sym || (coin != sym && prev < coin)) {
			continue
		}
		coins[sym] = coin
	}

	c.mu.Lock()
	c.coins = coins
	c.mu.Unlock()

	symbols := make([]string, 0, len(coins))
	for s := range coins {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// FetchBook returns the current L2 book for symbol. Symbols seen by
// ListSymbols are requested under their listed coin name.
func (c *Client) FetchBook(ctx context.Context, symbol string) (domain.RawBook, error) {
	coin := c.coinFor(symbol)
	body, err := c.doInfo(ctx, "l2Book", infoRequest{Type: "l2Book", Coin: coin})
	if err != nil {
		return domain.RawBook{}, err
	}

	var book *L2Book
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.RawBook{}, &domain.MalformedBookError{Venue: VenueName, Symbol: symbol, Reason: "decode l2Book", Err: err}
	}
	if book == nil {
		return domain.RawBook{}, &domain.MalformedBookError{Venue: VenueName, Symbol: symbol, Reason: "unknown coin"}
	}
	if len(book.Levels) != 2 {
		return domain.RawBook{}, &domain.MalformedBookError{
			Venue:  VenueName,
			Symbol: symbol,
			Reason: fmt.Sprintf("expected 2 level arrays, got %d", len(book.Levels)),
		}
	}

	captured := c.now().UTC()
	if book.Time > 0 {
		captured = time.UnixMilli(book.Time).UTC()
	}
	return domain.RawBook{
		Bids:       toRaw(book.Levels[0]),
		Asks:       toRaw(book.Levels[1]),
		CapturedAt: captured,
	}, nil
}

func (c *Client) coinFor(symbol string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if coin, ok := c.coins[symbol]; ok {
		return coin
	}
	return symbol
}

func toRaw(levels []L2Level) []domain.RawLevel {
	out := make([]domain.RawLevel, len(levels))
	for i, l := range levels {
		out[i] = domain.RawLevel{Price: l.Px, Quantity: l.Sz}
	}
	return out
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doInfo POSTs a request to /info and returns the response body.
func (c *Client) doInfo(ctx context.Context, op string, reqBody infoRequest) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: marshal %s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.VenueConnectivityError{Venue: VenueName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.VenueConnectivityError{Venue: VenueName, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if err := checkStatus(op, resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to domain errors.
func checkStatus(op string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &domain.VenueConnectivityError{Venue: VenueName, Op: op,
			Err: fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &domain.VenueConnectivityError{Venue: VenueName, Op: op,
			Err: fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)}
	case statusCode >= 500:
		return &domain.VenueConnectivityError{Venue: VenueName, Op: op,
			Err: fmt.Errorf("HTTP %d: %s", statusCode, msg)}
	default:
		return fmt.Errorf("hyperliquid: %s: HTTP %d: %s", op, statusCode, msg)
	}
}
