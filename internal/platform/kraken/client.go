// Package kraken is a read-only client for Kraken's public spot REST API.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/venue"
)

// VenueName is the registry name of this venue.
const VenueName = "kraken"

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.kraken.com"

// Config configures a Kraken client.
type Config struct {
	BaseURL    string
	Quote      string // quote currency, e.g. "USD"
	DepthCount int    // levels per side requested from /Depth; 0 lets Kraken decide
	Timeout    time.Duration
}

// Client queries public market data from Kraken.
type Client struct {
	baseURL    string
	quote      string
	depthCount int
	httpClient *http.Client
	now        func() time.Time

	mu    sync.RWMutex
	pairs map[string]string // canonical base symbol -> pair altname
}

var _ domain.Venue = (*Client)(nil)

// NewClient creates a new Kraken REST client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Quote == "" {
		cfg.Quote = "USD"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		quote:      strings.ToUpper(cfg.Quote),
		depthCount: cfg.DepthCount,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		pairs:      make(map[string]string),
	}
}

// Name returns the venue name.
func (c *Client) Name() string { return VenueName }

// ListSymbols returns the canonical base symbols of every online pair quoted
// in the configured currency. The symbol -> pair mapping is remembered for
// FetchBook.
func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	body, err := c.doGet(ctx, "AssetPairs", "/0/public/AssetPairs", nil)
	if err != nil {
		return nil, err
	}

	var resp envelope[map[string]AssetPair]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.VenueConnectivityError{Venue: VenueName, Op: "AssetPairs", Err: fmt.Errorf("decode: %w", err)}
	}
	if err := apiError("AssetPairs", "", resp.Error); err != nil {
		return nil, err
	}

	pairs := make(map[string]string)
	for _, p := range resp.Result {
		if p.Status != "" && p.Status != "online" {
			continue
		}
		base, quote, ok := strings.Cut(p.WSName, "/")
		if !ok || !strings.EqualFold(quote, c.quote) {
			continue
		}
		sym := venue.CanonicalSymbol(base)
		// Prefer the shortest altname when two pairs map to one symbol.
		if prev, exists := pairs[sym]; exists && len(prev) <= len(p.Altname) {
			continue
		}
		pairs[sym] = p.Altname
	}

	c.mu.Lock()
	c.pairs = pairs
	c.mu.Unlock()

	symbols := make([]string, 0, len(pairs))
	for s := range pairs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// FetchBook returns the current depth for symbol against the quote currency.
func (c *Client) FetchBook(ctx context.Context, symbol string) (domain.RawBook, error) {
	pair := c.pairFor(symbol)

	params := url.Values{}
	params.Set("pair", pair)
	if c.depthCount > 0 {
		params.Set("count", strconv.Itoa(c.depthCount))
	}

	body, err := c.doGet(ctx, "Depth", "/0/public/Depth", params)
	if err != nil {
		return domain.RawBook{}, err
	}

	var resp envelope[map[string]Depth]
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawBook{}, &domain.MalformedBookError{Venue: VenueName, Symbol: symbol, Reason: "decode depth", Err: err}
	}
	if err := apiError("Depth", symbol, resp.Error); err != nil {
		return domain.RawBook{}, err
	}
	if len(resp.Result) != 1 {
		return domain.RawBook{}, &domain.MalformedBookError{
			Venue:  VenueName,
			Symbol: symbol,
			Reason: fmt.Sprintf("expected 1 pair in depth result, got %d", len(resp.Result)),
		}
	}

	var depth Depth
	for _, v := range resp.Result {
		depth = v
	}
	return domain.RawBook{
		Bids:       toRaw(depth.Bids),
		Asks:       toRaw(depth.Asks),
		CapturedAt: c.now().UTC(),
	}, nil
}

func (c *Client) pairFor(symbol string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.pairs[symbol]; ok {
		return p
	}
	return symbol + c.quote
}

func toRaw(levels []DepthLevel) []domain.RawLevel {
	out := make([]domain.RawLevel, len(levels))
	for i, l := range levels {
		out[i] = domain.RawLevel{Price: l.Price, Quantity: l.Volume}
	}
	return out
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the public API.
func (c *Client) doGet(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("kraken: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.VenueConnectivityError{Venue: VenueName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.VenueConnectivityError{Venue: VenueName, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if err := checkStatus(op, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
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
		return fmt.Errorf("kraken: %s: HTTP %d: %s", op, statusCode, msg)
	}
}

// apiError maps Kraken's in-body error array. Kraken answers most failures
// with HTTP 200 and a non-empty "error" list.
func apiError(op, symbol string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	joined := strings.Join(errs, "; ")
	for _, e := range errs {
		switch {
		case strings.HasPrefix(e, "EQuery:Unknown asset pair"):
			return &domain.MalformedBookError{Venue: VenueName, Symbol: symbol, Reason: joined}
		case strings.Contains(e, "Rate limit") || strings.Contains(e, "Too many requests"):
			return &domain.VenueConnectivityError{Venue: VenueName, Op: op,
				Err: fmt.Errorf("%w: %s", domain.ErrRateLimited, joined)}
		}
	}
	return &domain.VenueConnectivityError{Venue: VenueName, Op: op, Err: fmt.Errorf("api error: %s", joined)}
}
