package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// BookMirror implements domain.BookMirror. Each fetch overwrites the previous
// book for the same venue and symbol.
//
// Key schema:
//
//	book:{venue}:{symbol}:levels - JSON of the normalized BookSnapshot
//	book:{venue}:{symbol}:bbo    - hash with "bid", "ask", "mid" and "ts"
type BookMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.BookMirror = (*BookMirror)(nil)

// NewBookMirror creates a BookMirror. Entries expire after ttl; 0 keeps them
// until overwritten.
func NewBookMirror(c *Client, ttl time.Duration) *BookMirror {
	return &BookMirror{rdb: c.Underlying(), ttl: ttl}
}

func bookLevelsKey(venue, symbol string) string { return "book:" + venue + ":" + symbol + ":levels" }
func bookBBOKey(venue, symbol string) string    { return "book:" + venue + ":" + symbol + ":bbo" }

// SetSnapshot replaces the mirrored book atomically.
func (m *BookMirror) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	levels, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s/%s: %w", snap.Venue, snap.Symbol, err)
	}

	levelsKey := bookLevelsKey(snap.Venue, snap.Symbol)
	bboKey := bookBBOKey(snap.Venue, snap.Symbol)

	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, levelsKey, levels, m.ttl)
	pipe.Del(ctx, bboKey)
	pipe.HSet(ctx, bboKey, bboFields(snap))
	if m.ttl > 0 {
		pipe.Expire(ctx, bboKey, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s/%s: %w", snap.Venue, snap.Symbol, err)
	}
	return nil
}

// GetSnapshot returns the mirrored book or domain.ErrNotFound.
func (m *BookMirror) GetSnapshot(ctx context.Context, venue, symbol string) (domain.BookSnapshot, error) {
	raw, err := m.rdb.Get(ctx, bookLevelsKey(venue, symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book %s/%s: %w", venue, symbol, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: decode book %s/%s: %w", venue, symbol, err)
	}
	return snap, nil
}

// bboFields flattens the top of book for cheap HGETALL reads by dashboards.
func bboFields(snap domain.BookSnapshot) map[string]any {
	fields := map[string]any{
		"ts": snap.CapturedAt.UnixMilli(),
	}
	if best, ok := snap.Bid.Best(); ok {
		fields["bid"] = best.Price.String()
	}
	if best, ok := snap.Ask.Best(); ok {
		fields["ask"] = best.Price.String()
	}
	if mid, ok := snap.Mid(); ok {
		fields["mid"] = mid.String()
	}
	return fields
}
