package domain

import (
	"context"
	"time"
)

// BookMirror keeps the latest normalized book per venue and symbol.
type BookMirror interface {
	SetSnapshot(ctx context.Context, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, venue, symbol string) (BookSnapshot, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	// StreamLatest returns the newest entry; ok is false for an empty stream.
	StreamLatest(ctx context.Context, stream string) (msg StreamMessage, ok bool, err error)
}
