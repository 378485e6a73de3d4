package s3blob

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// SnapshotAppender appends each cycle's snapshots to one JSONL object per
// time bucket: <prefix>/snapshots/<bucketKey>.jsonl.
type SnapshotAppender struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	prefix string
	logger *slog.Logger

	mu sync.Mutex
}

var _ domain.SnapshotSink = (*SnapshotAppender)(nil)

// NewSnapshotAppender creates a SnapshotAppender writing under prefix.
func NewSnapshotAppender(r domain.BlobReader, w domain.BlobWriter, prefix string, logger *slog.Logger) *SnapshotAppender {
	return &SnapshotAppender{
		reader: r,
		writer: w,
		prefix: prefix,
		logger: logger.With(slog.String("component", "s3_snapshots")),
	}
}

// Name implements domain.SnapshotSink.
func (a *SnapshotAppender) Name() string { return "s3" }

// Key returns the object key for a bucket.
func (a *SnapshotAppender) Key(bucketKey string) string {
	return joinKey(a.prefix, "snapshots", bucketKey+".jsonl")
}

// Append implements domain.SnapshotSink.
func (a *SnapshotAppender) Append(ctx context.Context, snaps []domain.OpportunitySnapshot, bucketKey string) error {
	if len(snaps) == 0 {
		return nil
	}
	if bucketKey == "" {
		return fmt.Errorf("s3blob: append snapshots: empty bucket key")
	}

	lines, err := marshalJSONL(snaps)
	if err != nil {
		return fmt.Errorf("s3blob: append snapshots marshal: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := a.Key(bucketKey)
	size, err := appendObject(ctx, a.reader, a.writer, key, lines)
	if err != nil {
		return fmt.Errorf("s3blob: append snapshots %s: %w", key, err)
	}

	a.logger.DebugContext(ctx, "snapshots appended",
		slog.String("key", key),
		slog.Int("count", len(snaps)),
		slog.Int64("object_bytes", size),
	)
	return nil
}
