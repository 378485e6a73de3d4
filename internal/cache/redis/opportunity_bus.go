package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// Channel and stream names shared by the scanner and the API server.
const (
	ChannelOpportunities = "arbscan:opportunities"
	ChannelStatus        = "arbscan:status"
	StreamSnapshots      = "arbscan:snapshots"
	StreamCycles         = "arbscan:cycles"
)

// OpportunityBus fans scored snapshots and cycle summaries out over a
// SignalBus. Every snapshot is appended to StreamSnapshots; actionable ones
// are also published on ChannelOpportunities for live WebSocket clients.
type OpportunityBus struct {
	bus domain.SignalBus
}

var _ domain.SnapshotSink = (*OpportunityBus)(nil)

// NewOpportunityBus creates an OpportunityBus over bus.
func NewOpportunityBus(bus domain.SignalBus) *OpportunityBus {
	return &OpportunityBus{bus: bus}
}

// Name implements domain.SnapshotSink.
func (b *OpportunityBus) Name() string { return "redis" }

// Append implements domain.SnapshotSink. A failure on one snapshot does not
// stop the rest; all failures are joined.
func (b *OpportunityBus) Append(ctx context.Context, snaps []domain.OpportunitySnapshot, bucketKey string) error {
	var errs []error
	for _, snap := range snaps {
		snap.BucketKey = bucketKey
		payload, err := json.Marshal(snap)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal %s: %w", snap.Symbol, err))
			continue
		}
		if err := b.bus.StreamAppend(ctx, StreamSnapshots, payload); err != nil {
			errs = append(errs, err)
		}
		if snap.Actionable {
			if err := b.bus.Publish(ctx, ChannelOpportunities, payload); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("redis: opportunity bus append: %w", errors.Join(errs...))
	}
	return nil
}

// CycleCompleted publishes the summary on ChannelStatus and records it in
// StreamCycles so a separate API process can serve the latest status.
func (b *OpportunityBus) CycleCompleted(ctx context.Context, summary domain.CycleSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("redis: marshal cycle summary: %w", err)
	}
	return errors.Join(
		b.bus.Publish(ctx, ChannelStatus, payload),
		b.bus.StreamAppend(ctx, StreamCycles, payload),
	)
}

// LatestCycle returns the newest cycle summary. ok is false if no cycle has
// been recorded yet.
func (b *OpportunityBus) LatestCycle(ctx context.Context) (summary domain.CycleSummary, ok bool, err error) {
	msg, ok, err := b.bus.StreamLatest(ctx, StreamCycles)
	if err != nil || !ok {
		return domain.CycleSummary{}, false, err
	}
	if err := json.Unmarshal(msg.Payload, &summary); err != nil {
		return domain.CycleSummary{}, false, fmt.Errorf("redis: decode cycle summary %s: %w", msg.ID, err)
	}
	return summary, true, nil
}
