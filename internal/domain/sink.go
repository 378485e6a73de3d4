package domain

import "context"

// Alert event names understood by notifiers.
const (
	EventOpportunity = "opportunity"
	EventScanError   = "scan_error"
	EventReconnect   = "reconnect"
)

// AlertSink delivers human-readable alerts.
type AlertSink interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SnapshotSink persists scored snapshots under a time bucket key.
type SnapshotSink interface {
	Name() string
	Append(ctx context.Context, snaps []OpportunitySnapshot, bucketKey string) error
}
