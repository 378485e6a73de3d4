package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit          int
	Offset         int
	Since          *time.Time
	Until          *time.Time
	ActionableOnly bool
	Symbol         string
	// Event filters audit entries by exact event name.
	Event string
}

// SnapshotStore persists scored opportunity snapshots.
type SnapshotStore interface {
	InsertBatch(ctx context.Context, snaps []OpportunitySnapshot) error
	ListRecent(ctx context.Context, opts ListOpts) ([]OpportunitySnapshot, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]OpportunitySnapshot, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
