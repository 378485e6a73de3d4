package s3blob

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// SnapshotArchiveStore is the read side the archiver needs from the primary
// store.
type SnapshotArchiveStore interface {
	// ListBefore returns snapshots observed strictly before the cutoff,
	// oldest first. limit <= 0 means no limit.
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.OpportunitySnapshot, error)
}

// ArchiveImpl implements domain.Archiver by copying old snapshot rows to
// monthly JSONL objects at archive/opportunity_snapshots/YYYY-MM.jsonl.
//
// Rows are not deleted here. Pruning the primary store is a separate step
// run after the upload succeeds.
type ArchiveImpl struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	store  SnapshotArchiveStore
	audit  domain.AuditStore
	prefix string
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	reader domain.BlobReader,
	writer domain.BlobWriter,
	store SnapshotArchiveStore,
	audit domain.AuditStore,
	prefix string,
) *ArchiveImpl {
	return &ArchiveImpl{
		reader: reader,
		writer: writer,
		store:  store,
		audit:  audit,
		prefix: prefix,
	}
}

// ArchiveSnapshots uploads every snapshot observed before the cutoff,
// grouped by the UTC month it was observed in. An existing month object is
// extended with the rows whose IDs it does not already hold, so repeated runs
// over rows that were never pruned add nothing. The event is recorded in the
// audit log and the count of newly archived rows is returned.
func (a *ArchiveImpl) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.store.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.OpportunitySnapshot)
	for _, s := range snaps {
		m := s.ObservedAt.UTC().Format("2006-01")
		byMonth[m] = append(byMonth[m], s)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	var (
		count int64
		paths []string
	)
	for _, m := range months {
		path := a.archivePath(m)
		existing, err := readObject(ctx, a.reader, path)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive snapshots read %s: %w", path, err)
		}
		fresh := unarchived(byMonth[m], jsonlIDs(existing))
		if len(fresh) == 0 {
			continue
		}

		lines, err := marshalJSONL(fresh)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
		}
		if _, err := writeObject(ctx, a.writer, path, existing, lines); err != nil {
			return count, fmt.Errorf("s3blob: archive snapshots upload %s: %w", path, err)
		}
		count += int64(len(fresh))
		paths = append(paths, path)
	}
	if count == 0 {
		return 0, nil
	}

	if err := a.audit.Log(ctx, "archive.opportunity_snapshots", map[string]any{
		"paths":  paths,
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive snapshots audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the key for one month of archived snapshots.
//
//	archive/opportunity_snapshots/2025-01.jsonl
func (a *ArchiveImpl) archivePath(month string) string {
	return joinKey(a.prefix, "archive", "opportunity_snapshots", month+".jsonl")
}

// unarchived drops snapshots whose ID is in seen. Rows without an ID are
// always kept.
func unarchived(snaps []domain.OpportunitySnapshot, seen map[string]struct{}) []domain.OpportunitySnapshot {
	out := snaps[:0:0]
	for _, s := range snaps {
		if _, ok := seen[s.ID]; ok && s.ID != "" {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
