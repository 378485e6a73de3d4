package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. It is also
// a domain.SnapshotSink so the scheduler can write to it directly.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var (
	_ domain.SnapshotStore = (*SnapshotStore)(nil)
	_ domain.SnapshotSink  = (*SnapshotStore)(nil)
)

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Numerics are moved as text so no precision is lost in either direction.
const snapshotSelectCols = `id, symbol, venue_a, venue_b,
	venue_a_mid::text, venue_b_mid::text, mid_spread_pct::text,
	direction, tiers, actionable, bucket_key, observed_at, no_quote`

// Name implements domain.SnapshotSink.
func (s *SnapshotStore) Name() string { return "postgres" }

// Append implements domain.SnapshotSink by stamping the bucket key on every
// snapshot and inserting the batch.
func (s *SnapshotStore) Append(ctx context.Context, snaps []domain.OpportunitySnapshot, bucketKey string) error {
	stamped := make([]domain.OpportunitySnapshot, len(snaps))
	for i, snap := range snaps {
		snap.BucketKey = bucketKey
		stamped[i] = snap
	}
	return s.InsertBatch(ctx, stamped)
}

// InsertBatch inserts snapshots using a pgx Batch. Re-inserting an ID is a
// no-op.
func (s *SnapshotStore) InsertBatch(ctx context.Context, snaps []domain.OpportunitySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	const query = `
		INSERT INTO opportunity_snapshots (
			id, symbol, venue_a, venue_b,
			venue_a_mid, venue_b_mid, mid_spread_pct,
			direction, tiers, actionable, bucket_key, observed_at, no_quote
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7::numeric,
			$8, $9, $10, $11, $12, $13
		) ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, snap := range snaps {
		tiers, err := json.Marshal(snap.Tiers)
		if err != nil {
			return fmt.Errorf("postgres: marshal tiers for %s: %w", snap.ID, err)
		}
		batch.Queue(query,
			snap.ID, snap.Symbol, snap.VenueA, snap.VenueB,
			snap.VenueAMid.String(), snap.VenueBMid.String(), snap.MidSpreadPct.String(),
			string(snap.Direction), tiers, snap.Actionable, snap.BucketKey, snap.ObservedAt, snap.NoQuote,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert snapshot batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRecent returns snapshots newest first, filtered by opts.
func (s *SnapshotStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunitySnapshot, error) {
	query, args := recentQuery(opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent snapshots: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent snapshots: %w", err)
	}
	return snaps, nil
}

func recentQuery(opts domain.ListOpts) (string, []any) {
	var w whereBuilder
	if opts.Since != nil {
		w.add("observed_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		w.add("observed_at <= ?", *opts.Until)
	}
	if opts.Symbol != "" {
		w.add("symbol = ?", opts.Symbol)
	}
	if opts.ActionableOnly {
		w.add("actionable")
	}
	query := `SELECT ` + snapshotSelectCols + ` FROM opportunity_snapshots` +
		w.where() + ` ORDER BY observed_at DESC` + w.page(opts.Limit, opts.Offset)
	return query, w.args
}

// ListBefore returns snapshots observed strictly before the cutoff, oldest
// first. limit <= 0 returns every matching row.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.OpportunitySnapshot, error) {
	var w whereBuilder
	w.add("observed_at < ?", before)
	query := `SELECT ` + snapshotSelectCols + ` FROM opportunity_snapshots` +
		w.where() + ` ORDER BY observed_at ASC` + w.page(limit, 0)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before: %w", err)
	}
	defer rows.Close()

	snaps, err := scanSnapshotRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshots before: %w", err)
	}
	return snaps, nil
}

// DeleteBefore removes snapshots observed strictly before the cutoff and
// returns how many rows were deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunity_snapshots WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSnapshotRows(rows pgx.Rows) ([]domain.OpportunitySnapshot, error) {
	var snaps []domain.OpportunitySnapshot
	for rows.Next() {
		var (
			snap               domain.OpportunitySnapshot
			aMid, bMid, spread string
			direction          string
			tiers              []byte
		)
		if err := rows.Scan(
			&snap.ID, &snap.Symbol, &snap.VenueA, &snap.VenueB,
			&aMid, &bMid, &spread,
			&direction, &tiers, &snap.Actionable, &snap.BucketKey, &snap.ObservedAt, &snap.NoQuote,
		); err != nil {
			return nil, err
		}

		var err error
		if snap.VenueAMid, err = decimal.NewFromString(aMid); err != nil {
			return nil, fmt.Errorf("snapshot %s venue_a_mid: %w", snap.ID, err)
		}
		if snap.VenueBMid, err = decimal.NewFromString(bMid); err != nil {
			return nil, fmt.Errorf("snapshot %s venue_b_mid: %w", snap.ID, err)
		}
		if snap.MidSpreadPct, err = decimal.NewFromString(spread); err != nil {
			return nil, fmt.Errorf("snapshot %s mid_spread_pct: %w", snap.ID, err)
		}
		snap.Direction = domain.Direction(direction)
		if len(tiers) > 0 {
			if err := json.Unmarshal(tiers, &snap.Tiers); err != nil {
				return nil, fmt.Errorf("snapshot %s tiers: %w", snap.ID, err)
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
