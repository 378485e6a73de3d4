// Package pipeline holds the scanner's background jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// SnapshotPruner deletes snapshot rows that have been archived.
type SnapshotPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiverConfig controls an archive run.
type ArchiverConfig struct {
	RetentionDays int
	// Prune deletes archived rows from the database after a successful run.
	Prune bool
}

// Archiver moves snapshot rows older than the retention window from the
// database to S3 cold storage.
type Archiver struct {
	blobArchiver domain.Archiver
	pruner       SnapshotPruner
	cfg          ArchiverConfig
	now          func() time.Time
	logger       *slog.Logger
}

// NewArchiver creates a new Archiver. pruner may be nil when cfg.Prune is
// false.
func NewArchiver(blobArchiver domain.Archiver, pruner SnapshotPruner, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver: blobArchiver,
		pruner:       pruner,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff returns the instant before which rows are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().Add(-time.Duration(a.cfg.RetentionDays) * 24 * time.Hour)
}

// Run executes a single archive run and returns the number of archived rows.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff()
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.cfg.RetentionDays),
	)

	archived, err := a.blobArchiver.ArchiveSnapshots(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pipeline: archive snapshots before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	var pruned int64
	if a.cfg.Prune && a.pruner != nil {
		pruned, err = a.pruner.DeleteBefore(ctx, cutoff)
		if err != nil {
			return archived, fmt.Errorf("pipeline: prune snapshots before %s: %w", cutoff.Format(time.RFC3339), err)
		}
	}

	a.logger.Info("archive run complete",
		slog.Int64("archived", archived),
		slog.Int64("pruned", pruned),
	)
	return archived, nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "0 3 1 * *" runs at 3:00 AM on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: parse cron %q: %w", cronExpr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := cron.next(a.now())
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}

		wait := next.Sub(a.now())
		a.logger.Debug("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField matches one time component. A nil set matches everything.
type cronField struct {
	set map[int]bool
}

func (f cronField) matches(val int) bool {
	return f.set == nil || f.set[val]
}

// parseCronField parses a single cron field: "*", "5", "1,15", "1-5" or a
// step such as "*/15" or "0-30/10".
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{}, nil
	}

	set := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("invalid step %q", part)
			}
			step = n
		}

		start, end := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var errA, errB error
			start, errA = strconv.Atoi(a)
			end, errB = strconv.Atoi(b)
			if errA != nil || errB != nil {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			start = v
			if !hasStep {
				end = v
			}
		}
		if start < lo || end > hi || start > end {
			return cronField{}, fmt.Errorf("value %q out of range %d-%d", part, lo, hi)
		}
		for v := start; v <= end; v += step {
			set[v] = true
		}
	}
	return cronField{set: set}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}

	return parsedCron{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// next returns the first minute strictly after 'after' that matches. It
// searches up to one year ahead.
func (c parsedCron) next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if c.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year")
}

// ValidateCron reports whether expr is a usable 5-field cron expression.
func ValidateCron(expr string) error {
	_, err := parseCron(expr)
	return err
}
