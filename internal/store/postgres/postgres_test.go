package postgres

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/scan?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "scan"}))
	assert.Equal(t, "postgres://u:p@db:6543/scan?sslmode=require",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "scan", SSLMode: "require"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestRecentQueryNoFilters(t *testing.T) {
	q, args := recentQuery(domain.ListOpts{})
	assert.True(t, strings.HasSuffix(q, "FROM opportunity_snapshots ORDER BY observed_at DESC"))
	assert.Empty(t, args)
}

func TestRecentQueryAllFilters(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)
	q, args := recentQuery(domain.ListOpts{
		Since:          &since,
		Until:          &until,
		Symbol:         "BTC",
		ActionableOnly: true,
		Limit:          50,
		Offset:         10,
	})

	assert.Contains(t, q, " WHERE observed_at >= $1 AND observed_at <= $2 AND symbol = $3 AND actionable ORDER BY observed_at DESC LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{since, until, "BTC", 50, 10}, args)
}

func TestWhereBuilderPageOnly(t *testing.T) {
	var w whereBuilder
	assert.Equal(t, "", w.where())
	assert.Equal(t, " LIMIT $1", w.page(5, 0))
	assert.Equal(t, []any{5}, w.args)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"001_opportunity_snapshots.sql", "002_audit_log.sql", "003_snapshot_no_quote.sql"}, names)

	data, err := migrationsFS.ReadFile("migrations/001_opportunity_snapshots.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS opportunity_snapshots")
}
