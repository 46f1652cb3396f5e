// Package testutil provides shared fixtures for store-backed tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakenw/transhub/internal/db"
	"github.com/sakenw/transhub/internal/store"
)

// TimeLayout matches the fixed-width UTC format the store persists.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// NewTestStore returns an initialized store backed by a database under
// t.TempDir(), plus a raw connection for seeding and backdating fixtures.
// Both are closed on test cleanup.
func NewTestStore(t *testing.T) (store.Store, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "transhub-test.db")
	st := store.NewSQLite(path)
	require.NoError(t, st.Initialize(context.Background()))

	raw, err := db.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = raw.Close()
		_ = st.Close()
	})
	return st, raw
}

// FormatTime renders t the way the store stores timestamps.
func FormatTime(ts time.Time) string {
	return ts.UTC().Format(TimeLayout)
}

// BackdateSources rewrites last_seen_at for every source row, for
// retention tests that need an old association.
func BackdateSources(t *testing.T, raw *sql.DB, to time.Time) {
	t.Helper()
	_, err := raw.Exec(`UPDATE sources SET last_seen_at = ?`, FormatTime(to))
	require.NoError(t, err)
}

// BackdateClaims rewrites last_updated_at for every TRANSLATING row, for
// stale-claim recovery tests.
func BackdateClaims(t *testing.T, raw *sql.DB, to time.Time) {
	t.Helper()
	_, err := raw.Exec(
		`UPDATE translations SET last_updated_at = ? WHERE status = 'TRANSLATING'`,
		FormatTime(to))
	require.NoError(t, err)
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, raw *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, raw.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
