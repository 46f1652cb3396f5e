package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// BuildDSN embeds the required pragmas in the connection string so every
// connection in the pool gets them. Pragmas applied via Exec only affect
// the connection that ran them; without busy_timeout on all connections,
// concurrent writers hit "database is locked".
func BuildDSN(path string) string {
	pragmas := []string{
		"journal_mode(WAL)",
		"foreign_keys(ON)",
		"busy_timeout(30000)",
		"synchronous(NORMAL)",
	}
	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+url.QueryEscape(p))
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// Open opens (creating if necessary) the database at path, applies the
// pragma DSN, and runs migrations.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := Migrate(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}
