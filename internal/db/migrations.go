package db

import (
	"database/sql"
	"fmt"
)

// Base schema - uses Snowflake IDs (no AUTOINCREMENT).
//
// context_hash is NOT NULL with the '__GLOBAL__' sentinel for absent
// context, so the (content_id, target_lang, context_hash) uniqueness key
// works with a single index instead of NULL-tolerant partial indexes.
const baseSchema = `
CREATE TABLE IF NOT EXISTS content (
  content_id INTEGER PRIMARY KEY,
  value TEXT NOT NULL UNIQUE,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
  business_id TEXT PRIMARY KEY,
  content_id INTEGER NOT NULL,
  context_hash TEXT NOT NULL DEFAULT '__GLOBAL__',
  last_seen_at TEXT NOT NULL,
  FOREIGN KEY (content_id) REFERENCES content(content_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sources_content_id ON sources(content_id);
CREATE INDEX IF NOT EXISTS idx_sources_last_seen_at ON sources(last_seen_at);

CREATE TABLE IF NOT EXISTS translations (
  translation_id INTEGER PRIMARY KEY,
  content_id INTEGER NOT NULL,
  source_lang TEXT,
  target_lang TEXT NOT NULL,
  context_hash TEXT NOT NULL DEFAULT '__GLOBAL__',
  context_json TEXT,
  translated_text TEXT,
  engine_name TEXT,
  engine_version TEXT,
  status TEXT NOT NULL DEFAULT 'PENDING',
  last_updated_at TEXT NOT NULL,
  FOREIGN KEY (content_id) REFERENCES content(content_id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_translations_key
  ON translations(content_id, target_lang, context_hash);

CREATE INDEX IF NOT EXISTS idx_translations_claim
  ON translations(target_lang, status, last_updated_at);

CREATE TABLE IF NOT EXISTS dead_letters (
  id INTEGER PRIMARY KEY,
  translation_id INTEGER NOT NULL,
  content_id INTEGER NOT NULL,
  target_lang TEXT NOT NULL,
  context_hash TEXT NOT NULL,
  last_error TEXT NOT NULL,
  attempts INTEGER NOT NULL,
  moved_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dead_letters_translation_id ON dead_letters(translation_id);

CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// SchemaVersion is the current schema version recorded after Migrate.
const SchemaVersion = 1

// Migrate applies the base schema and any incremental migrations.
// Safe to run on every open.
func Migrate(conn *sql.DB) error {
	if _, err := conn.Exec(baseSchema); err != nil {
		return fmt.Errorf("migrate base schema: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func runMigrations(conn *sql.DB) error {
	var current sql.NullInt64
	if err := conn.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if !current.Valid || current.Int64 < SchemaVersion {
		if _, err := conn.Exec(
			`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
			SchemaVersion,
		); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}

	return nil
}
