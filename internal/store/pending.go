package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakenw/transhub/internal/model"
	"github.com/sakenw/transhub/internal/snowflake"
)

// EnsurePending durably registers a translation request in one
// transaction: upsert content by value, upsert the business-id
// association, and create (or revive) a PENDING row per target language.
// Idempotent: repeated identical calls only bump last_seen_at.
func (s *sqliteStore) EnsurePending(ctx context.Context, req EnsurePendingRequest) error {
	if req.ContextHash == "" {
		req.ContextHash = model.GlobalContext
	}
	now := formatTime(time.Now())

	return s.withWriteTx(ctx, "ensure pending", true, func(conn *sql.Conn) error {
		contentID, err := upsertContent(ctx, conn, req.Text, now)
		if err != nil {
			return fmt.Errorf("upsert content: %w", err)
		}

		if req.BusinessID != "" {
			if err := upsertSource(ctx, conn, req.BusinessID, contentID, req.ContextHash, now); err != nil {
				return fmt.Errorf("upsert source: %w", err)
			}
		}

		for _, lang := range req.TargetLangs {
			if err := ensureTranslationRow(ctx, conn, contentID, lang, req, now); err != nil {
				return fmt.Errorf("ensure translation %s: %w", lang, err)
			}
		}
		return nil
	})
}

func upsertContent(ctx context.Context, conn *sql.Conn, value, now string) (int64, error) {
	var id int64
	err := conn.QueryRowContext(ctx,
		`SELECT content_id FROM content WHERE value = ?`, value,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	id = snowflake.NextID()
	if _, err := conn.ExecContext(ctx,
		`INSERT INTO content (content_id, value, created_at) VALUES (?, ?, ?)`,
		id, value, now,
	); err != nil {
		return 0, err
	}
	return id, nil
}

func upsertSource(ctx context.Context, conn *sql.Conn, businessID string, contentID int64, contextHash, now string) error {
	_, err := conn.ExecContext(ctx,
		`INSERT INTO sources (business_id, content_id, context_hash, last_seen_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(business_id) DO UPDATE SET
		   content_id = excluded.content_id,
		   context_hash = excluded.context_hash,
		   last_seen_at = excluded.last_seen_at`,
		businessID, contentID, contextHash, now,
	)
	return err
}

// ensureTranslationRow inserts a PENDING row for the key unless a
// TRANSLATED (or in-flight) row already exists. A FAILED row is revived
// to PENDING, preserving its translation_id.
func ensureTranslationRow(ctx context.Context, conn *sql.Conn, contentID int64, targetLang string, req EnsurePendingRequest, now string) error {
	var (
		translationID int64
		status        string
	)
	err := conn.QueryRowContext(ctx,
		`SELECT translation_id, status FROM translations
		 WHERE content_id = ? AND target_lang = ? AND context_hash = ?`,
		contentID, targetLang, req.ContextHash,
	).Scan(&translationID, &status)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = conn.ExecContext(ctx,
			`INSERT INTO translations
			   (translation_id, content_id, source_lang, target_lang, context_hash,
			    context_json, engine_version, status, last_updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snowflake.NextID(), contentID, nullableString(req.SourceLang), targetLang,
			req.ContextHash, nullableString(req.ContextJSON), nullableString(req.EngineVersion),
			string(model.StatusPending), now,
		)
		return err
	case err != nil:
		return err
	}

	if model.TranslationStatus(status) == model.StatusFailed {
		_, err = conn.ExecContext(ctx,
			`UPDATE translations
			 SET status = ?, engine_version = ?, last_updated_at = ?
			 WHERE translation_id = ?`,
			string(model.StatusPending), nullableString(req.EngineVersion), now, translationID,
		)
		return err
	}

	// PENDING, TRANSLATING, TRANSLATED, APPROVED: nothing to do.
	return nil
}
