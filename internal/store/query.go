package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sakenw/transhub/internal/model"
)

// GetTranslation returns the TRANSLATED row for (text, targetLang,
// contextHash), or nil when none exists. Read-only: no writer gate.
func (s *sqliteStore) GetTranslation(ctx context.Context, text, targetLang, contextHash string) (*model.TranslationResult, error) {
	if contextHash == "" {
		contextHash = model.GlobalContext
	}
	if s.conn == nil {
		return nil, &model.StorageError{Op: "get translation", Err: errors.New("store not initialized")}
	}

	var (
		r          model.TranslationResult
		translated sql.NullString
		engine     sql.NullString
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT t.translation_id, c.value, t.translated_text, t.target_lang, t.context_hash, t.engine_name
		 FROM translations t
		 JOIN content c ON c.content_id = t.content_id
		 WHERE c.value = ? AND t.target_lang = ? AND t.context_hash = ? AND t.status = 'TRANSLATED'`,
		text, targetLang, contextHash,
	).Scan(&r.TranslationID, &r.OriginalContent, &translated, &r.TargetLang, &r.ContextHash, &engine)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "get translation", Err: err}
	}

	r.Status = model.StatusTranslated
	r.TranslatedContent = translated.String
	r.EngineName = engine.String
	return &r, nil
}

// GetBusinessID returns the business id associated with (contentID,
// contextHash), or "" when no source refers to it. Used once per
// (content, context) pair to enrich emitted results.
func (s *sqliteStore) GetBusinessID(ctx context.Context, contentID int64, contextHash string) (string, error) {
	if s.conn == nil {
		return "", &model.StorageError{Op: "get business id", Err: errors.New("store not initialized")}
	}
	var businessID string
	err := s.conn.QueryRowContext(ctx,
		`SELECT business_id FROM sources
		 WHERE content_id = ? AND context_hash = ?
		 ORDER BY last_seen_at DESC LIMIT 1`,
		contentID, contextHash,
	).Scan(&businessID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &model.StorageError{Op: "get business id", Err: err}
	}
	return businessID, nil
}

// TouchSource bumps last_seen_at for an association without registering
// anything else.
func (s *sqliteStore) TouchSource(ctx context.Context, businessID string) error {
	return s.withWriteTx(ctx, "touch source", true, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			`UPDATE sources SET last_seen_at = ? WHERE business_id = ?`,
			formatTime(time.Now()), businessID,
		)
		return err
	})
}

// ListDeadLetters returns the most recent DLQ entries, newest first.
func (s *sqliteStore) ListDeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error) {
	if s.conn == nil {
		return nil, &model.StorageError{Op: "list dead letters", Err: errors.New("store not initialized")}
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, translation_id, content_id, target_lang, context_hash, last_error, attempts, moved_at
		 FROM dead_letters ORDER BY moved_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &model.StorageError{Op: "list dead letters", Err: err}
	}
	defer rows.Close()

	var entries []model.DeadLetterEntry
	for rows.Next() {
		var (
			e       model.DeadLetterEntry
			movedAt string
		)
		if err := rows.Scan(&e.ID, &e.TranslationID, &e.ContentID, &e.TargetLang, &e.ContextHash, &e.LastError, &e.Attempts, &movedAt); err != nil {
			return nil, &model.StorageError{Op: "list dead letters", Err: err}
		}
		e.MovedAt, _ = parseTime(movedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "list dead letters", Err: err}
	}
	return entries, nil
}
