package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakenw/transhub/internal/model"
	"github.com/sakenw/transhub/internal/snowflake"
)

// SaveTranslations commits a batch of outcomes atomically. Every update
// whose status is FAILED also appends a dead-letter row inside the same
// transaction, so a FAILED row without its DLQ mirror can never be
// observed.
func (s *sqliteStore) SaveTranslations(ctx context.Context, updates []TranslationUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := formatTime(time.Now())

	return s.withWriteTx(ctx, "save translations", true, func(conn *sql.Conn) error {
		for _, u := range updates {
			res, err := conn.ExecContext(ctx,
				`UPDATE translations
				 SET translated_text = ?, engine_name = ?, engine_version = ?,
				     status = ?, last_updated_at = ?
				 WHERE translation_id = ?`,
				nullableString(u.TranslatedText), nullableString(u.EngineName),
				nullableString(u.EngineVersion), string(u.Status), now, u.TranslationID,
			)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("translation %d vanished before save", u.TranslationID)
			}

			if u.Status == model.StatusFailed {
				if _, err := conn.ExecContext(ctx,
					`INSERT INTO dead_letters
					   (id, translation_id, content_id, target_lang, context_hash,
					    last_error, attempts, moved_at)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					snowflake.NextID(), u.TranslationID, u.ContentID, u.TargetLang,
					u.ContextHash, u.LastError, u.Attempts, now,
				); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
