package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakenw/transhub/internal/logger"
	"github.com/sakenw/transhub/internal/model"
)

// StreamTranslatable is a lazy, finite generator of claimed batches.
// Each batch is selected and flipped to TRANSLATING in one committed
// transaction before it is yielded, so a row appears in exactly one
// worker's stream. Cancellation between claim and yield releases the
// claim back to PENDING.
func (s *sqliteStore) StreamTranslatable(ctx context.Context, langCode string, statuses []model.TranslationStatus, batchSize, limit int) (<-chan []model.ContentItem, <-chan error) {
	itemCh := make(chan []model.ContentItem)
	errCh := make(chan error, 1)

	go func() {
		defer close(itemCh)
		defer close(errCh)

		remaining := limit // 0 = unbounded
		for {
			if ctx.Err() != nil {
				return
			}

			n := batchSize
			if limit > 0 && remaining < n {
				n = remaining
			}
			if n <= 0 {
				return
			}

			batch, err := s.claimBatch(ctx, langCode, statuses, n)
			if err != nil {
				errCh <- err
				return
			}
			if len(batch) == 0 {
				return
			}

			select {
			case itemCh <- batch:
			case <-ctx.Done():
				ids := make([]int64, len(batch))
				for i, it := range batch {
					ids[i] = it.TranslationID
				}
				if err := s.ReleaseClaims(context.Background(), ids); err != nil {
					logger.Error("release claims after cancellation failed",
						"module", "store", "action", "release", "resource", "translation",
						"result", "failed", "count", len(ids), "error", err)
				}
				return
			}

			if limit > 0 {
				remaining -= len(batch)
				if remaining <= 0 {
					return
				}
			}
		}
	}()

	return itemCh, errCh
}

// claimBatch selects up to n eligible rows (oldest first) and marks them
// TRANSLATING inside one write transaction.
func (s *sqliteStore) claimBatch(ctx context.Context, langCode string, statuses []model.TranslationStatus, n int) ([]model.ContentItem, error) {
	var items []model.ContentItem

	statusArgs := make([]any, len(statuses))
	for i, st := range statuses {
		statusArgs[i] = string(st)
	}

	err := s.withWriteTx(ctx, "claim batch", true, func(conn *sql.Conn) error {
		items = items[:0]

		query := fmt.Sprintf(
			`SELECT t.translation_id, t.content_id, c.value, t.context_hash, t.context_json
			 FROM translations t
			 JOIN content c ON c.content_id = t.content_id
			 WHERE t.target_lang = ? AND t.status IN (%s)
			 ORDER BY t.last_updated_at ASC
			 LIMIT ?`, placeholders(len(statuses)))

		args := append([]any{langCode}, statusArgs...)
		args = append(args, n)

		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				item        model.ContentItem
				contextJSON sql.NullString
			)
			if err := rows.Scan(&item.TranslationID, &item.ContentID, &item.Value, &item.ContextHash, &contextJSON); err != nil {
				return err
			}
			if contextJSON.Valid && contextJSON.String != "" {
				if err := json.Unmarshal([]byte(contextJSON.String), &item.Context); err != nil {
					return fmt.Errorf("decode context for translation %d: %w", item.TranslationID, err)
				}
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		ids := make([]any, 0, len(items)+1)
		ids = append(ids, formatTime(time.Now()))
		for _, it := range items {
			ids = append(ids, it.TranslationID)
		}
		update := fmt.Sprintf(
			`UPDATE translations SET status = 'TRANSLATING', last_updated_at = ?
			 WHERE translation_id IN (%s)`, placeholders(len(items)))
		_, err = conn.ExecContext(ctx, update, ids...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ReleaseClaims returns claimed rows to PENDING. Rows that moved past
// TRANSLATING in the meantime are left alone.
func (s *sqliteStore) ReleaseClaims(ctx context.Context, translationIDs []int64) error {
	if len(translationIDs) == 0 {
		return nil
	}
	return s.withWriteTx(ctx, "release claims", true, func(conn *sql.Conn) error {
		args := make([]any, 0, len(translationIDs)+1)
		args = append(args, formatTime(time.Now()))
		for _, id := range translationIDs {
			args = append(args, id)
		}
		query := fmt.Sprintf(
			`UPDATE translations SET status = 'PENDING', last_updated_at = ?
			 WHERE status = 'TRANSLATING' AND translation_id IN (%s)`,
			placeholders(len(translationIDs)))
		_, err := conn.ExecContext(ctx, query, args...)
		return err
	})
}

// RecoverStaleClaims re-queues TRANSLATING rows whose claim is older than
// the threshold. A worker that crashed mid-batch leaves such rows behind.
func (s *sqliteStore) RecoverStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	var recovered int64
	cutoff := formatTime(time.Now().Add(-olderThan))
	err := s.withWriteTx(ctx, "recover stale claims", true, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`UPDATE translations SET status = 'PENDING', last_updated_at = ?
			 WHERE status = 'TRANSLATING' AND last_updated_at < ?`,
			formatTime(time.Now()), cutoff,
		)
		if err != nil {
			return err
		}
		recovered, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return recovered, nil
}
