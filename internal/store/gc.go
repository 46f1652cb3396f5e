package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakenw/transhub/internal/model"
)

// GarbageCollect removes stale associations and orphan content in one
// transaction: (a) sources whose last_seen_at is older than the
// retention window (whole-day granularity), then (b) content no source
// refers to and with no in-flight (PENDING or TRANSLATING) translation.
// Deleting content cascades its translations; the report counts them.
// dryRun computes the same counts and rolls back.
func (s *sqliteStore) GarbageCollect(ctx context.Context, retentionDays int, dryRun bool) (model.GCReport, error) {
	var report model.GCReport
	if retentionDays < 0 {
		return report, &model.ValidationError{Field: "retention_days", Reason: "must be >= 0"}
	}

	now := formatTime(time.Now())
	modifier := fmt.Sprintf("-%d days", retentionDays)

	err := s.withWriteTx(ctx, "garbage collect", !dryRun, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx,
			`DELETE FROM sources WHERE date(last_seen_at) < date(?, ?)`,
			now, modifier,
		)
		if err != nil {
			return err
		}
		if report.DeletedSources, err = res.RowsAffected(); err != nil {
			return err
		}

		const orphanContent = `
			SELECT content_id FROM content c
			WHERE NOT EXISTS (SELECT 1 FROM sources s WHERE s.content_id = c.content_id)
			  AND NOT EXISTS (SELECT 1 FROM translations t
			                  WHERE t.content_id = c.content_id
			                    AND t.status IN ('PENDING', 'TRANSLATING'))`

		if err := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM translations WHERE content_id IN (`+orphanContent+`)`,
		).Scan(&report.DeletedTranslations); err != nil {
			return err
		}

		res, err = conn.ExecContext(ctx,
			`DELETE FROM content WHERE content_id IN (`+orphanContent+`)`,
		)
		if err != nil {
			return err
		}
		if report.DeletedContent, err = res.RowsAffected(); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return model.GCReport{}, err
	}
	return report, nil
}
