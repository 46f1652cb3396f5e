// Package store is the sole gateway to durable state: content rows,
// business-id associations, translation rows, and the dead-letter queue.
// All write methods run inside a single transaction serialized by a
// process-wide writer gate; reads never take the gate.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/sakenw/transhub/internal/db"
	"github.com/sakenw/transhub/internal/model"
)

// EnsurePendingRequest carries one durable registration.
type EnsurePendingRequest struct {
	Text          string
	TargetLangs   []string
	SourceLang    string // empty = auto-detect
	EngineVersion string
	BusinessID    string // empty = no association
	ContextHash   string
	ContextJSON   string // empty = no context
}

// TranslationUpdate is one committed outcome for a claimed row.
type TranslationUpdate struct {
	TranslationID  int64
	ContentID      int64
	TargetLang     string
	ContextHash    string
	Status         model.TranslationStatus
	TranslatedText string
	EngineName     string
	EngineVersion  string
	LastError      string // recorded in the DLQ when Status is FAILED
	Attempts       int
}

// Store is the persistence contract the coordinator drives.
type Store interface {
	Initialize(ctx context.Context) error
	Close() error

	EnsurePending(ctx context.Context, req EnsurePendingRequest) error
	StreamTranslatable(ctx context.Context, langCode string, statuses []model.TranslationStatus, batchSize, limit int) (<-chan []model.ContentItem, <-chan error)
	SaveTranslations(ctx context.Context, updates []TranslationUpdate) error
	ReleaseClaims(ctx context.Context, translationIDs []int64) error
	RecoverStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)

	GetTranslation(ctx context.Context, text, targetLang, contextHash string) (*model.TranslationResult, error)
	GetBusinessID(ctx context.Context, contentID int64, contextHash string) (string, error)
	TouchSource(ctx context.Context, businessID string) error
	ListDeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error)

	GarbageCollect(ctx context.Context, retentionDays int, dryRun bool) (model.GCReport, error)
}

type sqliteStore struct {
	path string
	conn *sql.DB
	// gate serializes write transactions: SQLite supports one writer at a
	// time and the semaphore honors context cancellation while queued.
	gate *semaphore.Weighted
}

// NewSQLite returns a Store backed by the SQLite database at path.
// Initialize must be called before use.
func NewSQLite(path string) Store {
	return &sqliteStore{
		path: path,
		gate: semaphore.NewWeighted(1),
	}
}

func (s *sqliteStore) Initialize(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	conn, err := db.Open(s.path)
	if err != nil {
		return &model.StorageError{Op: "initialize", Err: err}
	}
	s.conn = conn
	return nil
}

func (s *sqliteStore) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return &model.StorageError{Op: "close", Err: err}
	}
	return nil
}

// withWriteTx runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection, under the writer gate. IMMEDIATE acquires the reserved lock
// up front so concurrent writers queue here instead of failing later with
// SQLITE_BUSY. commit=false rolls back after fn (dry runs).
func (s *sqliteStore) withWriteTx(ctx context.Context, op string, commit bool, fn func(conn *sql.Conn) error) error {
	if s.conn == nil {
		return &model.StorageError{Op: op, Err: errors.New("store not initialized")}
	}
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.gate.Release(1)

	conn, err := s.conn.Conn(ctx)
	if err != nil {
		return &model.StorageError{Op: op, Err: err}
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediate(ctx, conn); err != nil {
		return &model.StorageError{Op: op, Err: err}
	}

	// ROLLBACK runs on context.Background so cleanup happens even when
	// ctx is already canceled.
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return wrapDBError(op, err)
	}

	if !commit {
		return nil
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return &model.StorageError{Op: op, Err: err}
	}
	committed = true
	return nil
}

// beginImmediate starts an IMMEDIATE transaction with a short retry for
// SQLITE_BUSY. database/sql's BeginTx cannot select the mode, so the
// statement goes through raw Exec on the pinned connection.
func beginImmediate(ctx context.Context, conn *sql.Conn) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second

	op := func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err != nil && isBusy(err) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// wrapDBError classifies driver failures. Unique-constraint violations
// become ConflictError: the schema is designed so idempotent upserts never
// trip them, so one firing indicates a bug.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *model.StorageError
	var ce *model.ConflictError
	if errors.As(err, &se) || errors.As(err, &ce) {
		return err
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &model.ConflictError{Op: op, Err: err}
	}
	return &model.StorageError{Op: op, Err: err}
}

// timeLayout is fixed-width UTC RFC3339 with nanoseconds: lexicographic
// order equals chronological order, which the claim query's ORDER BY and
// the stale-claim comparison rely on. SQLite's date() still parses it.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
