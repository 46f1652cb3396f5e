package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakenw/transhub/internal/model"
	"github.com/sakenw/transhub/internal/store"
	"github.com/sakenw/transhub/internal/store/testutil"
)

var claimable = []model.TranslationStatus{model.StatusPending, model.StatusFailed}

func register(t *testing.T, st store.Store, text string, langs []string, businessID, contextHash string) {
	t.Helper()
	err := st.EnsurePending(context.Background(), store.EnsurePendingRequest{
		Text:          text,
		TargetLangs:   langs,
		EngineVersion: "debug-1",
		BusinessID:    businessID,
		ContextHash:   contextHash,
	})
	require.NoError(t, err)
}

// drainOneBatch claims a single batch and returns it.
func drainOneBatch(t *testing.T, st store.Store, lang string, batchSize int) []model.ContentItem {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	itemCh, errCh := st.StreamTranslatable(ctx, lang, claimable, batchSize, batchSize)
	batch := <-itemCh
	for range itemCh {
	}
	require.NoError(t, <-errCh)
	return batch
}

func TestEnsurePending_Idempotent(t *testing.T) {
	st, raw := testutil.NewTestStore(t)

	register(t, st, "Hello", []string{"zh-CN"}, "x", "")
	register(t, st, "Hello", []string{"zh-CN"}, "x", "")

	require.Equal(t, 1, testutil.CountRows(t, raw, "content"))
	require.Equal(t, 1, testutil.CountRows(t, raw, "translations"))
	require.Equal(t, 1, testutil.CountRows(t, raw, "sources"))

	var hash string
	require.NoError(t, raw.QueryRow(`SELECT context_hash FROM translations`).Scan(&hash))
	require.Equal(t, model.GlobalContext, hash)
}

func TestEnsurePending_MultipleTargetLangs(t *testing.T) {
	st, raw := testutil.NewTestStore(t)

	register(t, st, "Hello", []string{"zh-CN", "fr-FR", "de-DE"}, "", "")

	require.Equal(t, 1, testutil.CountRows(t, raw, "content"))
	require.Equal(t, 3, testutil.CountRows(t, raw, "translations"))
	require.Equal(t, 0, testutil.CountRows(t, raw, "sources"))
}

func TestEnsurePending_DistinctContextsGetDistinctRows(t *testing.T) {
	st, raw := testutil.NewTestStore(t)

	register(t, st, "Jaguar", []string{"zh-CN"}, "", "hash-a")
	register(t, st, "Jaguar", []string{"zh-CN"}, "", "hash-b")

	require.Equal(t, 1, testutil.CountRows(t, raw, "content"))
	require.Equal(t, 2, testutil.CountRows(t, raw, "translations"))
}

func TestEnsurePending_DoesNotRequeueTranslated(t *testing.T) {
	st, _ := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "Hello", []string{"zh-CN"}, "", "")
	batch := drainOneBatch(t, st, "zh-CN", 10)
	require.Len(t, batch, 1)

	require.NoError(t, st.SaveTranslations(ctx, []store.TranslationUpdate{{
		TranslationID:  batch[0].TranslationID,
		ContentID:      batch[0].ContentID,
		TargetLang:     "zh-CN",
		ContextHash:    batch[0].ContextHash,
		Status:         model.StatusTranslated,
		TranslatedText: "你好",
		EngineName:     "debug",
		EngineVersion:  "debug-1",
	}}))

	register(t, st, "Hello", []string{"zh-CN"}, "", "")

	got, err := st.GetTranslation(ctx, "Hello", "zh-CN", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "你好", got.TranslatedContent)

	// Nothing left to claim.
	itemCh, errCh := st.StreamTranslatable(ctx, "zh-CN", claimable, 10, 0)
	for range itemCh {
		t.Fatal("expected no claimable rows")
	}
	require.NoError(t, <-errCh)
}

func TestEnsurePending_RevivesFailedPreservingID(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "Hello", []string{"zh-CN"}, "", "")
	batch := drainOneBatch(t, st, "zh-CN", 10)

	require.NoError(t, st.SaveTranslations(ctx, []store.TranslationUpdate{{
		TranslationID: batch[0].TranslationID,
		ContentID:     batch[0].ContentID,
		TargetLang:    "zh-CN",
		ContextHash:   batch[0].ContextHash,
		Status:        model.StatusFailed,
		LastError:     "boom",
		Attempts:      3,
	}}))

	register(t, st, "Hello", []string{"zh-CN"}, "", "")

	var (
		id     int64
		status string
	)
	require.NoError(t, raw.QueryRow(`SELECT translation_id, status FROM translations`).Scan(&id, &status))
	require.Equal(t, batch[0].TranslationID, id, "revive must preserve translation_id")
	require.Equal(t, string(model.StatusPending), status)
}

func TestStreamTranslatable_ClaimsInBatches(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		register(t, st, text, []string{"zh-CN"}, "", "")
	}

	itemCh, errCh := st.StreamTranslatable(ctx, "zh-CN", claimable, 2, 0)

	var sizes []int
	for batch := range itemCh {
		sizes = append(sizes, len(batch))
	}
	require.NoError(t, <-errCh)
	require.Equal(t, []int{2, 1}, sizes)

	// Every yielded row was claimed before delivery.
	var n int
	require.NoError(t, raw.QueryRow(
		`SELECT COUNT(*) FROM translations WHERE status = 'TRANSLATING'`).Scan(&n))
	require.Equal(t, 3, n)
}

func TestStreamTranslatable_RespectsLimit(t *testing.T) {
	st, _ := testutil.NewTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c", "d", "e"} {
		register(t, st, text, []string{"zh-CN"}, "", "")
	}

	itemCh, errCh := st.StreamTranslatable(ctx, "zh-CN", claimable, 2, 3)
	total := 0
	for batch := range itemCh {
		total += len(batch)
	}
	require.NoError(t, <-errCh)
	require.Equal(t, 3, total)
}

// TestStreamTranslatable_ExactlyOnce pins the claim invariant: with two
// concurrent streams over the same language, every row is claimed by
// exactly one of them.
func TestStreamTranslatable_ExactlyOnce(t *testing.T) {
	st, _ := testutil.NewTestStore(t)
	ctx := context.Background()

	const rows = 24
	for i := 0; i < rows; i++ {
		register(t, st, "text-"+string(rune('a'+i)), []string{"zh-CN"}, "", "")
	}

	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			itemCh, errCh := st.StreamTranslatable(ctx, "zh-CN", claimable, 5, 0)
			for batch := range itemCh {
				mu.Lock()
				for _, item := range batch {
					seen[item.TranslationID]++
				}
				mu.Unlock()
			}
			require.NoError(t, <-errCh)
		}()
	}
	wg.Wait()

	require.Len(t, seen, rows)
	for id, count := range seen {
		require.Equal(t, 1, count, "translation %d claimed %d times", id, count)
	}
}

// TestStreamTranslatable_CancelReleasesClaim pins the cancellation
// contract: a batch claimed but never delivered goes back to PENDING.
func TestStreamTranslatable_CancelReleasesClaim(t *testing.T) {
	st, raw := testutil.NewTestStore(t)

	register(t, st, "Hello", []string{"zh-CN"}, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	itemCh, _ := st.StreamTranslatable(ctx, "zh-CN", claimable, 10, 0)

	// Give the generator time to claim, then cancel without receiving.
	require.Eventually(t, func() bool {
		var n int
		require.NoError(t, raw.QueryRow(
			`SELECT COUNT(*) FROM translations WHERE status = 'TRANSLATING'`).Scan(&n))
		return n == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	for range itemCh {
		t.Fatal("expected no batch after cancellation")
	}

	require.Eventually(t, func() bool {
		var n int
		require.NoError(t, raw.QueryRow(
			`SELECT COUNT(*) FROM translations WHERE status = 'PENDING'`).Scan(&n))
		return n == 1
	}, 5*time.Second, 10*time.Millisecond)
}

// TestSaveTranslations_FailedWritesDeadLetter pins DLQ completeness: the
// FAILED update and its dead-letter mirror land in the same commit.
func TestSaveTranslations_FailedWritesDeadLetter(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "ok", []string{"zh-CN"}, "", "")
	register(t, st, "bad", []string{"zh-CN"}, "", "")
	batch := drainOneBatch(t, st, "zh-CN", 10)
	require.Len(t, batch, 2)

	byValue := map[string]model.ContentItem{}
	for _, item := range batch {
		byValue[item.Value] = item
	}

	updates := []store.TranslationUpdate{
		{
			TranslationID:  byValue["ok"].TranslationID,
			ContentID:      byValue["ok"].ContentID,
			TargetLang:     "zh-CN",
			ContextHash:    model.GlobalContext,
			Status:         model.StatusTranslated,
			TranslatedText: "好",
			EngineName:     "debug",
			EngineVersion:  "debug-1",
		},
		{
			TranslationID: byValue["bad"].TranslationID,
			ContentID:     byValue["bad"].ContentID,
			TargetLang:    "zh-CN",
			ContextHash:   model.GlobalContext,
			Status:        model.StatusFailed,
			LastError:     "upstream exploded",
			Attempts:      3,
		},
	}
	require.NoError(t, st.SaveTranslations(ctx, updates))

	var n int
	require.NoError(t, raw.QueryRow(
		`SELECT COUNT(*) FROM translations WHERE status = 'TRANSLATED'`).Scan(&n))
	require.Equal(t, 1, n)

	letters, err := st.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	require.Equal(t, byValue["bad"].TranslationID, letters[0].TranslationID)
	require.Equal(t, "upstream exploded", letters[0].LastError)
	require.Equal(t, 3, letters[0].Attempts)
	require.Equal(t, "zh-CN", letters[0].TargetLang)
}

func TestReleaseClaims(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "Hello", []string{"zh-CN"}, "", "")
	batch := drainOneBatch(t, st, "zh-CN", 10)

	require.NoError(t, st.ReleaseClaims(ctx, []int64{batch[0].TranslationID}))

	var status string
	require.NoError(t, raw.QueryRow(`SELECT status FROM translations`).Scan(&status))
	require.Equal(t, string(model.StatusPending), status)
}

func TestRecoverStaleClaims(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "old", []string{"zh-CN"}, "", "")
	register(t, st, "fresh", []string{"zh-CN"}, "", "")
	batch := drainOneBatch(t, st, "zh-CN", 10)
	require.Len(t, batch, 2)

	// Backdate everything, then re-freshen one claim.
	testutil.BackdateClaims(t, raw, time.Now().Add(-time.Hour))
	var freshID int64
	require.NoError(t, raw.QueryRow(
		`SELECT t.translation_id FROM translations t
		 JOIN content c ON c.content_id = t.content_id WHERE c.value = 'fresh'`).Scan(&freshID))
	_, err := raw.Exec(`UPDATE translations SET last_updated_at = ? WHERE translation_id = ?`,
		testutil.FormatTime(time.Now()), freshID)
	require.NoError(t, err)

	recovered, err := st.RecoverStaleClaims(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), recovered)

	var n int
	require.NoError(t, raw.QueryRow(
		`SELECT COUNT(*) FROM translations WHERE status = 'PENDING'`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestGetTranslation_ContextIsolation(t *testing.T) {
	st, _ := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "Jaguar", []string{"zh-CN"}, "", "hash-a")
	register(t, st, "Jaguar", []string{"zh-CN"}, "", "hash-b")
	batch := drainOneBatch(t, st, "zh-CN", 10)
	require.Len(t, batch, 2)

	updates := make([]store.TranslationUpdate, 0, 2)
	for _, item := range batch {
		text := "美洲虎"
		if item.ContextHash == "hash-b" {
			text = "捷豹"
		}
		updates = append(updates, store.TranslationUpdate{
			TranslationID:  item.TranslationID,
			ContentID:      item.ContentID,
			TargetLang:     "zh-CN",
			ContextHash:    item.ContextHash,
			Status:         model.StatusTranslated,
			TranslatedText: text,
			EngineName:     "debug",
			EngineVersion:  "debug-1",
		})
	}
	require.NoError(t, st.SaveTranslations(ctx, updates))

	gotA, err := st.GetTranslation(ctx, "Jaguar", "zh-CN", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, gotA)
	require.Equal(t, "美洲虎", gotA.TranslatedContent)

	gotB, err := st.GetTranslation(ctx, "Jaguar", "zh-CN", "hash-b")
	require.NoError(t, err)
	require.NotNil(t, gotB)
	require.Equal(t, "捷豹", gotB.TranslatedContent)

	missing, err := st.GetTranslation(ctx, "Jaguar", "zh-CN", "")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestGetBusinessID(t *testing.T) {
	st, _ := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "Hello", []string{"zh-CN"}, "ui.home.greeting", "")

	var contentID int64
	batch := drainOneBatch(t, st, "zh-CN", 10)
	contentID = batch[0].ContentID

	businessID, err := st.GetBusinessID(ctx, contentID, model.GlobalContext)
	require.NoError(t, err)
	require.Equal(t, "ui.home.greeting", businessID)

	businessID, err = st.GetBusinessID(ctx, contentID, "other-hash")
	require.NoError(t, err)
	require.Empty(t, businessID)
}

func TestTouchSource(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "Hello", []string{"zh-CN"}, "bid", "")
	testutil.BackdateSources(t, raw, time.Now().Add(-48*time.Hour))

	require.NoError(t, st.TouchSource(ctx, "bid"))

	var lastSeen string
	require.NoError(t, raw.QueryRow(`SELECT last_seen_at FROM sources`).Scan(&lastSeen))
	ts, err := time.Parse(testutil.TimeLayout, lastSeen)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestGarbageCollect_Cascades(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "T", []string{"zh-CN"}, "bid", "")
	batch := drainOneBatch(t, st, "zh-CN", 10)
	require.NoError(t, st.SaveTranslations(ctx, []store.TranslationUpdate{{
		TranslationID:  batch[0].TranslationID,
		ContentID:      batch[0].ContentID,
		TargetLang:     "zh-CN",
		ContextHash:    model.GlobalContext,
		Status:         model.StatusTranslated,
		TranslatedText: "翻译",
		EngineName:     "debug",
		EngineVersion:  "debug-1",
	}}))

	testutil.BackdateSources(t, raw, time.Now().AddDate(0, 0, -3))

	report, err := st.GarbageCollect(ctx, 1, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), report.DeletedSources)
	require.Equal(t, int64(1), report.DeletedContent)
	require.Equal(t, int64(1), report.DeletedTranslations)

	require.Equal(t, 0, testutil.CountRows(t, raw, "sources"))
	require.Equal(t, 0, testutil.CountRows(t, raw, "content"))
	require.Equal(t, 0, testutil.CountRows(t, raw, "translations"))
}

func TestGarbageCollect_DryRun(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "T", []string{"zh-CN"}, "bid", "")
	testutil.BackdateSources(t, raw, time.Now().AddDate(0, 0, -3))

	report, err := st.GarbageCollect(ctx, 1, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), report.DeletedSources)
	require.Equal(t, int64(1), report.DeletedContent)

	// Nothing actually removed.
	require.Equal(t, 1, testutil.CountRows(t, raw, "sources"))
	require.Equal(t, 1, testutil.CountRows(t, raw, "content"))
	require.Equal(t, 1, testutil.CountRows(t, raw, "translations"))
}

func TestGarbageCollect_KeepsContentWithPendingWork(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	// No source at all, but a PENDING translation: content must survive.
	register(t, st, "in-flight", []string{"zh-CN"}, "", "")

	report, err := st.GarbageCollect(ctx, 1, false)
	require.NoError(t, err)
	require.Equal(t, int64(0), report.DeletedContent)
	require.Equal(t, 1, testutil.CountRows(t, raw, "content"))
}

func TestGarbageCollect_KeepsFreshSources(t *testing.T) {
	st, raw := testutil.NewTestStore(t)
	ctx := context.Background()

	register(t, st, "T", []string{"zh-CN"}, "bid", "")

	report, err := st.GarbageCollect(ctx, 30, false)
	require.NoError(t, err)
	require.Equal(t, int64(0), report.DeletedSources)
	require.Equal(t, 1, testutil.CountRows(t, raw, "sources"))
}

func TestGetTranslation_UninitializedStore(t *testing.T) {
	st := store.NewSQLite("unused.db")
	_, err := st.GetTranslation(context.Background(), "x", "zh-CN", "")
	require.Error(t, err)
	require.ErrorIs(t, err, model.ErrStorage)
	require.ErrorIs(t, err, model.ErrCore)
}
