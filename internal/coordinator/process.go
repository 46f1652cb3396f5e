package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sakenw/transhub/internal/cache"
	"github.com/sakenw/transhub/internal/logger"
	"github.com/sakenw/transhub/internal/model"
	"github.com/sakenw/transhub/internal/store"
)

// ProcessOptions tunes one ProcessPending run. Zero values fall back to
// the coordinator configuration.
type ProcessOptions struct {
	BatchSize      int
	Limit          int // 0 = drain until empty
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c *Coordinator) normalizeOptions(opts *ProcessOptions) ProcessOptions {
	o := ProcessOptions{}
	if opts != nil {
		o = *opts
	}
	if o.BatchSize <= 0 {
		o.BatchSize = c.cfg.BatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = c.cfg.Retry.MaxAttempts
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = c.cfg.Retry.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = c.cfg.Retry.MaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// outcome is the per-item verdict accumulated across cache hits, engine
// attempts, and context validation.
type outcome struct {
	text          string
	engineName    string
	engineVersion string
	errMsg        string
	failed        bool
	attempts      int
}

// ProcessPending drains the queue for one target language. Each claimed
// batch is translated, committed (successes and terminal failures plus
// their DLQ rows in one transaction), and only then emitted, in store
// order. The error channel delivers at most one fatal error; the result
// channel closing signals end of stream.
func (c *Coordinator) ProcessPending(ctx context.Context, targetLang string, opts *ProcessOptions) (<-chan model.TranslationResult, <-chan error, error) {
	if c.activeEngine() == nil {
		return nil, nil, model.ErrNotInitialized
	}
	if !langPattern.MatchString(targetLang) {
		return nil, nil, &model.ValidationError{Field: "target_lang", Reason: "malformed language code " + targetLang}
	}
	o := c.normalizeOptions(opts)

	if recovered, err := c.store.RecoverStaleClaims(ctx, c.cfg.StaleClaimThreshold); err != nil {
		return nil, nil, err
	} else if recovered > 0 {
		logger.Warn("stale claims recovered",
			"module", "coordinator", "action", "recover", "resource", "translation",
			"result", "ok", "count", recovered)
	}

	claimable := []model.TranslationStatus{model.StatusPending, model.StatusFailed}
	itemCh, streamErrCh := c.store.StreamTranslatable(ctx, targetLang, claimable, o.BatchSize, o.Limit)

	resultCh := make(chan model.TranslationResult)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultCh)
		defer close(errCh)

		for batch := range itemCh {
			batchID := uuid.NewString()
			results, err := c.processBatch(ctx, targetLang, batchID, batch, o)
			if err != nil {
				errCh <- err
				return
			}
			for _, r := range results {
				select {
				case resultCh <- r:
				case <-ctx.Done():
					// The batch is already committed; stop emitting.
					return
				}
			}
		}
		if err := <-streamErrCh; err != nil {
			errCh <- err
		}
	}()

	return resultCh, errCh, nil
}

type contextGroup struct {
	hash    string
	context map[string]any
	items   []model.ContentItem
}

// groupByContext partitions a batch by context hash, preserving
// first-seen order. A single engine call shares one context.
func groupByContext(items []model.ContentItem) []*contextGroup {
	byHash := map[string]*contextGroup{}
	var groups []*contextGroup
	for _, item := range items {
		g, ok := byHash[item.ContextHash]
		if !ok {
			g = &contextGroup{hash: item.ContextHash, context: item.Context}
			byHash[item.ContextHash] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, item)
	}
	return groups
}

// processBatch takes one claimed batch through cache lookup, the retry
// loop, commit, and result assembly. On cancellation before commit the
// claim is released; the caller sees ctx.Err(). On storage failure the
// rows stay TRANSLATING for stale-claim recovery.
func (c *Coordinator) processBatch(ctx context.Context, targetLang, batchID string, items []model.ContentItem, o ProcessOptions) ([]model.TranslationResult, error) {
	eng := c.activeEngine()
	release := func() {
		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.TranslationID
		}
		if err := c.store.ReleaseClaims(context.Background(), ids); err != nil {
			logger.Error("release claims failed",
				"module", "coordinator", "action", "release", "resource", "translation",
				"result", "failed", "batch_id", batchID, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}

	outcomes := make(map[int64]outcome, len(items))

	for _, group := range groupByContext(items) {
		engineCtx, err := eng.ValidateContext(group.context)
		if err != nil {
			// The whole group shares the invalid context: terminal for
			// every item, same message.
			for _, item := range group.items {
				outcomes[item.TranslationID] = outcome{failed: true, errMsg: err.Error()}
			}
			continue
		}

		var toTranslate []model.ContentItem
		for _, item := range group.items {
			key := cache.Key{Text: item.Value, TargetLang: targetLang, ContextHash: item.ContextHash}
			if entry, ok := c.cache.Get(key); ok {
				outcomes[item.TranslationID] = outcome{
					text:          entry.TranslatedText,
					engineName:    entry.EngineName,
					engineVersion: entry.EngineVersion,
				}
				continue
			}
			toTranslate = append(toTranslate, item)
		}

		maxChunk := eng.MaxBatchSize()
		if maxChunk <= 0 {
			maxChunk = len(toTranslate)
		}
		for start := 0; start < len(toTranslate); start += maxChunk {
			end := start + maxChunk
			if end > len(toTranslate) {
				end = len(toTranslate)
			}
			chunk := toTranslate[start:end]

			chunkOutcomes, err := c.translateWithRetry(ctx, eng, targetLang, chunk, engineCtx, o)
			if err != nil {
				release()
				return nil, err
			}
			for id, oc := range chunkOutcomes {
				outcomes[id] = oc
			}
		}

		for _, item := range toTranslate {
			if oc, ok := outcomes[item.TranslationID]; ok && !oc.failed {
				c.cache.Add(cache.Key{Text: item.Value, TargetLang: targetLang, ContextHash: item.ContextHash}, cache.Entry{
					TranslatedText: oc.text,
					EngineName:     oc.engineName,
					EngineVersion:  oc.engineVersion,
				})
			}
		}
	}

	results := make([]model.TranslationResult, 0, len(items))
	updates := make([]store.TranslationUpdate, 0, len(items))
	businessIDs := map[[2]any]string{}

	for _, item := range items {
		oc := outcomes[item.TranslationID]

		status := model.StatusTranslated
		if oc.failed {
			status = model.StatusFailed
		}

		pair := [2]any{item.ContentID, item.ContextHash}
		businessID, seen := businessIDs[pair]
		if !seen {
			var err error
			businessID, err = c.store.GetBusinessID(ctx, item.ContentID, item.ContextHash)
			if err != nil {
				logger.Warn("business id enrichment failed",
					"module", "coordinator", "action", "enrich", "resource", "source",
					"result", "failed", "batch_id", batchID, "content_id", item.ContentID, "error", err)
				businessID = ""
			}
			businessIDs[pair] = businessID
		}

		results = append(results, model.TranslationResult{
			TranslationID:     item.TranslationID,
			BusinessID:        businessID,
			OriginalContent:   item.Value,
			TranslatedContent: oc.text,
			TargetLang:        targetLang,
			Status:            status,
			EngineName:        oc.engineName,
			FromCache:         false,
			Error:             oc.errMsg,
			ContextHash:       item.ContextHash,
		})
		updates = append(updates, store.TranslationUpdate{
			TranslationID:  item.TranslationID,
			ContentID:      item.ContentID,
			TargetLang:     targetLang,
			ContextHash:    item.ContextHash,
			Status:         status,
			TranslatedText: oc.text,
			EngineName:     oc.engineName,
			EngineVersion:  oc.engineVersion,
			LastError:      oc.errMsg,
			Attempts:       oc.attempts,
		})
	}

	// The commit is detached from the caller's context: once the engine
	// work is done, a cancelled iterator must still complete the batch
	// rather than strand it. On a genuine storage failure the claimed
	// rows stay TRANSLATING; stale-claim recovery re-queues them later.
	if err := c.store.SaveTranslations(context.Background(), updates); err != nil {
		return nil, err
	}

	logger.Info("batch committed",
		"module", "coordinator", "action", "process", "resource", "translation",
		"result", "ok", "batch_id", batchID, "lang", targetLang, "items", len(items))
	return results, nil
}
