package coordinator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sakenw/transhub/internal/engine"
	"github.com/sakenw/transhub/internal/logger"
	"github.com/sakenw/transhub/internal/model"
)

// translateWithRetry runs the retry loop for one context group chunk:
// acquire a rate token, call the engine on the still-outstanding items,
// keep retryable failures for the next attempt, and stop when nothing is
// retryable or MaxAttempts is reached (remaining retryable errors become
// terminal). Non-retryable errors are terminal on first occurrence. A
// wholesale engine failure counts as a retryable error on every
// outstanding item. Returns an error only for cancellation.
func (c *Coordinator) translateWithRetry(ctx context.Context, eng engine.Engine, targetLang string, items []model.ContentItem, engineCtx engine.Context, o ProcessOptions) (map[int64]outcome, error) {
	outcomes := make(map[int64]outcome, len(items))
	outstanding := items
	sourceLang := c.cfg.SourceLang

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.InitialBackoff
	bo.MaxInterval = o.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		texts := make([]string, len(outstanding))
		for i, item := range outstanding {
			texts[i] = item.Value
		}

		callCtx := ctx
		cancel := context.CancelFunc(nil)
		if c.cfg.EngineCallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.EngineCallTimeout)
		}
		results, err := eng.TranslateBatch(callCtx, sourceLang, targetLang, texts, engineCtx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Wholesale failure (including a per-call timeout): report it
			// as a retryable error on every outstanding item so the batch
			// does not stall the pipeline.
			logger.Warn("engine batch call failed",
				"module", "coordinator", "action", "translate", "resource", "engine",
				"result", "failed", "engine", eng.Name(), "attempt", attempt,
				"items", len(outstanding), "error", err)
			results = make([]engine.Result, len(outstanding))
			for i := range results {
				results[i] = engine.Result{Err: &engine.ItemError{Message: err.Error(), Retryable: true}}
			}
		} else if len(results) != len(outstanding) {
			// Contract breach: no way to map outcomes to items.
			for _, item := range outstanding {
				outcomes[item.TranslationID] = outcome{
					failed:   true,
					errMsg:   "engine returned mismatched result count",
					attempts: attempt,
				}
			}
			return outcomes, nil
		}

		var retry []model.ContentItem
		for i, item := range outstanding {
			r := results[i]
			switch {
			case r.Err == nil:
				outcomes[item.TranslationID] = outcome{
					text:          r.Text,
					engineName:    eng.Name(),
					engineVersion: eng.Version(),
					attempts:      attempt,
				}
			case r.Err.Retryable && attempt < o.MaxAttempts:
				retry = append(retry, item)
			default:
				outcomes[item.TranslationID] = outcome{
					failed:   true,
					errMsg:   r.Err.Message,
					attempts: attempt,
				}
			}
		}

		if len(retry) == 0 {
			return outcomes, nil
		}
		outstanding = retry

		wait := bo.NextBackOff()
		if wait == backoff.Stop || wait > o.MaxBackoff {
			wait = o.MaxBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}
