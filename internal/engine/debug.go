package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sakenw/transhub/internal/model"
)

// NameDebug is the registry name of the deterministic test engine.
const NameDebug = "debug"

func init() {
	Register(NameDebug, newDebugFromConfig)
}

// TranslateFunc lets a test take over per-item translation.
type TranslateFunc func(targetLang, text string, engineCtx Context) (string, *ItemError)

type failurePlan struct {
	remaining int // < 0 = always
	message   string
	retryable bool
}

// DebugEngine is a deterministic in-process engine: a fixed translation
// table plus programmable per-item and wholesale failures. Safe for
// concurrent use.
type DebugEngine struct {
	version      string
	maxBatchSize int

	mu          sync.Mutex
	calls       int
	table       map[string]string
	plans       map[string]*failurePlan
	hook        TranslateFunc
	failBatches int
	batchErr    string
}

// NewDebug returns a debug engine with defaults suitable for tests.
func NewDebug() *DebugEngine {
	return &DebugEngine{
		version:      "debug-1",
		maxBatchSize: 50,
		table:        map[string]string{},
		plans:        map[string]*failurePlan{},
	}
}

func newDebugFromConfig(cfg map[string]any) (Engine, error) {
	e := NewDebug()
	if v, ok := cfg["version"].(string); ok && v != "" {
		e.version = v
	}
	if v, ok := cfg["max_batch_size"]; ok {
		n, err := toInt(v)
		if err != nil || n <= 0 {
			return nil, &model.ConfigurationError{Reason: fmt.Sprintf("debug: invalid max_batch_size %v", v)}
		}
		e.maxBatchSize = n
	}
	// table is nested lang -> text -> translated.
	if table, ok := cfg["table"].(map[string]any); ok {
		for lang, v := range table {
			entries, ok := v.(map[string]any)
			if !ok {
				continue
			}
			for text, translated := range entries {
				if s, ok := translated.(string); ok {
					e.table[tableKey(lang, text)] = s
				}
			}
		}
	}
	return e, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

func tableKey(targetLang, text string) string {
	return targetLang + "\x00" + text
}

// SetTranslation fixes the translation of text into targetLang.
func (e *DebugEngine) SetTranslation(targetLang, text, translated string) {
	e.mu.Lock()
	e.table[tableKey(targetLang, text)] = translated
	e.mu.Unlock()
}

// SetHook installs a per-item translation override.
func (e *DebugEngine) SetHook(hook TranslateFunc) {
	e.mu.Lock()
	e.hook = hook
	e.mu.Unlock()
}

// FailText makes the next times attempts for text fail. times < 0 fails
// forever.
func (e *DebugEngine) FailText(text string, times int, retryable bool, message string) {
	e.mu.Lock()
	e.plans[text] = &failurePlan{remaining: times, message: message, retryable: retryable}
	e.mu.Unlock()
}

// FailBatches makes the next times TranslateBatch calls fail wholesale.
func (e *DebugEngine) FailBatches(times int, message string) {
	e.mu.Lock()
	e.failBatches = times
	e.batchErr = message
	e.mu.Unlock()
}

// Calls returns how many TranslateBatch calls the engine has served.
func (e *DebugEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *DebugEngine) Initialize(ctx context.Context) error { return nil }

func (e *DebugEngine) Close() error { return nil }

func (e *DebugEngine) Name() string { return NameDebug }

func (e *DebugEngine) Version() string { return e.version }

func (e *DebugEngine) MaxBatchSize() int { return e.maxBatchSize }

// ValidateContext passes the raw mapping through. A context carrying
// "reject": true fails validation, for exercising the terminal
// context-failure path.
func (e *DebugEngine) ValidateContext(raw map[string]any) (Context, error) {
	if raw == nil {
		return nil, nil
	}
	if v, ok := raw["reject"].(bool); ok && v {
		return nil, &model.ValidationError{Field: "context", Reason: "rejected by debug engine"}
	}
	return raw, nil
}

func (e *DebugEngine) TranslateBatch(ctx context.Context, sourceLang, targetLang string, items []string, engineCtx Context) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	if e.failBatches != 0 {
		if e.failBatches > 0 {
			e.failBatches--
		}
		return nil, fmt.Errorf("debug: %s", e.batchErr)
	}

	results := make([]Result, len(items))
	for i, text := range items {
		if plan, ok := e.plans[text]; ok && plan.remaining != 0 {
			if plan.remaining > 0 {
				plan.remaining--
			}
			results[i] = Result{Err: &ItemError{Message: plan.message, Retryable: plan.retryable}}
			continue
		}
		if e.hook != nil {
			text2, itemErr := e.hook(targetLang, text, engineCtx)
			results[i] = Result{Text: text2, Err: itemErr}
			continue
		}
		if translated, ok := e.table[tableKey(targetLang, text)]; ok {
			results[i] = Result{Text: translated}
			continue
		}
		results[i] = Result{Text: fmt.Sprintf("[%s] %s", targetLang, text)}
	}
	return results, nil
}
