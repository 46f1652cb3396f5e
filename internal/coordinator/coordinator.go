// Package coordinator composes the store, cache, rate limiter, and
// active engine into the two-phase translation pipeline: fast durable
// registration on one side, claimed batch processing on the other.
package coordinator

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sakenw/transhub/internal/cache"
	"github.com/sakenw/transhub/internal/config"
	"github.com/sakenw/transhub/internal/engine"
	"github.com/sakenw/transhub/internal/logger"
	"github.com/sakenw/transhub/internal/model"
	"github.com/sakenw/transhub/internal/ratelimit"
	"github.com/sakenw/transhub/internal/store"
)

// langPattern accepts BCP-47-ish language codes: a 2-3 letter primary
// subtag plus optional alphanumeric subtags.
var langPattern = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)

// RequestInput carries one registration call.
type RequestInput struct {
	TargetLangs []string
	Text        string
	BusinessID  string
	Context     map[string]any
	// SourceLang is recorded on the translation rows; empty falls back to
	// the configured default. Engine calls always receive the configured
	// default (empty = auto-detect), not this per-request value.
	SourceLang string
}

// Coordinator orchestrates the translation pipeline. Construct with New,
// call Initialize before use, Close when done. Safe for concurrent use.
type Coordinator struct {
	cfg     config.Config
	store   store.Store
	cache   cache.Cache
	limiter *ratelimit.Limiter

	mu          sync.RWMutex
	active      engine.Engine
	retired     []engine.Engine
	initialized bool

	lookups singleflight.Group
}

// New builds a coordinator over the given store. The cache and rate
// limiter are owned by the coordinator; the store is injected so
// embedders can supply their own backend.
func New(cfg config.Config, st store.Store) (*Coordinator, error) {
	resultCache, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg:     cfg,
		store:   st,
		cache:   resultCache,
		limiter: ratelimit.New(cfg.RateLimiter.Capacity, cfg.RateLimiter.RefillRate),
	}, nil
}

// Initialize opens the store and activates the configured engine.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	if err := c.store.Initialize(ctx); err != nil {
		return err
	}

	eng, err := engine.New(c.cfg.ActiveEngine, c.cfg.EngineConfigs[c.cfg.ActiveEngine])
	if err != nil {
		_ = c.store.Close()
		return err
	}
	if err := eng.Initialize(ctx); err != nil {
		_ = c.store.Close()
		return &model.ConfigurationError{Reason: "engine " + c.cfg.ActiveEngine + ": " + err.Error()}
	}

	c.active = eng
	c.initialized = true
	logger.Info("coordinator initialized",
		"module", "coordinator", "action", "init", "resource", "engine",
		"result", "ok", "engine", eng.Name(), "version", eng.Version())
	return nil
}

// Close shuts down every engine this coordinator activated, then the
// store.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.active != nil {
		errs = append(errs, c.active.Close())
		c.active = nil
	}
	for _, eng := range c.retired {
		errs = append(errs, eng.Close())
	}
	c.retired = nil
	errs = append(errs, c.store.Close())
	c.initialized = false
	return errors.Join(errs...)
}

// SwitchEngine activates a different registered engine. Batches claimed
// after the switch use it; in-flight batches complete with the engine
// they started with, which stays open until Close.
func (c *Coordinator) SwitchEngine(ctx context.Context, name string) error {
	eng, err := engine.New(name, c.cfg.EngineConfigs[name])
	if err != nil {
		return err
	}
	if err := eng.Initialize(ctx); err != nil {
		return &model.ConfigurationError{Reason: "engine " + name + ": " + err.Error()}
	}
	return c.adoptEngine(eng)
}

// UseEngine activates a pre-built engine instance, for embedders whose
// engines are not registry-constructed.
func (c *Coordinator) UseEngine(ctx context.Context, eng engine.Engine) error {
	if err := eng.Initialize(ctx); err != nil {
		return &model.ConfigurationError{Reason: "engine " + eng.Name() + ": " + err.Error()}
	}
	return c.adoptEngine(eng)
}

func (c *Coordinator) adoptEngine(eng engine.Engine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return model.ErrNotInitialized
	}
	if c.active != nil {
		c.retired = append(c.retired, c.active)
	}
	c.active = eng
	logger.Info("engine switched",
		"module", "coordinator", "action", "switch", "resource", "engine",
		"result", "ok", "engine", eng.Name(), "version", eng.Version())
	return nil
}

func (c *Coordinator) activeEngine() engine.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Request validates inputs and durably records a PENDING row per target
// language. Fast path: no engine call, returns once the write commits.
func (c *Coordinator) Request(ctx context.Context, in RequestInput) error {
	if strings.TrimSpace(in.Text) == "" {
		return &model.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if len(in.TargetLangs) == 0 {
		return &model.ValidationError{Field: "target_langs", Reason: "at least one target language is required"}
	}
	for _, lang := range in.TargetLangs {
		if !langPattern.MatchString(lang) {
			return &model.ValidationError{Field: "target_langs", Reason: "malformed language code " + lang}
		}
	}
	sourceLang := in.SourceLang
	if sourceLang == "" {
		sourceLang = c.cfg.SourceLang
	}
	if sourceLang != "" && !langPattern.MatchString(sourceLang) {
		return &model.ValidationError{Field: "source_lang", Reason: "malformed language code " + sourceLang}
	}

	contextHash, contextJSON, err := model.HashContext(in.Context)
	if err != nil {
		return err
	}
	if len(in.Context) > 0 && contextHash == model.GlobalContext {
		return &model.ValidationError{Field: "context", Reason: "hash collides with the global sentinel"}
	}

	eng := c.activeEngine()
	if eng == nil {
		return model.ErrNotInitialized
	}

	err = c.store.EnsurePending(ctx, store.EnsurePendingRequest{
		Text:          in.Text,
		TargetLangs:   in.TargetLangs,
		SourceLang:    sourceLang,
		EngineVersion: eng.Version(),
		BusinessID:    in.BusinessID,
		ContextHash:   contextHash,
		ContextJSON:   contextJSON,
	})
	if err != nil {
		return err
	}

	logger.Debug("translation request registered",
		"module", "coordinator", "action", "register", "resource", "translation",
		"result", "ok", "langs", len(in.TargetLangs), "business_id", in.BusinessID)
	return nil
}

// GetTranslation returns the stored translation for (text, targetLang,
// context), consulting the in-memory cache first and backfilling it on a
// store hit. Concurrent misses for one key collapse into a single store
// query. Returns nil when no TRANSLATED row exists.
func (c *Coordinator) GetTranslation(ctx context.Context, text, targetLang string, requestContext map[string]any) (*model.TranslationResult, error) {
	if !langPattern.MatchString(targetLang) {
		return nil, &model.ValidationError{Field: "target_lang", Reason: "malformed language code " + targetLang}
	}
	contextHash, _, err := model.HashContext(requestContext)
	if err != nil {
		return nil, err
	}

	key := cache.Key{Text: text, TargetLang: targetLang, ContextHash: contextHash}
	if entry, ok := c.cache.Get(key); ok {
		return &model.TranslationResult{
			OriginalContent:   text,
			TranslatedContent: entry.TranslatedText,
			TargetLang:        targetLang,
			Status:            model.StatusTranslated,
			EngineName:        entry.EngineName,
			FromCache:         true,
			ContextHash:       contextHash,
		}, nil
	}

	v, err, _ := c.lookups.Do(text+"\x00"+targetLang+"\x00"+contextHash, func() (any, error) {
		return c.store.GetTranslation(ctx, text, targetLang, contextHash)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*model.TranslationResult)
	if result == nil {
		return nil, nil
	}

	c.cache.Add(key, cache.Entry{
		TranslatedText: result.TranslatedContent,
		EngineName:     result.EngineName,
	})
	result.FromCache = false
	return result, nil
}

// TouchSource bumps the association freshness for a business id without
// re-registering its content.
func (c *Coordinator) TouchSource(ctx context.Context, businessID string) error {
	if businessID == "" {
		return &model.ValidationError{Field: "business_id", Reason: "must not be empty"}
	}
	return c.store.TouchSource(ctx, businessID)
}

// RunGC deletes stale associations and orphan content. retentionDays <= 0
// uses the configured default.
func (c *Coordinator) RunGC(ctx context.Context, retentionDays int, dryRun bool) (model.GCReport, error) {
	if retentionDays <= 0 {
		retentionDays = c.cfg.GCRetentionDays
	}
	report, err := c.store.GarbageCollect(ctx, retentionDays, dryRun)
	if err != nil {
		return model.GCReport{}, err
	}
	logger.Info("garbage collection finished",
		"module", "coordinator", "action", "gc", "resource", "store", "result", "ok",
		"dry_run", dryRun, "retention_days", retentionDays,
		"sources", report.DeletedSources, "content", report.DeletedContent,
		"translations", report.DeletedTranslations)
	return report, nil
}

// DeadLetters lists recent DLQ entries, newest first.
func (c *Coordinator) DeadLetters(ctx context.Context, limit int) ([]model.DeadLetterEntry, error) {
	return c.store.ListDeadLetters(ctx, limit)
}
