// Package transhub provides the public API for embedding the Trans-Hub
// localization backend: a persistent, deduplicated, exactly-once
// translation pipeline over an embedded SQLite store and pluggable
// translation engines.
//
// Typical use:
//
//	cfg := transhub.DefaultConfig()
//	cfg.DatabaseURL = "data/transhub.db"
//	hub, err := transhub.New(cfg)
//	...
//	err = hub.Initialize(ctx)
//	err = hub.Request(ctx, transhub.RequestInput{TargetLangs: []string{"zh-CN"}, Text: "Hello"})
//	results, errs, err := hub.ProcessPending(ctx, "zh-CN", nil)
package transhub

import (
	"github.com/sakenw/transhub/internal/config"
	"github.com/sakenw/transhub/internal/coordinator"
	"github.com/sakenw/transhub/internal/engine"
	"github.com/sakenw/transhub/internal/logger"
	"github.com/sakenw/transhub/internal/model"
	"github.com/sakenw/transhub/internal/store"
)

// Core types for driving the pipeline.
type (
	Coordinator    = coordinator.Coordinator
	RequestInput   = coordinator.RequestInput
	ProcessOptions = coordinator.ProcessOptions

	Config            = config.Config
	CacheConfig       = config.CacheConfig
	RetryConfig       = config.RetryConfig
	RateLimiterConfig = config.RateLimiterConfig

	TranslationResult = model.TranslationResult
	ContentItem       = model.ContentItem
	DeadLetterEntry   = model.DeadLetterEntry
	GCReport          = model.GCReport
	TranslationStatus = model.TranslationStatus

	// Engine is the contract custom translators implement; register one
	// with RegisterEngine before Initialize.
	Engine        = engine.Engine
	EngineResult  = engine.Result
	EngineError   = engine.ItemError
	EngineFactory = engine.Factory

	Store = store.Store
)

// Translation status constants.
const (
	StatusPending     = model.StatusPending
	StatusTranslating = model.StatusTranslating
	StatusTranslated  = model.StatusTranslated
	StatusFailed      = model.StatusFailed
	StatusApproved    = model.StatusApproved
)

// GlobalContext is the sentinel context hash recorded when a request
// carries no context.
const GlobalContext = model.GlobalContext

// Error kinds. errors.Is(err, ErrCore) matches every core error.
var (
	ErrCore           = model.ErrCore
	ErrConfiguration  = model.ErrConfiguration
	ErrEngineNotFound = model.ErrEngineNotFound
	ErrAPI            = model.ErrAPI
	ErrStorage        = model.ErrStorage
	ErrConflict       = model.ErrConflict
	ErrValidation     = model.ErrValidation
)

// DefaultConfig returns a configuration with usable defaults.
func DefaultConfig() Config {
	return config.Default()
}

// New builds a coordinator over an SQLite store at cfg.DatabaseURL.
// Call Initialize before use and Close when done.
func New(cfg Config) (*Coordinator, error) {
	return coordinator.New(cfg, store.NewSQLite(cfg.DatabaseURL))
}

// NewWithStore builds a coordinator over a caller-provided store.
func NewWithStore(cfg Config, st Store) (*Coordinator, error) {
	return coordinator.New(cfg, st)
}

// RegisterEngine makes a custom engine factory available under name for
// SwitchEngine and the active_engine configuration option.
func RegisterEngine(name string, factory EngineFactory) {
	engine.Register(name, factory)
}

// EngineNames lists the registered engine names.
func EngineNames() []string {
	return engine.Names()
}

// InitLogging configures the process-wide structured logger from the
// logging options. Optional; embedders with their own slog setup can
// skip it.
func InitLogging(cfg Config) {
	logger.Init(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
}
