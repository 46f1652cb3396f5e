package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	AppName    = "Trans-Hub"
	AppVersion = "1.0.0"
)

// CacheType selects the bounding policy of the in-memory result cache.
const (
	CacheTypeLRU = "lru"
	CacheTypeTTL = "ttl"
)

type CacheConfig struct {
	Type    string
	MaxSize int
	TTL     time.Duration
}

type RetryConfig struct {
	// MaxAttempts is the total number of engine attempts per item,
	// including the first.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type RateLimiterConfig struct {
	Capacity   int
	RefillRate float64 // tokens per second
}

type LoggingConfig struct {
	Level  string
	Format string // text or json
}

// Config is the fully-materialized configuration the core consumes.
// Callers embedding the library build one directly; Load fills it from
// the environment for the daemon.
type Config struct {
	DatabaseURL  string
	ActiveEngine string
	SourceLang   string // default source language, empty = auto-detect

	BatchSize       int
	GCRetentionDays int

	// WorkerInterval is the scheduler tick for the background drain loop.
	WorkerInterval time.Duration
	// TargetLangs are the languages the background worker drains.
	TargetLangs []string

	// StaleClaimThreshold is how long a row may sit in TRANSLATING before
	// it is considered abandoned and re-queued.
	StaleClaimThreshold time.Duration
	// EngineCallTimeout bounds a single engine batch call. Zero disables.
	EngineCallTimeout time.Duration

	Cache       CacheConfig
	Retry       RetryConfig
	RateLimiter RateLimiterConfig
	Logging     LoggingConfig

	// EngineConfigs holds per-engine configuration, opaque to the core.
	EngineConfigs map[string]map[string]any
}

// Default returns a configuration with usable defaults for every knob.
func Default() Config {
	return Config{
		DatabaseURL:         filepath.Join("data", "transhub.db"),
		ActiveEngine:        "debug",
		BatchSize:           50,
		GCRetentionDays:     30,
		WorkerInterval:      time.Minute,
		StaleClaimThreshold: 10 * time.Minute,
		EngineCallTimeout:   60 * time.Second,
		Cache: CacheConfig{
			Type:    CacheTypeLRU,
			MaxSize: 1024,
			TTL:     time.Hour,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		RateLimiter: RateLimiterConfig{
			Capacity:   10,
			RefillRate: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		EngineConfigs: map[string]map[string]any{},
	}
}

// Load returns Default overridden by TRANSHUB_* environment variables.
func Load() Config {
	cfg := Default()

	if v := os.Getenv("TRANSHUB_DB_PATH"); v != "" {
		cfg.DatabaseURL = filepath.Clean(v)
	}
	if v := os.Getenv("TRANSHUB_ACTIVE_ENGINE"); v != "" {
		cfg.ActiveEngine = v
	}
	if v := os.Getenv("TRANSHUB_SOURCE_LANG"); v != "" {
		cfg.SourceLang = v
	}
	if v := os.Getenv("TRANSHUB_TARGET_LANGS"); v != "" {
		cfg.TargetLangs = splitList(v)
	}
	if v, ok := envInt("TRANSHUB_BATCH_SIZE"); ok {
		cfg.BatchSize = v
	}
	if v, ok := envInt("TRANSHUB_GC_RETENTION_DAYS"); ok {
		cfg.GCRetentionDays = v
	}
	if v, ok := envDuration("TRANSHUB_WORKER_INTERVAL"); ok {
		cfg.WorkerInterval = v
	}
	if v, ok := envDuration("TRANSHUB_STALE_CLAIM_THRESHOLD"); ok {
		cfg.StaleClaimThreshold = v
	}
	if v, ok := envDuration("TRANSHUB_ENGINE_CALL_TIMEOUT"); ok {
		cfg.EngineCallTimeout = v
	}
	if v := os.Getenv("TRANSHUB_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = strings.ToLower(v)
	}
	if v, ok := envInt("TRANSHUB_CACHE_MAXSIZE"); ok {
		cfg.Cache.MaxSize = v
	}
	if v, ok := envDuration("TRANSHUB_CACHE_TTL"); ok {
		cfg.Cache.TTL = v
	}
	if v, ok := envInt("TRANSHUB_RETRY_MAX_ATTEMPTS"); ok {
		cfg.Retry.MaxAttempts = v
	}
	if v, ok := envDuration("TRANSHUB_RETRY_INITIAL_BACKOFF"); ok {
		cfg.Retry.InitialBackoff = v
	}
	if v, ok := envDuration("TRANSHUB_RETRY_MAX_BACKOFF"); ok {
		cfg.Retry.MaxBackoff = v
	}
	if v, ok := envInt("TRANSHUB_RATE_LIMITER_CAPACITY"); ok {
		cfg.RateLimiter.Capacity = v
	}
	if v := os.Getenv("TRANSHUB_RATE_LIMITER_REFILL_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimiter.RefillRate = f
		}
	}
	if v := os.Getenv("TRANSHUB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRANSHUB_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
