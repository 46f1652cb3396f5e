// Package cache holds previously obtained translations in a bounded
// in-memory map scoped to the worker process lifetime.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sakenw/transhub/internal/config"
	"github.com/sakenw/transhub/internal/model"
)

// Key identifies one cached translation.
type Key struct {
	Text        string
	TargetLang  string
	ContextHash string
}

// Entry is the cached outcome.
type Entry struct {
	TranslatedText string
	EngineName     string
	EngineVersion  string
}

// Cache is a bounded, concurrency-safe translation cache. Both policy
// containers from golang-lru satisfy it directly.
type Cache interface {
	Get(key Key) (Entry, bool)
	Add(key Key, entry Entry) bool
	Len() int
	Purge()
}

// New builds a cache for the configured policy: "lru" evicts the least
// recently used entry past MaxSize; "ttl" additionally expires entries
// TTL after insertion.
func New(cfg config.CacheConfig) (Cache, error) {
	size := cfg.MaxSize
	if size <= 0 {
		size = 1024
	}

	switch cfg.Type {
	case "", config.CacheTypeLRU:
		c, err := lru.New[Key, Entry](size)
		if err != nil {
			return nil, &model.ConfigurationError{Reason: fmt.Sprintf("cache: %v", err)}
		}
		return c, nil
	case config.CacheTypeTTL:
		if cfg.TTL <= 0 {
			return nil, &model.ConfigurationError{Reason: "cache: ttl policy requires a positive ttl"}
		}
		return expirable.NewLRU[Key, Entry](size, nil, cfg.TTL), nil
	default:
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("cache: unknown type %q", cfg.Type)}
	}
}
