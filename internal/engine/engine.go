// Package engine defines the translator contract the coordinator drives,
// a name-based registry, and the shipped implementations.
package engine

import "context"

// ItemError is a per-item translation failure. Retryable errors are
// re-attempted by the coordinator's retry loop; non-retryable ones are
// terminal on first occurrence.
type ItemError struct {
	Message   string
	Retryable bool
}

// Result is the outcome for one input item, in input order. Exactly one
// of Text / Err is meaningful.
type Result struct {
	Text string
	Err  *ItemError
}

// Context is a per-engine normalized request context, produced by
// ValidateContext and passed back to TranslateBatch. Opaque to the
// coordinator.
type Context any

// Engine is a polymorphic translator.
//
// TranslateBatch returns one Result per input item, in input order. The
// call itself may fail wholesale only for unrecoverable conditions;
// transient wholesale failures must be reported as per-item retryable
// errors so the coordinator drives retry policy uniformly.
type Engine interface {
	// Initialize performs network/credential checks as needed. Called
	// once before first use.
	Initialize(ctx context.Context) error
	Close() error

	Name() string
	// Version is recorded per translation row; must be a stable
	// identifier for cache/schema compatibility.
	Version() string
	// MaxBatchSize is the upper bound on items per TranslateBatch call;
	// the coordinator chunks batches to respect it.
	MaxBatchSize() int

	// ValidateContext normalizes a raw request context. A validation
	// failure is non-retryable and terminal for every item sharing the
	// context.
	ValidateContext(raw map[string]any) (Context, error)

	// TranslateBatch translates items into targetLang. sourceLang is
	// empty for auto-detection.
	TranslateBatch(ctx context.Context, sourceLang, targetLang string, items []string, engineCtx Context) ([]Result, error)
}
