package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GlobalContext is the sentinel context hash used when a request carries
// no context. Stored in place of NULL so the translation uniqueness key
// never contains a NULL column.
const GlobalContext = "__GLOBAL__"

// CanonicalizeContext returns the canonical JSON serialization of a
// context mapping. encoding/json marshals map keys in sorted order at
// every nesting level, so two contexts are equal iff their canonical
// serializations are byte-equal.
func CanonicalizeContext(context map[string]any) (string, error) {
	if len(context) == 0 {
		return "", nil
	}
	b, err := json.Marshal(context)
	if err != nil {
		return "", &ValidationError{Field: "context", Reason: fmt.Sprintf("not JSON-serializable: %v", err)}
	}
	return string(b), nil
}

// HashContext returns the context hash and canonical serialization for a
// context mapping. An empty context yields (GlobalContext, "").
func HashContext(context map[string]any) (hash, canonical string, err error) {
	canonical, err = CanonicalizeContext(context)
	if err != nil {
		return "", "", err
	}
	if canonical == "" {
		return GlobalContext, "", nil
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), canonical, nil
}
