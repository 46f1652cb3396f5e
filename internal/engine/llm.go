package engine

import (
	"fmt"
	"net/http"

	"github.com/sakenw/transhub/internal/model"
)

// llmContext is the normalized request context shared by the hosted LLM
// engines. Recognized keys: system_prompt (string), glossary
// (map of term to rendering).
type llmContext struct {
	SystemPrompt string
	Glossary     map[string]string
}

func parseLLMContext(raw map[string]any) (*llmContext, error) {
	if raw == nil {
		return nil, nil
	}
	parsed := &llmContext{}
	for key, value := range raw {
		switch key {
		case "system_prompt":
			s, ok := value.(string)
			if !ok {
				return nil, &model.ValidationError{Field: "context.system_prompt", Reason: "must be a string"}
			}
			parsed.SystemPrompt = s
		case "glossary":
			entries, ok := value.(map[string]any)
			if !ok {
				return nil, &model.ValidationError{Field: "context.glossary", Reason: "must be a mapping"}
			}
			parsed.Glossary = make(map[string]string, len(entries))
			for term, rendering := range entries {
				s, ok := rendering.(string)
				if !ok {
					return nil, &model.ValidationError{Field: "context.glossary", Reason: fmt.Sprintf("rendering for %q must be a string", term)}
				}
				parsed.Glossary[term] = s
			}
		default:
			return nil, &model.ValidationError{Field: "context", Reason: fmt.Sprintf("unknown key %q", key)}
		}
	}
	return parsed, nil
}

func (c *llmContext) hint() string {
	if c == nil {
		return ""
	}
	return contextHint(c.SystemPrompt, c.Glossary)
}

// retryableStatus classifies HTTP status codes from engine APIs:
// throttling and server-side failures are transient, the rest are
// permanent.
func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= 500:
		return true
	}
	return false
}

func stringOpt(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func intOpt(cfg map[string]any, key, engineName string, fallback int) (int, error) {
	v, ok := cfg[key]
	if !ok {
		return fallback, nil
	}
	n, err := toInt(v)
	if err != nil || n <= 0 {
		return 0, &model.ConfigurationError{Reason: fmt.Sprintf("%s: invalid %s %v", engineName, key, v)}
	}
	return n, nil
}
