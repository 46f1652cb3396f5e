package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sakenw/transhub/internal/model"
)

// NameAnthropic is the registry name of the Anthropic messages engine.
const NameAnthropic = "anthropic"

func init() {
	Register(NameAnthropic, newAnthropicFromConfig)
}

// AnthropicEngine translates via the Anthropic messages API. Safe for
// concurrent use.
type AnthropicEngine struct {
	client       anthropic.Client
	model        string
	maxTokens    int
	maxBatchSize int
}

func newAnthropicFromConfig(cfg map[string]any) (Engine, error) {
	apiKey := stringOpt(cfg, "api_key")
	if apiKey == "" {
		return nil, &model.ConfigurationError{Reason: "anthropic: api_key is required"}
	}
	modelName := stringOpt(cfg, "model")
	if modelName == "" {
		return nil, &model.ConfigurationError{Reason: "anthropic: model is required"}
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := stringOpt(cfg, "base_url"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	maxTokens, err := intOpt(cfg, "max_tokens", "anthropic", 4096)
	if err != nil {
		return nil, err
	}
	maxBatch, err := intOpt(cfg, "max_batch_size", "anthropic", 25)
	if err != nil {
		return nil, err
	}

	return &AnthropicEngine{
		client:       anthropic.NewClient(opts...),
		model:        modelName,
		maxTokens:    maxTokens,
		maxBatchSize: maxBatch,
	}, nil
}

// Initialize is a no-op; credentials are checked on the first real call.
func (e *AnthropicEngine) Initialize(ctx context.Context) error { return nil }

func (e *AnthropicEngine) Close() error { return nil }

func (e *AnthropicEngine) Name() string { return NameAnthropic }

func (e *AnthropicEngine) Version() string { return NameAnthropic + "/" + e.model }

func (e *AnthropicEngine) MaxBatchSize() int { return e.maxBatchSize }

func (e *AnthropicEngine) ValidateContext(raw map[string]any) (Context, error) {
	parsed, err := parseLLMContext(raw)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, nil
	}
	return parsed, nil
}

func (e *AnthropicEngine) TranslateBatch(ctx context.Context, sourceLang, targetLang string, items []string, engineCtx Context) ([]Result, error) {
	var hint string
	if c, ok := engineCtx.(*llmContext); ok {
		hint = c.hint()
	}
	systemPrompt := translatePrompt(sourceLang, targetLang) + hint

	results := make([]Result, len(items))
	for i, text := range items {
		translated, err := e.complete(ctx, systemPrompt, text)
		if err != nil {
			results[i] = Result{Err: classifyAnthropicError(err)}
			continue
		}
		results[i] = Result{Text: translated}
	}
	return results, nil
}

func (e *AnthropicEngine) complete(ctx context.Context, systemPrompt, content string) (string, error) {
	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: int64(e.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		},
	})
	if err != nil {
		return "", err
	}

	// Extract text content from the response (skip thinking blocks).
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			return strings.TrimSpace(v.Text), nil
		}
	}
	return "", errors.New("no text content in response")
}

func classifyAnthropicError(err error) *ItemError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ItemError{Message: err.Error(), Retryable: true}
	}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &ItemError{Message: err.Error(), Retryable: retryableStatus(apierr.StatusCode)}
	}
	return &ItemError{Message: err.Error(), Retryable: true}
}
