package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sakenw/transhub/internal/model"
)

// NameOpenAI is the registry name of the OpenAI chat-completions engine.
const NameOpenAI = "openai"

func init() {
	Register(NameOpenAI, newOpenAIFromConfig)
}

// OpenAIEngine translates via the OpenAI chat completions API. One
// request per item; the items of a batch share one context. Safe for
// concurrent use.
type OpenAIEngine struct {
	client       openai.Client
	model        string
	maxBatchSize int
}

func newOpenAIFromConfig(cfg map[string]any) (Engine, error) {
	apiKey := stringOpt(cfg, "api_key")
	if apiKey == "" {
		return nil, &model.ConfigurationError{Reason: "openai: api_key is required"}
	}
	modelName := stringOpt(cfg, "model")
	if modelName == "" {
		return nil, &model.ConfigurationError{Reason: "openai: model is required"}
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := stringOpt(cfg, "base_url"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	maxBatch, err := intOpt(cfg, "max_batch_size", "openai", 25)
	if err != nil {
		return nil, err
	}

	return &OpenAIEngine{
		client:       openai.NewClient(opts...),
		model:        modelName,
		maxBatchSize: maxBatch,
	}, nil
}

// Initialize is a no-op: credentials are checked on the first real call
// to avoid spending a request on startup.
func (e *OpenAIEngine) Initialize(ctx context.Context) error { return nil }

func (e *OpenAIEngine) Close() error { return nil }

func (e *OpenAIEngine) Name() string { return NameOpenAI }

func (e *OpenAIEngine) Version() string { return NameOpenAI + "/" + e.model }

func (e *OpenAIEngine) MaxBatchSize() int { return e.maxBatchSize }

func (e *OpenAIEngine) ValidateContext(raw map[string]any) (Context, error) {
	parsed, err := parseLLMContext(raw)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, nil
	}
	return parsed, nil
}

func (e *OpenAIEngine) TranslateBatch(ctx context.Context, sourceLang, targetLang string, items []string, engineCtx Context) ([]Result, error) {
	var hint string
	if c, ok := engineCtx.(*llmContext); ok {
		hint = c.hint()
	}
	systemPrompt := translatePrompt(sourceLang, targetLang) + hint

	results := make([]Result, len(items))
	for i, text := range items {
		translated, err := e.complete(ctx, systemPrompt, text)
		if err != nil {
			results[i] = Result{Err: classifyOpenAIError(err)}
			continue
		}
		results[i] = Result{Text: translated}
	}
	return results, nil
}

func (e *OpenAIEngine) complete(ctx context.Context, systemPrompt, content string) (string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(content),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIError(err error) *ItemError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ItemError{Message: err.Error(), Retryable: true}
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &ItemError{Message: err.Error(), Retryable: retryableStatus(apierr.StatusCode)}
	}
	// Transport-level failure: no response at all, worth retrying.
	return &ItemError{Message: err.Error(), Retryable: true}
}
