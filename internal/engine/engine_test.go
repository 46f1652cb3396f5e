package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakenw/transhub/internal/engine"
	"github.com/sakenw/transhub/internal/model"
)

func TestRegistry_KnownEngines(t *testing.T) {
	names := engine.Names()
	require.Contains(t, names, engine.NameDebug)
	require.Contains(t, names, engine.NameOpenAI)
	require.Contains(t, names, engine.NameAnthropic)
}

func TestRegistry_UnknownEngine(t *testing.T) {
	_, err := engine.New("nonexistent", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, model.ErrEngineNotFound)
	require.ErrorIs(t, err, model.ErrCore)
}

func TestRegistry_CustomEngine(t *testing.T) {
	engine.Register("custom-test", func(cfg map[string]any) (engine.Engine, error) {
		return engine.NewDebug(), nil
	})
	e, err := engine.New("custom-test", nil)
	require.NoError(t, err)
	require.Equal(t, engine.NameDebug, e.Name())
}

func TestOpenAI_ConfigValidation(t *testing.T) {
	_, err := engine.New(engine.NameOpenAI, map[string]any{"model": "gpt-4o-mini"})
	require.ErrorIs(t, err, model.ErrConfiguration)

	_, err = engine.New(engine.NameOpenAI, map[string]any{"api_key": "sk-test"})
	require.ErrorIs(t, err, model.ErrConfiguration)

	e, err := engine.New(engine.NameOpenAI, map[string]any{"api_key": "sk-test", "model": "gpt-4o-mini"})
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-4o-mini", e.Version())
	require.Equal(t, 25, e.MaxBatchSize())
}

func TestAnthropic_ConfigValidation(t *testing.T) {
	_, err := engine.New(engine.NameAnthropic, map[string]any{})
	require.ErrorIs(t, err, model.ErrConfiguration)

	e, err := engine.New(engine.NameAnthropic, map[string]any{
		"api_key":        "sk-ant-test",
		"model":          "claude-sonnet-4-5",
		"max_batch_size": 10,
	})
	require.NoError(t, err)
	require.Equal(t, "anthropic/claude-sonnet-4-5", e.Version())
	require.Equal(t, 10, e.MaxBatchSize())
}

func TestLLMContext_Validation(t *testing.T) {
	e, err := engine.New(engine.NameOpenAI, map[string]any{"api_key": "sk-test", "model": "gpt-4o-mini"})
	require.NoError(t, err)

	parsed, err := e.ValidateContext(nil)
	require.NoError(t, err)
	require.Nil(t, parsed)

	_, err = e.ValidateContext(map[string]any{"system_prompt": "automotive domain"})
	require.NoError(t, err)

	_, err = e.ValidateContext(map[string]any{"system_prompt": 42})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = e.ValidateContext(map[string]any{"glossary": map[string]any{"Jaguar": "捷豹"}})
	require.NoError(t, err)

	_, err = e.ValidateContext(map[string]any{"glossary": "not-a-map"})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = e.ValidateContext(map[string]any{"surprise": true})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestDebug_TableAndDefault(t *testing.T) {
	e := engine.NewDebug()
	e.SetTranslation("zh-CN", "Hello", "你好")

	results, err := e.TranslateBatch(context.Background(), "", "zh-CN", []string{"Hello", "World"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Nil(t, results[0].Err)
	require.Equal(t, "你好", results[0].Text)
	require.Equal(t, "[zh-CN] World", results[1].Text)
	require.Equal(t, 1, e.Calls())
}

func TestDebug_FailText(t *testing.T) {
	e := engine.NewDebug()
	e.SetTranslation("fr-FR", "Hello", "Bonjour")
	e.FailText("Hello", 1, true, "transient glitch")

	results, err := e.TranslateBatch(context.Background(), "", "fr-FR", []string{"Hello"}, nil)
	require.NoError(t, err)
	require.NotNil(t, results[0].Err)
	require.True(t, results[0].Err.Retryable)
	require.Equal(t, "transient glitch", results[0].Err.Message)

	results, err = e.TranslateBatch(context.Background(), "", "fr-FR", []string{"Hello"}, nil)
	require.NoError(t, err)
	require.Nil(t, results[0].Err)
	require.Equal(t, "Bonjour", results[0].Text)
	require.Equal(t, 2, e.Calls())
}

func TestDebug_FailBatches(t *testing.T) {
	e := engine.NewDebug()
	e.FailBatches(1, "whole batch down")

	_, err := e.TranslateBatch(context.Background(), "", "zh-CN", []string{"x"}, nil)
	require.Error(t, err)

	results, err := e.TranslateBatch(context.Background(), "", "zh-CN", []string{"x"}, nil)
	require.NoError(t, err)
	require.Nil(t, results[0].Err)
}

func TestDebug_ContextReject(t *testing.T) {
	e := engine.NewDebug()
	_, err := e.ValidateContext(map[string]any{"reject": true})
	require.ErrorIs(t, err, model.ErrValidation)

	parsed, err := e.ValidateContext(map[string]any{"domain": "auto"})
	require.NoError(t, err)
	require.NotNil(t, parsed)
}

func TestDebug_FromRegistryConfig(t *testing.T) {
	e, err := engine.New(engine.NameDebug, map[string]any{
		"version":        "debug-9",
		"max_batch_size": 5,
		"table":          map[string]any{"zh-CN": map[string]any{"Hello": "你好"}},
	})
	require.NoError(t, err)
	require.Equal(t, "debug-9", e.Version())
	require.Equal(t, 5, e.MaxBatchSize())

	results, err := e.TranslateBatch(context.Background(), "", "zh-CN", []string{"Hello"}, nil)
	require.NoError(t, err)
	require.Equal(t, "你好", results[0].Text)
}
