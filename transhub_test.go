package transhub_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakenw/transhub"
)

// TestEmbedderRoundTrip drives the library the way an embedder would:
// default config, register, drain, look up.
func TestEmbedderRoundTrip(t *testing.T) {
	cfg := transhub.DefaultConfig()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "hub.db")
	cfg.ActiveEngine = "debug"
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond

	hub, err := transhub.New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, hub.Initialize(ctx))
	t.Cleanup(func() { _ = hub.Close() })

	require.NoError(t, hub.Request(ctx, transhub.RequestInput{
		TargetLangs: []string{"de-DE"},
		Text:        "Hello",
		BusinessID:  "ui.title",
	}))

	resultCh, errCh, err := hub.ProcessPending(ctx, "de-DE", nil)
	require.NoError(t, err)

	var results []transhub.TranslationResult
	for r := range resultCh {
		results = append(results, r)
	}
	require.NoError(t, <-errCh)
	require.Len(t, results, 1)
	require.Equal(t, transhub.StatusTranslated, results[0].Status)
	require.Equal(t, "ui.title", results[0].BusinessID)
	require.Equal(t, transhub.GlobalContext, results[0].ContextHash)

	got, err := hub.GetTranslation(ctx, "Hello", "de-DE", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, results[0].TranslatedContent, got.TranslatedContent)
}

func TestEngineNames_IncludeShipped(t *testing.T) {
	names := transhub.EngineNames()
	require.Contains(t, names, "debug")
	require.Contains(t, names, "openai")
	require.Contains(t, names, "anthropic")
}
