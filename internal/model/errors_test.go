package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakenw/transhub/internal/model"
)

func TestErrors_AllMatchCore(t *testing.T) {
	cases := []error{
		&model.StorageError{Op: "save", Err: errors.New("disk full")},
		&model.ConflictError{Op: "insert", Err: errors.New("unique")},
		&model.ValidationError{Field: "text", Reason: "empty"},
		&model.ConfigurationError{Reason: "bad engine"},
		&model.APIError{Engine: "openai", Err: errors.New("503")},
		model.ErrStorage,
		model.ErrValidation,
		model.ErrEngineNotFound,
		model.ErrNotInitialized,
	}
	for _, err := range cases {
		require.ErrorIs(t, err, model.ErrCore, "%T must match ErrCore", err)
	}
}

func TestErrors_KindsAreDistinct(t *testing.T) {
	storageErr := &model.StorageError{Op: "save", Err: errors.New("x")}
	require.ErrorIs(t, storageErr, model.ErrStorage)
	require.NotErrorIs(t, storageErr, model.ErrValidation)

	validationErr := &model.ValidationError{Field: "text", Reason: "empty"}
	require.ErrorIs(t, validationErr, model.ErrValidation)
	require.NotErrorIs(t, validationErr, model.ErrStorage)
}

func TestErrors_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", &model.ConflictError{Op: "insert", Err: errors.New("dup")})
	require.ErrorIs(t, err, model.ErrConflict)
	require.ErrorIs(t, err, model.ErrCore)

	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "insert", conflict.Op)
}

func TestTranslationStatus_Valid(t *testing.T) {
	for _, s := range []model.TranslationStatus{
		model.StatusPending, model.StatusTranslating, model.StatusTranslated,
		model.StatusFailed, model.StatusApproved,
	} {
		require.True(t, s.Valid())
	}
	require.False(t, model.TranslationStatus("DONE").Valid())
}
