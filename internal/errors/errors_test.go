package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	err := FitDiverged("penalized IRLS failed to converge")
	assert.Equal(t, "penalized IRLS failed to converge", err.Error())
	assert.Equal(t, CodeFitDiverged, GetCode(err))
}

func TestWrapPreservesCode(t *testing.T) {
	inner := ConfigInvalid("fraction out of range")
	wrapped := Wrap(inner, "configuration validation failed")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Contains(t, wrapped.Error(), "configuration validation failed")
	assert.True(t, stderrors.Is(wrapped, inner))
}

func TestWrapPlainError(t *testing.T) {
	wrapped := Wrap(stderrors.New("disk full"), "failed to write artifact")
	assert.Equal(t, CodeInternalError, GetCode(wrapped))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, WithCode(CodeStoreError, nil))
}

func TestWithCodeOverrides(t *testing.T) {
	err := WithCode(CodeFitDiverged, stderrors.New("too few records"))
	assert.Equal(t, CodeFitDiverged, GetCode(err))
}

func TestGetCodeUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestStoreErrorCarriesCause(t *testing.T) {
	cause := stderrors.New("database is locked")
	err := StoreError("failed to save run", cause)

	assert.Equal(t, CodeStoreError, GetCode(err))
	assert.Contains(t, err.Error(), "database is locked")
	assert.True(t, stderrors.Is(err, cause))
}
