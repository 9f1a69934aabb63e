package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerError_ExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        *ReconcilerError
		expectCode int
	}{
		{"validation", Validation(CodeAmountMismatch, "parts", "10.00"), 3},
		{"parse", ParseError(CodeInvalidFormat, "bank.csv", 4, "amount", "abc", nil), 3},
		{"configuration", ConfigurationError("ai.threshold", 2, nil), 4},
		{"state", InvalidState(CodeNotEligible, "manual reconcile", "totals differ"), 5},
		{"not found", NotFound(CodeTransactionNotFound, "bank transaction", "B9"), 5},
		{"collaborator", CollaboratorUnavailable(CodeServiceUnavailable, "matching service", nil), 6},
		{"persistence", Persistence("load", "cashOnHandData", stderrors.New("disk")), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectCode, tt.err.GetExitCode())
			assert.Equal(t, tt.expectCode, GetExitCode(tt.err))
			assert.NotNil(t, tt.err.StackTrace)
		})
	}

	assert.Equal(t, 0, GetExitCode(nil))
	assert.Equal(t, 1, GetExitCode(stderrors.New("plain")))
}

func TestCategoryPredicates(t *testing.T) {
	cause := stderrors.New("connection refused")
	unavailable := CollaboratorUnavailable(CodeServiceUnavailable, "matching service", cause)
	wrapped := fmt.Errorf("suggest: %w", unavailable)

	assert.True(t, IsCollaboratorUnavailable(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.False(t, IsInvalidState(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, stderrors.Is(wrapped, cause))
	assert.True(t, HasCode(wrapped, CodeServiceUnavailable))

	assert.True(t, IsValidation(Validation(CodeMissingField, "date", nil)))
	assert.True(t, IsInvalidState(InvalidState(CodeInvalidTransition, "certify", "session is archived")))
	assert.True(t, IsNotFound(NotFound(CodeSessionNotFound, "session", "s-1")))
}

func TestErrorMessageIncludesSuggestionAndCause(t *testing.T) {
	err := CollaboratorUnavailable(CodeTimeout, "matching service", stderrors.New("deadline exceeded"))

	msg := err.Error()
	assert.Contains(t, msg, "matching service timed out")
	assert.Contains(t, msg, "deadline exceeded")
	assert.Contains(t, msg, "suggestion:")
	assert.Equal(t, "matching service", err.Context["collaborator"])
}

func TestAsReconcilerError(t *testing.T) {
	base := Validation(CodeAmountMismatch, "parts", "1.00")
	wrapped := fmt.Errorf("split: %w", base)

	re, ok := AsReconcilerError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeAmountMismatch, re.Code)

	_, ok = AsReconcilerError(stderrors.New("plain"))
	assert.False(t, ok)

	assert.Nil(t, Wrap(nil, CategoryInternal, CodeUnexpectedError, "nothing"))
}
