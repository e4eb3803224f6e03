package turn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"conductor/internal/analysis"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"orchestrator error", &Error{Status: 400, Code: CodeInvalidRequest, Message: "bad"}, 400, CodeInvalidRequest, false},
		{"payload", &analysis.PayloadError{Operation: "run"}, 500, CodeInternalPayload, false},
		{"remote timeout", &analysis.TimeoutError{Operation: "run"}, 504, CodeAnalysisTimeout, true},
		{"remote 409", &analysis.TransportError{Status: 409, Message: "conflict"}, 409, CodeAnalysisRejected, false},
		{"remote 500", &analysis.TransportError{Status: 500}, 502, CodeAnalysisUnavailable, true},
		{"no response", &analysis.TransportError{Status: 0}, 502, CodeAnalysisUnavailable, true},
		{"wrapped transport", fmt.Errorf("tool run_analysis: %w", &analysis.TransportError{Status: 422}), 422, CodeAnalysisRejected, false},
		{"model", &modelError{adapter: "gemini/x", err: errors.New("boom")}, 502, CodeModelUnavailable, true},
		{"model deadline", &modelError{adapter: "gemini/x", err: context.DeadlineExceeded}, 502, CodeModelUnavailable, true},
		{"turn deadline", context.DeadlineExceeded, 504, CodeTurnTimeout, true},
		{"aborted", fmt.Errorf("analysis run aborted: %w", context.Canceled), 503, CodeTurnCancelled, true},
		{"other", errors.New("surprise"), http.StatusInternalServerError, CodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := &analysis.TimeoutError{Operation: "run"}
	err := classify(cause)

	var te *analysis.TimeoutError
	assert.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), CodeAnalysisTimeout)
}

func TestBadToolInput(t *testing.T) {
	err := badToolInput("operations[%d]: unknown op %q", 2, "explode")

	var tie *toolInputError
	assert.True(t, errors.As(err, &tie))
	assert.Equal(t, `operations[2]: unknown op "explode"`, err.Error())
}
