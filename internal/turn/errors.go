package turn

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"conductor/internal/analysis"
)

// Error codes carried in error envelopes.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInternalPayload     = "INTERNAL_PAYLOAD_ERROR"
	CodeAnalysisRejected    = "ANALYSIS_REJECTED"
	CodeAnalysisUnavailable = "ANALYSIS_UNAVAILABLE"
	CodeAnalysisTimeout     = "ANALYSIS_TIMEOUT"
	CodeModelUnavailable    = "MODEL_UNAVAILABLE"
	CodeTurnTimeout         = "TURN_TIMEOUT"
	CodeTurnCancelled       = "TURN_CANCELLED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is an orchestrator-level failure with the HTTP status it maps to.
type Error struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// modelError marks a failure of the model adapter.
type modelError struct {
	adapter string
	err     error
}

func (e *modelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.adapter, e.err)
}

func (e *modelError) Unwrap() error { return e.err }

// toolInputError is a problem with a model-requested tool call. It is
// reported back to the model as the tool result rather than failing the turn.
type toolInputError struct {
	msg string
}

func (e *toolInputError) Error() string { return e.msg }

func badToolInput(format string, args ...interface{}) error {
	return &toolInputError{msg: fmt.Sprintf(format, args...)}
}

// classify maps any dispatch failure onto an Error. Remote and model
// failures keep their own classification; the handler returns the bare
// context error when the turn itself ran out of time.
func classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}

	var payloadErr *analysis.PayloadError
	if errors.As(err, &payloadErr) {
		return &Error{Status: http.StatusInternalServerError, Code: CodeInternalPayload, Message: "the analysis request could not be built", Cause: err}
	}

	var timeoutErr *analysis.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &Error{Status: http.StatusGatewayTimeout, Code: CodeAnalysisTimeout, Message: "the analysis service did not respond in time", Retryable: true, Cause: err}
	}

	var transportErr *analysis.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Status >= 400 && transportErr.Status < 500 {
			return &Error{Status: transportErr.Status, Code: CodeAnalysisRejected, Message: transportErr.Message, Cause: err}
		}
		return &Error{Status: http.StatusBadGateway, Code: CodeAnalysisUnavailable, Message: "the analysis service is unavailable", Retryable: true, Cause: err}
	}

	var me *modelError
	if errors.As(err, &me) {
		return &Error{Status: http.StatusBadGateway, Code: CodeModelUnavailable, Message: "the language model is unavailable", Retryable: true, Cause: err}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Status: http.StatusGatewayTimeout, Code: CodeTurnTimeout, Message: "the turn ran out of time", Retryable: true, Cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Status: http.StatusServiceUnavailable, Code: CodeTurnCancelled, Message: "the turn was cancelled", Retryable: true, Cause: err}
	}

	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal error", Cause: err}
}
