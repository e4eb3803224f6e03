package analysis

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// REMOTE CALL ERRORS
// =============================================================================

// RemoteCallError is the closed set of failures a remote call can end in:
// *TimeoutError or *TransportError.
type RemoteCallError interface {
	error
	// Retryable reports whether the failure is transient.
	Retryable() bool
	isRemoteCallError()
}

// TimeoutError means the per-call timeout expired before a response arrived.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis %s timed out after %v", e.Operation, e.Elapsed.Round(time.Millisecond))
}

// Retryable is always true for timeouts.
func (e *TimeoutError) Retryable() bool { return true }

func (*TimeoutError) isRemoteCallError() {}

// TransportError is a non-success answer from the service, or no answer at all
// (Status 0, for example a refused connection).
type TransportError struct {
	Operation         string
	Status            int
	Code              string
	Message           string
	Elapsed           time.Duration
	UpstreamRequestID string
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "analysis %s failed", e.Operation)
	if e.Status > 0 {
		fmt.Fprintf(&b, " with status %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Retryable is true for server-class statuses and for calls that got no
// response. Client-class statuses are deterministic rejections.
func (e *TransportError) Retryable() bool {
	return e.Status == 0 || e.Status >= 500
}

func (*TransportError) isRemoteCallError() {}

// =============================================================================
// OUTBOUND VALIDATION
// =============================================================================

// PayloadError reports a malformed outbound payload. It is raised before any
// network call and is never retried.
type PayloadError struct {
	Operation string
	Problems  []string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Operation, strings.Join(e.Problems, "; "))
}
