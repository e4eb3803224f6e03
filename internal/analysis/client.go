// Package analysis is the client for the remote analysis service.
//
// Every operation validates its payload before touching the network, makes
// at most two attempts (one retry for timeouts and server-class failures),
// and classifies the outcome into typed results or a RemoteCallError.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"conductor/internal/logging"
	"conductor/internal/telemetry"
	"conductor/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	opRun           = "run"
	opValidatePatch = "validate_patch"

	pathRun           = "/v1/run"
	pathValidatePatch = "/v1/validate_patch"

	headerRequestID = "X-Request-Id"

	maxResponseBytes = 8 << 20
)

var tracer = telemetry.Tracer("conductor/internal/analysis")

// Config holds the client settings.
type Config struct {
	BaseURL        string
	APIToken       string
	Timeout        time.Duration // per attempt
	Backoff        time.Duration // pause before the retry
	MinRetryBudget time.Duration // budget that must remain after the backoff
}

// Client talks to the analysis service. It holds no per-call state and is
// safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the clock used for budget checks and elapsed times.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run simulates the payload's options against its goal.
func (c *Client) Run(ctx context.Context, payload RunPayload, requestID string, budget *Budget) (*types.AnalysisResult, error) {
	if err := payload.Validate(); err != nil {
		logging.Get(logging.CategoryAnalysis).Warn("run rejected before dispatch request_id=%s: %v", requestID, err)
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run payload: %w", err)
	}
	return callWithRetry(ctx, c, opRun, pathRun, requestID, budget, body, decodeRun)
}

// ValidatePatch asks the service to check and apply a set of operations.
// Structured rejections and a disabled feature are results, not errors.
func (c *Client) ValidatePatch(ctx context.Context, payload PatchPayload, requestID string, budget *Budget) (PatchResult, error) {
	if err := payload.Validate(); err != nil {
		logging.Get(logging.CategoryAnalysis).Warn("validate_patch rejected before dispatch request_id=%s: %v", requestID, err)
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch payload: %w", err)
	}
	return callWithRetry(ctx, c, opValidatePatch, pathValidatePatch, requestID, budget, body, decodePatch)
}

// =============================================================================
// RETRY
// =============================================================================

type decodeFunc[T any] func(status int, body []byte) (T, error)

func callWithRetry[T any](ctx context.Context, c *Client, op, path, requestID string, budget *Budget, body []byte, decode decodeFunc[T]) (T, error) {
	ctx, span := tracer.Start(ctx, "analysis."+op,
		trace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.String("analysis.operation", op),
		))
	defer span.End()

	audit := logging.AuditWithRequest(requestID, "")
	var zero T

	res, err := attempt(ctx, c, op, path, requestID, 1, body, decode)
	span.SetAttributes(attribute.Int("analysis.attempts", 1))
	if err == nil {
		return res, nil
	}

	var rce RemoteCallError
	if !errors.As(err, &rce) || !rce.Retryable() {
		telemetry.Fail(span, err)
		return zero, err
	}

	if budget != nil {
		remaining := budget.Remaining(c.now())
		if remaining-c.cfg.Backoff < c.cfg.MinRetryBudget {
			logging.Get(logging.CategoryAnalysis).Warn("%s retry skipped request_id=%s: %v left in turn budget", op, requestID, remaining.Round(time.Millisecond))
			audit.Event(logging.AuditRemoteRetrySkipped, op, map[string]interface{}{"remaining_ms": remaining.Milliseconds()})
			telemetry.Fail(span, err)
			return zero, err
		}
	}

	audit.Event(logging.AuditRemoteRetry, op, map[string]interface{}{"backoff_ms": c.cfg.Backoff.Milliseconds()})
	if !sleep(ctx, c.cfg.Backoff) {
		logging.Get(logging.CategoryAnalysis).Warn("%s retry abandoned request_id=%s: %v", op, requestID, ctx.Err())
		telemetry.Fail(span, err)
		return zero, err
	}

	res, err = attempt(ctx, c, op, path, requestID, 2, body, decode)
	span.SetAttributes(attribute.Int("analysis.attempts", 2))
	if err != nil {
		telemetry.Fail(span, err)
		return zero, err
	}
	return res, nil
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// =============================================================================
// SINGLE ATTEMPT
// =============================================================================

func attempt[T any](ctx context.Context, c *Client, op, path, requestID string, n int, body []byte, decode decodeFunc[T]) (T, error) {
	var zero T
	start := c.now()

	actx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, requestID)
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	logging.AnalysisDebug("%s attempt=%d request_id=%s", op, n, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, c.classifyFailure(ctx, op, n, requestID, start, err, 0, "")
	}
	defer resp.Body.Close()

	upstreamID := resp.Header.Get(headerRequestID)
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		// A truncated body is treated like no response at all.
		return zero, c.classifyFailure(ctx, op, n, requestID, start, err, 0, upstreamID)
	}
	elapsed := c.now().Sub(start)

	res, err := decode(resp.StatusCode, raw)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			te.Operation = op
			te.Elapsed = elapsed
			te.UpstreamRequestID = upstreamID
			te.Message = logging.Redact(te.Message, c.cfg.APIToken)
		}
		logging.Get(logging.CategoryAnalysis).Warn("%s attempt=%d request_id=%s status=%d elapsed=%v: %v", op, n, requestID, resp.StatusCode, elapsed.Round(time.Millisecond), err)
		logging.AuditWithRequest(requestID, "").Failure(logging.AuditRemoteCall, op, err, elapsed)
		return zero, err
	}

	logging.Analysis("%s attempt=%d request_id=%s status=%d elapsed=%v", op, n, requestID, resp.StatusCode, elapsed.Round(time.Millisecond))
	logging.AuditWithRequest(requestID, "").Log(logging.AuditEvent{
		EventType:  logging.AuditRemoteCall,
		Target:     op,
		Success:    true,
		DurationMs: elapsed.Milliseconds(),
		Fields:     map[string]interface{}{"status": resp.StatusCode, "attempt": n},
	})
	return res, nil
}

// classifyFailure turns a transport-level failure into a RemoteCallError.
// Cancellation of the caller's own context is returned as a plain wrapped
// context error because it is not a property of the remote side.
func (c *Client) classifyFailure(ctx context.Context, op string, n int, requestID string, start time.Time, err error, status int, upstreamID string) error {
	elapsed := c.now().Sub(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		logging.Get(logging.CategoryAnalysis).Warn("%s attempt=%d request_id=%s aborted: %v", op, n, requestID, ctxErr)
		return fmt.Errorf("analysis %s aborted: %w", op, ctxErr)
	}

	var out error
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		out = &TimeoutError{Operation: op, Timeout: c.cfg.Timeout, Elapsed: elapsed}
	} else {
		out = &TransportError{
			Operation:         op,
			Status:            status,
			Message:           logging.Redact(err.Error(), c.cfg.APIToken),
			Elapsed:           elapsed,
			UpstreamRequestID: upstreamID,
		}
	}
	logging.Get(logging.CategoryAnalysis).Warn("%s attempt=%d request_id=%s elapsed=%v: %v", op, n, requestID, elapsed.Round(time.Millisecond), out)
	logging.AuditWithRequest(requestID, "").Failure(logging.AuditRemoteCall, op, out, elapsed)
	return out
}
