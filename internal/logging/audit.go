package logging

import (
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a structured audit event.
type AuditEventType string

const (
	// Turn lifecycle
	AuditTurnStart    AuditEventType = "turn_start"
	AuditTurnEnd      AuditEventType = "turn_end"
	AuditCacheHit     AuditEventType = "cache_hit"
	AuditTurnCoalesce AuditEventType = "turn_coalesced"

	// Routing
	AuditIntentRouted    AuditEventType = "intent_routed"
	AuditContextFallback AuditEventType = "context_fallback"

	// Tool execution
	AuditToolInvoke   AuditEventType = "tool_invoke"
	AuditToolComplete AuditEventType = "tool_complete"
	AuditToolError    AuditEventType = "tool_error"

	// Remote analysis calls
	AuditRemoteCall         AuditEventType = "remote_call"
	AuditRemoteRetry        AuditEventType = "remote_retry"
	AuditRemoteRetrySkipped AuditEventType = "remote_retry_skipped"
)

// AuditEvent is a structured audit entry. It is emitted as a single zap
// entry with the event type in the "audit" field.
type AuditEvent struct {
	EventType  AuditEventType
	RequestID  string
	TurnID     string
	Target     string
	Success    bool
	DurationMs int64
	Error      string
	Message    string
	Fields     map[string]interface{}
}

// AuditLogger emits audit events scoped to one request.
type AuditLogger struct {
	requestID string
	turnID    string
}

// Audit returns an unscoped audit logger.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithRequest creates an audit logger scoped to a request and turn.
func AuditWithRequest(requestID, turnID string) *AuditLogger {
	return &AuditLogger{requestID: requestID, turnID: turnID}
}

// Log emits ev, filling the request scope if unset.
func (a *AuditLogger) Log(ev AuditEvent) {
	if ev.RequestID == "" {
		ev.RequestID = a.requestID
	}
	if ev.TurnID == "" {
		ev.TurnID = a.turnID
	}

	mu.RLock()
	l := base
	mu.RUnlock()

	fields := []zap.Field{
		zap.String("category", "audit"),
		zap.String("audit", string(ev.EventType)),
		zap.String("request_id", ev.RequestID),
		zap.Bool("success", ev.Success),
		zap.Int64("ts", time.Now().UnixMilli()),
	}
	if ev.TurnID != "" {
		fields = append(fields, zap.String("turn_id", ev.TurnID))
	}
	if ev.Target != "" {
		fields = append(fields, zap.String("target", ev.Target))
	}
	if ev.DurationMs > 0 {
		fields = append(fields, zap.Int64("dur_ms", ev.DurationMs))
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
	}
	for k, v := range ev.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	msg := ev.Message
	if msg == "" {
		msg = string(ev.EventType)
	}
	if ev.Success || ev.Error == "" {
		l.Info(msg, fields...)
	} else {
		l.Warn(msg, fields...)
	}
}

// Event is shorthand for a successful event with a target.
func (a *AuditLogger) Event(t AuditEventType, target string, fields map[string]interface{}) {
	a.Log(AuditEvent{EventType: t, Target: target, Success: true, Fields: fields})
}

// Failure is shorthand for a failed event.
func (a *AuditLogger) Failure(t AuditEventType, target string, err error, duration time.Duration) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.Log(AuditEvent{EventType: t, Target: target, Error: msg, DurationMs: duration.Milliseconds()})
}
