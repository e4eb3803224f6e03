package types

import "net/http"

// Assembly modes recorded in Lineage.
const (
	AssemblyFull          = "full"
	AssemblyFallback      = "fallback"
	AssemblyDeterministic = "deterministic"
)

// Envelope is the success response of a turn. It is immutable once returned
// and is cached verbatim by client_turn_id.
type Envelope struct {
	AssistantText    string            `json:"assistant_text"`
	Blocks           []Block           `json:"blocks"`
	SuggestedActions []SuggestedAction `json:"suggested_actions"`
	Lineage          Lineage           `json:"lineage"`
}

// SuggestedAction is a follow-up the client may offer as a one-click prompt.
type SuggestedAction struct {
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

// Lineage fingerprints the context a response was produced from.
type Lineage struct {
	ContextHash string `json:"context_hash"`
	Assembly    string `json:"assembly"`
	RequestID   string `json:"request_id"`
	Routing     string `json:"routing"`
	Tool        string `json:"tool,omitempty"`
}

// ErrorEnvelope is the failure response of a turn.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
	Trace TraceRef    `json:"trace"`
}

// ErrorDetail describes why a turn failed.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// TraceRef correlates an error with logs and the trace store.
type TraceRef struct {
	RequestID    string `json:"request_id"`
	ClientTurnID string `json:"client_turn_id,omitempty"`
}

// TurnResponse pairs an HTTP status with exactly one of Envelope or Error.
type TurnResponse struct {
	HTTPStatus int
	Envelope   *Envelope
	Error      *ErrorEnvelope
}

// Body returns the value to serialise as the HTTP response body.
func (r TurnResponse) Body() any {
	if r.Error != nil {
		return r.Error
	}
	return r.Envelope
}

// OK reports whether the response carries a success envelope.
func (r TurnResponse) OK() bool {
	return r.HTTPStatus == http.StatusOK && r.Envelope != nil
}
