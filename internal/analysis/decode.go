package analysis

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"conductor/internal/types"
)

const codeFeatureDisabled = "FEATURE_DISABLED"

// errorBody covers the failure shapes the service sends: a blocked run, an
// error.v1 envelope and a patch rejection.
type errorBody struct {
	// blocked run
	AnalysisStatus string                     `json:"analysis_status"`
	StatusReason   string                     `json:"status_reason"`
	Critiques      []struct{ Message string } `json:"critiques"`

	// error.v1 and patch rejection
	Schema     string      `json:"schema"`
	Status     string      `json:"status"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Retryable  bool        `json:"retryable"`
	Source     string      `json:"source"`
	Violations []Violation `json:"violations"`
}

func parseErrorBody(raw []byte) (errorBody, bool) {
	var eb errorBody
	if len(raw) == 0 {
		return eb, false
	}
	if err := json.Unmarshal(raw, &eb); err != nil {
		return errorBody{}, false
	}
	return eb, true
}

// message builds a human-readable reason: the primary reason followed by any
// itemised critique messages.
func (eb errorBody) message() string {
	parts := make([]string, 0, len(eb.Critiques)+1)
	primary := eb.StatusReason
	if primary == "" {
		primary = eb.Message
	}
	if primary != "" {
		parts = append(parts, primary)
	}
	for _, c := range eb.Critiques {
		if c.Message != "" {
			parts = append(parts, c.Message)
		}
	}
	return strings.Join(parts, "; ")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func fallbackMessage(status int) string {
	return fmt.Sprintf("analysis service returned status %d", status)
}

// decodeRun classifies a run response.
func decodeRun(status int, raw []byte) (*types.AnalysisResult, error) {
	if isSuccess(status) {
		var res types.AnalysisResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, &TransportError{Status: status, Message: "unreadable success body"}
		}
		return &res, nil
	}

	te := &TransportError{Status: status, Message: fallbackMessage(status)}
	if eb, ok := parseErrorBody(raw); ok {
		if msg := eb.message(); msg != "" {
			te.Message = msg
		}
		te.Code = eb.Code
		if te.Code == "" && eb.AnalysisStatus != "" {
			te.Code = strings.ToUpper(eb.AnalysisStatus)
		}
	}
	return nil, te
}

// decodePatch classifies a validate_patch response. Only server-class and
// unparseable failures come back as errors; structured rejections are results.
func decodePatch(status int, raw []byte) (PatchResult, error) {
	if isSuccess(status) {
		var body struct {
			Verdict      string               `json:"verdict"`
			AppliedGraph *types.GraphSnapshot `json:"applied_graph"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, &TransportError{Status: status, Message: "unreadable success body"}
		}
		return PatchSuccess{Verdict: body.Verdict, AppliedGraph: body.AppliedGraph}, nil
	}

	eb, parsed := parseErrorBody(raw)
	if status == http.StatusNotImplemented || (parsed && eb.Code == codeFeatureDisabled) {
		return PatchFeatureDisabled{Message: eb.Message}, nil
	}

	if status >= 400 && status < 500 && parsed && (eb.Status == "rejected" || eb.Code != "") {
		return PatchRejection{
			Status:     status,
			Code:       eb.Code,
			Message:    eb.Message,
			Violations: eb.Violations,
		}, nil
	}

	te := &TransportError{Status: status, Message: fallbackMessage(status)}
	if parsed {
		if msg := eb.message(); msg != "" {
			te.Message = msg
		}
		te.Code = eb.Code
	}
	return nil, te
}
