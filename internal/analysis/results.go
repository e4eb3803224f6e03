package analysis

import (
	"encoding/json"

	"conductor/internal/types"
)

// PatchResult is the closed set of validate_patch outcomes:
// PatchSuccess, PatchRejection or PatchFeatureDisabled.
type PatchResult interface {
	isPatchResult()
}

// PatchSuccess carries the service verdict and, when accepted, the graph with
// the operations applied.
type PatchSuccess struct {
	Verdict      string
	AppliedGraph *types.GraphSnapshot
}

// PatchRejection is a structured client-class rejection. It is never retried.
type PatchRejection struct {
	Status     int
	Code       string
	Message    string
	Violations []Violation
}

// PatchFeatureDisabled means the service does not offer patch validation.
type PatchFeatureDisabled struct {
	Message string
}

func (PatchSuccess) isPatchResult()         {}
func (PatchRejection) isPatchResult()       {}
func (PatchFeatureDisabled) isPatchResult() {}

// Violation is one itemised reason for a rejection. The service sends either
// plain strings or objects; both decode here.
type Violation struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func (v *Violation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Violation{Message: s}
		return nil
	}
	type plain Violation
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = Violation(p)
	return nil
}
