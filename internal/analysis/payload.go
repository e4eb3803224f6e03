package analysis

import (
	"encoding/json"
	"fmt"

	"conductor/internal/types"
)

// RunOption is one option to simulate.
type RunOption struct {
	OptionID      string             `json:"option_id"`
	Label         string             `json:"label,omitempty"`
	Interventions map[string]float64 `json:"interventions,omitempty"`
}

// RunPayload is the body of the run operation. Extra fields are sent through
// untouched alongside the known ones; a known field always wins over an Extra
// entry with the same key.
type RunPayload struct {
	Graph      *types.GraphSnapshot
	Options    []RunOption
	GoalNodeID string
	Extra      map[string]any
}

// Validate checks the fields the service requires.
func (p RunPayload) Validate() error {
	var problems []string
	if p.Graph == nil {
		problems = append(problems, "graph is required")
	}
	if len(p.Options) == 0 {
		problems = append(problems, "options must not be empty")
	}
	for i, opt := range p.Options {
		if opt.OptionID == "" {
			problems = append(problems, fmt.Sprintf("options[%d].option_id is required", i))
		}
	}
	if p.GoalNodeID == "" {
		problems = append(problems, "goal_node_id is required")
	}
	if len(problems) > 0 {
		return &PayloadError{Operation: opRun, Problems: problems}
	}
	return nil
}

// MarshalJSON flattens Extra into the top-level object.
func (p RunPayload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		m[k] = v
	}
	m["graph"] = p.Graph
	m["options"] = p.Options
	m["goal_node_id"] = p.GoalNodeID
	return json.Marshal(m)
}

// PatchPayload is the body of the validate_patch operation.
type PatchPayload struct {
	Graph      *types.GraphSnapshot
	Operations []types.PatchOperation
	Extra      map[string]any
}

// Validate checks the fields the service requires.
func (p PatchPayload) Validate() error {
	var problems []string
	if p.Graph == nil {
		problems = append(problems, "graph is required")
	}
	if len(p.Operations) == 0 {
		problems = append(problems, "operations must not be empty")
	}
	if len(problems) > 0 {
		return &PayloadError{Operation: opValidatePatch, Problems: problems}
	}
	return nil
}

// MarshalJSON flattens Extra into the top-level object.
func (p PatchPayload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		m[k] = v
	}
	m["graph"] = p.Graph
	m["operations"] = p.Operations
	return json.Marshal(m)
}

// RunPayloadFromGraph derives a run payload from a decision graph. The goal
// is the first goal node; every option node becomes an option whose
// interventions are its edges into factor nodes, weighted by edge strength
// (1.0 when unset). The result is not validated.
func RunPayloadFromGraph(g *types.GraphSnapshot) RunPayload {
	p := RunPayload{Graph: g}
	if g == nil {
		return p
	}
	if goals := g.NodesOfKind(types.NodeKindGoal); len(goals) > 0 {
		p.GoalNodeID = goals[0].ID
	}
	for _, opt := range g.NodesOfKind(types.NodeKindOption) {
		ro := RunOption{OptionID: opt.ID, Label: opt.Label}
		for _, e := range g.Edges {
			if e.From != opt.ID {
				continue
			}
			target, ok := g.Node(e.To)
			if !ok || target.Kind != types.NodeKindFactor {
				continue
			}
			if ro.Interventions == nil {
				ro.Interventions = make(map[string]float64)
			}
			weight := 1.0
			if e.Strength != nil {
				weight = *e.Strength
			}
			ro.Interventions[e.To] = weight
		}
		p.Options = append(p.Options, ro)
	}
	return p
}
