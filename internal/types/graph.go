package types

import "encoding/json"

// Node kinds recognised when deriving analysis payloads from a graph.
const (
	NodeKindGoal    = "goal"
	NodeKindOption  = "option"
	NodeKindFactor  = "factor"
	NodeKindOutcome = "outcome"
	NodeKindRisk    = "risk"
)

// GraphSnapshot is the caller's decision graph at the time of the turn.
type GraphSnapshot struct {
	Version string      `json:"version,omitempty"`
	Nodes   []GraphNode `json:"nodes"`
	Edges   []GraphEdge `json:"edges"`
}

// GraphNode is a single node of the decision graph.
type GraphNode struct {
	ID    string                     `json:"id"`
	Kind  string                     `json:"kind"`
	Label string                     `json:"label,omitempty"`
	Data  map[string]json.RawMessage `json:"data,omitempty"`
}

// GraphEdge is a directed, optionally weighted edge.
type GraphEdge struct {
	ID       string   `json:"id,omitempty"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Strength *float64 `json:"strength,omitempty"`
}

// Node returns the node with the given id.
func (g *GraphSnapshot) Node(id string) (GraphNode, bool) {
	if g == nil {
		return GraphNode{}, false
	}
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return GraphNode{}, false
}

// NodesOfKind returns the nodes of the given kind in graph order.
func (g *GraphSnapshot) NodesOfKind(kind string) []GraphNode {
	if g == nil {
		return nil
	}
	var out []GraphNode
	for _, n := range g.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// PatchOperation is one edit against a graph. Value and Previous are kept as
// raw JSON so that the operation round-trips untouched to the analysis service.
type PatchOperation struct {
	Op       string          `json:"op"`
	Path     string          `json:"path"`
	Value    json.RawMessage `json:"value,omitempty"`
	Previous json.RawMessage `json:"previous,omitempty"`
}

// Patch operation verbs.
const (
	OpAddNode    = "add_node"
	OpUpdateNode = "update_node"
	OpRemoveNode = "remove_node"
	OpAddEdge    = "add_edge"
	OpUpdateEdge = "update_edge"
	OpRemoveEdge = "remove_edge"
)

// =============================================================================
// ANALYSIS RESULTS
// =============================================================================

// AnalysisResult is the success body of the remote run operation.
type AnalysisResult struct {
	Meta      AnalysisMeta   `json:"meta"`
	Results   []OptionResult `json:"results"`
	Critiques []Critique     `json:"critiques,omitempty"`
}

// AnalysisMeta describes how a run was computed.
type AnalysisMeta struct {
	SeedUsed     int64  `json:"seed_used"`
	NSamples     int    `json:"n_samples"`
	ResponseHash string `json:"response_hash"`
}

// OptionResult is the simulated outcome for one option.
type OptionResult struct {
	OptionID       string       `json:"option_id"`
	Label          string       `json:"label,omitempty"`
	Outcome        OutcomeStats `json:"outcome"`
	WinProbability float64      `json:"win_probability,omitempty"`
}

// OutcomeStats summarises the sampled goal distribution for an option.
type OutcomeStats struct {
	Mean float64 `json:"mean"`
	P10  float64 `json:"p10"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
}

// Critique is an itemised remark returned by the analysis service.
type Critique struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}
