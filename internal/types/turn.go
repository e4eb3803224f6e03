package types

// =============================================================================
// TURN REQUEST AND CONVERSATION CONTEXT
// =============================================================================

// ToolName identifies a tool the orchestrator can dispatch.
type ToolName string

const (
	ToolRunAnalysis    ToolName = "run_analysis"
	ToolGenerateBrief  ToolName = "generate_brief"
	ToolDraftGraph     ToolName = "draft_graph"
	ToolEditGraph      ToolName = "edit_graph"
	ToolExplainResults ToolName = "explain_results"
)

// Stage is the framing stage of a decision conversation.
type Stage string

const (
	StageFrame    Stage = "frame"
	StageIdeate   Stage = "ideate"
	StageEvaluate Stage = "evaluate"
	StageDecide   Stage = "decide"
)

// Message roles used in conversation history and model requests.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// TurnRequest is one user message plus the caller-owned conversation context.
// ClientTurnID is the idempotency key and must be stable across client retries
// of the same user action.
type TurnRequest struct {
	Message      string              `json:"message"`
	Context      ConversationContext `json:"context"`
	ScenarioID   string              `json:"scenario_id"`
	ClientTurnID string              `json:"client_turn_id"`
}

// ConversationContext is owned by the caller. The orchestrator only reads it.
type ConversationContext struct {
	Graph            *GraphSnapshot        `json:"graph,omitempty"`
	AnalysisResponse *AnalysisResult       `json:"analysis_response,omitempty"`
	Framing          Framing               `json:"framing"`
	Messages         []ConversationMessage `json:"messages"`
	ScenarioID       string                `json:"scenario_id"`
}

// Framing carries the conversation stage and the stated decision goal, if any.
type Framing struct {
	Stage Stage  `json:"stage"`
	Goal  string `json:"goal,omitempty"`
}

// ConversationMessage is one prior turn in the conversation history.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HasGraph reports whether the context carries a non-empty graph.
func (c ConversationContext) HasGraph() bool {
	return c.Graph != nil && len(c.Graph.Nodes) > 0
}

// HasAnalysis reports whether the context carries a prior analysis result.
func (c ConversationContext) HasAnalysis() bool {
	return c.AnalysisResponse != nil && len(c.AnalysisResponse.Results) > 0
}
