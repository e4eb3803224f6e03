package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"conductor/internal/analysis"
	"conductor/internal/logging"
	"conductor/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// TOOL CATALOGUE
// =============================================================================

// toolOutput is what a tool contributes to the envelope. Result is the
// summary handed back to the model as the tool message.
type toolOutput struct {
	Blocks []types.Block
	Text   string
	Result map[string]any
}

// turnState is the per-turn working set. Tools update graph and analysis so
// that later tool calls and the suggested actions see their effect.
type turnState struct {
	req       types.TurnRequest
	requestID string
	budget    *analysis.Budget
	audit     *logging.AuditLogger

	graph    *types.GraphSnapshot
	analysis *types.AnalysisResult
	lastTool types.ToolName
}

func (st *turnState) turnID() string {
	return st.req.ClientTurnID
}

func (st *turnState) hasGraph() bool {
	return st.graph != nil && len(st.graph.Nodes) > 0
}

func (st *turnState) hasAnalysis() bool {
	return st.analysis != nil && len(st.analysis.Results) > 0
}

var toolDefinitions = map[types.ToolName]types.ToolDefinition{
	types.ToolRunAnalysis: {
		Name:        string(types.ToolRunAnalysis),
		Description: "Simulate every option in the current decision graph against its goal.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	types.ToolGenerateBrief: {
		Name:        string(types.ToolGenerateBrief),
		Description: "Write a decision brief from the current graph and the latest analysis.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	types.ToolDraftGraph: {
		Name:        string(types.ToolDraftGraph),
		Description: "Draft a first decision graph from a description of the decision.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{"type": "string", "description": "The decision in the user's words."},
			},
			"required": []string{"description"},
		},
	},
	types.ToolEditGraph: {
		Name:        string(types.ToolEditGraph),
		Description: "Propose edits to the decision graph. Edits are validated before they are shown.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{"type": "string"},
				"operations": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"op": map[string]any{"type": "string", "enum": []string{
								types.OpAddNode, types.OpUpdateNode, types.OpRemoveNode,
								types.OpAddEdge, types.OpUpdateEdge, types.OpRemoveEdge,
							}},
							"path":  map[string]any{"type": "string"},
							"value": map[string]any{"type": "object"},
						},
						"required": []string{"op", "path"},
					},
				},
			},
			"required": []string{"operations"},
		},
	},
	types.ToolExplainResults: {
		Name:        string(types.ToolExplainResults),
		Description: "Fetch the outcome statistics of the latest analysis, optionally for selected options.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"option_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
	},
}

// toolOrder fixes the order tools are offered to the model.
var toolOrder = []types.ToolName{
	types.ToolRunAnalysis,
	types.ToolGenerateBrief,
	types.ToolDraftGraph,
	types.ToolEditGraph,
	types.ToolExplainResults,
}

var validOps = map[string]bool{
	types.OpAddNode: true, types.OpUpdateNode: true, types.OpRemoveNode: true,
	types.OpAddEdge: true, types.OpUpdateEdge: true, types.OpRemoveEdge: true,
}

// prerequisite returns nil if tool can run in the current state, or the
// reason it cannot.
func (h *Handler) prerequisite(tool types.ToolName, st *turnState) error {
	switch tool {
	case types.ToolRunAnalysis, types.ToolEditGraph:
		if !st.hasGraph() {
			return fmt.Errorf("%s needs a decision graph", tool)
		}
	case types.ToolGenerateBrief:
		if !st.hasGraph() || !st.hasAnalysis() {
			return fmt.Errorf("%s needs a decision graph and a completed analysis", tool)
		}
	case types.ToolDraftGraph:
		if st.hasGraph() {
			return fmt.Errorf("%s is only available before a graph exists", tool)
		}
		if _, d := h.models(); d == nil {
			return fmt.Errorf("%s has no drafter configured", tool)
		}
	case types.ToolExplainResults:
		if !st.hasAnalysis() {
			return fmt.Errorf("%s needs a completed analysis", tool)
		}
	default:
		return fmt.Errorf("unknown tool %q", tool)
	}
	return nil
}

// availableTools lists the definitions whose prerequisites currently hold.
func (h *Handler) availableTools(st *turnState) []types.ToolDefinition {
	var defs []types.ToolDefinition
	for _, name := range toolOrder {
		if h.prerequisite(name, st) == nil {
			defs = append(defs, toolDefinitions[name])
		}
	}
	return defs
}

// executeTool runs one tool. Failed prerequisites and bad arguments come back
// as *toolInputError; everything else is a turn failure.
func (h *Handler) executeTool(ctx context.Context, st *turnState, tool types.ToolName, args map[string]any) (toolOutput, error) {
	ctx, span := tracer.Start(ctx, "turn.tool", trace.WithAttributes(attribute.String("tool", string(tool))))
	defer span.End()

	if err := h.prerequisite(tool, st); err != nil {
		st.audit.Failure(logging.AuditToolError, string(tool), err, 0)
		return toolOutput{}, &toolInputError{msg: err.Error()}
	}

	start := time.Now()
	st.audit.Event(logging.AuditToolInvoke, string(tool), nil)

	var (
		out toolOutput
		err error
	)
	switch tool {
	case types.ToolRunAnalysis:
		out, err = h.runAnalysis(ctx, st)
	case types.ToolGenerateBrief:
		out, err = h.generateBrief(st)
	case types.ToolDraftGraph:
		desc, _ := args["description"].(string)
		out, err = h.draftGraph(ctx, st, desc)
	case types.ToolEditGraph:
		out, err = h.editGraph(ctx, st, args)
	case types.ToolExplainResults:
		out, err = h.explainResults(st, args)
	}

	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		st.audit.Failure(logging.AuditToolError, string(tool), err, elapsed)
		return toolOutput{}, err
	}
	st.lastTool = tool
	st.audit.Log(logging.AuditEvent{
		EventType:  logging.AuditToolComplete,
		Target:     string(tool),
		Success:    true,
		DurationMs: elapsed.Milliseconds(),
		Fields:     map[string]interface{}{"blocks": len(out.Blocks)},
	})
	return out, nil
}

// =============================================================================
// TOOL IMPLEMENTATIONS
// =============================================================================

func (h *Handler) runAnalysis(ctx context.Context, st *turnState) (toolOutput, error) {
	payload := analysis.RunPayloadFromGraph(st.graph)
	if missing := readiness(payload); len(missing) > 0 {
		text := "Before I can run the analysis, the graph needs " + strings.Join(missing, ", ") + "."
		logging.Turn("run_analysis not ready request_id=%s: %s", st.requestID, strings.Join(missing, ", "))
		return toolOutput{
			Blocks: []types.Block{h.blocks.Commentary(text, st.turnID())},
			Text:   text,
			Result: map[string]any{"status": "not_ready", "missing": missing},
		}, nil
	}

	res, err := h.deps.Analysis.Run(ctx, payload, st.requestID, st.budget)
	if err != nil {
		return toolOutput{}, err
	}
	st.analysis = res

	fact, err := h.blocks.Fact(comparisonFact(res), st.turnID())
	if err != nil {
		return toolOutput{}, err
	}
	out := toolOutput{Blocks: []types.Block{fact}, Text: runSummary(res)}
	if card, ok := critiqueCard(res.Critiques); ok {
		b, err := h.blocks.ReviewCard(card, st.turnID())
		if err != nil {
			return toolOutput{}, err
		}
		out.Blocks = append(out.Blocks, b)
	}
	out.Blocks = append(out.Blocks, h.blocks.Framing(types.FramingData{
		Stage: types.StageEvaluate,
		Goal:  goalLabel(st.graph, st.req.Context.Framing),
	}, st.turnID()))

	out.Result = map[string]any{
		"status":        "ok",
		"n_samples":     res.Meta.NSamples,
		"response_hash": res.Meta.ResponseHash,
		"results":       res.Results,
		"critiques":     len(res.Critiques),
	}
	return out, nil
}

func (h *Handler) generateBrief(st *turnState) (toolOutput, error) {
	brief := decisionBrief(st.graph, st.analysis, st.req.Context.Framing)
	b, err := h.blocks.Brief(brief, st.turnID())
	if err != nil {
		return toolOutput{}, err
	}
	text := "Here is your decision brief."
	if brief.Recommendation != "" {
		text += " " + brief.Recommendation
	}
	return toolOutput{
		Blocks: []types.Block{b},
		Text:   text,
		Result: map[string]any{"status": "ok", "recommendation": brief.Recommendation},
	}, nil
}

func (h *Handler) draftGraph(ctx context.Context, st *turnState, description string) (toolOutput, error) {
	if strings.TrimSpace(description) == "" {
		description = draftDescription(st.req)
	}
	_, drafter := h.models()
	g, err := drafter.DraftGraph(ctx, description, st.req.Context.Framing)
	if err != nil {
		if ctx.Err() != nil {
			return toolOutput{}, ctx.Err()
		}
		return toolOutput{}, &modelError{adapter: "drafter", err: err}
	}
	if g == nil {
		return toolOutput{}, &modelError{adapter: "drafter", err: errors.New("empty draft")}
	}

	patch, err := draftPatch(g)
	if err != nil {
		return toolOutput{}, err
	}
	b, err := h.blocks.GraphPatch(patch, st.turnID())
	if err != nil {
		return toolOutput{}, err
	}
	st.graph = g

	return toolOutput{
		Blocks: []types.Block{
			b,
			h.blocks.Framing(types.FramingData{Stage: types.StageIdeate, Goal: goalLabel(g, st.req.Context.Framing)}, st.turnID()),
		},
		Text:   patch.Summary + ". Review it and add anything I missed.",
		Result: map[string]any{"status": "proposed", "nodes": len(g.Nodes), "edges": len(g.Edges)},
	}, nil
}

// draftDescription gathers what the user has said so far about the decision.
func draftDescription(req types.TurnRequest) string {
	var parts []string
	if goal := req.Context.Framing.Goal; goal != "" {
		parts = append(parts, "Goal: "+goal)
	}
	for _, m := range req.Context.Messages {
		if m.Role == types.RoleUser && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	parts = append(parts, req.Message)
	return strings.Join(parts, "\n")
}

func (h *Handler) editGraph(ctx context.Context, st *turnState, args map[string]any) (toolOutput, error) {
	ops, err := parseOperations(args["operations"])
	if err != nil {
		return toolOutput{}, err
	}
	summary, _ := args["summary"].(string)

	res, err := h.deps.Analysis.ValidatePatch(ctx, analysis.PatchPayload{Graph: st.graph, Operations: ops}, st.requestID, st.budget)
	if err != nil {
		return toolOutput{}, err
	}

	patch := types.GraphPatchData{PatchType: "edit", Operations: ops, Summary: summary}

	switch r := res.(type) {
	case analysis.PatchSuccess:
		patch.Status = types.PatchValidated
		patch.AppliedGraph = r.AppliedGraph
		b, err := h.blocks.GraphPatch(patch, st.turnID())
		if err != nil {
			return toolOutput{}, err
		}
		if r.AppliedGraph != nil {
			st.graph = r.AppliedGraph
			st.analysis = nil
		}
		return toolOutput{
			Blocks: []types.Block{b},
			Text:   "The graph edit was validated.",
			Result: map[string]any{"status": "validated", "verdict": r.Verdict},
		}, nil

	case analysis.PatchRejection:
		patch.Status = types.PatchRejected
		card, err := h.blocks.ReviewCard(rejectionCard(r), st.turnID())
		if err != nil {
			return toolOutput{}, err
		}
		b, err := h.blocks.GraphPatch(patch, st.turnID())
		if err != nil {
			return toolOutput{}, err
		}
		violations := make([]string, 0, len(r.Violations))
		for _, v := range r.Violations {
			violations = append(violations, v.Message)
		}
		return toolOutput{
			Blocks: []types.Block{card, b},
			Text:   "The graph edit was rejected: " + r.Message,
			Result: map[string]any{"status": "rejected", "code": r.Code, "message": r.Message, "violations": violations},
		}, nil

	case analysis.PatchFeatureDisabled:
		patch.Status = types.PatchProposed
		b, err := h.blocks.GraphPatch(patch, st.turnID())
		if err != nil {
			return toolOutput{}, err
		}
		note := "Patch validation is unavailable, so this edit has not been checked."
		return toolOutput{
			Blocks: []types.Block{b, h.blocks.Commentary(note, st.turnID())},
			Text:   note,
			Result: map[string]any{"status": "unvalidated"},
		}, nil
	}
	return toolOutput{}, fmt.Errorf("unexpected patch result %T", res)
}

func parseOperations(raw any) ([]types.PatchOperation, error) {
	if raw == nil {
		return nil, badToolInput("edit_graph needs an operations list")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, badToolInput("edit_graph operations are not valid JSON: %v", err)
	}
	var ops []types.PatchOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, badToolInput("edit_graph operations must be a list of {op, path, value}: %v", err)
	}
	if len(ops) == 0 {
		return nil, badToolInput("edit_graph needs at least one operation")
	}
	for i, op := range ops {
		if !validOps[op.Op] {
			return nil, badToolInput("operations[%d]: unknown op %q", i, op.Op)
		}
		if op.Path == "" {
			return nil, badToolInput("operations[%d]: path is required", i)
		}
	}
	return ops, nil
}

func (h *Handler) explainResults(st *turnState, args map[string]any) (toolOutput, error) {
	want := map[string]bool{}
	if ids, ok := args["option_ids"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				want[s] = true
			}
		}
	}

	var out toolOutput
	var stats []map[string]any
	for _, r := range ranked(st.analysis) {
		if len(want) > 0 && !want[r.OptionID] {
			continue
		}
		b, err := h.blocks.Fact(types.FactData{
			FactType:     factOptionOutcome,
			Claims:       outcomeClaims(r),
			ResponseHash: st.analysis.Meta.ResponseHash,
		}, st.turnID())
		if err != nil {
			return toolOutput{}, err
		}
		out.Blocks = append(out.Blocks, b)
		stats = append(stats, map[string]any{
			"option_id": r.OptionID,
			"label":     optionLabel(r),
			"mean":      r.Outcome.Mean,
			"p10":       r.Outcome.P10,
			"p50":       r.Outcome.P50,
			"p90":       r.Outcome.P90,
		})
	}
	if len(stats) == 0 {
		return toolOutput{}, badToolInput("none of the requested options are in the latest analysis")
	}
	critiques := make([]string, 0, len(st.analysis.Critiques))
	for _, c := range st.analysis.Critiques {
		critiques = append(critiques, c.Message)
	}
	out.Result = map[string]any{"status": "ok", "options": stats, "critiques": critiques}
	return out, nil
}

// toolResultMessage renders a tool outcome as the model-facing tool message.
func toolResultMessage(call types.ToolCall, out toolOutput, err error) types.ModelMessage {
	result := out.Result
	var tie *toolInputError
	if errors.As(err, &tie) {
		result = map[string]any{"status": "error", "error": tie.msg}
	}
	if result == nil {
		result = map[string]any{"status": "ok"}
	}
	data, mErr := json.Marshal(result)
	if mErr != nil {
		data = []byte(`{"status":"ok"}`)
	}
	return types.ModelMessage{
		Role:       types.RoleTool,
		Content:    string(data),
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}
