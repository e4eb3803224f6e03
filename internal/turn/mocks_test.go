package turn

import (
	"context"
	"sync"

	"conductor/internal/analysis"
	"conductor/internal/store"
	"conductor/internal/types"
)

// --- MockAnalysisClient ---

type MockAnalysisClient struct {
	RunFunc           func(ctx context.Context, payload analysis.RunPayload, requestID string, budget *analysis.Budget) (*types.AnalysisResult, error)
	ValidatePatchFunc func(ctx context.Context, payload analysis.PatchPayload, requestID string, budget *analysis.Budget) (analysis.PatchResult, error)

	// State for verification
	mu            sync.Mutex
	RunPayloads   []analysis.RunPayload
	PatchPayloads []analysis.PatchPayload
	RequestIDs    []string
	Budgets       []*analysis.Budget
}

func (m *MockAnalysisClient) Run(ctx context.Context, payload analysis.RunPayload, requestID string, budget *analysis.Budget) (*types.AnalysisResult, error) {
	m.mu.Lock()
	m.RunPayloads = append(m.RunPayloads, payload)
	m.RequestIDs = append(m.RequestIDs, requestID)
	m.Budgets = append(m.Budgets, budget)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, payload, requestID, budget)
	}
	return sampleResult(), nil
}

func (m *MockAnalysisClient) ValidatePatch(ctx context.Context, payload analysis.PatchPayload, requestID string, budget *analysis.Budget) (analysis.PatchResult, error) {
	m.mu.Lock()
	m.PatchPayloads = append(m.PatchPayloads, payload)
	m.RequestIDs = append(m.RequestIDs, requestID)
	m.mu.Unlock()
	if m.ValidatePatchFunc != nil {
		return m.ValidatePatchFunc(ctx, payload, requestID, budget)
	}
	return analysis.PatchSuccess{Verdict: "accepted"}, nil
}

func (m *MockAnalysisClient) RunCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RunPayloads)
}

func (m *MockAnalysisClient) PatchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PatchPayloads)
}

// --- MockModelAdapter ---

type MockModelAdapter struct {
	ChatWithToolsFunc func(ctx context.Context, req types.ModelRequest) (*types.ModelResponse, error)

	mu       sync.Mutex
	Requests []types.ModelRequest
}

func (m *MockModelAdapter) Name() string { return "mock/model" }

func (m *MockModelAdapter) ChatWithTools(ctx context.Context, req types.ModelRequest) (*types.ModelResponse, error) {
	m.mu.Lock()
	req.Messages = append([]types.ModelMessage(nil), req.Messages...)
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.ChatWithToolsFunc != nil {
		return m.ChatWithToolsFunc(ctx, req)
	}
	return &types.ModelResponse{Text: "ok", StopReason: "end_turn"}, nil
}

func (m *MockModelAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// scriptedModel answers with the given responses in order, repeating the last.
func scriptedModel(responses ...*types.ModelResponse) *MockModelAdapter {
	m := &MockModelAdapter{}
	m.ChatWithToolsFunc = func(ctx context.Context, req types.ModelRequest) (*types.ModelResponse, error) {
		n := m.Calls() - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		return responses[n], nil
	}
	return m
}

// --- MockAssembler ---

type MockAssembler struct {
	AssembleFunc func(ctx context.Context, in types.AssemblyInput) (*types.AssembledContext, error)
	Calls        int
}

func (m *MockAssembler) Assemble(ctx context.Context, in types.AssemblyInput) (*types.AssembledContext, error) {
	m.Calls++
	if m.AssembleFunc != nil {
		return m.AssembleFunc(ctx, in)
	}
	return &types.AssembledContext{System: "mock"}, nil
}

// --- MockDrafter ---

type MockDrafter struct {
	DraftGraphFunc func(ctx context.Context, description string, framing types.Framing) (*types.GraphSnapshot, error)
	Descriptions   []string
}

func (m *MockDrafter) DraftGraph(ctx context.Context, description string, framing types.Framing) (*types.GraphSnapshot, error) {
	m.Descriptions = append(m.Descriptions, description)
	if m.DraftGraphFunc != nil {
		return m.DraftGraphFunc(ctx, description, framing)
	}
	return testGraph(), nil
}

// --- MockTraceRecorder ---

type MockTraceRecorder struct {
	RecordFunc func(ctx context.Context, t *store.TurnTrace) error

	mu   sync.Mutex
	Rows []store.TurnTrace
}

func (m *MockTraceRecorder) Record(ctx context.Context, t *store.TurnTrace) error {
	m.mu.Lock()
	m.Rows = append(m.Rows, *t)
	m.mu.Unlock()
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, t)
	}
	return nil
}

func (m *MockTraceRecorder) Snapshot() []store.TurnTrace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.TurnTrace(nil), m.Rows...)
}

// =============================================================================
// FIXTURES
// =============================================================================

func ptr(f float64) *float64 { return &f }

func testGraph() *types.GraphSnapshot {
	return &types.GraphSnapshot{
		Nodes: []types.GraphNode{
			{ID: "goal_1", Kind: types.NodeKindGoal, Label: "Grow revenue"},
			{ID: "opt_a", Kind: types.NodeKindOption, Label: "Raise prices"},
			{ID: "opt_b", Kind: types.NodeKindOption, Label: "Expand sales team"},
			{ID: "fac_1", Kind: types.NodeKindFactor, Label: "Churn"},
		},
		Edges: []types.GraphEdge{
			{ID: "e1", From: "opt_a", To: "fac_1", Strength: ptr(0.6)},
			{ID: "e2", From: "fac_1", To: "goal_1"},
		},
	}
}

func sampleResult() *types.AnalysisResult {
	return &types.AnalysisResult{
		Meta: types.AnalysisMeta{SeedUsed: 42, NSamples: 1000, ResponseHash: "rh-1"},
		Results: []types.OptionResult{
			{OptionID: "opt_a", Label: "Raise prices", Outcome: types.OutcomeStats{Mean: 0.4, P10: 0.1, P50: 0.4, P90: 0.7}},
			{OptionID: "opt_b", Label: "Expand sales team", Outcome: types.OutcomeStats{Mean: 0.6, P10: 0.3, P50: 0.6, P90: 0.8}},
		},
	}
}
