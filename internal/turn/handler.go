// Package turn is the orchestrator. A Handler takes one TurnRequest,
// deduplicates it by client_turn_id, routes it through the intent gate or the
// model tool loop, and always answers with a well-formed TurnResponse.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"conductor/internal/analysis"
	"conductor/internal/blocks"
	"conductor/internal/idempotency"
	"conductor/internal/intent"
	"conductor/internal/logging"
	"conductor/internal/store"
	"conductor/internal/telemetry"
	"conductor/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = telemetry.Tracer("conductor/internal/turn")

// AnalysisClient is the remote analysis surface the handler needs.
type AnalysisClient interface {
	Run(ctx context.Context, payload analysis.RunPayload, requestID string, budget *analysis.Budget) (*types.AnalysisResult, error)
	ValidatePatch(ctx context.Context, payload analysis.PatchPayload, requestID string, budget *analysis.Budget) (analysis.PatchResult, error)
}

// TraceRecorder persists one audit row per turn.
type TraceRecorder interface {
	Record(ctx context.Context, t *store.TurnTrace) error
}

// Config holds the hot-reloadable handler settings.
type Config struct {
	// Budget bounds the whole turn, retries included.
	Budget time.Duration
	// MaxToolRounds limits model round-trips that request tools.
	MaxToolRounds int
	// RecentMessages is how much history goes into the prompt.
	RecentMessages int
	// MaxGraphNodes is the largest graph the structured assembler renders.
	MaxGraphNodes int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Budget:         60 * time.Second,
		MaxToolRounds:  3,
		RecentMessages: 12,
		MaxGraphNodes:  200,
	}
}

// Deps are the collaborators of a Handler. Analysis is required; every other
// field has a default.
type Deps struct {
	Analysis  AnalysisClient
	Model     types.ModelAdapter
	Drafter   types.GraphDrafter
	Assembler types.ContextAssembler // nil uses StructuredAssembler
	Fallback  types.ContextAssembler // nil uses BasicAssembler
	Cache     *idempotency.Cache     // nil uses a 1024-entry, 10 minute cache
	Traces    TraceRecorder          // nil disables trace rows
	Blocks    *blocks.Factory
	Now       func() time.Time
}

// Handler orchestrates turns. It is safe for concurrent use.
type Handler struct {
	deps     Deps
	blocks   *blocks.Factory
	cache    *idempotency.Cache
	inflight idempotency.Group

	mu      sync.RWMutex
	cfg     Config
	model   types.ModelAdapter
	drafter types.GraphDrafter
}

// NewHandler creates a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	if deps.Analysis == nil {
		panic("turn: Deps.Analysis is required")
	}
	if deps.Cache == nil {
		deps.Cache = idempotency.NewCache(1024, 10*time.Minute)
	}
	if deps.Blocks == nil {
		deps.Blocks = blocks.NewFactory()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logging.Turn("Creating turn handler: budget=%v max_tool_rounds=%d model=%v", cfg.Budget, cfg.MaxToolRounds, deps.Model != nil)
	return &Handler{
		deps:    deps,
		blocks:  deps.Blocks,
		cache:   deps.Cache,
		cfg:     cfg,
		model:   deps.Model,
		drafter: deps.Drafter,
	}
}

// SetConfig replaces the handler settings for subsequent turns.
func (h *Handler) SetConfig(cfg Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

// SetModel swaps the model adapter and drafter for subsequent turns.
func (h *Handler) SetModel(model types.ModelAdapter, drafter types.GraphDrafter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.model = model
	h.drafter = drafter
}

func (h *Handler) config() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *Handler) models() (types.ModelAdapter, types.GraphDrafter) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model, h.drafter
}

func (h *Handler) assembler(cfg Config) types.ContextAssembler {
	if h.deps.Assembler != nil {
		return h.deps.Assembler
	}
	return StructuredAssembler{RecentMessages: cfg.RecentMessages, MaxNodes: cfg.MaxGraphNodes}
}

func (h *Handler) fallback(cfg Config) types.ContextAssembler {
	if h.deps.Fallback != nil {
		return h.deps.Fallback
	}
	return BasicAssembler{RecentMessages: cfg.RecentMessages}
}

// =============================================================================
// TURN ENTRY POINT
// =============================================================================

// HandleTurn processes one turn. It never panics and never returns an error:
// every failure becomes an error envelope with an explicit status.
func (h *Handler) HandleTurn(ctx context.Context, req types.TurnRequest, requestID string) types.TurnResponse {
	start := h.deps.Now()
	ctx, span := tracer.Start(ctx, "turn.handle", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.String("client_turn_id", req.ClientTurnID),
	))
	defer span.End()

	audit := logging.AuditWithRequest(requestID, req.ClientTurnID)
	audit.Event(logging.AuditTurnStart, req.ScenarioID, nil)

	if err := validateRequest(req); err != nil {
		resp := h.errorResponse(req, requestID, err)
		h.finish(ctx, req, requestID, resp, start, false)
		return resp
	}

	if env, ok := h.cache.Get(req.ClientTurnID); ok {
		logging.Turn("cache hit client_turn_id=%s request_id=%s", req.ClientTurnID, requestID)
		audit.Event(logging.AuditCacheHit, req.ClientTurnID, nil)
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return types.TurnResponse{HTTPStatus: http.StatusOK, Envelope: env}
	}

	resp, coalesced, err := h.inflight.Do(ctx, req.ClientTurnID, func() types.TurnResponse {
		// A turn that finished between the Get above and this call is served
		// from the cache.
		if env, ok := h.cache.Get(req.ClientTurnID); ok {
			return types.TurnResponse{HTTPStatus: http.StatusOK, Envelope: env}
		}
		resp := h.dispatchSafely(ctx, req, requestID, start)
		if resp.OK() {
			h.cache.Put(req.ClientTurnID, resp.Envelope)
		}
		return resp
	})
	if err != nil {
		resp = h.errorResponse(req, requestID, err)
	} else if coalesced {
		audit.Event(logging.AuditTurnCoalesce, req.ClientTurnID, nil)
		if resp.Error != nil {
			resp = h.errorResponse(req, requestID, &Error{
				Status:    resp.HTTPStatus,
				Code:      resp.Error.Error.Code,
				Message:   resp.Error.Error.Message,
				Retryable: resp.Error.Error.Retryable,
			})
		}
	}

	span.SetAttributes(attribute.Int("http_status", resp.HTTPStatus))
	h.finish(ctx, req, requestID, resp, start, coalesced)
	return resp
}

func validateRequest(req types.TurnRequest) error {
	var problems []string
	if strings.TrimSpace(req.ClientTurnID) == "" {
		problems = append(problems, "client_turn_id is required")
	}
	if strings.TrimSpace(req.Message) == "" && !req.Context.HasGraph() && len(req.Context.Messages) == 0 {
		problems = append(problems, "message is required when there is no context")
	}
	if len(problems) > 0 {
		return &Error{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: strings.Join(problems, "; ")}
	}
	return nil
}

// dispatchSafely runs the turn under its budget and turns panics into 500s.
func (h *Handler) dispatchSafely(ctx context.Context, req types.TurnRequest, requestID string, start time.Time) (resp types.TurnResponse) {
	cfg := h.config()
	// The budget only gates retries and further model rounds. Calls already
	// in flight run to their own timeouts; ctx carries the caller's abort.
	var budget *analysis.Budget
	if cfg.Budget > 0 {
		budget = analysis.NewBudget(start, cfg.Budget)
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryTurn).Error("panic in turn request_id=%s: %v\n%s", requestID, r, debug.Stack())
			resp = h.errorResponse(req, requestID, &Error{
				Status:  http.StatusInternalServerError,
				Code:    CodeInternal,
				Message: "internal error",
				Cause:   fmt.Errorf("panic: %v", r),
			})
		}
	}()

	st := &turnState{
		req:       req,
		requestID: requestID,
		budget:    budget,
		audit:     logging.AuditWithRequest(requestID, req.ClientTurnID),
		graph:     req.Context.Graph,
		analysis:  req.Context.AnalysisResponse,
	}

	env, err := h.dispatch(ctx, st, cfg)
	if err != nil {
		return h.errorResponse(req, requestID, err)
	}
	return types.TurnResponse{HTTPStatus: http.StatusOK, Envelope: env}
}

// =============================================================================
// ROUTING
// =============================================================================

func (h *Handler) dispatch(ctx context.Context, st *turnState, cfg Config) (*types.Envelope, error) {
	res := intent.Resolve(st.req.Message)
	if res.HasTool() {
		err := h.prerequisite(res.Tool, st)
		if err == nil {
			logging.Routing("deterministic tool=%s request_id=%s", res.Tool, st.requestID)
			st.audit.Event(logging.AuditIntentRouted, string(res.Tool), map[string]interface{}{"routing": string(intent.RoutingDeterministic)})
			return h.dispatchDeterministic(ctx, st, cfg, res.Tool)
		}
		logging.Routing("tool=%s matched but %v; using model request_id=%s", res.Tool, err, st.requestID)
	}
	st.audit.Event(logging.AuditIntentRouted, "", map[string]interface{}{"routing": string(intent.RoutingLLM)})
	return h.dispatchModel(ctx, st, cfg)
}

func (h *Handler) dispatchDeterministic(ctx context.Context, st *turnState, cfg Config, tool types.ToolName) (*types.Envelope, error) {
	assembled, err := BasicAssembler{RecentMessages: cfg.RecentMessages}.Assemble(ctx, h.assemblyInput(st, nil))
	if err != nil {
		return nil, err
	}

	out, err := h.executeTool(ctx, st, tool, nil)
	if err != nil {
		var tie *toolInputError
		if errors.As(err, &tie) {
			return nil, &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal error", Cause: err}
		}
		return nil, err
	}

	return &types.Envelope{
		AssistantText:    out.Text,
		Blocks:           nonNilBlocks(out.Blocks),
		SuggestedActions: suggestions(st.hasGraph(), st.hasAnalysis()),
		Lineage: types.Lineage{
			ContextHash: contextHash(types.AssemblyDeterministic, assembled),
			Assembly:    types.AssemblyDeterministic,
			RequestID:   st.requestID,
			Routing:     string(intent.RoutingDeterministic),
			Tool:        string(tool),
		},
	}, nil
}

func (h *Handler) dispatchModel(ctx context.Context, st *turnState, cfg Config) (*types.Envelope, error) {
	model, _ := h.models()
	if model == nil {
		return nil, &Error{Status: http.StatusServiceUnavailable, Code: CodeModelUnavailable, Message: "no language model is configured"}
	}

	tools := h.availableTools(st)
	in := h.assemblyInput(st, tools)

	mode := types.AssemblyFull
	assembled, err := h.assembler(cfg).Assemble(ctx, in)
	if err != nil {
		logging.Get(logging.CategoryContext).Warn("context assembly failed, using fallback request_id=%s: %v", st.requestID, err)
		st.audit.Failure(logging.AuditContextFallback, "assembler", err, 0)
		mode = types.AssemblyFallback
		assembled, err = h.fallback(cfg).Assemble(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("fallback context assembly: %w", err)
		}
	}

	msgs := append([]types.ModelMessage(nil), assembled.Messages...)
	var (
		blocksOut []types.Block
		toolTexts []string
		finalText string
	)

	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = 1
	}
	for round := 0; ; round++ {
		if round > 0 && st.budget != nil && st.budget.Remaining(h.deps.Now()) <= 0 {
			return nil, context.DeadlineExceeded
		}
		resp, err := model.ChatWithTools(ctx, types.ModelRequest{
			System:    assembled.System,
			Messages:  msgs,
			Tools:     tools,
			RequestID: st.requestID,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &modelError{adapter: model.Name(), err: err}
		}
		if len(resp.ToolCalls) == 0 {
			finalText = resp.Text
			break
		}
		if round >= rounds {
			logging.Get(logging.CategoryTurn).Warn("tool round limit %d reached request_id=%s", rounds, st.requestID)
			finalText = resp.Text
			break
		}

		msgs = append(msgs, types.ModelMessage{Role: types.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			out, err := h.executeTool(ctx, st, types.ToolName(call.Name), call.Input)
			var tie *toolInputError
			if err != nil && !errors.As(err, &tie) {
				return nil, err
			}
			if err == nil {
				blocksOut = append(blocksOut, out.Blocks...)
				if out.Text != "" {
					toolTexts = append(toolTexts, out.Text)
				}
			}
			msgs = append(msgs, toolResultMessage(call, out, err))
		}
		// Offer the tools that are valid after this round's changes.
		tools = h.availableTools(st)
	}

	if strings.TrimSpace(finalText) == "" {
		finalText = strings.Join(toolTexts, "\n\n")
	}

	return &types.Envelope{
		AssistantText:    finalText,
		Blocks:           nonNilBlocks(blocksOut),
		SuggestedActions: suggestions(st.hasGraph(), st.hasAnalysis()),
		Lineage: types.Lineage{
			ContextHash: contextHash(mode, assembled),
			Assembly:    mode,
			RequestID:   st.requestID,
			Routing:     string(intent.RoutingLLM),
			Tool:        string(st.lastTool),
		},
	}, nil
}

func (h *Handler) assemblyInput(st *turnState, tools []types.ToolDefinition) types.AssemblyInput {
	return types.AssemblyInput{
		Message:   st.req.Message,
		Context:   st.req.Context,
		Tools:     tools,
		RequestID: st.requestID,
	}
}

func nonNilBlocks(b []types.Block) []types.Block {
	if b == nil {
		return []types.Block{}
	}
	return b
}

// =============================================================================
// RESPONSES
// =============================================================================

func (h *Handler) errorResponse(req types.TurnRequest, requestID string, err error) types.TurnResponse {
	te := classify(err)
	if te.Status >= 500 {
		logging.Get(logging.CategoryTurn).Error("turn failed request_id=%s code=%s: %v", requestID, te.Code, err)
	} else {
		logging.Get(logging.CategoryTurn).Warn("turn failed request_id=%s code=%s: %v", requestID, te.Code, err)
	}
	return types.TurnResponse{
		HTTPStatus: te.Status,
		Error: &types.ErrorEnvelope{
			Error: types.ErrorDetail{Code: te.Code, Message: te.Message, Retryable: te.Retryable},
			Trace: types.TraceRef{RequestID: requestID, ClientTurnID: req.ClientTurnID},
		},
	}
}

// finish logs the outcome and writes the trace row. Trace failures are
// logged and otherwise ignored.
func (h *Handler) finish(ctx context.Context, req types.TurnRequest, requestID string, resp types.TurnResponse, start time.Time, coalesced bool) {
	elapsed := h.deps.Now().Sub(start)
	audit := logging.AuditWithRequest(requestID, req.ClientTurnID)
	audit.Log(logging.AuditEvent{
		EventType:  logging.AuditTurnEnd,
		Target:     req.ScenarioID,
		Success:    resp.OK(),
		DurationMs: elapsed.Milliseconds(),
		Fields:     map[string]interface{}{"status": resp.HTTPStatus},
	})
	logging.Turn("turn done request_id=%s status=%d elapsed=%v", requestID, resp.HTTPStatus, elapsed.Round(time.Millisecond))

	if h.deps.Traces == nil {
		return
	}
	row := &store.TurnTrace{
		RequestID:    requestID,
		ClientTurnID: req.ClientTurnID,
		ScenarioID:   req.ScenarioID,
		Routing:      string(intent.Resolve(req.Message).Routing),
		HTTPStatus:   resp.HTTPStatus,
		Coalesced:    coalesced,
		DurationMs:   elapsed.Milliseconds(),
	}
	if env := resp.Envelope; env != nil {
		row.Routing = env.Lineage.Routing
		row.Tool = env.Lineage.Tool
		row.Assembly = env.Lineage.Assembly
		row.ContextHash = env.Lineage.ContextHash
		row.BlockCount = len(env.Blocks)
	}
	if resp.Error != nil {
		row.ErrorCode = resp.Error.Error.Code
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.deps.Traces.Record(wctx, row); err != nil {
		logging.Get(logging.CategoryStore).Warn("turn trace not recorded request_id=%s: %v", requestID, err)
	}
}

// MarshalResponse encodes the body of resp.
func MarshalResponse(resp types.TurnResponse) ([]byte, error) {
	return json.Marshal(resp.Body())
}
