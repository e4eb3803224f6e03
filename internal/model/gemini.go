// Package model provides the Gemini-backed model adapter and graph drafter,
// plus a small registry that reuses adapter instances across turns.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"conductor/internal/logging"
	"conductor/internal/types"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// =============================================================================
// GEMINI MODEL ADAPTER
// =============================================================================

// contentGenerator is the slice of *genai.Models the adapter uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAdapter implements types.ModelAdapter on the Gemini API.
type GeminiAdapter struct {
	gen         contentGenerator
	model       string
	timeout     time.Duration
	temperature float32
}

// NewGeminiAdapter creates an adapter with its own genai client.
func NewGeminiAdapter(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiAdapter(client.Models, model, timeout), nil
}

func newGeminiAdapter(gen contentGenerator, model string, timeout time.Duration) *GeminiAdapter {
	return &GeminiAdapter{
		gen:         gen,
		model:       model,
		timeout:     timeout,
		temperature: 0.2,
	}
}

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Name returns "gemini/<model>".
func (a *GeminiAdapter) Name() string {
	return "gemini/" + a.model
}

// ChatWithTools sends the conversation and tool declarations to Gemini.
func (a *GeminiAdapter) ChatWithTools(ctx context.Context, req types.ModelRequest) (*types.ModelResponse, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	contents, err := toContents(req.Messages)
	if err != nil {
		return nil, err
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(a.temperature),
		Tools:       toTools(req.Tools),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	start := time.Now()
	logging.Get(logging.CategoryModel).Debug("ChatWithTools: model=%s messages=%d tools=%d request_id=%s", a.model, len(contents), len(req.Tools), req.RequestID)

	resp, err := a.gen.GenerateContent(ctx, a.model, contents, cfg)
	if err != nil {
		logging.Get(logging.CategoryModel).Error("ChatWithTools failed after %v request_id=%s: %v", time.Since(start), req.RequestID, err)
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	out, err := fromResponse(resp)
	if err != nil {
		return nil, err
	}
	if out.Model == "" {
		out.Model = a.model
	}
	logging.Model("ChatWithTools: completed in %v stop=%s tool_calls=%d tokens=%d", time.Since(start), out.StopReason, len(out.ToolCalls), out.Usage.TotalTokens)
	return out, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

// toContents maps conversation messages onto Gemini contents. Assistant
// messages become model turns (with any function calls); tool results become
// user turns carrying a function response.
func toContents(msgs []types.ModelMessage) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))

		case types.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, call := range m.ToolCalls {
				p := genai.NewPartFromFunctionCall(call.Name, call.Input)
				p.FunctionCall.ID = call.ID
				parts = append(parts, p)
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))

		case types.RoleTool:
			var response map[string]any
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil || response == nil {
				response = map[string]any{"output": m.Content}
			}
			p := genai.NewPartFromFunctionResponse(m.ToolName, response)
			p.FunctionResponse.ID = m.ToolCallID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{p}, genai.RoleUser))

		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return contents, nil
}

// toTools declares every tool in a single genai.Tool.
func toTools(defs []types.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if d.InputSchema != nil {
			fd.ParametersJsonSchema = d.InputSchema
		}
		decls = append(decls, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

var errEmptyResponse = errors.New("gemini returned no candidates")

func fromResponse(resp *genai.GenerateContentResponse) (*types.ModelResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errEmptyResponse
	}
	out := &types.ModelResponse{
		Text:  strings.TrimSpace(resp.Text()),
		Model: resp.ModelVersion,
	}
	for _, fc := range resp.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: id, Name: fc.Name, Input: fc.Args})
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = "tool_use"
	} else {
		out.StopReason = "end_turn"
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = types.UsageMetadata{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}
