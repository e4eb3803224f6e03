package types

import (
	"context"
)

// ModelAdapter defines the interface for language-model interactions.
// Prompt text, vendor SDKs and failover policy live behind it.
type ModelAdapter interface {
	// Name identifies the adapter (provider/model) in logs and traces.
	Name() string
	// ChatWithTools sends the assembled context with tool definitions and
	// returns the model's text and any tool calls it requested.
	ChatWithTools(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

// GraphDrafter turns a free-text decision description into a first graph.
type GraphDrafter interface {
	DraftGraph(ctx context.Context, description string, framing Framing) (*GraphSnapshot, error)
}

// ContextAssembler builds the system/context prompt for a model call.
type ContextAssembler interface {
	Assemble(ctx context.Context, in AssemblyInput) (*AssembledContext, error)
}

// AssemblyInput is everything a ContextAssembler may read.
type AssemblyInput struct {
	Message   string
	Context   ConversationContext
	Tools     []ToolDefinition
	RequestID string
}

// AssembledContext is the prompt handed to the model adapter.
type AssembledContext struct {
	System   string
	Messages []ModelMessage
}

// ToolDefinition describes a tool that the model can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`    // Unique ID for this tool use
	Name  string         `json:"name"`  // Tool name to invoke
	Input map[string]any `json:"input"` // Tool arguments
}

// ModelMessage is one message of a model conversation.
type ModelMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant messages only
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages only
	ToolName   string     `json:"tool_name,omitempty"`    // tool messages only
}

// ModelRequest is a single model invocation.
type ModelRequest struct {
	System    string
	Messages  []ModelMessage
	Tools     []ToolDefinition
	RequestID string
}

// UsageMetadata captures token usage metrics from the model.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ModelResponse contains both text response and tool calls from the model.
type ModelResponse struct {
	Text       string        `json:"text"`        // Text response (may be empty if only tool calls)
	ToolCalls  []ToolCall    `json:"tool_calls"`  // Tool invocations requested by the model
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use", etc.
	Usage      UsageMetadata `json:"usage"`
	Model      string        `json:"model,omitempty"`
}
