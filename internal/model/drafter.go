package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"conductor/internal/logging"
	"conductor/internal/types"

	"google.golang.org/genai"
)

// GeminiDrafter implements types.GraphDrafter with a structured-output call.
type GeminiDrafter struct {
	gen     contentGenerator
	model   string
	timeout time.Duration
}

// NewGeminiDrafter creates a drafter sharing the adapter's client.
func NewGeminiDrafter(a *GeminiAdapter) *GeminiDrafter {
	return &GeminiDrafter{gen: a.gen, model: a.model, timeout: a.timeout}
}

const draftInstruction = `Turn the user's decision description into a small causal decision graph.
Use exactly one node of kind "goal", at least two nodes of kind "option", and
factor nodes for what the options change. Edges point from cause to effect.
Node ids are short snake_case strings. Return only the JSON object.`

// graphSchema constrains the drafted JSON to the GraphSnapshot shape.
var graphSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":    map[string]any{"type": "string"},
					"kind":  map[string]any{"type": "string", "enum": []string{"goal", "option", "factor", "outcome", "risk"}},
					"label": map[string]any{"type": "string"},
				},
				"required": []string{"id", "kind", "label"},
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"from":     map[string]any{"type": "string"},
					"to":       map[string]any{"type": "string"},
					"strength": map[string]any{"type": "number"},
				},
				"required": []string{"from", "to"},
			},
		},
	},
	"required": []string{"nodes", "edges"},
}

// DraftGraph asks the model for a first graph and checks it is well formed.
func (d *GeminiDrafter) DraftGraph(ctx context.Context, description string, framing types.Framing) (*types.GraphSnapshot, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	prompt := description
	if framing.Goal != "" {
		prompt = fmt.Sprintf("Stated goal: %s\n\n%s", framing.Goal, description)
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(draftInstruction, genai.RoleUser),
		Temperature:        genai.Ptr[float32](0.1),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: graphSchema,
	}

	start := time.Now()
	resp, err := d.gen.GenerateContent(ctx, d.model, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini draft graph: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errEmptyResponse
	}

	g, err := parseDraft(resp.Text())
	if err != nil {
		logging.Get(logging.CategoryModel).Warn("DraftGraph: unusable draft after %v: %v", time.Since(start), err)
		return nil, err
	}
	logging.Model("DraftGraph: %d nodes, %d edges in %v", len(g.Nodes), len(g.Edges), time.Since(start))
	return g, nil
}

// parseDraft decodes and checks a drafted graph: unique node ids, known
// edge endpoints, and one goal.
func parseDraft(text string) (*types.GraphSnapshot, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var g types.GraphSnapshot
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &g); err != nil {
		return nil, fmt.Errorf("draft is not a graph: %w", err)
	}
	if len(g.Nodes) == 0 {
		return nil, fmt.Errorf("draft has no nodes")
	}

	seen := make(map[string]bool, len(g.Nodes))
	goals := 0
	for _, n := range g.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("draft has a node without id")
		}
		if seen[n.ID] {
			return nil, fmt.Errorf("draft repeats node id %q", n.ID)
		}
		seen[n.ID] = true
		if n.Kind == types.NodeKindGoal {
			goals++
		}
	}
	if goals != 1 {
		return nil, fmt.Errorf("draft has %d goal nodes, want 1", goals)
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		if !seen[e.From] || !seen[e.To] {
			return nil, fmt.Errorf("draft edge %s->%s references an unknown node", e.From, e.To)
		}
		if e.ID == "" {
			e.ID = fmt.Sprintf("e_%s_%s", e.From, e.To)
		}
	}
	return &g, nil
}
