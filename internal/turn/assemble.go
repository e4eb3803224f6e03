package turn

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"conductor/internal/types"
)

// =============================================================================
// CONTEXT ASSEMBLY
// =============================================================================

const basePrompt = `You are a decision coach. You help the user frame a decision, model it as
a graph of goal, options and factors, run the analysis, and understand the
results. Use the provided tools to change the graph or run the analysis;
never invent analysis numbers. Keep answers short and concrete.`

// BasicAssembler builds a minimal prompt from the stage and recent messages.
// It never fails and is the fallback for richer assemblers.
type BasicAssembler struct {
	RecentMessages int
}

// Assemble implements types.ContextAssembler.
func (b BasicAssembler) Assemble(_ context.Context, in types.AssemblyInput) (*types.AssembledContext, error) {
	var sys strings.Builder
	sys.WriteString(basePrompt)
	if stage := in.Context.Framing.Stage; stage != "" {
		fmt.Fprintf(&sys, "\n\nCurrent stage: %s.", stage)
	}
	if goal := in.Context.Framing.Goal; goal != "" {
		fmt.Fprintf(&sys, "\nStated goal: %s.", goal)
	}
	return &types.AssembledContext{
		System:   sys.String(),
		Messages: conversation(in, b.RecentMessages),
	}, nil
}

// StructuredAssembler adds a rendering of the graph and the latest analysis
// to the prompt. It refuses graphs it cannot render faithfully: more than
// MaxNodes nodes, or edges that reference missing nodes.
type StructuredAssembler struct {
	RecentMessages int
	MaxNodes       int
}

// Assemble implements types.ContextAssembler.
func (s StructuredAssembler) Assemble(ctx context.Context, in types.AssemblyInput) (*types.AssembledContext, error) {
	base, _ := BasicAssembler{RecentMessages: s.RecentMessages}.Assemble(ctx, in)

	var sys strings.Builder
	sys.WriteString(base.System)

	if g := in.Context.Graph; g != nil && len(g.Nodes) > 0 {
		if s.MaxNodes > 0 && len(g.Nodes) > s.MaxNodes {
			return nil, fmt.Errorf("graph has %d nodes, limit is %d", len(g.Nodes), s.MaxNodes)
		}
		rendered, err := renderGraph(g)
		if err != nil {
			return nil, err
		}
		sys.WriteString("\n\n## Decision graph\n")
		sys.WriteString(rendered)
	} else {
		sys.WriteString("\n\nThere is no decision graph yet.")
	}

	if a := in.Context.AnalysisResponse; a != nil && len(a.Results) > 0 {
		sys.WriteString("\n\n## Latest analysis\n")
		sys.WriteString(renderAnalysis(a))
	}

	if len(in.Tools) > 0 {
		names := make([]string, 0, len(in.Tools))
		for _, t := range in.Tools {
			names = append(names, t.Name)
		}
		fmt.Fprintf(&sys, "\n\nAvailable tools: %s.", strings.Join(names, ", "))
	}

	return &types.AssembledContext{System: sys.String(), Messages: base.Messages}, nil
}

func renderGraph(g *types.GraphSnapshot) (string, error) {
	labels := make(map[string]string, len(g.Nodes))
	var b strings.Builder
	for _, n := range g.Nodes {
		label := n.Label
		if label == "" {
			label = n.ID
		}
		labels[n.ID] = label
		fmt.Fprintf(&b, "- [%s] %s (id: %s)\n", n.Kind, label, n.ID)
	}
	for _, e := range g.Edges {
		from, ok := labels[e.From]
		if !ok {
			return "", fmt.Errorf("edge %s->%s: unknown source node", e.From, e.To)
		}
		to, ok := labels[e.To]
		if !ok {
			return "", fmt.Errorf("edge %s->%s: unknown target node", e.From, e.To)
		}
		if e.Strength != nil {
			fmt.Fprintf(&b, "- %s -> %s (strength %.2f)\n", from, to, *e.Strength)
		} else {
			fmt.Fprintf(&b, "- %s -> %s\n", from, to)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func renderAnalysis(a *types.AnalysisResult) string {
	results := append([]types.OptionResult(nil), a.Results...)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Outcome.Mean > results[j].Outcome.Mean
	})
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s: mean %.3g, p10 %.3g, p90 %.3g\n", optionLabel(r), r.Outcome.Mean, r.Outcome.P10, r.Outcome.P90)
	}
	for _, c := range a.Critiques {
		fmt.Fprintf(&b, "- critique: %s\n", c.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// conversation returns the last n prior messages plus the current message.
// Messages with roles the model does not accept are dropped.
func conversation(in types.AssemblyInput, n int) []types.ModelMessage {
	prior := in.Context.Messages
	if n > 0 && len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	msgs := make([]types.ModelMessage, 0, len(prior)+1)
	for _, m := range prior {
		if m.Role != types.RoleUser && m.Role != types.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, types.ModelMessage{Role: m.Role, Content: m.Content})
	}
	if strings.TrimSpace(in.Message) != "" {
		msgs = append(msgs, types.ModelMessage{Role: types.RoleUser, Content: in.Message})
	}
	return msgs
}

func optionLabel(r types.OptionResult) string {
	if r.Label != "" {
		return r.Label
	}
	return r.OptionID
}
