package turn

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"conductor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemblyInput(g *types.GraphSnapshot, msgs ...types.ConversationMessage) types.AssemblyInput {
	return types.AssemblyInput{
		Message: "what should I do?",
		Context: types.ConversationContext{
			Graph:            g,
			AnalysisResponse: sampleResult(),
			Framing:          types.Framing{Stage: types.StageEvaluate, Goal: "Grow revenue"},
			Messages:         msgs,
		},
		Tools: []types.ToolDefinition{toolDefinitions[types.ToolGenerateBrief]},
	}
}

func TestBasicAssembler(t *testing.T) {
	history := []types.ConversationMessage{
		{Role: types.RoleUser, Content: "first"},
		{Role: types.RoleAssistant, Content: "second"},
		{Role: "system", Content: "dropped"},
		{Role: types.RoleUser, Content: "   "},
		{Role: types.RoleAssistant, Content: "third"},
	}

	got, err := BasicAssembler{RecentMessages: 3}.Assemble(context.Background(), assemblyInput(testGraph(), history...))
	require.NoError(t, err)

	assert.Contains(t, got.System, "Current stage: evaluate.")
	assert.Contains(t, got.System, "Stated goal: Grow revenue.")
	assert.NotContains(t, got.System, "Decision graph")
	assert.Equal(t, []types.ModelMessage{
		{Role: types.RoleAssistant, Content: "third"},
		{Role: types.RoleUser, Content: "what should I do?"},
	}, got.Messages)
}

func TestStructuredAssembler(t *testing.T) {
	got, err := StructuredAssembler{RecentMessages: 5, MaxNodes: 10}.Assemble(context.Background(), assemblyInput(testGraph()))
	require.NoError(t, err)

	assert.Contains(t, got.System, "- [option] Raise prices (id: opt_a)")
	assert.Contains(t, got.System, "- Raise prices -> Churn (strength 0.60)")
	assert.Contains(t, got.System, "- Churn -> Grow revenue\n")
	assert.Contains(t, got.System, "## Latest analysis")
	assert.Contains(t, got.System, "Available tools: generate_brief.")
	// Best option first.
	assert.Less(t, strings.Index(got.System, "Expand sales team: mean"), strings.Index(got.System, "Raise prices: mean"))
}

func TestStructuredAssembler_Refuses(t *testing.T) {
	dangling := testGraph()
	dangling.Edges = append(dangling.Edges, types.GraphEdge{From: "opt_b", To: "missing"})

	big := &types.GraphSnapshot{}
	for i := 0; i < 4; i++ {
		big.Nodes = append(big.Nodes, types.GraphNode{ID: fmt.Sprintf("n%d", i), Kind: types.NodeKindFactor})
	}

	tests := []struct {
		name  string
		graph *types.GraphSnapshot
		want  string
	}{
		{"dangling edge", dangling, "unknown target node"},
		{"too many nodes", big, "limit is 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := StructuredAssembler{MaxNodes: 3}.Assemble(context.Background(), assemblyInput(tt.graph))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestContextHash(t *testing.T) {
	ac := &types.AssembledContext{System: "sys", Messages: []types.ModelMessage{{Role: types.RoleUser, Content: "hi"}}}
	same := &types.AssembledContext{System: "sys", Messages: []types.ModelMessage{{Role: types.RoleUser, Content: "hi"}}}

	assert.Equal(t, contextHash(types.AssemblyFull, ac), contextHash(types.AssemblyFull, same))
	assert.NotEqual(t, contextHash(types.AssemblyFull, ac), contextHash(types.AssemblyFallback, ac))

	same.Messages[0].Content = "hello"
	assert.NotEqual(t, contextHash(types.AssemblyFull, ac), contextHash(types.AssemblyFull, same))
}
