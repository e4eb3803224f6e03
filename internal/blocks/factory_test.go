package blocks

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"conductor/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deterministicID = regexp.MustCompile(`^blk_[a-z_]+_[0-9a-f]{16}$`)

func ops(t *testing.T, raw string) []types.PatchOperation {
	t.Helper()
	var out []types.PatchOperation
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestCanonicalize_SortsKeysPreservesArrays(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 1, "a": []any{3, 1, 2}, "c": map[string]any{"z": "<x>", "y": nil}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[3,1,2],"b":1,"c":{"y":null,"z":"<x>"}}`, string(a))

	raw := json.RawMessage(`{"z":1.50,"a":{"d":true,"c":false}}`)
	b, err := Canonicalize(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":false,"d":true},"z":1.50}`, string(b))
}

func TestGraphPatch_KeyOrderDoesNotChangeID(t *testing.T) {
	f := NewFactory()

	first := ops(t, `[
		{"op":"add_node","path":"/nodes/n1","value":{"id":"n1","kind":"factor","label":"Price"}},
		{"op":"add_edge","path":"/edges/e1","value":{"from":"n1","to":"g1","strength":0.4}}
	]`)
	second := ops(t, `[
		{"value":{"label":"Price","kind":"factor","id":"n1"},"path":"/nodes/n1","op":"add_node"},
		{"path":"/edges/e1","value":{"strength":0.4,"to":"g1","from":"n1"},"op":"add_edge"}
	]`)

	a, err := f.GraphPatch(types.GraphPatchData{PatchType: "delta", Operations: first}, "turn-1")
	require.NoError(t, err)
	b, err := f.GraphPatch(types.GraphPatchData{PatchType: "delta", Operations: second}, "turn-2")
	require.NoError(t, err)

	assert.Equal(t, a.BlockID, b.BlockID)
	assert.Regexp(t, deterministicID, a.BlockID)
	assert.True(t, strings.HasPrefix(a.BlockID, "blk_graph_patch_"))
}

func TestGraphPatch_OperationOrderChangesID(t *testing.T) {
	f := NewFactory()

	forward := ops(t, `[{"op":"add_node","path":"/nodes/a"},{"op":"remove_node","path":"/nodes/b"}]`)
	reversed := ops(t, `[{"op":"remove_node","path":"/nodes/b"},{"op":"add_node","path":"/nodes/a"}]`)

	a, err := f.GraphPatch(types.GraphPatchData{PatchType: "delta", Operations: forward}, "t")
	require.NoError(t, err)
	b, err := f.GraphPatch(types.GraphPatchData{PatchType: "delta", Operations: reversed}, "t")
	require.NoError(t, err)

	assert.NotEqual(t, a.BlockID, b.BlockID)
}

func TestGraphPatch_PresentationalFieldsExcluded(t *testing.T) {
	f := NewFactory()
	operations := ops(t, `[{"op":"update_node","path":"/nodes/a","value":{"label":"New"}}]`)

	plain, err := f.GraphPatch(types.GraphPatchData{PatchType: "delta", Operations: operations}, "t")
	require.NoError(t, err)
	decorated, err := f.GraphPatch(types.GraphPatchData{
		PatchType:    "delta",
		Operations:   operations,
		Summary:      "Rename node a",
		Status:       types.PatchValidated,
		AppliedGraph: &types.GraphSnapshot{Nodes: []types.GraphNode{{ID: "a", Kind: "factor", Label: "New"}}},
	}, "t")
	require.NoError(t, err)
	assert.Equal(t, plain.BlockID, decorated.BlockID)

	otherType, err := f.GraphPatch(types.GraphPatchData{PatchType: "full", Operations: operations}, "t")
	require.NoError(t, err)
	assert.NotEqual(t, plain.BlockID, otherType.BlockID)
}

func TestDeterministicVariants_StableAcrossTurns(t *testing.T) {
	f := NewFactory()

	fact := types.FactData{FactType: "option_comparison", Claims: []types.FactClaim{{Subject: "opt_a", Metric: "mean", Value: 0.42}}}
	f1, err := f.Fact(fact, "turn-1")
	require.NoError(t, err)
	f2, err := f.Fact(fact, "turn-2")
	require.NoError(t, err)
	assert.Equal(t, f1.BlockID, f2.BlockID)
	assert.NotEqual(t, f1.Provenance.TurnID, f2.Provenance.TurnID)

	card := types.ReviewCardData{Title: "Patch rejected", Severity: "error", Items: []types.ReviewItem{{Code: "CYCLE", Message: "cycle"}}}
	c1, err := f.ReviewCard(card, "a")
	require.NoError(t, err)
	c2, err := f.ReviewCard(card, "b")
	require.NoError(t, err)
	assert.Equal(t, c1.BlockID, c2.BlockID)
	assert.Regexp(t, `^blk_review_card_`, c1.BlockID)

	brief := types.BriefData{Title: "Brief", Sections: []types.BriefSection{{Heading: "Goal", Body: "Grow"}}}
	b1, err := f.Brief(brief, "a")
	require.NoError(t, err)
	brief.Sections[0].Body = "Shrink"
	b2, err := f.Brief(brief, "a")
	require.NoError(t, err)
	assert.NotEqual(t, b1.BlockID, b2.BlockID)
}

func TestCommentary_RandomIDs(t *testing.T) {
	f := NewFactory()

	a := f.Commentary("same words", "turn-1")
	b := f.Commentary("same words", "turn-1")

	assert.NotEqual(t, a.BlockID, b.BlockID)
	assert.True(t, strings.HasPrefix(a.BlockID, "blk_commentary_"))
	assert.Equal(t, types.BlockCommentary, a.BlockType)

	fr1 := f.Framing(types.FramingData{Stage: types.StageEvaluate}, "t")
	fr2 := f.Framing(types.FramingData{Stage: types.StageEvaluate}, "t")
	assert.NotEqual(t, fr1.BlockID, fr2.BlockID)
}

func TestProvenanceExcludedFromHash(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	early := NewFactory(WithClock(func() time.Time { return clock }))
	late := NewFactory(WithClock(func() time.Time { return clock.Add(time.Hour) }))

	data := types.FactData{FactType: "x", Claims: []types.FactClaim{}}
	a, err := early.Fact(data, "t1")
	require.NoError(t, err)
	b, err := late.Fact(data, "t2")
	require.NoError(t, err)

	assert.Equal(t, a.BlockID, b.BlockID)
	assert.Equal(t, clock, a.Provenance.Timestamp)
	assert.Equal(t, clock.Add(time.Hour), b.Provenance.Timestamp)
}

func TestFactoryInjectedRandom(t *testing.T) {
	f := NewFactory(WithRandom(func() string { return "0123456789abcdef" }))
	got := f.Commentary("hi", "t")
	want := types.Block{
		BlockID:   "blk_commentary_0123456789abcdef",
		BlockType: types.BlockCommentary,
		Data:      types.CommentaryData{Text: "hi"},
	}
	if diff := cmp.Diff(want, got, cmpIgnoreProvenance()); diff != "" {
		t.Errorf("commentary block mismatch (-want +got):\n%s", diff)
	}
}

func TestDeterministicID_RejectsEphemeral(t *testing.T) {
	_, err := DeterministicID(types.CommentaryData{Text: "x"})
	assert.Error(t, err)
}

func cmpIgnoreProvenance() cmp.Option {
	return cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Provenance"
	}, cmp.Ignore())
}
