package turn

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"conductor/internal/analysis"
	"conductor/internal/types"
)

// =============================================================================
// RESULT RENDERING
// =============================================================================
//
// Pure conversions from analysis outcomes to block payloads and text.

const (
	factOptionComparison = "option_comparison"
	factOptionOutcome    = "option_outcome"
)

func outcomeClaims(r types.OptionResult) []types.FactClaim {
	label := optionLabel(r)
	claims := []types.FactClaim{
		{Subject: r.OptionID, Label: label, Metric: "mean", Value: r.Outcome.Mean},
		{Subject: r.OptionID, Label: label, Metric: "p10", Value: r.Outcome.P10},
		{Subject: r.OptionID, Label: label, Metric: "p50", Value: r.Outcome.P50},
		{Subject: r.OptionID, Label: label, Metric: "p90", Value: r.Outcome.P90},
	}
	if r.WinProbability > 0 {
		claims = append(claims, types.FactClaim{Subject: r.OptionID, Label: label, Metric: "win_probability", Value: r.WinProbability})
	}
	return claims
}

// comparisonFact summarises every option of a run in one fact.
func comparisonFact(res *types.AnalysisResult) types.FactData {
	fact := types.FactData{FactType: factOptionComparison, ResponseHash: res.Meta.ResponseHash}
	for _, r := range res.Results {
		fact.Claims = append(fact.Claims, outcomeClaims(r)...)
	}
	return fact
}

// critiqueCard lists remote critiques, or returns false when there are none.
func critiqueCard(critiques []types.Critique) (types.ReviewCardData, bool) {
	if len(critiques) == 0 {
		return types.ReviewCardData{}, false
	}
	card := types.ReviewCardData{Title: "Analysis critiques", Severity: "info", Source: "analysis"}
	for _, c := range critiques {
		card.Items = append(card.Items, types.ReviewItem{Code: c.Code, Message: c.Message})
		card.Severity = maxSeverity(card.Severity, c.Severity)
	}
	return card, true
}

var severityRank = map[string]int{"info": 0, "warning": 1, "error": 2, "blocker": 3}

func maxSeverity(a, b string) string {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

func rejectionCard(r analysis.PatchRejection) types.ReviewCardData {
	title := "Graph edit rejected"
	if r.Message != "" {
		title += ": " + r.Message
	}
	card := types.ReviewCardData{Title: title, Severity: "error", Source: "validate_patch"}
	for _, v := range r.Violations {
		card.Items = append(card.Items, types.ReviewItem{Code: v.Code, Message: v.Message, Path: v.Path})
	}
	if len(card.Items) == 0 {
		card.Items = []types.ReviewItem{{Code: r.Code, Message: r.Message}}
	}
	return card
}

// ranked returns results sorted by mean outcome, best first.
func ranked(res *types.AnalysisResult) []types.OptionResult {
	out := append([]types.OptionResult(nil), res.Results...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Outcome.Mean > out[j].Outcome.Mean
	})
	return out
}

func runSummary(res *types.AnalysisResult) string {
	best := ranked(res)
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis complete: %d options simulated over %d samples.", len(res.Results), res.Meta.NSamples)
	if len(best) > 0 {
		top := best[0]
		fmt.Fprintf(&b, " **%s** leads with a mean outcome of %.3g (p10 %.3g, p90 %.3g).", optionLabel(top), top.Outcome.Mean, top.Outcome.P10, top.Outcome.P90)
	}
	if n := len(res.Critiques); n > 0 {
		fmt.Fprintf(&b, " The analysis raised %d critique(s) worth reviewing.", n)
	}
	return b.String()
}

func goalLabel(g *types.GraphSnapshot, framing types.Framing) string {
	if goals := g.NodesOfKind(types.NodeKindGoal); len(goals) > 0 && goals[0].Label != "" {
		return goals[0].Label
	}
	return framing.Goal
}

// decisionBrief assembles a brief from the graph and its latest analysis.
func decisionBrief(g *types.GraphSnapshot, res *types.AnalysisResult, framing types.Framing) types.BriefData {
	goal := goalLabel(g, framing)
	brief := types.BriefData{Title: "Decision brief", Goal: goal, ResponseHash: res.Meta.ResponseHash}
	if goal != "" {
		brief.Title = "Decision brief: " + goal
	}

	best := ranked(res)
	if len(best) > 0 {
		brief.Recommendation = fmt.Sprintf("%s has the highest expected outcome (mean %.3g).", optionLabel(best[0]), best[0].Outcome.Mean)
	}

	var options []string
	for _, n := range g.NodesOfKind(types.NodeKindOption) {
		label := n.Label
		if label == "" {
			label = n.ID
		}
		options = append(options, "- "+label)
	}
	if len(options) > 0 {
		brief.Sections = append(brief.Sections, types.BriefSection{Heading: "Options considered", Body: strings.Join(options, "\n")})
	}

	var lines []string
	for _, r := range best {
		lines = append(lines, fmt.Sprintf("- %s: mean %.3g, range %.3g to %.3g", optionLabel(r), r.Outcome.Mean, r.Outcome.P10, r.Outcome.P90))
	}
	brief.Sections = append(brief.Sections, types.BriefSection{Heading: "Results", Body: strings.Join(lines, "\n")})

	if len(res.Critiques) > 0 {
		var caveats []string
		for _, c := range res.Critiques {
			caveats = append(caveats, "- "+c.Message)
		}
		brief.Sections = append(brief.Sections, types.BriefSection{Heading: "Caveats", Body: strings.Join(caveats, "\n")})
	}
	return brief
}

// draftPatch expresses a drafted graph as add operations, nodes first.
func draftPatch(g *types.GraphSnapshot) (types.GraphPatchData, error) {
	patch := types.GraphPatchData{
		PatchType: "draft",
		Status:    types.PatchProposed,
		Summary:   fmt.Sprintf("Draft graph with %d nodes and %d edges", len(g.Nodes), len(g.Edges)),
	}
	for _, n := range g.Nodes {
		value, err := json.Marshal(n)
		if err != nil {
			return types.GraphPatchData{}, err
		}
		patch.Operations = append(patch.Operations, types.PatchOperation{Op: types.OpAddNode, Path: "/nodes/" + n.ID, Value: value})
	}
	for _, e := range g.Edges {
		value, err := json.Marshal(e)
		if err != nil {
			return types.GraphPatchData{}, err
		}
		id := e.ID
		if id == "" {
			id = e.From + "__" + e.To
		}
		patch.Operations = append(patch.Operations, types.PatchOperation{Op: types.OpAddEdge, Path: "/edges/" + id, Value: value})
	}
	return patch, nil
}

// readiness lists what a graph lacks before it can be analysed.
func readiness(p analysis.RunPayload) []string {
	var missing []string
	if p.GoalNodeID == "" {
		missing = append(missing, "a goal node")
	}
	if len(p.Options) == 0 {
		missing = append(missing, "at least one option node")
	}
	for _, o := range p.Options {
		if o.OptionID == "" {
			missing = append(missing, "an id on every option node")
			break
		}
	}
	return missing
}
