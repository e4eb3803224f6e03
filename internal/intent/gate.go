// Package intent implements the deterministic intent gate: a small, ordered
// phrase table that resolves a handful of known commands to a tool without a
// model round-trip. Anything it does not recognise with certainty is left to
// the model.
package intent

import (
	"regexp"
	"strings"
	"unicode"

	"conductor/internal/types"
)

// Routing says how a turn should be dispatched.
type Routing string

const (
	RoutingDeterministic Routing = "deterministic"
	RoutingLLM           Routing = "llm"
)

// Resolution is the gate's verdict. Tool is empty when Routing is RoutingLLM.
type Resolution struct {
	Tool    types.ToolName
	Routing Routing
}

// HasTool reports whether a deterministic tool was selected.
func (r Resolution) HasTool() bool {
	return r.Tool != ""
}

// phraseGroup is one tool's family of accepted phrasings. Exact phrases are
// compared against the normalized message; patterns are anchored.
type phraseGroup struct {
	Tool     types.ToolName
	Exact    []string
	Patterns []*regexp.Regexp
}

// Politeness wrappers accepted around every command.
const (
	prefix = `^(?:please |can you |could you |would you |let'?s |go ahead and )?`
	suffix = `(?: now| again| please| for me)*$`
)

// phraseTable is ordered; the first matching group wins.
var phraseTable = []phraseGroup{
	{
		Tool: types.ToolRunAnalysis,
		Exact: []string{
			"run analysis",
			"run the analysis",
			"run an analysis",
			"rerun analysis",
			"re-run analysis",
			"rerun the analysis",
			"re-run the analysis",
			"analyse",
			"analyze",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(prefix + `(?:re-?run|run) (?:the |an |my )?(?:analysis|simulation)` + suffix),
			regexp.MustCompile(prefix + `analy[sz]e (?:it|this|the options|my options|the graph|my graph)` + suffix),
		},
	},
	{
		Tool: types.ToolGenerateBrief,
		Exact: []string{
			"generate brief",
			"generate a brief",
			"generate the brief",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(prefix + `(?:generate|create|write|produce|draft) (?:a |the |my )?(?:decision )?brief` + suffix),
		},
	},
	{
		Tool: types.ToolDraftGraph,
		Exact: []string{
			"draft graph",
			"draft a graph",
			"draft the graph",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(prefix + `(?:draft|build|create|generate|sketch) (?:a |the |my )?(?:decision )?graph` + suffix),
		},
	},
}

// Resolve normalizes message and matches it against the phrase table.
// It is pure and total: every input yields a Resolution.
func Resolve(message string) Resolution {
	norm := Normalize(message)
	if norm == "" {
		return Resolution{Routing: RoutingLLM}
	}
	for _, g := range phraseTable {
		if g.matches(norm) {
			return Resolution{Tool: g.Tool, Routing: RoutingDeterministic}
		}
	}
	return Resolution{Routing: RoutingLLM}
}

func (g phraseGroup) matches(norm string) bool {
	for _, p := range g.Exact {
		if norm == p {
			return true
		}
	}
	for _, re := range g.Patterns {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}

// Normalize trims, lowercases, collapses internal whitespace and strips
// trailing punctuation.
func Normalize(message string) string {
	s := strings.ToLower(strings.Join(strings.Fields(message), " "))
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '\'' || unicode.IsSpace(r)
	})
	return s
}

// PhraseGroup is the exported, read-only view of one table entry.
type PhraseGroup struct {
	Tool     types.ToolName
	Exact    []string
	Patterns []string
}

// Table returns the phrase table in match order.
func Table() []PhraseGroup {
	out := make([]PhraseGroup, 0, len(phraseTable))
	for _, g := range phraseTable {
		pg := PhraseGroup{Tool: g.Tool, Exact: append([]string(nil), g.Exact...)}
		for _, re := range g.Patterns {
			pg.Patterns = append(pg.Patterns, re.String())
		}
		out = append(out, pg)
	}
	return out
}
