package turn

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"conductor/internal/types"
)

// contextHash fingerprints an assembled prompt together with the assembly
// mode, so the same conversation hashes differently under fallback assembly.
func contextHash(mode string, ac *types.AssembledContext) string {
	var b strings.Builder
	b.WriteString(mode)
	b.WriteByte('\n')
	b.WriteString(ac.System)
	b.WriteByte('\n')
	for _, m := range ac.Messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// suggestions offers the next natural step for the conversation state.
func suggestions(hasGraph, hasAnalysis bool) []types.SuggestedAction {
	switch {
	case !hasGraph:
		return []types.SuggestedAction{{Label: "Draft a graph", Prompt: "draft a graph"}}
	case !hasAnalysis:
		return []types.SuggestedAction{{Label: "Run analysis", Prompt: "run analysis"}}
	default:
		return []types.SuggestedAction{
			{Label: "Generate brief", Prompt: "generate brief"},
			{Label: "Explain results", Prompt: "explain the results"},
		}
	}
}
