package main

import (
	"fmt"
	"strings"

	"conductor/internal/intent"

	"github.com/spf13/cobra"
)

// phrasesCmd prints the deterministic routing table
var phrasesCmd = &cobra.Command{
	Use:   "phrases [message]",
	Short: "Show the phrases that bypass the model, or test a message against them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPhrases,
}

func runPhrases(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		res := intent.Resolve(args[0])
		fmt.Fprintf(out, "normalized: %q\n", intent.Normalize(args[0]))
		fmt.Fprintf(out, "routing:    %s\n", res.Routing)
		if res.HasTool() {
			fmt.Fprintf(out, "tool:       %s\n", res.Tool)
		}
		return nil
	}

	for _, g := range intent.Table() {
		fmt.Fprintln(out, titleStyle.Render(string(g.Tool)))
		for _, p := range g.Exact {
			fmt.Fprintln(out, "  "+p)
		}
		if len(g.Patterns) > 0 {
			fmt.Fprintln(out, mutedStyle.Render("  patterns: "+strings.Join(g.Patterns, ", ")))
		}
	}
	return nil
}
