package main

import (
	"fmt"
	"io"
	"strings"

	"conductor/internal/types"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	accent  = lipgloss.Color("#8BC34A")
	muted   = lipgloss.Color("#6b7280")
	danger  = lipgloss.Color("#e53935")
	warning = lipgloss.Color("#FFC107")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(danger)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	blockStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)
)

// renderMarkdown renders md for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// renderResponse writes a human-readable view of resp.
func renderResponse(w io.Writer, resp types.TurnResponse) {
	if resp.Error != nil {
		e := resp.Error.Error
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("%d %s", resp.HTTPStatus, e.Code)))
		fmt.Fprintln(w, e.Message)
		if e.Retryable {
			fmt.Fprintln(w, warningStyle.Render("retryable"))
		}
		fmt.Fprintln(w, mutedStyle.Render("request "+resp.Error.Trace.RequestID))
		return
	}

	env := resp.Envelope
	if strings.TrimSpace(env.AssistantText) != "" {
		fmt.Fprint(w, renderMarkdown(env.AssistantText))
	}
	for _, b := range env.Blocks {
		fmt.Fprintln(w, blockStyle.Render(describeBlock(b)))
	}
	if len(env.SuggestedActions) > 0 {
		labels := make([]string, 0, len(env.SuggestedActions))
		for _, s := range env.SuggestedActions {
			labels = append(labels, s.Label)
		}
		fmt.Fprintln(w, mutedStyle.Render("next: "+strings.Join(labels, " | ")))
	}
	l := env.Lineage
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("routing=%s tool=%s assembly=%s hash=%.12s", l.Routing, l.Tool, l.Assembly, l.ContextHash)))
}

func describeBlock(b types.Block) string {
	head := titleStyle.Render(string(b.BlockType)) + " " + mutedStyle.Render(b.BlockID)
	var body string
	switch d := b.Data.(type) {
	case types.GraphPatchData:
		body = fmt.Sprintf("%s (%s, %d operations)", d.Summary, d.Status, len(d.Operations))
	case types.FactData:
		lines := make([]string, 0, len(d.Claims))
		for _, c := range d.Claims {
			label := c.Label
			if label == "" {
				label = c.Subject
			}
			lines = append(lines, fmt.Sprintf("%s %s = %.3g", label, c.Metric, c.Value))
		}
		body = strings.Join(lines, "\n")
	case types.CommentaryData:
		body = d.Text
	case types.FramingData:
		body = "stage: " + string(d.Stage)
		if d.Goal != "" {
			body += "\ngoal: " + d.Goal
		}
	case types.ReviewCardData:
		lines := []string{fmt.Sprintf("%s [%s]", d.Title, d.Severity)}
		for _, it := range d.Items {
			lines = append(lines, "- "+it.Message)
		}
		body = strings.Join(lines, "\n")
	case types.BriefData:
		lines := []string{d.Title}
		if d.Recommendation != "" {
			lines = append(lines, d.Recommendation)
		}
		for _, s := range d.Sections {
			lines = append(lines, s.Heading+":", s.Body)
		}
		body = strings.Join(lines, "\n")
	}
	return head + "\n" + body
}
