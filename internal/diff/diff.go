// Package diff renders persisted analyses as text and diffs them line by line.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

// Line kinds.
const (
	LineSame    = "same"
	LineAdded   = "added"
	LineRemoved = "removed"
)

// Line is one line of a diff. Line numbers are 1-based and zero when the
// line does not exist on that side.
type Line struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Before int    `json:"before,omitempty"`
	After  int    `json:"after,omitempty"`
}

// AnalysisDiff compares two analyses of the same offer.
type AnalysisDiff struct {
	BeforeID string `json:"before_id"`
	AfterID  string `json:"after_id"`
	Lines    []Line `json:"lines"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
}

// Analyses diffs the rendered form of before and after.
func Analyses(before, after *model.Analysis) *AnalysisDiff {
	lines := Text(Render(before), Render(after))
	out := &AnalysisDiff{BeforeID: before.ID, AfterID: after.ID, Lines: lines}
	for _, l := range lines {
		switch l.Kind {
		case LineAdded:
			out.Added++
		case LineRemoved:
			out.Removed++
		}
	}
	return out
}

// Text diffs two texts line by line.
func Text(before, after string) []Line {
	dmp := diffmatchpatch.New()
	a, b, index := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), index)

	lines := []Line{}
	oldNo, newNo := 1, 1
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Kind: LineSame, Text: text, Before: oldNo, After: newNo})
				oldNo++
				newNo++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Kind: LineRemoved, Text: text, Before: oldNo})
				oldNo++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Kind: LineAdded, Text: text, After: newNo})
				newNo++
			}
		}
	}
	return lines
}

// Render formats an analysis as stable, line-oriented text.
func Render(a *model.Analysis) string {
	var sb strings.Builder
	sb.WriteString("Summary: " + oneLine(a.Summary) + "\n")
	if a.PriceAssessment != "" {
		sb.WriteString("Price: " + oneLine(a.PriceAssessment) + "\n")
	}
	if a.Focus != "" {
		sb.WriteString("Focus: " + oneLine(a.Focus) + "\n")
	}
	section(&sb, "Strengths", a.Strengths)
	section(&sb, "Concerns", a.Concerns)
	section(&sb, "Missing items", a.MissingItems)
	section(&sb, "Suggested questions", a.SuggestedQuestions)
	sb.WriteString(fmt.Sprintf("Conversation updates: %t\n", a.HasConversationUpdates))
	return sb.String()
}

func section(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(title + ":\n")
	for _, item := range items {
		sb.WriteString("- " + oneLine(item) + "\n")
	}
}

func splitLines(s string) []string {
	parts := strings.Split(s, "\n")
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
