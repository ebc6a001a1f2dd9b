package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

// DefaultTranscriptLimit bounds the transcript handed to analyses.
const DefaultTranscriptLimit = 30

const transcriptTimeLayout = "2006-01-02 15:04"

// Transcript is the bounded, formatted conversation history passed to an
// analysis call. It is opaque text to the engine.
type Transcript struct {
	Text     string
	Lines    []string
	Messages []model.Message
}

// Entries is the number of messages rendered.
func (t Transcript) Entries() int {
	return len(t.Lines)
}

// HasUpdatesSince reports whether a homeowner or contractor message newer
// than since is part of the transcript. A zero since means any such message counts.
func (t Transcript) HasUpdatesSince(since time.Time) bool {
	for _, m := range t.Messages {
		if m.Kind != model.MessageKindText {
			continue
		}
		if m.Sender != model.SenderHuman && m.Sender != model.SenderContractor {
			continue
		}
		if since.IsZero() || m.CreatedAt.After(since) {
			return true
		}
	}
	return false
}

// RoleLabel names the author of a message in transcripts.
func RoleLabel(s model.Sender) string {
	switch s {
	case model.SenderHuman:
		return "Homeowner"
	case model.SenderAI:
		return "AI"
	case model.SenderContractor:
		return "Contractor"
	default:
		return "System"
	}
}

// FormatTranscript renders the last limit messages, oldest first, one line each.
func FormatTranscript(messages []model.Message, limit int) Transcript {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	t := Transcript{
		Lines:    make([]string, 0, len(messages)),
		Messages: messages,
	}
	for i := range messages {
		m := &messages[i]
		t.Lines = append(t.Lines, fmt.Sprintf("[%s] %s: %s",
			m.CreatedAt.UTC().Format(transcriptTimeLayout), RoleLabel(m.Sender), oneLine(entryText(m))))
	}
	t.Text = strings.Join(t.Lines, "\n")
	return t
}

// entryText is the message content, or for an action request its summary and status.
func entryText(m *model.Message) string {
	text := m.DisplayContent()
	if a := m.Action; a != nil && a.Status != model.ActionStatusRejected {
		summary := a.Summary
		if summary == "" {
			summary = text
		}
		text = fmt.Sprintf("[%s %s] %s", a.Type, a.Status, summary)
	}
	if len(m.Attachments) > 0 {
		names := make([]string, len(m.Attachments))
		for i, att := range m.Attachments {
			names[i] = att.Name
		}
		text += " (attachments: " + strings.Join(names, ", ") + ")"
	}
	return text
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
