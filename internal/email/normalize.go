package email

import (
	"regexp"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

var (
	reWroteLine     = regexp.MustCompile(`(?i)^\s*(on\s.+\s)?wrote:\s*$`)
	reOnLine        = regexp.MustCompile(`(?i)^\s*on\s.+`)
	reWroteTail     = regexp.MustCompile(`(?i)(^|\s)wrote:\s*$`)
	reOriginalMsg   = regexp.MustCompile(`(?i)^\s*-{2,}\s*(original message|forwarded message)\s*-{2,}`)
	reOutlookRule   = regexp.MustCompile(`^\s*_{10,}\s*$`)
	reHeaderFrom    = regexp.MustCompile(`(?i)^\s*\**from:\**\s.+`)
	reExcessNewline = regexp.MustCompile(`\n{3,}`)
)

// Normalize converts a fetched message into an InboundEmail. The body is
// rendered as markdown when only HTML is available, and LatestReply carries
// the newest text with quoted history removed.
func Normalize(raw RawEmail) model.InboundEmail {
	body := strings.TrimSpace(raw.TextBody)
	if body == "" && raw.HTMLBody != "" {
		if md, err := htmltomarkdown.ConvertString(raw.HTMLBody); err == nil {
			body = strings.TrimSpace(md)
		} else {
			body = strings.TrimSpace(raw.HTMLBody)
		}
	}

	return model.InboundEmail{
		MessageID:   raw.MessageID,
		ThreadID:    threadID(raw),
		InReplyTo:   raw.InReplyTo,
		From:        raw.From,
		Subject:     raw.Subject,
		Body:        body,
		LatestReply: StripQuoted(body),
		ReceivedAt:  raw.Date,
		Attachments: raw.Attachments,
	}
}

// NormalizeAll normalizes a batch and marks the newest message of each thread.
func NormalizeAll(raws []RawEmail) []model.InboundEmail {
	out := make([]model.InboundEmail, len(raws))
	for i := range raws {
		out[i] = Normalize(raws[i])
	}
	MarkLatestInThread(out)
	return out
}

// MarkLatestInThread sets IsLatestInThread on the newest message of every thread.
func MarkLatestInThread(emails []model.InboundEmail) {
	latest := make(map[string]int, len(emails))
	for i := range emails {
		emails[i].IsLatestInThread = false
		j, ok := latest[emails[i].ThreadID]
		if !ok || emails[i].ReceivedAt.After(emails[j].ReceivedAt) {
			latest[emails[i].ThreadID] = i
		}
	}
	for _, i := range latest {
		emails[i].IsLatestInThread = true
	}
}

// StripQuoted returns the text above the first quoted-reply marker.
func StripQuoted(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	cut := len(lines)

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, ">"):
			cut = i
		case reWroteLine.MatchString(line):
			cut = i
		case reOnLine.MatchString(line) && i+1 < len(lines) && reWroteTail.MatchString(lines[i+1]):
			// "On <date>, <name>" wrapped onto two lines.
			cut = i
		case reOriginalMsg.MatchString(line), reOutlookRule.MatchString(line):
			cut = i
		case reHeaderFrom.MatchString(line) && i > 0 && strings.TrimSpace(lines[i-1]) == "":
			cut = i
		default:
			continue
		}
		break
	}

	out := strings.TrimSpace(strings.Join(lines[:cut], "\n"))
	if out == "" {
		return strings.TrimSpace(body)
	}
	return reExcessNewline.ReplaceAllString(out, "\n\n")
}

func threadID(raw RawEmail) string {
	if len(raw.References) > 0 {
		return raw.References[0]
	}
	if raw.InReplyTo != "" {
		return raw.InReplyTo
	}
	return raw.MessageID
}

func sortByDate(emails []RawEmail) {
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].Date.Before(emails[j].Date)
	})
}
