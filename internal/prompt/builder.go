// Package prompt assembles the bounded input the language model sees for a
// chat turn or an analysis. Building context never writes to the store.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/store"
)

const defaultHistoryLimit = 50

// Source is the read-only store surface context assembly needs.
type Source interface {
	ListContractors(ctx context.Context, projectID string) ([]model.Contractor, error)
	ListRecentMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error)
	LatestOffers(ctx context.Context, projectID string) ([]model.Offer, error)
	LatestAnalysis(ctx context.Context, offerID string) (*model.Analysis, error)
}

// Builder produces chat and analysis contexts.
type Builder struct {
	source          Source
	counter         TokenCounter
	transcriptLimit int
	historyLimit    int
	historyBudget   int
}

// Option configures a Builder.
type Option func(*Builder)

// WithTranscriptLimit sets how many messages an analysis transcript holds.
func WithTranscriptLimit(n int) Option {
	return func(b *Builder) { b.transcriptLimit = n }
}

// WithHistoryBudget sets the token budget of chat history.
func WithHistoryBudget(tokens int) Option {
	return func(b *Builder) { b.historyBudget = tokens }
}

// WithTokenCounter sets the counter used for the history budget.
func WithTokenCounter(c TokenCounter) Option {
	return func(b *Builder) { b.counter = c }
}

// NewBuilder creates a Builder reading from source.
func NewBuilder(source Source, opts ...Option) *Builder {
	b := &Builder{
		source:          source,
		counter:         approxCounter{},
		transcriptLimit: DefaultTranscriptLimit,
		historyLimit:    defaultHistoryLimit,
		historyBudget:   6000,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ChatContext is the model input for one chat turn.
type ChatContext struct {
	SystemPrompt string
	Context      string
	History      []llm.ChatMessage
	Offers       []model.Offer
	CurrentOffer *model.Offer
}

// ChatContext builds the system prompt, context block and chat history for scope.
func (b *Builder) ChatContext(ctx context.Context, scope *model.Scope) (*ChatContext, error) {
	contractors, err := b.contractorsByID(ctx, scope.Project.ID)
	if err != nil {
		return nil, err
	}
	offers, err := b.source.LatestOffers(ctx, scope.Project.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching offers: %w", err)
	}
	current := currentOffer(offers, scope.Contractor.ID)

	var analysis *model.Analysis
	if current != nil {
		analysis, err = b.source.LatestAnalysis(ctx, current.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("fetching analysis: %w", err)
		}
	}

	messages, err := b.source.ListRecentMessages(ctx, scope.ConversationID(), b.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	history := make([]llm.ChatMessage, 0, len(messages))
	for i := range messages {
		history = append(history, historyMessage(&messages[i], scope.Contractor))
	}

	return &ChatContext{
		SystemPrompt: fmt.Sprintf(chatSystemPrompt, scope.Contractor.DisplayName()),
		Context:      buildContextDump(scope, contractors, offers, current, analysis),
		History:      TrimHistory(history, b.historyBudget, b.counter),
		Offers:       offers,
		CurrentOffer: current,
	}, nil
}

// AnalysisRequest describes what an analysis or comparison covers.
type AnalysisRequest struct {
	// Offers are analyzed in order; the first is the primary offer.
	Offers   []model.Offer
	Previous *model.Analysis
	Focus    string
}

// AnalysisContext is the model input for a structured analysis.
type AnalysisContext struct {
	UserPrompt string
	Transcript Transcript
}

// AnalysisContext builds the analysis prompt: project, contractors, offers,
// the previous analysis and the bounded transcript.
func (b *Builder) AnalysisContext(ctx context.Context, scope *model.Scope, req AnalysisRequest) (*AnalysisContext, error) {
	contractors, err := b.contractorsByID(ctx, scope.Project.ID)
	if err != nil {
		return nil, err
	}
	messages, err := b.source.ListRecentMessages(ctx, scope.ConversationID(), b.transcriptLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	transcript := FormatTranscript(messages, b.transcriptLimit)

	var sb strings.Builder
	writeProject(&sb, scope.Project)

	sb.WriteString("# Offers\n\n")
	for i, o := range req.Offers {
		label := "Offer"
		if len(req.Offers) > 1 && i == 0 {
			label = "Primary offer"
		}
		writeOffer(&sb, label, &o, contractorName(contractors, o.ContractorID))
	}

	if req.Previous != nil {
		sb.WriteString("# Previous analysis\n\n")
		sb.WriteString(fmt.Sprintf("Made %s.\n\n%s\n\n", req.Previous.CreatedAt.UTC().Format(transcriptTimeLayout), req.Previous.Summary))
		writeList(&sb, "Concerns raised", req.Previous.Concerns)
		writeList(&sb, "Missing items", req.Previous.MissingItems)
	}

	sb.WriteString(fmt.Sprintf("# Conversation with %s (last %d messages)\n\n", scope.Contractor.DisplayName(), transcript.Entries()))
	if transcript.Entries() == 0 {
		sb.WriteString("(no messages yet)\n\n")
	} else {
		sb.WriteString(transcript.Text)
		sb.WriteString("\n\n")
	}

	if req.Focus != "" {
		sb.WriteString("# Focus\n\n")
		sb.WriteString(req.Focus)
		sb.WriteString("\n")
	}

	return &AnalysisContext{UserPrompt: sb.String(), Transcript: transcript}, nil
}

func (b *Builder) contractorsByID(ctx context.Context, projectID string) (map[string]model.Contractor, error) {
	list, err := b.source.ListContractors(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetching contractors: %w", err)
	}
	out := make(map[string]model.Contractor, len(list))
	for _, c := range list {
		out[c.ID] = c
	}
	return out, nil
}

func currentOffer(offers []model.Offer, contractorID string) *model.Offer {
	for i := range offers {
		if offers[i].ContractorID == contractorID {
			o := offers[i]
			return &o
		}
	}
	return nil
}

func buildContextDump(scope *model.Scope, contractors map[string]model.Contractor, offers []model.Offer, current *model.Offer, analysis *model.Analysis) string {
	var sb strings.Builder

	writeProject(&sb, scope.Project)

	sb.WriteString("# Participants\n\n")
	sb.WriteString(fmt.Sprintf("**Homeowner**: %s <%s>. You work for them.\n", scope.Project.HomeownerName, scope.Project.HomeownerEmail))
	c := scope.Contractor
	sb.WriteString(fmt.Sprintf("**Contractor in this conversation**: %s", c.DisplayName()))
	if c.Trade != "" {
		sb.WriteString(", " + c.Trade)
	}
	sb.WriteString("\n\n")

	sb.WriteString("# Current offers\n\n")
	if len(offers) == 0 {
		sb.WriteString("No offers received yet.\n\n")
	}
	for i := range offers {
		o := &offers[i]
		label := "Offer"
		if current != nil && o.ID == current.ID {
			label = "CURRENT offer of this conversation's contractor"
		}
		writeOffer(&sb, label, o, contractorName(contractors, o.ContractorID))
	}

	if analysis != nil {
		sb.WriteString("# Latest analysis of the current offer\n\n")
		sb.WriteString(analysis.Summary)
		sb.WriteString("\n\n")
		writeList(&sb, "Concerns", analysis.Concerns)
		writeList(&sb, "Suggested questions", analysis.SuggestedQuestions)
	}

	return sb.String()
}

func writeProject(sb *strings.Builder, p *model.Project) {
	sb.WriteString("# Project\n\n")
	sb.WriteString(fmt.Sprintf("**Name**: %s\n", p.Name))
	if p.Address != "" {
		sb.WriteString(fmt.Sprintf("**Address**: %s\n", p.Address))
	}
	if p.Description != "" {
		sb.WriteString(fmt.Sprintf("**Description**:\n%s\n", p.Description))
	}
	sb.WriteString("\n")
}

func writeOffer(sb *strings.Builder, label string, o *model.Offer, contractor string) {
	sb.WriteString(fmt.Sprintf("## %s: %s from %s\n\n", label, model.OfferHandle(o.ID), contractor))
	sb.WriteString(fmt.Sprintf("- Total: %s %.2f\n", o.Currency, o.TotalPrice))
	if timeline := formatTimeline(o); timeline != "" {
		sb.WriteString("- Timeline: " + timeline + "\n")
	}
	sb.WriteString(fmt.Sprintf("- Offer date: %s\n", o.OfferDate.UTC().Format("2006-01-02")))
	sb.WriteString("- Scope: " + o.Scope + "\n")
	if o.Terms != "" {
		sb.WriteString("- Terms: " + o.Terms + "\n")
	}
	sb.WriteString("\n")
}

func formatTimeline(o *model.Offer) string {
	switch {
	case o.TimelineMinDays > 0 && o.TimelineMaxDays > o.TimelineMinDays:
		return fmt.Sprintf("%d to %d days", o.TimelineMinDays, o.TimelineMaxDays)
	case o.TimelineMinDays > 0:
		return fmt.Sprintf("%d days", o.TimelineMinDays)
	case o.TimelineMaxDays > 0:
		return fmt.Sprintf("up to %d days", o.TimelineMaxDays)
	}
	return ""
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("**%s**:\n", title))
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
	sb.WriteString("\n")
}

func contractorName(contractors map[string]model.Contractor, id string) string {
	if c, ok := contractors[id]; ok {
		return c.DisplayName()
	}
	return "unknown contractor"
}

// historyMessage maps a stored message onto a chat role.
func historyMessage(m *model.Message, contractor *model.Contractor) llm.ChatMessage {
	switch {
	case m.Sender == model.SenderHuman:
		return llm.ChatMessage{Role: llm.RoleUser, Content: entryText(m)}
	case m.Sender == model.SenderAI && m.Action != nil:
		return llm.ChatMessage{Role: llm.RoleAssistant, Content: actionHistoryText(m)}
	case m.Sender == model.SenderAI:
		return llm.ChatMessage{Role: llm.RoleAssistant, Content: m.Content}
	case m.Sender == model.SenderContractor:
		return llm.ChatMessage{Role: llm.RoleUser, Content: fmt.Sprintf("[Email from %s] %s", contractor.DisplayName(), entryText(m))}
	default:
		return llm.ChatMessage{Role: llm.RoleUser, Content: "[System] " + m.Content}
	}
}

func actionHistoryText(m *model.Message) string {
	a := m.Action
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[Proposed %s: %s] Status: %s.", a.Type, a.Summary, a.Status))
	switch a.Status {
	case model.ActionStatusRejected:
		sb.WriteString(" The homeowner declined it.")
	case model.ActionStatusFailed:
		if a.Failure != nil {
			sb.WriteString(" It failed: " + a.Failure.Message)
		}
	case model.ActionStatusPending:
		sb.WriteString(" Awaiting the homeowner's decision.")
	}
	return sb.String()
}

// normalizeHistory merges consecutive same-role messages and drops leading
// assistant messages so the thread starts with the user.
func normalizeHistory(history []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, msg := range history {
		if len(out) == 0 && msg.Role == llm.RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out = append(out, msg)
	}
	return out
}
