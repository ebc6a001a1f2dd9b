package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/prompt"
)

const defaultCurrency = "USD"

// Extractor detects offers in inbound contractor email.
type Extractor struct {
	client llm.Client
	model  string
}

// NewExtractor creates an extractor using the structured mode of client.
func NewExtractor(client llm.Client, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract returns the offer carried by msg, or nil when the email is not an offer.
func (x *Extractor) Extract(ctx context.Context, scope *model.Scope, msg *model.InboundEmail) (*ExtractedOffer, error) {
	body := msg.LatestReply
	if body == "" {
		body = msg.Body
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Project: %s\n", scope.Project.Name))
	sb.WriteString(fmt.Sprintf("Contractor: %s\n", scope.Contractor.DisplayName()))
	sb.WriteString(fmt.Sprintf("Received: %s\n", msg.ReceivedAt.UTC().Format(time.RFC1123)))
	sb.WriteString(fmt.Sprintf("Subject: %s\n\n", msg.Subject))
	sb.WriteString(body)
	for _, a := range msg.Attachments {
		sb.WriteString("\n[attachment: " + a.Name + "]")
	}

	var out ExtractedOffer
	_, err := x.client.Structured(ctx, &llm.StructuredRequest{
		Model:             x.model,
		SystemPrompt:      prompt.ExtractionSystemPrompt,
		UserPrompt:        sb.String(),
		SchemaName:        ExtractionSchemaName,
		SchemaDescription: "Record whether the email contains an offer, and its terms",
		Schema:            llm.GenerateSchema[ExtractedOffer](),
		MaxTokens:         1024,
	}, &out)
	if err != nil {
		return nil, err
	}
	if !out.IsOffer {
		return nil, nil
	}
	if err := out.valid(); err != nil {
		return nil, err
	}
	if out.Currency == "" {
		out.Currency = defaultCurrency
	}
	return &out, nil
}
