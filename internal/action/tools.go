// Package action turns model tool calls into typed action proposals,
// validates them against the conversation's eligibility frame and executes
// approved actions.
package action

import (
	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/model"
)

// SendEmailArgs are the send_email tool arguments.
type SendEmailArgs struct {
	Subject       string `json:"subject" jsonschema_description:"Email subject line"`
	Body          string `json:"body" jsonschema_description:"Email body as simple HTML. Never include offer handles."`
	Reasoning     string `json:"reasoning" jsonschema_description:"Why this email should be sent"`
	ActionSummary string `json:"action_summary" jsonschema_description:"One line describing the action for the homeowner"`
}

// FetchEmailArgs are the fetch_email tool arguments.
type FetchEmailArgs struct {
	MaxCount      int    `json:"max_count" jsonschema:"minimum=1,maximum=10" jsonschema_description:"How many recent emails to fetch (1-10)"`
	Reasoning     string `json:"reasoning" jsonschema_description:"Why the emails should be fetched"`
	ActionSummary string `json:"action_summary" jsonschema_description:"One line describing the action for the homeowner"`
}

// AnalyzeOfferArgs are the analyze_offer tool arguments.
type AnalyzeOfferArgs struct {
	OfferID       string `json:"offer_id" jsonschema_description:"Handle of this contractor's current offer, e.g. offer:0190..."`
	Focus         string `json:"focus,omitempty" jsonschema_description:"Optional aspect to focus on"`
	Reasoning     string `json:"reasoning" jsonschema_description:"Why the analysis is useful now"`
	ActionSummary string `json:"action_summary" jsonschema_description:"One line describing the action for the homeowner"`
}

// CompareOffersArgs are the compare_offers tool arguments.
type CompareOffersArgs struct {
	PrimaryOfferID     string   `json:"primary_offer_id" jsonschema_description:"Handle of this contractor's current offer"`
	ComparisonOfferIDs []string `json:"comparison_offer_ids" jsonschema_description:"Handles of other contractors' current offers"`
	Focus              string   `json:"focus,omitempty" jsonschema_description:"Optional aspect to focus on"`
	Reasoning          string   `json:"reasoning" jsonschema_description:"Why the comparison is useful now"`
	ActionSummary      string   `json:"action_summary" jsonschema_description:"One line describing the action for the homeowner"`
}

// Tools returns the tool definitions offered to the model on every chat turn.
// Tool names are the action type names.
func Tools() []llm.Tool {
	return []llm.Tool{
		{
			Name:        string(model.ActionTypeSendEmail),
			Description: "Send an email to the contractor of this conversation. The homeowner reviews it before it is sent.",
			Schema:      llm.GenerateSchema[SendEmailArgs](),
		},
		{
			Name:        string(model.ActionTypeFetchEmail),
			Description: "Fetch the contractor's most recent emails into this conversation and detect new offers.",
			Schema:      llm.GenerateSchema[FetchEmailArgs](),
		},
		{
			Name:        string(model.ActionTypeAnalyzeOffer),
			Description: "Analyze this contractor's current offer, taking the conversation into account.",
			Schema:      llm.GenerateSchema[AnalyzeOfferArgs](),
		},
		{
			Name:        string(model.ActionTypeCompareOffers),
			Description: "Compare this contractor's current offer against other contractors' current offers.",
			Schema:      llm.GenerateSchema[CompareOffersArgs](),
		},
	}
}
