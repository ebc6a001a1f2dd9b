package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/model"
)

// ErrUnknownTool is returned for a tool call that names no action type.
var ErrUnknownTool = errors.New("unknown tool")

// Proposal is a parsed tool call. A proposal with ValidationErr set is still
// recorded as a pending action so the homeowner sees what was proposed.
type Proposal struct {
	Type          model.ActionType
	Params        model.ActionParams
	Reasoning     string
	Summary       string
	ValidationErr error
}

// ParseToolCall decodes a tool call into typed parameters and validates them.
// Offer handles are resolved to offer IDs, and analyze_offer is bound to the
// scope's contractor.
func ParseToolCall(call *llm.ToolCall, scope *model.Scope) (*Proposal, error) {
	t := model.ActionType(call.Name)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	p := &Proposal{Type: t}
	var decodeErr error
	switch t {
	case model.ActionTypeSendEmail:
		var args SendEmailArgs
		decodeErr = decodeArgs(call.Arguments, &args)
		p.Params = model.SendEmailParams{Subject: strings.TrimSpace(args.Subject), Body: strings.TrimSpace(args.Body)}
		p.Reasoning, p.Summary = args.Reasoning, args.ActionSummary
	case model.ActionTypeFetchEmail:
		var args FetchEmailArgs
		decodeErr = decodeArgs(call.Arguments, &args)
		p.Params = model.FetchEmailParams{MaxCount: args.MaxCount}
		p.Reasoning, p.Summary = args.Reasoning, args.ActionSummary
	case model.ActionTypeAnalyzeOffer:
		var args AnalyzeOfferArgs
		decodeErr = decodeArgs(call.Arguments, &args)
		p.Params = model.AnalyzeOfferParams{
			OfferID:      ResolveOfferRef(args.OfferID),
			ContractorID: scope.Contractor.ID,
			Focus:        strings.TrimSpace(args.Focus),
		}
		p.Reasoning, p.Summary = args.Reasoning, args.ActionSummary
	case model.ActionTypeCompareOffers:
		var args CompareOffersArgs
		decodeErr = decodeArgs(call.Arguments, &args)
		ids := make([]string, 0, len(args.ComparisonOfferIDs))
		for _, ref := range args.ComparisonOfferIDs {
			ids = append(ids, ResolveOfferRef(ref))
		}
		p.Params = model.CompareOffersParams{
			PrimaryOfferID:     ResolveOfferRef(args.PrimaryOfferID),
			ComparisonOfferIDs: ids,
			Focus:              strings.TrimSpace(args.Focus),
		}
		p.Reasoning, p.Summary = args.Reasoning, args.ActionSummary
	}

	p.Reasoning = strings.TrimSpace(p.Reasoning)
	p.Summary = strings.TrimSpace(p.Summary)

	if decodeErr != nil {
		p.ValidationErr = decodeErr
	} else {
		p.ValidationErr = Validate(p.Params, p.Reasoning, p.Summary)
	}
	return p, nil
}

// ResolveOfferRef turns an offer handle into an offer ID. Bare IDs pass through.
func ResolveOfferRef(ref string) string {
	return strings.TrimPrefix(strings.TrimSpace(ref), "offer:")
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArguments, err)
	}
	return nil
}
