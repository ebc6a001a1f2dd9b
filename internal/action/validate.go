package action

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

const (
	minFetchCount = 1
	maxFetchCount = 10
)

var (
	ErrMalformedArguments = errors.New("malformed tool arguments")
	ErrMissingSubject     = errors.New("subject is required")
	ErrMissingBody        = errors.New("body is required")
	ErrMissingReasoning   = errors.New("reasoning is required")
	ErrMissingSummary     = errors.New("action_summary is required")
	ErrFetchCountRange    = errors.New("max_count must be between 1 and 10")
	ErrMissingOffer       = errors.New("offer_id is required")
	ErrMissingContractor  = errors.New("contractor identity is required")
	ErrMissingPrimary     = errors.New("primary_offer_id is required")
	ErrNoComparisons      = errors.New("at least one comparison offer is required")
	ErrDuplicateOffer     = errors.New("comparison offers must be distinct")
	ErrPrimaryInList      = errors.New("primary offer cannot also be a comparison offer")
)

// Validate checks that the required parameters of an action are present and
// well-formed.
func Validate(params model.ActionParams, reasoning, summary string) error {
	switch p := params.(type) {
	case model.SendEmailParams:
		switch {
		case p.Subject == "":
			return ErrMissingSubject
		case p.Body == "":
			return ErrMissingBody
		case reasoning == "":
			return ErrMissingReasoning
		case summary == "":
			return ErrMissingSummary
		}
	case model.FetchEmailParams:
		if p.MaxCount < minFetchCount || p.MaxCount > maxFetchCount {
			return fmt.Errorf("%w, got %d", ErrFetchCountRange, p.MaxCount)
		}
	case model.AnalyzeOfferParams:
		if p.OfferID == "" {
			return ErrMissingOffer
		}
		if p.ContractorID == "" {
			return ErrMissingContractor
		}
	case model.CompareOffersParams:
		if p.PrimaryOfferID == "" {
			return ErrMissingPrimary
		}
		if len(p.ComparisonOfferIDs) == 0 {
			return ErrNoComparisons
		}
		seen := make(map[string]struct{}, len(p.ComparisonOfferIDs))
		for i, id := range p.ComparisonOfferIDs {
			if id == "" {
				return fmt.Errorf("comparison_offer_ids[%d]: %w", i, ErrMissingOffer)
			}
			if id == p.PrimaryOfferID {
				return ErrPrimaryInList
			}
			if _, dup := seen[id]; dup {
				return fmt.Errorf("%w: offer:%s", ErrDuplicateOffer, id)
			}
			seen[id] = struct{}{}
		}
	default:
		return fmt.Errorf("unsupported parameters %T", params)
	}
	return nil
}
