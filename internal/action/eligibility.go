package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

var (
	ErrNotEligible    = errors.New("offer not eligible in this conversation")
	ErrNoCurrentOffer = errors.New("contractor has no offer yet")
)

// OfferSource lists the current offer of every contractor in a project.
type OfferSource interface {
	LatestOffers(ctx context.Context, projectID string) ([]model.Offer, error)
}

// Eligibility enforces which offers an action may reference from inside a
// contractor's conversation.
type Eligibility struct {
	offers OfferSource
}

// NewEligibility creates an eligibility checker.
func NewEligibility(offers OfferSource) *Eligibility {
	return &Eligibility{offers: offers}
}

// Check verifies that params only target data the scope may act on:
// analyze_offer and the primary slot of compare_offers take the scope
// contractor's current offer, and comparison slots take other contractors'
// current offers in the same project. send_email and fetch_email carry no
// target and always address the scope contractor.
func (e *Eligibility) Check(ctx context.Context, scope *model.Scope, params model.ActionParams) error {
	switch p := params.(type) {
	case model.SendEmailParams, model.FetchEmailParams:
		return nil
	case model.AnalyzeOfferParams:
		if p.ContractorID != scope.Contractor.ID {
			return fmt.Errorf("%w: analysis must target %s", ErrNotEligible, scope.Contractor.DisplayName())
		}
		current, _, err := e.currentOffers(ctx, scope)
		if err != nil {
			return err
		}
		return requireCurrent(current, p.OfferID, scope)
	case model.CompareOffersParams:
		current, all, err := e.currentOffers(ctx, scope)
		if err != nil {
			return err
		}
		if err := requireCurrent(current, p.PrimaryOfferID, scope); err != nil {
			return fmt.Errorf("primary offer: %w", err)
		}
		for _, id := range p.ComparisonOfferIDs {
			if _, ok := all[id]; !ok {
				return fmt.Errorf("%w: offer:%s is not a current offer in this project", ErrNotEligible, id)
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported parameters %T", params)
}

// currentOffers returns the scope contractor's current offer and the set of
// every contractor's current offer keyed by ID.
func (e *Eligibility) currentOffers(ctx context.Context, scope *model.Scope) (*model.Offer, map[string]model.Offer, error) {
	offers, err := e.offers.LatestOffers(ctx, scope.Project.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching offers: %w", err)
	}
	all := make(map[string]model.Offer, len(offers))
	var current *model.Offer
	for i := range offers {
		all[offers[i].ID] = offers[i]
		if offers[i].ContractorID == scope.Contractor.ID {
			current = &offers[i]
		}
	}
	return current, all, nil
}

func requireCurrent(current *model.Offer, offerID string, scope *model.Scope) error {
	if current == nil {
		return fmt.Errorf("%w: %s", ErrNoCurrentOffer, scope.Contractor.DisplayName())
	}
	if current.ID != offerID {
		return fmt.Errorf("%w: offer:%s is not the current offer of %s", ErrNotEligible, offerID, scope.Contractor.DisplayName())
	}
	return nil
}
