package service

import (
	"context"

	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	"github.com/capitalize-ai/renovation-planner/internal/diff"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/store"
)

// AnalysisService serves the history of persisted offer analyses.
type AnalysisService struct {
	store store.Store
}

// NewAnalysisService creates an analysis service.
func NewAnalysisService(s store.Store) *AnalysisService {
	return &AnalysisService{store: s}
}

// History returns the analyses of an offer, newest first.
func (s *AnalysisService) History(ctx context.Context, offerID string) (*model.ListAnalysesResponse, error) {
	const op = "list analyses"

	if _, err := s.store.GetOffer(ctx, offerID); err != nil {
		return nil, lookupError(op, "offer", offerID, err)
	}
	analyses, err := s.store.ListAnalyses(ctx, offerID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if analyses == nil {
		analyses = []model.Analysis{}
	}
	return &model.ListAnalysesResponse{Analyses: analyses}, nil
}

// Diff compares analysis id against an earlier analysis of the same offer.
// With an empty against, the analysis it superseded is used.
func (s *AnalysisService) Diff(ctx context.Context, id, against string) (*diff.AnalysisDiff, error) {
	const op = "diff analyses"

	after, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, lookupError(op, "analysis", id, err)
	}
	if against == "" {
		against = after.PreviousAnalysisID
	}
	if against == "" {
		return nil, apperr.Validation(op, "analysis %s has no predecessor; pass one to compare against", id)
	}
	before, err := s.store.GetAnalysis(ctx, against)
	if err != nil {
		return nil, lookupError(op, "analysis", against, err)
	}
	if before.OfferID != after.OfferID {
		return nil, apperr.Validation(op, "analyses %s and %s belong to different offers", against, id)
	}
	return diff.Analyses(before, after), nil
}
