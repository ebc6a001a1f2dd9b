package action

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	"github.com/capitalize-ai/renovation-planner/internal/model"
)

// Tool names of the structured outputs.
const (
	AnalysisSchemaName   = "record_offer_analysis"
	ComparisonSchemaName = "record_offer_comparison"
	ExtractionSchemaName = "record_extracted_offer"
)

// AnalysisOutput is the structured result of analyze_offer.
type AnalysisOutput struct {
	Summary            string   `json:"summary" jsonschema_description:"Two to four sentence overall assessment"`
	Strengths          []string `json:"strengths" jsonschema_description:"What the offer does well"`
	Concerns           []string `json:"concerns" jsonschema_description:"Risks or weak points"`
	MissingItems       []string `json:"missing_items" jsonschema_description:"Scope items or terms the offer leaves out"`
	SuggestedQuestions []string `json:"suggested_questions" jsonschema_description:"Questions the homeowner should still ask, skipping ones already answered"`
	PriceAssessment    string   `json:"price_assessment" jsonschema_description:"How the price compares to typical costs for this scope"`
}

// RankingOutput is one offer's place in a comparison.
type RankingOutput struct {
	OfferID    string   `json:"offer_id" jsonschema_description:"Offer handle, e.g. offer:0190..."`
	Rank       int      `json:"rank" jsonschema:"minimum=1" jsonschema_description:"1 is best"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// ComparisonOutput is the structured result of compare_offers.
type ComparisonOutput struct {
	Summary        string          `json:"summary" jsonschema_description:"Overall comparison"`
	Rankings       []RankingOutput `json:"rankings" jsonschema_description:"One entry per compared offer"`
	Recommendation string          `json:"recommendation" jsonschema_description:"Which offer to prefer and why"`
}

// ExtractedOffer is the structured result of offer extraction.
type ExtractedOffer struct {
	IsOffer         bool    `json:"is_offer" jsonschema_description:"True only if the email states a concrete offer with a total price"`
	TotalPrice      float64 `json:"total_price,omitempty"`
	Currency        string  `json:"currency,omitempty" jsonschema_description:"ISO 4217 code"`
	TimelineMinDays int     `json:"timeline_min_days,omitempty"`
	TimelineMaxDays int     `json:"timeline_max_days,omitempty"`
	Scope           string  `json:"scope,omitempty" jsonschema_description:"What work the offer covers"`
	Terms           string  `json:"terms,omitempty" jsonschema_description:"Payment, warranty and other terms"`
}

func (o *AnalysisOutput) validate(op string) error {
	if strings.TrimSpace(o.Summary) == "" {
		return apperr.MalformedOutput(op, "analysis has no summary")
	}
	return nil
}

// entries maps rankings onto the compared offers. Every compared offer must be
// ranked exactly once.
func (o *ComparisonOutput) entries(op string, offers []model.Offer) ([]model.ComparisonEntry, error) {
	if strings.TrimSpace(o.Summary) == "" {
		return nil, apperr.MalformedOutput(op, "comparison has no summary")
	}
	byID := make(map[string]model.Offer, len(offers))
	for _, of := range offers {
		byID[of.ID] = of
	}

	seen := make(map[string]struct{}, len(o.Rankings))
	out := make([]model.ComparisonEntry, 0, len(o.Rankings))
	for _, r := range o.Rankings {
		id := ResolveOfferRef(r.OfferID)
		of, ok := byID[id]
		if !ok {
			return nil, apperr.MalformedOutput(op, "ranking references unknown offer %q", r.OfferID)
		}
		if _, dup := seen[id]; dup {
			return nil, apperr.MalformedOutput(op, "offer %q ranked twice", r.OfferID)
		}
		if r.Rank < 1 || r.Rank > len(offers) {
			return nil, apperr.MalformedOutput(op, "rank %d out of range", r.Rank)
		}
		seen[id] = struct{}{}
		out = append(out, model.ComparisonEntry{
			OfferID:      id,
			ContractorID: of.ContractorID,
			Rank:         r.Rank,
			Strengths:    r.Strengths,
			Weaknesses:   r.Weaknesses,
		})
	}
	if len(out) != len(offers) {
		return nil, apperr.MalformedOutput(op, "%d of %d offers ranked", len(out), len(offers))
	}
	return out, nil
}

func (x *ExtractedOffer) valid() error {
	if x.TotalPrice <= 0 {
		return fmt.Errorf("extracted offer has no total price")
	}
	if x.TimelineMaxDays > 0 && x.TimelineMinDays > x.TimelineMaxDays {
		return fmt.Errorf("timeline bounds inverted: %d > %d", x.TimelineMinDays, x.TimelineMaxDays)
	}
	return nil
}
