package model

import (
	"time"
)

// Analysis is a persisted single-offer analysis. Analyses are never
// updated; re-analysis creates a new record linked to the previous one.
type Analysis struct {
	ID                 string    `json:"id"`
	OfferID            string    `json:"offer_id"`
	ProjectID          string    `json:"project_id"`
	ContractorID       string    `json:"contractor_id"`
	ConversationID     string    `json:"conversation_id"`
	Summary            string    `json:"summary"`
	Strengths          []string  `json:"strengths,omitempty"`
	Concerns           []string  `json:"concerns,omitempty"`
	MissingItems       []string  `json:"missing_items,omitempty"`
	SuggestedQuestions []string  `json:"suggested_questions,omitempty"`
	PriceAssessment    string    `json:"price_assessment,omitempty"`
	Focus              string    `json:"focus,omitempty"`
	// HasConversationUpdates records that conversation messages newer than
	// the previous analysis (or any messages, for a first analysis) were
	// part of the input.
	HasConversationUpdates bool      `json:"has_conversation_updates"`
	TranscriptEntries      int       `json:"transcript_entries"`
	PreviousAnalysisID     string    `json:"previous_analysis_id,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// ComparisonEntry is the verdict on one offer within a comparison.
type ComparisonEntry struct {
	OfferID      string   `json:"offer_id"`
	ContractorID string   `json:"contractor_id"`
	Rank         int      `json:"rank"`
	Strengths    []string `json:"strengths,omitempty"`
	Weaknesses   []string `json:"weaknesses,omitempty"`
}

// Comparison is a persisted multi-offer comparison.
type Comparison struct {
	ID                     string            `json:"id"`
	ProjectID              string            `json:"project_id"`
	ConversationID         string            `json:"conversation_id"`
	PrimaryOfferID         string            `json:"primary_offer_id"`
	OfferIDs               []string          `json:"offer_ids"`
	Summary                string            `json:"summary"`
	Entries                []ComparisonEntry `json:"entries,omitempty"`
	Recommendation         string            `json:"recommendation,omitempty"`
	Focus                  string            `json:"focus,omitempty"`
	HasConversationUpdates bool              `json:"has_conversation_updates"`
	TranscriptEntries      int               `json:"transcript_entries"`
	CreatedAt              time.Time         `json:"created_at"`
}

// ListAnalysesResponse is the analysis history of an offer, newest first.
type ListAnalysesResponse struct {
	Analyses []Analysis `json:"analyses"`
}
