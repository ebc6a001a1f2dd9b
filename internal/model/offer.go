package model

import (
	"time"
)

// Offer is a contractor proposal extracted from prior communication.
type Offer struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	ContractorID    string    `json:"contractor_id"`
	TotalPrice      float64   `json:"total_price"`
	Currency        string    `json:"currency"`
	TimelineMinDays int       `json:"timeline_min_days,omitempty"`
	TimelineMaxDays int       `json:"timeline_max_days,omitempty"`
	Scope           string    `json:"scope"`
	Terms           string    `json:"terms,omitempty"`
	OfferDate       time.Time `json:"offer_date"`
	SourceMessageID string    `json:"source_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// OfferHandle is the opaque reference the model uses for an offer.
func OfferHandle(id string) string {
	return "offer:" + id
}

// NewerThan orders offers by offer date, then creation time.
func (o *Offer) NewerThan(other *Offer) bool {
	if !o.OfferDate.Equal(other.OfferDate) {
		return o.OfferDate.After(other.OfferDate)
	}
	return o.CreatedAt.After(other.CreatedAt)
}
