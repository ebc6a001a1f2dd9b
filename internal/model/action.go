package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType is the closed set of operations the agent may propose.
type ActionType string

const (
	ActionTypeSendEmail     ActionType = "send_email"
	ActionTypeFetchEmail    ActionType = "fetch_email"
	ActionTypeAnalyzeOffer  ActionType = "analyze_offer"
	ActionTypeCompareOffers ActionType = "compare_offers"
)

// ActionTypes lists every action type in dispatch order.
var ActionTypes = []ActionType{
	ActionTypeSendEmail,
	ActionTypeFetchEmail,
	ActionTypeAnalyzeOffer,
	ActionTypeCompareOffers,
}

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionTypeSendEmail, ActionTypeFetchEmail, ActionTypeAnalyzeOffer, ActionTypeCompareOffers:
		return true
	}
	return false
}

// ActionStatus is the lifecycle state of an action.
type ActionStatus string

const (
	ActionStatusPending  ActionStatus = "pending"
	ActionStatusApproved ActionStatus = "approved"
	ActionStatusRejected ActionStatus = "rejected"
	ActionStatusExecuted ActionStatus = "executed"
	ActionStatusFailed   ActionStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionStatusPending, ActionStatusApproved, ActionStatusRejected, ActionStatusExecuted, ActionStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ActionStatus) Terminal() bool {
	return s == ActionStatusExecuted || s == ActionStatusRejected
}

// CanTransition reports whether an action may move from one status to another.
// failed -> approved is the explicit, human-triggered retry.
func CanTransition(from, to ActionStatus) bool {
	switch from {
	case ActionStatusPending:
		return to == ActionStatusApproved || to == ActionStatusRejected
	case ActionStatusApproved:
		return to == ActionStatusExecuted || to == ActionStatusFailed
	case ActionStatusFailed:
		return to == ActionStatusApproved
	}
	return false
}

// ActionParams is the type-specific payload of an action. The set of
// implementations is closed to this package.
type ActionParams interface {
	ActionType() ActionType
	isActionParams()
}

// SendEmailParams asks to email the conversation's contractor.
type SendEmailParams struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// FetchEmailParams asks to pull recent emails from the contractor.
type FetchEmailParams struct {
	MaxCount int `json:"max_count"`
}

// AnalyzeOfferParams asks for a single-offer analysis.
type AnalyzeOfferParams struct {
	OfferID      string `json:"offer_id"`
	ContractorID string `json:"contractor_id"`
	Focus        string `json:"focus,omitempty"`
}

// CompareOffersParams asks for a comparison of the primary offer against others.
type CompareOffersParams struct {
	PrimaryOfferID     string   `json:"primary_offer_id"`
	ComparisonOfferIDs []string `json:"comparison_offer_ids"`
	Focus              string   `json:"focus,omitempty"`
}

func (SendEmailParams) ActionType() ActionType     { return ActionTypeSendEmail }
func (FetchEmailParams) ActionType() ActionType    { return ActionTypeFetchEmail }
func (AnalyzeOfferParams) ActionType() ActionType  { return ActionTypeAnalyzeOffer }
func (CompareOffersParams) ActionType() ActionType { return ActionTypeCompareOffers }

func (SendEmailParams) isActionParams()     {}
func (FetchEmailParams) isActionParams()    {}
func (AnalyzeOfferParams) isActionParams()  {}
func (CompareOffersParams) isActionParams() {}

// ActionResult is the type-specific outcome of an executed action.
type ActionResult interface {
	ActionType() ActionType
	isActionResult()
}

// SendEmailResult is the delivery receipt of a sent email.
type SendEmailResult struct {
	MessageID string    `json:"message_id"`
	To        string    `json:"to"`
	SentAt    time.Time `json:"sent_at"`
}

// FetchedEmail summarizes one email pulled into the conversation.
type FetchedEmail struct {
	MessageID  string    `json:"message_id"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	Preview    string    `json:"preview"`
}

// FetchEmailResult lists fetched emails and, if one carried an offer, the new offer.
type FetchEmailResult struct {
	Emails  []FetchedEmail `json:"emails"`
	OfferID string         `json:"offer_id,omitempty"`
	// PendingExtractions counts emails whose offer detection failed. They are
	// detected again on the next fetch.
	PendingExtractions int `json:"pending_extractions,omitempty"`
}

// AnalyzeOfferResult references the persisted analysis.
type AnalyzeOfferResult struct {
	AnalysisID string `json:"analysis_id"`
}

// CompareOffersResult references the persisted comparison.
type CompareOffersResult struct {
	ComparisonID string `json:"comparison_id"`
}

func (SendEmailResult) ActionType() ActionType     { return ActionTypeSendEmail }
func (FetchEmailResult) ActionType() ActionType    { return ActionTypeFetchEmail }
func (AnalyzeOfferResult) ActionType() ActionType  { return ActionTypeAnalyzeOffer }
func (CompareOffersResult) ActionType() ActionType { return ActionTypeCompareOffers }

func (SendEmailResult) isActionResult()     {}
func (FetchEmailResult) isActionResult()    {}
func (AnalyzeOfferResult) isActionResult()  {}
func (CompareOffersResult) isActionResult() {}

// Failure records why an execution attempt failed.
type Failure struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Action is a proposed side-effecting operation owned by one message.
type Action struct {
	ID             string
	MessageID      string
	ConversationID string
	Type           ActionType
	Params         ActionParams
	Status         ActionStatus
	Result         ActionResult
	Failure        *Failure
	Reasoning      string
	Summary        string

	// ValidationError is set when the proposal was incomplete; the action
	// cannot be approved until the problem is fixed through overrides.
	ValidationError string

	RejectionSummary string
	Attempts         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type actionJSON struct {
	ID               string          `json:"id"`
	MessageID        string          `json:"message_id"`
	ConversationID   string          `json:"conversation_id"`
	Type             ActionType      `json:"type"`
	Parameters       json.RawMessage `json:"parameters"`
	Status           ActionStatus    `json:"status"`
	Result           json.RawMessage `json:"result,omitempty"`
	Failure          *Failure        `json:"failure,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	Summary          string          `json:"action_summary,omitempty"`
	ValidationError  string          `json:"validation_error,omitempty"`
	RejectionSummary string          `json:"rejection_summary,omitempty"`
	Attempts         int             `json:"attempts"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// MarshalJSON encodes parameters and result under the variant named by Type.
func (a Action) MarshalJSON() ([]byte, error) {
	if a.Params != nil && a.Params.ActionType() != a.Type {
		return nil, fmt.Errorf("action %s: parameters are %s, not %s", a.ID, a.Params.ActionType(), a.Type)
	}
	params, err := json.Marshal(a.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s parameters: %w", a.Type, err)
	}
	out := actionJSON{
		ID:               a.ID,
		MessageID:        a.MessageID,
		ConversationID:   a.ConversationID,
		Type:             a.Type,
		Parameters:       params,
		Status:           a.Status,
		Failure:          a.Failure,
		Reasoning:        a.Reasoning,
		Summary:          a.Summary,
		ValidationError:  a.ValidationError,
		RejectionSummary: a.RejectionSummary,
		Attempts:         a.Attempts,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.Result != nil {
		if a.Result.ActionType() != a.Type {
			return nil, fmt.Errorf("action %s: result is %s, not %s", a.ID, a.Result.ActionType(), a.Type)
		}
		if out.Result, err = json.Marshal(a.Result); err != nil {
			return nil, fmt.Errorf("marshal %s result: %w", a.Type, err)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes parameters and result into the variant named by Type.
func (a *Action) UnmarshalJSON(b []byte) error {
	var in actionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return fmt.Errorf("unknown action type %q", in.Type)
	}
	if !in.Status.Valid() {
		return fmt.Errorf("unknown action status %q", in.Status)
	}
	params, err := DecodeParams(in.Type, in.Parameters)
	if err != nil {
		return err
	}
	var result ActionResult
	if len(in.Result) > 0 && string(in.Result) != "null" {
		if result, err = DecodeResult(in.Type, in.Result); err != nil {
			return err
		}
	}
	*a = Action{
		ID:               in.ID,
		MessageID:        in.MessageID,
		ConversationID:   in.ConversationID,
		Type:             in.Type,
		Params:           params,
		Status:           in.Status,
		Result:           result,
		Failure:          in.Failure,
		Reasoning:        in.Reasoning,
		Summary:          in.Summary,
		ValidationError:  in.ValidationError,
		RejectionSummary: in.RejectionSummary,
		Attempts:         in.Attempts,
		CreatedAt:        in.CreatedAt,
		UpdatedAt:        in.UpdatedAt,
	}
	return nil
}

// DecodeParams decodes a parameters payload for the given action type.
func DecodeParams(t ActionType, raw json.RawMessage) (ActionParams, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	switch t {
	case ActionTypeSendEmail:
		return decodeAs[SendEmailParams](t, raw)
	case ActionTypeFetchEmail:
		return decodeAs[FetchEmailParams](t, raw)
	case ActionTypeAnalyzeOffer:
		return decodeAs[AnalyzeOfferParams](t, raw)
	case ActionTypeCompareOffers:
		return decodeAs[CompareOffersParams](t, raw)
	}
	return nil, fmt.Errorf("unknown action type %q", t)
}

// DecodeResult decodes a result payload for the given action type.
func DecodeResult(t ActionType, raw json.RawMessage) (ActionResult, error) {
	switch t {
	case ActionTypeSendEmail:
		return decodeAs[SendEmailResult](t, raw)
	case ActionTypeFetchEmail:
		return decodeAs[FetchEmailResult](t, raw)
	case ActionTypeAnalyzeOffer:
		return decodeAs[AnalyzeOfferResult](t, raw)
	case ActionTypeCompareOffers:
		return decodeAs[CompareOffersResult](t, raw)
	}
	return nil, fmt.Errorf("unknown action type %q", t)
}

func decodeAs[T any](t ActionType, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return v, nil
}

// DecisionKind is the homeowner's verdict on a pending action.
type DecisionKind string

const (
	DecisionApprove              DecisionKind = "approve"
	DecisionApproveWithOverrides DecisionKind = "approve_with_overrides"
	DecisionReject               DecisionKind = "reject"
)

// Decision is the request body for deciding on an action.
type Decision struct {
	Kind      DecisionKind      `json:"decision"`
	Overrides map[string]string `json:"overrides,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// DecisionResponse is the outcome of a decision.
type DecisionResponse struct {
	Action       *Action   `json:"action"`
	Appended     []Message `json:"appended,omitempty"`
	Confirmation *Message  `json:"confirmation,omitempty"`
}
