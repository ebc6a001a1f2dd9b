// Package store defines persistence contracts for conversations, actions,
// offers and analyses, plus an in-memory implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("already exists")

	// ErrStatusConflict is returned when an action's stored status no longer
	// matches the status the caller expected.
	ErrStatusConflict = errors.New("action status changed concurrently")
)

// ProjectStore persists projects and their contractors.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	CreateContractor(ctx context.Context, c *model.Contractor) error
	GetContractor(ctx context.Context, id string) (*model.Contractor, error)
	ListContractors(ctx context.Context, projectID string) ([]model.Contractor, error)
}

// ConversationStore persists conversations. At most one exists per
// (project, contractor); CreateConversation returns ErrDuplicate otherwise.
type ConversationStore interface {
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetConversationByParticipants(ctx context.Context, projectID, contractorID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, projectID string) ([]model.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
}

// MessageStore persists messages append-only.
type MessageStore interface {
	// AppendMessage assigns the next sequence number and stores the message.
	// An embedded Action is stored in the same write.
	AppendMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	// ListMessages returns all messages in sequence order with current action state.
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// ListRecentMessages returns the last n messages in sequence order.
	ListRecentMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error)
}

// ActionStore persists action state.
type ActionStore interface {
	GetAction(ctx context.Context, id string) (*model.Action, error)
	// TransitionAction loads the action, verifies its status equals expected,
	// applies update to a copy and stores it. The update must leave the action
	// in a status reachable from expected. Returns ErrStatusConflict when the
	// stored status differs.
	TransitionAction(ctx context.Context, id string, expected model.ActionStatus, update func(*model.Action) error) (*model.Action, error)
	ListActionsByStatus(ctx context.Context, status model.ActionStatus, limit int) ([]model.Action, error)
}

// OfferStore persists contractor offers.
type OfferStore interface {
	CreateOffer(ctx context.Context, o *model.Offer) error
	GetOffer(ctx context.Context, id string) (*model.Offer, error)
	// LatestOffer returns the contractor's current offer or ErrNotFound.
	LatestOffer(ctx context.Context, projectID, contractorID string) (*model.Offer, error)
	// LatestOffers returns every contractor's current offer in the project.
	LatestOffers(ctx context.Context, projectID string) ([]model.Offer, error)
}

// AnalysisStore persists analyses and comparisons. Records are never updated.
type AnalysisStore interface {
	CreateAnalysis(ctx context.Context, a *model.Analysis) error
	GetAnalysis(ctx context.Context, id string) (*model.Analysis, error)
	// ListAnalyses returns the offer's analyses, newest first.
	ListAnalyses(ctx context.Context, offerID string) ([]model.Analysis, error)
	LatestAnalysis(ctx context.Context, offerID string) (*model.Analysis, error)
	CreateComparison(ctx context.Context, c *model.Comparison) error
	GetComparison(ctx context.Context, id string) (*model.Comparison, error)
}

// InboundStore tracks which inbound emails were ingested into a conversation
// and whether offer detection has settled for them.
type InboundStore interface {
	// GetInbound returns the record of an inbound Message-ID or ErrNotFound.
	GetInbound(ctx context.Context, conversationID, messageID string) (*model.InboundRecord, error)
	// SaveInbound creates or replaces a record.
	SaveInbound(ctx context.Context, rec *model.InboundRecord) error
}

// Store aggregates all persistence contracts.
type Store interface {
	ProjectStore
	ConversationStore
	MessageStore
	ActionStore
	OfferStore
	AnalysisStore
	InboundStore
	Ping(ctx context.Context) error
	Close() error
}

// CheckTransition validates that update moved an action along a legal edge.
func CheckTransition(expected model.ActionStatus, updated *model.Action) error {
	if !model.CanTransition(expected, updated.Status) {
		return &TransitionError{From: expected, To: updated.Status}
	}
	return nil
}

// TransitionError reports an illegal status change requested by an update.
type TransitionError struct {
	From model.ActionStatus
	To   model.ActionStatus
}

func (e *TransitionError) Error() string {
	return "illegal action transition " + string(e.From) + " -> " + string(e.To)
}
