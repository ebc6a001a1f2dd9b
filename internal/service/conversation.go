// Package service implements the conversation engine: homeowner turns,
// action decisions and the conversation lookups around them.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

// ConversationService handles conversation operations.
type ConversationService struct {
	store   store.Store
	journal Journal
	logger  *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(s store.Store, journal Journal, log *logger.Logger) *ConversationService {
	if journal == nil {
		journal = NopJournal{}
	}
	return &ConversationService{
		store:   s,
		journal: journal,
		logger:  log.Named("conversations"),
	}
}

// Ensure returns the conversation between a project and a contractor,
// creating it on first contact. created reports whether it is new.
func (s *ConversationService) Ensure(ctx context.Context, projectID, contractorID string) (conv *model.Conversation, created bool, err error) {
	const op = "ensure conversation"

	if projectID == "" || contractorID == "" {
		return nil, false, apperr.Validation(op, "project_id and contractor_id are required")
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, false, lookupError(op, "project", projectID, err)
	}
	contractor, err := s.store.GetContractor(ctx, contractorID)
	if err != nil {
		return nil, false, lookupError(op, "contractor", contractorID, err)
	}
	if contractor.ProjectID != projectID {
		return nil, false, apperr.Validation(op, "contractor %s is not invited to project %s", contractorID, projectID)
	}

	conv, err = s.store.GetConversationByParticipants(ctx, projectID, contractorID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, apperr.Internal(op, err)
	}

	now := time.Now().UTC()
	conv = &model.Conversation{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ProjectID:      projectID,
		ContractorID:   contractorID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race with another first contact.
			conv, err = s.store.GetConversationByParticipants(ctx, projectID, contractorID)
			if err != nil {
				return nil, false, apperr.Internal(op, err)
			}
			return conv, false, nil
		}
		return nil, false, apperr.Internal(op, err)
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("project_id", projectID),
		zap.String("contractor_id", contractorID))
	return conv, true, nil
}

// Get retrieves a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, lookupError("get conversation", "conversation", conversationID, err)
	}
	return conv, nil
}

// ListByProject lists a project's conversations, most recently active first.
func (s *ConversationService) ListByProject(ctx context.Context, projectID string) (*model.ListConversationsResponse, error) {
	convs, err := s.store.ListConversations(ctx, projectID)
	if err != nil {
		return nil, apperr.Internal("list conversations", err)
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return &model.ListConversationsResponse{Conversations: convs, Total: len(convs)}, nil
}

// Scope resolves the eligibility frame of a conversation.
func (s *ConversationService) Scope(ctx context.Context, conversationID string) (*model.Scope, error) {
	const op = "resolve conversation"

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, lookupError(op, "conversation", conversationID, err)
	}
	project, err := s.store.GetProject(ctx, conv.ProjectID)
	if err != nil {
		return nil, lookupError(op, "project", conv.ProjectID, err)
	}
	contractor, err := s.store.GetContractor(ctx, conv.ContractorID)
	if err != nil {
		return nil, lookupError(op, "contractor", conv.ContractorID, err)
	}
	return &model.Scope{Project: project, Contractor: contractor, Conversation: conv}, nil
}

// Events replays the journal of a conversation.
func (s *ConversationService) Events(ctx context.Context, conversationID string, after uint64, limit int) (*model.ListEventsResponse, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.journal.Replay(ctx, conv.ProjectID, conv.ID, after, limit)
}

func lookupError(op, what, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(op, "%s %s not found", what, id)
	}
	return apperr.Internal(op, fmt.Errorf("fetching %s %s: %w", what, id, err))
}
