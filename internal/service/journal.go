package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
	"github.com/capitalize-ai/renovation-planner/pkg/metrics"
)

// ErrJournalDisabled is returned by Replay when no journal is configured.
var ErrJournalDisabled = errors.New("event journal is not enabled")

// Journal records conversation events for audit and replay.
type Journal interface {
	Publish(ctx context.Context, event *model.ConversationEvent) error
	Replay(ctx context.Context, projectID, conversationID string, after uint64, limit int) (*model.ListEventsResponse, error)
}

// NopJournal discards events.
type NopJournal struct{}

func (NopJournal) Publish(context.Context, *model.ConversationEvent) error { return nil }

func (NopJournal) Replay(context.Context, string, string, uint64, int) (*model.ListEventsResponse, error) {
	return nil, ErrJournalDisabled
}

// recorder publishes events without failing the operation that produced them.
type recorder struct {
	journal Journal
	logger  *logger.Logger
}

func (r recorder) messageAppended(ctx context.Context, scope *model.Scope, m *model.Message) {
	r.publish(ctx, &model.ConversationEvent{
		ConversationID: scope.ConversationID(),
		ProjectID:      scope.Project.ID,
		Type:           model.EventTypeMessageAppended,
		MessageID:      m.ID,
		CreatedAt:      m.CreatedAt,
	})
}

func (r recorder) actionTransition(ctx context.Context, scope *model.Scope, a *model.Action, from model.ActionStatus, reason string) {
	r.publish(ctx, &model.ConversationEvent{
		ConversationID: scope.ConversationID(),
		ProjectID:      scope.Project.ID,
		Type:           model.EventTypeActionTransition,
		MessageID:      a.MessageID,
		ActionID:       a.ID,
		ActionType:     a.Type,
		FromStatus:     from,
		ToStatus:       a.Status,
		Reason:         reason,
		CreatedAt:      a.UpdatedAt,
	})
}

func (r recorder) turnFailed(ctx context.Context, scope *model.Scope, reason string, at time.Time) {
	r.publish(ctx, &model.ConversationEvent{
		ConversationID: scope.ConversationID(),
		ProjectID:      scope.Project.ID,
		Type:           model.EventTypeTurnFailed,
		Reason:         reason,
		CreatedAt:      at,
	})
}

func (r recorder) publish(ctx context.Context, event *model.ConversationEvent) {
	event.ID = uuid.Must(uuid.NewV7()).String()
	if err := r.journal.Publish(context.WithoutCancel(ctx), event); err != nil {
		metrics.JournalPublishFailures.Inc()
		r.logger.Warn("failed to publish journal event",
			zap.String("conversation_id", event.ConversationID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
