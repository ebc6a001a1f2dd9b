package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/renovation-planner/internal/action"
	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/lock"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/prompt"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
	"github.com/capitalize-ai/renovation-planner/pkg/metrics"
	"github.com/capitalize-ai/renovation-planner/pkg/tracing"
)

const defaultLLMTimeout = 60 * time.Second

// EngineConfig holds model settings for conversational turns.
type EngineConfig struct {
	Model      string
	MaxTokens  int
	LLMTimeout time.Duration
}

// Engine mediates every homeowner turn and every decision on a proposed
// action. Work on one conversation is serialized through the locker.
type Engine struct {
	store         store.Store
	conversations *ConversationService
	builder       *prompt.Builder
	llm           llm.Client
	executor      *action.Executor
	locker        lock.Locker
	events        recorder
	cfg           EngineConfig
	logger        *logger.Logger
	now           func() time.Time
}

// NewEngine creates the conversation engine.
func NewEngine(
	s store.Store,
	conversations *ConversationService,
	builder *prompt.Builder,
	client llm.Client,
	executor *action.Executor,
	locker lock.Locker,
	journal Journal,
	cfg EngineConfig,
	log *logger.Logger,
) *Engine {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}
	if journal == nil {
		journal = NopJournal{}
	}
	log = log.Named("engine")
	return &Engine{
		store:         s,
		conversations: conversations,
		builder:       builder,
		llm:           client,
		executor:      executor,
		locker:        locker,
		events:        recorder{journal: journal, logger: log},
		cfg:           cfg,
		logger:        log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for message timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// GetConversation returns the conversation with its rendered messages.
func (e *Engine) GetConversation(ctx context.Context, conversationID string) (*model.ConversationView, error) {
	conv, err := e.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := e.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperr.Internal("get conversation", err)
	}
	return model.NewConversationView(conv, messages), nil
}

// HandleIncomingTurn records a homeowner message and the assistant's single
// response to it: a reply, a proposed action, or a system failure notice.
// The homeowner message is kept even when the model call fails.
func (e *Engine) HandleIncomingTurn(ctx context.Context, conversationID string, req *model.SendTurnRequest) (_ *model.TurnResponse, err error) {
	const op = "handle turn"

	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Attachments) == 0 {
		return nil, apperr.Validation(op, "message text or an attachment is required")
	}

	scope, err := e.conversations.Scope(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "conversation.turn",
		attribute.String("conversation.id", conversationID),
		attribute.String("project.id", scope.Project.ID),
	)
	defer func() { tracing.End(span, err) }()

	unlock, err := e.locker.Lock(ctx, conversationID)
	if err != nil {
		return nil, apperr.Timeout(op, err)
	}
	defer unlock()

	log := e.logger.ForConversation(conversationID)

	human := &model.Message{
		ID:             newID(),
		ConversationID: conversationID,
		Sender:         model.SenderHuman,
		Kind:           model.MessageKindText,
		Content:        text,
		Attachments:    req.Attachments,
		CreatedAt:      e.now(),
	}
	if err := e.append(ctx, scope, human); err != nil {
		return nil, apperr.Internal(op, err)
	}
	resp := &model.TurnResponse{Messages: []model.Message{*human}}

	chat, err := e.builder.ChatContext(ctx, scope)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	llmCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()

	out, err := e.llm.Invoke(llmCtx, &llm.InvokeRequest{
		Model:        e.cfg.Model,
		SystemPrompt: chat.SystemPrompt,
		Context:      chat.Context,
		History:      chat.History,
		Tools:        action.Tools(),
		MaxTokens:    e.cfg.MaxTokens,
	})
	if err != nil {
		failure := apperr.Classify("invoke model", err, apperr.Model)
		log.Warn("model call failed", zap.Error(err), zap.String("kind", string(failure.Kind)))
		return e.failTurn(ctx, scope, resp, failure, "The assistant could not respond. Your message was saved; send it again to retry.")
	}

	var reply *model.Message
	switch {
	case out.IsToolCall():
		proposal, perr := action.ParseToolCall(out.ToolCall, scope)
		if perr != nil {
			log.Warn("model proposed an unsupported action", zap.String("tool", out.ToolCall.Name))
			failure := apperr.MalformedOutput("parse tool call", "%v", perr)
			return e.failTurn(ctx, scope, resp, failure, "The assistant proposed an action that is not supported. Please rephrase your request.")
		}
		reply, err = e.proposalMessage(ctx, scope, proposal, out.Reply)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		metrics.TurnsTotal.WithLabelValues("action").Inc()
	default:
		content := e.visibleText(scope, out.Reply)
		if content == "" {
			failure := apperr.MalformedOutput("invoke model", "empty reply")
			return e.failTurn(ctx, scope, resp, failure, "The assistant returned an empty reply. Send your message again to retry.")
		}
		reply = &model.Message{
			ID:             newID(),
			ConversationID: conversationID,
			Sender:         model.SenderAI,
			Kind:           model.MessageKindText,
			Content:        content,
			CreatedAt:      e.now(),
		}
		metrics.TurnsTotal.WithLabelValues("reply").Inc()
	}

	if err := e.append(ctx, scope, reply); err != nil {
		return nil, apperr.Internal(op, err)
	}
	resp.Messages = append(resp.Messages, *reply)
	return resp, nil
}

func (e *Engine) proposalMessage(ctx context.Context, scope *model.Scope, p *action.Proposal, reply string) (*model.Message, error) {
	validationErr := p.ValidationErr
	if validationErr == nil {
		if err := e.executor.Eligibility().Check(ctx, scope, p.Params); err != nil {
			if !errors.Is(err, action.ErrNotEligible) && !errors.Is(err, action.ErrNoCurrentOffer) {
				return nil, err
			}
			validationErr = err
		}
	}

	now := e.now()
	msg := &model.Message{
		ID:             newID(),
		ConversationID: scope.ConversationID(),
		Sender:         model.SenderAI,
		Kind:           model.MessageKindActionRequest,
		Content:        e.visibleText(scope, proposalText(p, reply)),
		CreatedAt:      now,
	}
	if msg.Content == "" {
		msg.Content = "Proposed action: " + string(p.Type)
	}
	msg.Action = &model.Action{
		ID:             newID(),
		MessageID:      msg.ID,
		ConversationID: scope.ConversationID(),
		Type:           p.Type,
		Params:         p.Params,
		Status:         model.ActionStatusPending,
		Reasoning:      p.Reasoning,
		Summary:        p.Summary,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if validationErr != nil {
		msg.Action.ValidationError = validationErr.Error()
	}

	valid := validationErr == nil
	metrics.ActionsProposedTotal.WithLabelValues(string(p.Type), fmt.Sprint(valid)).Inc()
	e.logger.ForAction(scope.ConversationID(), msg.Action.ID, string(p.Type)).Info("action proposed",
		zap.Bool("valid", valid))
	return msg, nil
}

func (e *Engine) failTurn(ctx context.Context, scope *model.Scope, resp *model.TurnResponse, failure *apperr.Error, notice string) (*model.TurnResponse, error) {
	msg := &model.Message{
		ID:             newID(),
		ConversationID: scope.ConversationID(),
		Sender:         model.SenderSystem,
		Kind:           model.MessageKindText,
		Content:        notice,
		CreatedAt:      e.now(),
	}
	if err := e.append(ctx, scope, msg); err != nil {
		return nil, apperr.Internal("record turn failure", err)
	}
	e.events.turnFailed(ctx, scope, failure.Error(), msg.CreatedAt)
	metrics.TurnsTotal.WithLabelValues("failed").Inc()

	resp.Messages = append(resp.Messages, *msg)
	resp.Failure = &model.Failure{
		Kind:      string(failure.Kind),
		Message:   failure.Error(),
		Retryable: failure.Retryable,
	}
	return resp, nil
}

// DecideAction applies the homeowner's decision to an action. Approval runs
// the executor and records the outcome in the action and in a confirmation
// message. Executed and rejected actions accept no further decisions.
func (e *Engine) DecideAction(ctx context.Context, actionID string, d *model.Decision) (_ *model.DecisionResponse, err error) {
	const op = "decide action"

	switch d.Kind {
	case model.DecisionApprove, model.DecisionReject:
		if len(d.Overrides) > 0 {
			return nil, apperr.Validation(op, "overrides require the %s decision", model.DecisionApproveWithOverrides)
		}
	case model.DecisionApproveWithOverrides:
		if len(d.Overrides) == 0 {
			return nil, apperr.Validation(op, "no overrides given")
		}
	default:
		return nil, apperr.Validation(op, "unknown decision %q", d.Kind)
	}

	a, err := e.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, lookupError(op, "action", actionID, err)
	}
	scope, err := e.conversations.Scope(ctx, a.ConversationID)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "action.decide",
		attribute.String("action.id", actionID),
		attribute.String("action.type", string(a.Type)),
		attribute.String("decision", string(d.Kind)),
	)
	defer func() { tracing.End(span, err) }()

	unlock, err := e.locker.Lock(ctx, a.ConversationID)
	if err != nil {
		return nil, apperr.Timeout(op, err)
	}
	defer unlock()

	// Reload under the lock; the first read only located the conversation.
	if a, err = e.store.GetAction(ctx, actionID); err != nil {
		return nil, lookupError(op, "action", actionID, err)
	}

	if d.Kind == model.DecisionReject {
		return e.reject(ctx, scope, a, d.Reason)
	}

	approved, err := e.approve(ctx, scope, a, d)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, scope, approved)
}

func (e *Engine) reject(ctx context.Context, scope *model.Scope, a *model.Action, reason string) (*model.DecisionResponse, error) {
	const op = "reject action"

	if a.Status != model.ActionStatusPending {
		return nil, apperr.InvalidState(op, "action %s is %s; only pending actions can be rejected", a.ID, a.Status)
	}
	rejected, err := e.transition(ctx, a, model.ActionStatusPending, func(x *model.Action) error {
		x.Status = model.ActionStatusRejected
		x.RejectionSummary = rejectionSummary(x, reason)
		return nil
	})
	if err != nil {
		return nil, e.transitionError(op, a, err)
	}
	e.events.actionTransition(ctx, scope, rejected, model.ActionStatusPending, reason)
	e.logger.ForAction(scope.ConversationID(), a.ID, string(a.Type)).Info("action rejected")
	return &model.DecisionResponse{Action: rejected}, nil
}

// approve moves a pending or failed action to approved. Overrides are merged
// and the result is validated before anything is stored, so a rejected edit
// leaves the action as it was.
func (e *Engine) approve(ctx context.Context, scope *model.Scope, a *model.Action, d *model.Decision) (*model.Action, error) {
	const op = "approve action"

	params := a.Params
	switch a.Status {
	case model.ActionStatusPending:
		if d.Kind == model.DecisionApproveWithOverrides {
			merged, err := action.ApplyOverrides(params, d.Overrides)
			if err != nil {
				return nil, apperr.Validation(op, "%v", err)
			}
			params = merged
		}
	case model.ActionStatusFailed:
		if d.Kind != model.DecisionApprove {
			return nil, apperr.InvalidState(op, "a failed action can only be retried with its original parameters")
		}
	default:
		return nil, apperr.InvalidState(op, "action %s is %s and cannot be approved", a.ID, a.Status)
	}

	if err := action.Validate(params, a.Reasoning, a.Summary); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if err := e.executor.Eligibility().Check(ctx, scope, params); err != nil {
		if errors.Is(err, action.ErrNotEligible) || errors.Is(err, action.ErrNoCurrentOffer) {
			return nil, apperr.Validation(op, "%v", err)
		}
		return nil, apperr.Internal(op, err)
	}

	from := a.Status
	approved, err := e.transition(ctx, a, from, func(x *model.Action) error {
		x.Status = model.ActionStatusApproved
		x.Params = params
		x.ValidationError = ""
		x.Attempts++
		return nil
	})
	if err != nil {
		return nil, e.transitionError(op, a, err)
	}
	e.events.actionTransition(ctx, scope, approved, from, "")
	return approved, nil
}

// execute runs an approved action and settles it as executed or failed.
// Settlement does not depend on the caller's context so the action never
// stays approved after the side effect has been attempted.
func (e *Engine) execute(ctx context.Context, scope *model.Scope, a *model.Action) (*model.DecisionResponse, error) {
	const op = "settle action"

	outcome, execErr := e.executor.Execute(ctx, scope, a)

	ctx = context.WithoutCancel(ctx)
	var appended []model.Message
	if outcome != nil {
		appended = outcome.Appended
	}
	for i := range appended {
		e.events.messageAppended(ctx, scope, &appended[i])
	}

	var (
		settled *model.Action
		err     error
	)
	if execErr == nil {
		settled, err = e.transition(ctx, a, model.ActionStatusApproved, func(x *model.Action) error {
			x.Status = model.ActionStatusExecuted
			x.Result = outcome.Result
			x.Failure = nil
			return nil
		})
	} else {
		failure := failureOf(execErr)
		settled, err = e.transition(ctx, a, model.ActionStatusApproved, func(x *model.Action) error {
			x.Status = model.ActionStatusFailed
			x.Failure = failure
			return nil
		})
	}
	if err != nil {
		e.logger.ForAction(scope.ConversationID(), a.ID, string(a.Type)).Error("failed to settle action",
			zap.Error(err), zap.NamedError("execution_error", execErr))
		return nil, e.transitionError(op, a, err)
	}

	reason := ""
	if settled.Failure != nil {
		reason = settled.Failure.Message
	}
	e.events.actionTransition(ctx, scope, settled, model.ActionStatusApproved, reason)

	resp := &model.DecisionResponse{Action: settled, Appended: appended}

	confirmation := &model.Message{
		ID:             newID(),
		ConversationID: scope.ConversationID(),
		Sender:         model.SenderSystem,
		Kind:           model.MessageKindActionExecuted,
		Content:        confirmationText(scope, settled, e.detectedOffer(ctx, scope, settled)),
		ActionRef:      settled.ID,
		CreatedAt:      e.now(),
	}
	if err := e.append(ctx, scope, confirmation); err != nil {
		return nil, apperr.Internal(op, err)
	}
	resp.Confirmation = confirmation
	return resp, nil
}

func (e *Engine) transition(ctx context.Context, a *model.Action, from model.ActionStatus, update func(*model.Action) error) (*model.Action, error) {
	out, err := e.store.TransitionAction(ctx, a.ID, from, func(x *model.Action) error {
		if err := update(x); err != nil {
			return err
		}
		x.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ActionTransitionsTotal.WithLabelValues(string(out.Type), string(out.Status)).Inc()
	return out, nil
}

func (e *Engine) transitionError(op string, a *model.Action, err error) error {
	var te *store.TransitionError
	switch {
	case errors.Is(err, store.ErrStatusConflict):
		return apperr.InvalidState(op, "action %s was decided concurrently", a.ID)
	case errors.As(err, &te):
		return apperr.InvalidState(op, "%v", te)
	}
	return apperr.Internal(op, err)
}

func (e *Engine) append(ctx context.Context, scope *model.Scope, m *model.Message) error {
	if err := e.store.AppendMessage(ctx, m); err != nil {
		return err
	}
	e.events.messageAppended(ctx, scope, m)
	return nil
}

// visibleText strips offer handles from model-authored text before it is shown
// to the homeowner. Handles belong in tool arguments only.
func (e *Engine) visibleText(scope *model.Scope, text string) string {
	text, stripped := action.StripOfferHandles(strings.TrimSpace(text))
	if stripped > 0 {
		e.logger.ForConversation(scope.ConversationID()).Warn("stripped offer handles from assistant text",
			zap.Int("count", stripped))
	}
	return text
}

func proposalText(p *action.Proposal, reply string) string {
	if reply = strings.TrimSpace(reply); reply != "" {
		return reply
	}
	if p.Summary != "" {
		return p.Summary
	}
	return "Proposed action: " + string(p.Type)
}

func rejectionSummary(a *model.Action, reason string) string {
	summary := a.Summary
	if summary == "" {
		summary = string(a.Type)
	}
	out := "Declined: " + summary
	if reason = strings.TrimSpace(reason); reason != "" {
		out += " (" + reason + ")"
	}
	return out
}

func failureOf(err error) *model.Failure {
	f := &model.Failure{
		Kind:      string(apperr.KindOf(err)),
		Message:   err.Error(),
		Retryable: apperr.IsRetryable(err),
	}
	return f
}

// detectedOffer loads the offer a fetch created, so the confirmation can
// describe it. A lookup failure only costs the description.
func (e *Engine) detectedOffer(ctx context.Context, scope *model.Scope, a *model.Action) *model.Offer {
	r, ok := a.Result.(model.FetchEmailResult)
	if !ok || r.OfferID == "" {
		return nil
	}
	offer, err := e.store.GetOffer(ctx, r.OfferID)
	if err != nil {
		e.logger.ForAction(scope.ConversationID(), a.ID, string(a.Type)).Warn("failed to load detected offer", zap.Error(err))
		return nil
	}
	return offer
}

func confirmationText(scope *model.Scope, a *model.Action, offer *model.Offer) string {
	who := scope.Contractor.DisplayName()
	if a.Status == model.ActionStatusFailed {
		hint := ""
		if a.Failure.Retryable {
			hint = " You can retry this action."
		}
		return fmt.Sprintf("Could not %s: %s.%s", verbOf(a.Type), a.Failure.Message, hint)
	}

	switch r := a.Result.(type) {
	case model.SendEmailResult:
		return fmt.Sprintf("Email sent to %s.", who)
	case model.FetchEmailResult:
		text := fmt.Sprintf("No new emails from %s.", who)
		if n := len(r.Emails); n > 0 {
			text = fmt.Sprintf("Fetched %d new email(s) from %s.", n, who)
		}
		switch {
		case offer != nil:
			text += " New offer detected: " + describeOffer(who, offer) + "."
		case r.OfferID != "":
			text += " A new offer was detected."
		}
		if r.PendingExtractions > 0 {
			text += fmt.Sprintf(" Could not check %d email(s) for an offer; the next fetch will try again.", r.PendingExtractions)
		}
		return text
	case model.AnalyzeOfferResult:
		return fmt.Sprintf("Analysis of %s's offer is ready.", who)
	case model.CompareOffersResult:
		return "Offer comparison is ready."
	}
	return "Action " + string(a.Type) + " completed."
}

func describeOffer(who string, o *model.Offer) string {
	return fmt.Sprintf("%s, %s %.2f, dated %s", who, o.Currency, o.TotalPrice, o.OfferDate.Format("Jan 2, 2006"))
}

func verbOf(t model.ActionType) string {
	switch t {
	case model.ActionTypeSendEmail:
		return "send the email"
	case model.ActionTypeFetchEmail:
		return "fetch emails"
	case model.ActionTypeAnalyzeOffer:
		return "analyze the offer"
	case model.ActionTypeCompareOffers:
		return "compare the offers"
	}
	return "run " + string(t)
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
