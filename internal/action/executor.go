package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	"github.com/capitalize-ai/renovation-planner/internal/email"
	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/prompt"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
	"github.com/capitalize-ai/renovation-planner/pkg/metrics"
	"github.com/capitalize-ai/renovation-planner/pkg/tracing"
)

const (
	previewLength        = 160
	replyLookback        = 50
	defaultActionLimit   = 8
	defaultActionTimeout = 90 * time.Second
)

// ExecutorConfig holds executor limits and mailbox settings.
type ExecutorConfig struct {
	Timeout       time.Duration
	MaxConcurrent int64
	Model         string
	Mailbox       string
	From          string
}

// Outcome is what an execution produced. A failed execution may still return
// an Outcome listing the messages appended before the failure.
type Outcome struct {
	Result model.ActionResult
	// Appended lists the contractor messages fetch_email added to the conversation.
	Appended []model.Message
}

// Executor performs the side effect of an approved action.
type Executor struct {
	store       store.Store
	transport   email.Transport
	llm         llm.Client
	builder     *prompt.Builder
	eligibility *Eligibility
	extractor   *Extractor
	sem         *semaphore.Weighted
	cfg         ExecutorConfig
	logger      *logger.Logger
	now         func() time.Time
}

// NewExecutor creates an executor.
func NewExecutor(s store.Store, transport email.Transport, client llm.Client, builder *prompt.Builder, cfg ExecutorConfig, log *logger.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultActionTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultActionLimit
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Executor{
		store:       s,
		transport:   transport,
		llm:         client,
		builder:     builder,
		eligibility: NewEligibility(s),
		extractor:   NewExtractor(client, cfg.Model),
		sem:         semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:         cfg,
		logger:      log.Named("executor"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the executor's time source. Used by tests.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Eligibility returns the executor's eligibility checker.
func (e *Executor) Eligibility() *Eligibility {
	return e.eligibility
}

// Execute runs the side effect of a once, bounded by the action timeout.
// Parameters and eligibility are re-validated first. Every returned error is
// an *apperr.Error.
func (e *Executor) Execute(ctx context.Context, scope *model.Scope, a *model.Action) (_ *Outcome, err error) {
	op := "execute " + string(a.Type)
	log := e.logger.ForAction(scope.ConversationID(), a.ID, string(a.Type))

	ctx, span := tracing.Start(ctx, "action.execute."+string(a.Type),
		attribute.String("action.id", a.ID),
		attribute.String("conversation.id", scope.ConversationID()),
	)
	defer func() { tracing.End(span, err) }()

	if err := Validate(a.Params, a.Reasoning, a.Summary); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if err := e.eligibility.Check(ctx, scope, a.Params); err != nil {
		if errors.Is(err, ErrNotEligible) || errors.Is(err, ErrNoCurrentOffer) {
			return nil, apperr.Validation(op, "%v", err)
		}
		return nil, apperr.Internal(op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Timeout(op, err)
	}
	defer e.sem.Release(1)

	start := time.Now()
	var out *Outcome
	switch p := a.Params.(type) {
	case model.SendEmailParams:
		out, err = e.sendEmail(ctx, scope, p, log)
	case model.FetchEmailParams:
		out, err = e.fetchEmail(ctx, scope, p, log)
	case model.AnalyzeOfferParams:
		out, err = e.analyzeOffer(ctx, scope, p, log)
	case model.CompareOffersParams:
		out, err = e.compareOffers(ctx, scope, p, log)
	default:
		err = apperr.Internal(op, fmt.Errorf("unsupported parameters %T", a.Params))
	}

	status := model.ActionStatusExecuted
	if err != nil {
		status = model.ActionStatusFailed
		err = apperr.Classify(op, err, apperr.Internal)
	}
	metrics.RecordActionExecution(string(a.Type), string(status), time.Since(start).Seconds())
	if err != nil {
		log.Error("action execution failed", zap.Error(err), zap.String("kind", string(apperr.KindOf(err))))
		return out, err
	}
	log.Info("action executed", zap.Duration("duration", time.Since(start)))
	return out, nil
}

func (e *Executor) sendEmail(ctx context.Context, scope *model.Scope, p model.SendEmailParams, log *logger.Logger) (*Outcome, error) {
	const op = "send_email"

	body, stripped := StripOfferHandles(p.Body)
	if stripped > 0 {
		log.Warn("stripped offer handles from email body", zap.Int("count", stripped))
	}

	msg := &email.OutboundEmail{
		From:     e.cfg.From,
		To:       scope.Contractor.Email,
		Subject:  p.Subject,
		HTMLBody: body,
	}
	if text, err := htmltomarkdown.ConvertString(body); err == nil {
		msg.TextBody = strings.TrimSpace(text)
	}
	if ref, err := e.latestInbound(ctx, scope); err != nil {
		return nil, err
	} else if ref != "" {
		msg.InReplyTo = ref
		msg.References = []string{ref}
	}

	receipt, err := e.transport.Send(ctx, msg)
	if err != nil {
		return nil, transportError(op, err)
	}

	log.Info("email sent", zap.String("message_id", receipt.MessageID))
	return &Outcome{Result: model.SendEmailResult{
		MessageID: receipt.MessageID,
		To:        receipt.To,
		SentAt:    receipt.SentAt,
	}}, nil
}

// latestInbound returns the Message-ID of the newest contractor email in the
// conversation so outbound mail threads as a reply.
func (e *Executor) latestInbound(ctx context.Context, scope *model.Scope) (string, error) {
	recent, err := e.store.ListRecentMessages(ctx, scope.ConversationID(), replyLookback)
	if err != nil {
		return "", fmt.Errorf("fetching messages: %w", err)
	}
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Sender == model.SenderContractor && recent[i].InboundMessageID != "" {
			return recent[i].InboundMessageID, nil
		}
	}
	return "", nil
}

func (e *Executor) fetchEmail(ctx context.Context, scope *model.Scope, p model.FetchEmailParams, log *logger.Logger) (*Outcome, error) {
	const op = "fetch_email"

	raws, err := e.transport.FetchRecent(ctx, email.FetchQuery{
		Mailbox:  e.cfg.Mailbox,
		From:     scope.Contractor.Email,
		MaxCount: p.MaxCount,
	})
	if err != nil {
		return nil, transportError(op, err)
	}

	result := model.FetchEmailResult{Emails: []model.FetchedEmail{}}
	out := &Outcome{}
	var (
		newest  *model.Offer
		settled []*model.InboundRecord
	)

	for _, in := range email.NormalizeAll(raws) {
		rec, msg, err := e.ingest(ctx, scope, &in)
		if err != nil {
			return out, err
		}
		if msg != nil {
			out.Appended = append(out.Appended, *msg)
			result.Emails = append(result.Emails, model.FetchedEmail{
				MessageID:  in.MessageID,
				Subject:    in.Subject,
				ReceivedAt: in.ReceivedAt,
				Preview:    preview(in.LatestReply),
			})
		} else if rec.Extracted {
			continue
		}

		offer, err := e.extractOffer(ctx, scope, &in, rec.LocalMessageID)
		if err != nil {
			log.Warn("offer extraction failed, retrying on next fetch", zap.String("message_id", in.MessageID), zap.Error(err))
			result.PendingExtractions++
			continue
		}
		settled = append(settled, rec)
		if offer != nil && (newest == nil || offer.NewerThan(newest)) {
			newest = offer
		}
	}

	if newest != nil {
		if err := e.store.CreateOffer(ctx, newest); err != nil {
			return out, fmt.Errorf("saving offer: %w", err)
		}
		result.OfferID = newest.ID
		log.Info("offer extracted", zap.String("offer_id", newest.ID), zap.Float64("total", newest.TotalPrice))
	}
	for _, rec := range settled {
		if rec.MessageID == "" {
			continue
		}
		rec.Extracted = true
		if err := e.store.SaveInbound(ctx, rec); err != nil {
			return out, fmt.Errorf("recording inbound email: %w", err)
		}
	}

	log.Info("emails fetched",
		zap.Int("fetched", len(raws)),
		zap.Int("new", len(result.Emails)),
		zap.Int("pending_extractions", result.PendingExtractions),
	)
	out.Result = result
	return out, nil
}

// ingest appends an inbound email to the conversation unless an earlier fetch
// already did. The returned message is nil when nothing was appended. Emails
// without a Message-ID cannot be deduped and are always appended.
func (e *Executor) ingest(ctx context.Context, scope *model.Scope, in *model.InboundEmail) (*model.InboundRecord, *model.Message, error) {
	rec := &model.InboundRecord{
		ConversationID: scope.ConversationID(),
		MessageID:      in.MessageID,
		SeenAt:         e.now(),
	}
	if in.MessageID != "" {
		found, err := e.store.GetInbound(ctx, scope.ConversationID(), in.MessageID)
		switch {
		case err == nil:
			_, err := e.store.GetMessage(ctx, found.LocalMessageID)
			if err == nil {
				return found, nil, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, nil, fmt.Errorf("fetching ingested email: %w", err)
			}
			// recorded but the append never landed
			rec = found
		case !errors.Is(err, store.ErrNotFound):
			return nil, nil, fmt.Errorf("looking up inbound email: %w", err)
		}
	}

	msg := &model.Message{
		ID:               newID(),
		ConversationID:   scope.ConversationID(),
		Sender:           model.SenderContractor,
		Kind:             model.MessageKindText,
		Content:          inboundContent(in),
		Attachments:      in.Attachments,
		InboundMessageID: in.MessageID,
		CreatedAt:        e.now(),
	}
	rec.LocalMessageID = msg.ID
	rec.Extracted = false
	if in.MessageID != "" {
		if err := e.store.SaveInbound(ctx, rec); err != nil {
			return nil, nil, fmt.Errorf("recording inbound email: %w", err)
		}
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("appending email: %w", err)
	}
	return rec, msg, nil
}

func (e *Executor) extractOffer(ctx context.Context, scope *model.Scope, in *model.InboundEmail, sourceID string) (*model.Offer, error) {
	x, err := e.extractor.Extract(ctx, scope, in)
	if err != nil || x == nil {
		return nil, err
	}
	offerDate := in.ReceivedAt
	if offerDate.IsZero() {
		offerDate = e.now()
	}
	return &model.Offer{
		ID:              newID(),
		ProjectID:       scope.Project.ID,
		ContractorID:    scope.Contractor.ID,
		TotalPrice:      x.TotalPrice,
		Currency:        strings.ToUpper(x.Currency),
		TimelineMinDays: x.TimelineMinDays,
		TimelineMaxDays: x.TimelineMaxDays,
		Scope:           x.Scope,
		Terms:           x.Terms,
		OfferDate:       offerDate.UTC(),
		SourceMessageID: sourceID,
		CreatedAt:       e.now(),
	}, nil
}

func (e *Executor) analyzeOffer(ctx context.Context, scope *model.Scope, p model.AnalyzeOfferParams, log *logger.Logger) (*Outcome, error) {
	const op = "analyze_offer"

	offer, err := e.store.GetOffer(ctx, p.OfferID)
	if err != nil {
		return nil, fmt.Errorf("fetching offer: %w", err)
	}
	previous, err := e.store.LatestAnalysis(ctx, offer.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("fetching previous analysis: %w", err)
	}

	ac, err := e.builder.AnalysisContext(ctx, scope, prompt.AnalysisRequest{
		Offers:   []model.Offer{*offer},
		Previous: previous,
		Focus:    p.Focus,
	})
	if err != nil {
		return nil, err
	}

	var out AnalysisOutput
	if _, err := e.llm.Structured(ctx, &llm.StructuredRequest{
		Model:             e.cfg.Model,
		SystemPrompt:      prompt.AnalysisSystemPrompt,
		UserPrompt:        ac.UserPrompt,
		SchemaName:        AnalysisSchemaName,
		SchemaDescription: "Record the analysis of the contractor offer",
		Schema:            llm.GenerateSchema[AnalysisOutput](),
	}, &out); err != nil {
		return nil, modelError(op, err)
	}
	if err := out.validate(op); err != nil {
		return nil, err
	}

	var since time.Time
	analysis := &model.Analysis{
		ID:                 newID(),
		OfferID:            offer.ID,
		ProjectID:          scope.Project.ID,
		ContractorID:       offer.ContractorID,
		ConversationID:     scope.ConversationID(),
		Summary:            out.Summary,
		Strengths:          out.Strengths,
		Concerns:           out.Concerns,
		MissingItems:       out.MissingItems,
		SuggestedQuestions: out.SuggestedQuestions,
		PriceAssessment:    out.PriceAssessment,
		Focus:              p.Focus,
		TranscriptEntries:  ac.Transcript.Entries(),
		CreatedAt:          e.now(),
	}
	if previous != nil {
		analysis.PreviousAnalysisID = previous.ID
		since = previous.CreatedAt
	}
	analysis.HasConversationUpdates = ac.Transcript.HasUpdatesSince(since)

	if err := e.store.CreateAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("saving analysis: %w", err)
	}
	log.Info("offer analyzed",
		zap.String("analysis_id", analysis.ID),
		zap.Bool("has_conversation_updates", analysis.HasConversationUpdates))
	return &Outcome{Result: model.AnalyzeOfferResult{AnalysisID: analysis.ID}}, nil
}

func (e *Executor) compareOffers(ctx context.Context, scope *model.Scope, p model.CompareOffersParams, log *logger.Logger) (*Outcome, error) {
	const op = "compare_offers"

	ids := append([]string{p.PrimaryOfferID}, p.ComparisonOfferIDs...)
	offers := make([]model.Offer, 0, len(ids))
	for _, id := range ids {
		o, err := e.store.GetOffer(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching offer %s: %w", id, err)
		}
		offers = append(offers, *o)
	}

	ac, err := e.builder.AnalysisContext(ctx, scope, prompt.AnalysisRequest{Offers: offers, Focus: p.Focus})
	if err != nil {
		return nil, err
	}

	var out ComparisonOutput
	if _, err := e.llm.Structured(ctx, &llm.StructuredRequest{
		Model:             e.cfg.Model,
		SystemPrompt:      prompt.ComparisonSystemPrompt,
		UserPrompt:        ac.UserPrompt,
		SchemaName:        ComparisonSchemaName,
		SchemaDescription: "Record the comparison of the contractor offers",
		Schema:            llm.GenerateSchema[ComparisonOutput](),
	}, &out); err != nil {
		return nil, modelError(op, err)
	}
	entries, err := out.entries(op, offers)
	if err != nil {
		return nil, err
	}

	comparison := &model.Comparison{
		ID:                     newID(),
		ProjectID:              scope.Project.ID,
		ConversationID:         scope.ConversationID(),
		PrimaryOfferID:         p.PrimaryOfferID,
		OfferIDs:               ids,
		Summary:                out.Summary,
		Entries:                entries,
		Recommendation:         out.Recommendation,
		Focus:                  p.Focus,
		HasConversationUpdates: ac.Transcript.HasUpdatesSince(time.Time{}),
		TranscriptEntries:      ac.Transcript.Entries(),
		CreatedAt:              e.now(),
	}
	if err := e.store.CreateComparison(ctx, comparison); err != nil {
		return nil, fmt.Errorf("saving comparison: %w", err)
	}
	log.Info("offers compared", zap.String("comparison_id", comparison.ID), zap.Int("offers", len(offers)))
	return &Outcome{Result: model.CompareOffersResult{ComparisonID: comparison.ID}}, nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(op, err)
	}
	if email.IsCredentialError(err) {
		return apperr.Credential(op, err)
	}
	return apperr.Transport(op, err)
}

func modelError(op string, err error) error {
	return apperr.Classify(op, err, apperr.Model)
}

func inboundContent(in *model.InboundEmail) string {
	body := in.LatestReply
	if body == "" {
		body = in.Body
	}
	if in.Subject == "" {
		return body
	}
	return "Subject: " + in.Subject + "\n\n" + body
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	r := []rune(s)
	return string(r[:previewLength]) + "…"
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
