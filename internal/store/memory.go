package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

// Memory is an in-process Store. Reads return copies; nothing handed out
// aliases stored state.
type Memory struct {
	mu sync.RWMutex

	projects      map[string]*model.Project
	contractors   map[string]*model.Contractor
	conversations map[string]*model.Conversation
	byParticipant map[participants]string
	messages      map[string]*model.Message
	convMessages  map[string][]string
	actions       map[string]*model.Action
	offers        map[string]*model.Offer
	analyses      map[string]*model.Analysis
	comparisons   map[string]*model.Comparison
	inbound       map[string]map[string]*model.InboundRecord
}

type participants struct {
	projectID    string
	contractorID string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		projects:      make(map[string]*model.Project),
		contractors:   make(map[string]*model.Contractor),
		conversations: make(map[string]*model.Conversation),
		byParticipant: make(map[participants]string),
		messages:      make(map[string]*model.Message),
		convMessages:  make(map[string][]string),
		actions:       make(map[string]*model.Action),
		offers:        make(map[string]*model.Offer),
		analyses:      make(map[string]*model.Analysis),
		comparisons:   make(map[string]*model.Comparison),
		inbound:       make(map[string]map[string]*model.InboundRecord),
	}
}

var _ Store = (*Memory)(nil)

func (s *Memory) Ping(context.Context) error { return nil }
func (s *Memory) Close() error               { return nil }

// CreateProject stores a project.
func (s *Memory) CreateProject(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return ErrDuplicate
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

// GetProject retrieves a project by ID.
func (s *Memory) GetProject(_ context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.projects[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// CreateContractor stores a contractor.
func (s *Memory) CreateContractor(_ context.Context, c *model.Contractor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contractors[c.ID]; exists {
		return ErrDuplicate
	}
	cp := *c
	s.contractors[c.ID] = &cp
	return nil
}

// GetContractor retrieves a contractor by ID.
func (s *Memory) GetContractor(_ context.Context, id string) (*model.Contractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, exists := s.contractors[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListContractors returns a project's contractors ordered by creation.
func (s *Memory) ListContractors(_ context.Context, projectID string) ([]model.Contractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Contractor
	for _, c := range s.contractors {
		if c.ProjectID == projectID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CreateConversation stores a conversation, enforcing one per participant pair.
func (s *Memory) CreateConversation(_ context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participants{c.ProjectID, c.ContractorID}
	if _, exists := s.byParticipant[key]; exists {
		return ErrDuplicate
	}
	if _, exists := s.conversations[c.ID]; exists {
		return ErrDuplicate
	}
	cp := *c
	cp.Messages = nil
	s.conversations[c.ID] = &cp
	s.byParticipant[key] = c.ID
	return nil
}

// GetConversation retrieves a conversation by ID, without messages.
func (s *Memory) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationLocked(id)
}

func (s *Memory) conversationLocked(id string) (*model.Conversation, error) {
	c, exists := s.conversations[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *c
	cp.MessageCount = len(s.convMessages[id])
	return &cp, nil
}

// GetConversationByParticipants finds the conversation for a project and contractor.
func (s *Memory) GetConversationByParticipants(_ context.Context, projectID, contractorID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, exists := s.byParticipant[participants{projectID, contractorID}]
	if !exists {
		return nil, ErrNotFound
	}
	return s.conversationLocked(id)
}

// ListConversations returns a project's conversations, most recently active first.
func (s *Memory) ListConversations(_ context.Context, projectID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Conversation
	for id, c := range s.conversations {
		if c.ProjectID == projectID {
			cp, _ := s.conversationLocked(id)
			out = append(out, *cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

// TouchConversation advances the last-activity timestamp.
func (s *Memory) TouchConversation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, exists := s.conversations[id]
	if !exists {
		return ErrNotFound
	}
	if at.After(c.LastActivityAt) {
		c.LastActivityAt = at
	}
	return nil
}

// AppendMessage stores a message and its embedded action together.
func (s *Memory) AppendMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[m.ConversationID]
	if !exists {
		return ErrNotFound
	}
	if _, exists := s.messages[m.ID]; exists {
		return ErrDuplicate
	}
	if m.Action != nil {
		if _, exists := s.actions[m.Action.ID]; exists {
			return ErrDuplicate
		}
	}

	m.Sequence = uint64(len(s.convMessages[m.ConversationID]) + 1)
	cp := *m
	cp.Attachments = append([]model.Attachment(nil), m.Attachments...)
	cp.Action = nil
	if m.Action != nil {
		a := cloneAction(m.Action)
		s.actions[a.ID] = a
		cp.ActionRef = a.ID
	}
	s.messages[m.ID] = &cp
	s.convMessages[m.ConversationID] = append(s.convMessages[m.ConversationID], m.ID)
	if m.CreatedAt.After(conv.LastActivityAt) {
		conv.LastActivityAt = m.CreatedAt
	}
	return nil
}

// GetMessage retrieves a message with its current action state.
func (s *Memory) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, exists := s.messages[id]
	if !exists {
		return nil, ErrNotFound
	}
	out := s.hydrate(m)
	return &out, nil
}

// ListMessages returns all of a conversation's messages in order.
func (s *Memory) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.ListRecentMessages(ctx, conversationID, 0)
}

// ListRecentMessages returns the last n messages in order; n <= 0 means all.
func (s *Memory) ListRecentMessages(_ context.Context, conversationID string, n int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, exists := s.conversations[conversationID]; !exists {
		return nil, ErrNotFound
	}
	ids := s.convMessages[conversationID]
	if n > 0 && len(ids) > n {
		ids = ids[len(ids)-n:]
	}
	out := make([]model.Message, len(ids))
	for i, id := range ids {
		out[i] = s.hydrate(s.messages[id])
	}
	return out, nil
}

// hydrate copies a stored message and attaches its action. action_executed
// messages keep ActionRef but carry no embedded action.
func (s *Memory) hydrate(m *model.Message) model.Message {
	out := *m
	out.Attachments = append([]model.Attachment(nil), m.Attachments...)
	if m.Kind == model.MessageKindActionRequest {
		if a, ok := s.actions[m.ActionRef]; ok {
			out.Action = cloneAction(a)
			out.ActionRef = ""
		}
	}
	return out
}

// GetAction retrieves an action by ID.
func (s *Memory) GetAction(_ context.Context, id string) (*model.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, exists := s.actions[id]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneAction(a), nil
}

// TransitionAction applies update if the stored status equals expected.
func (s *Memory) TransitionAction(_ context.Context, id string, expected model.ActionStatus, update func(*model.Action) error) (*model.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.actions[id]
	if !exists {
		return nil, ErrNotFound
	}
	if stored.Status != expected {
		return nil, ErrStatusConflict
	}

	next := cloneAction(stored)
	if err := update(next); err != nil {
		return nil, err
	}
	if err := CheckTransition(expected, next); err != nil {
		return nil, err
	}
	next.ID = stored.ID
	next.MessageID = stored.MessageID
	next.ConversationID = stored.ConversationID
	next.Type = stored.Type
	next.UpdatedAt = time.Now().UTC()

	s.actions[id] = next
	return cloneAction(next), nil
}

// ListActionsByStatus returns actions in a status, oldest first.
func (s *Memory) ListActionsByStatus(_ context.Context, status model.ActionStatus, limit int) ([]model.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Action
	for _, a := range s.actions {
		if a.Status == status {
			out = append(out, *cloneAction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateOffer stores an offer.
func (s *Memory) CreateOffer(_ context.Context, o *model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.offers[o.ID]; exists {
		return ErrDuplicate
	}
	cp := *o
	s.offers[o.ID] = &cp
	return nil
}

// GetOffer retrieves an offer by ID.
func (s *Memory) GetOffer(_ context.Context, id string) (*model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, exists := s.offers[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// LatestOffer returns the contractor's most recent offer.
func (s *Memory) LatestOffer(_ context.Context, projectID, contractorID string) (*model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.Offer
	for _, o := range s.offers {
		if o.ProjectID != projectID || o.ContractorID != contractorID {
			continue
		}
		if latest == nil || o.NewerThan(latest) {
			latest = o
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

// LatestOffers returns the most recent offer of every contractor in a project.
func (s *Memory) LatestOffers(_ context.Context, projectID string) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]*model.Offer)
	for _, o := range s.offers {
		if o.ProjectID != projectID {
			continue
		}
		if cur, ok := latest[o.ContractorID]; !ok || o.NewerThan(cur) {
			latest[o.ContractorID] = o
		}
	}
	out := make([]model.Offer, 0, len(latest))
	for _, o := range latest {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractorID < out[j].ContractorID })
	return out, nil
}

// CreateAnalysis stores an analysis.
func (s *Memory) CreateAnalysis(_ context.Context, a *model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.analyses[a.ID]; exists {
		return ErrDuplicate
	}
	s.analyses[a.ID] = cloneAnalysis(a)
	return nil
}

// GetAnalysis retrieves an analysis by ID.
func (s *Memory) GetAnalysis(_ context.Context, id string) (*model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, exists := s.analyses[id]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneAnalysis(a), nil
}

// ListAnalyses returns the offer's analyses, newest first.
func (s *Memory) ListAnalyses(_ context.Context, offerID string) ([]model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Analysis
	for _, a := range s.analyses {
		if a.OfferID == offerID {
			out = append(out, *cloneAnalysis(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// LatestAnalysis returns the offer's newest analysis.
func (s *Memory) LatestAnalysis(ctx context.Context, offerID string) (*model.Analysis, error) {
	list, err := s.ListAnalyses(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// CreateComparison stores a comparison.
func (s *Memory) CreateComparison(_ context.Context, c *model.Comparison) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.comparisons[c.ID]; exists {
		return ErrDuplicate
	}
	s.comparisons[c.ID] = cloneComparison(c)
	return nil
}

// GetComparison retrieves a comparison by ID.
func (s *Memory) GetComparison(_ context.Context, id string) (*model.Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, exists := s.comparisons[id]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneComparison(c), nil
}

// GetInbound returns the ingestion record of an inbound email.
func (s *Memory) GetInbound(_ context.Context, conversationID, messageID string) (*model.InboundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.inbound[conversationID][messageID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// SaveInbound creates or replaces an ingestion record.
func (s *Memory) SaveInbound(_ context.Context, rec *model.InboundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[rec.ConversationID]; !ok {
		return ErrNotFound
	}
	byID, ok := s.inbound[rec.ConversationID]
	if !ok {
		byID = make(map[string]*model.InboundRecord)
		s.inbound[rec.ConversationID] = byID
	}
	cp := *rec
	byID[rec.MessageID] = &cp
	return nil
}

func cloneAction(a *model.Action) *model.Action {
	cp := *a
	if p, ok := a.Params.(model.CompareOffersParams); ok {
		p.ComparisonOfferIDs = append([]string(nil), p.ComparisonOfferIDs...)
		cp.Params = p
	}
	if r, ok := a.Result.(model.FetchEmailResult); ok {
		r.Emails = append([]model.FetchedEmail(nil), r.Emails...)
		cp.Result = r
	}
	if a.Failure != nil {
		f := *a.Failure
		cp.Failure = &f
	}
	return &cp
}

func cloneAnalysis(a *model.Analysis) *model.Analysis {
	cp := *a
	cp.Strengths = append([]string(nil), a.Strengths...)
	cp.Concerns = append([]string(nil), a.Concerns...)
	cp.MissingItems = append([]string(nil), a.MissingItems...)
	cp.SuggestedQuestions = append([]string(nil), a.SuggestedQuestions...)
	return &cp
}

func cloneComparison(c *model.Comparison) *model.Comparison {
	cp := *c
	cp.OfferIDs = append([]string(nil), c.OfferIDs...)
	cp.Entries = make([]model.ComparisonEntry, len(c.Entries))
	for i, e := range c.Entries {
		e.Strengths = append([]string(nil), e.Strengths...)
		e.Weaknesses = append([]string(nil), e.Weaknesses...)
		cp.Entries[i] = e
	}
	return &cp
}
