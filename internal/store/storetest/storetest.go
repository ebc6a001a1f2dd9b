// Package storetest holds the behavioral specs every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/store"
)

// Fixture is a project with two contractors and one conversation.
type Fixture struct {
	Project      *model.Project
	Contractor   *model.Contractor
	Other        *model.Contractor
	Conversation *model.Conversation
}

// Seed creates a Fixture in s.
func Seed(ctx context.Context, s store.Store) *Fixture {
	now := time.Now().UTC().Truncate(time.Millisecond)
	f := &Fixture{
		Project: &model.Project{
			ID: newID(), Name: "Kitchen remodel", Address: "12 Elm St",
			HomeownerName: "Dana", HomeownerEmail: "dana@example.com", CreatedAt: now,
		},
	}
	f.Contractor = &model.Contractor{ID: newID(), ProjectID: f.Project.ID, Name: "Bob", Company: "Bob Builders", Email: "bob@builders.test", CreatedAt: now}
	f.Other = &model.Contractor{ID: newID(), ProjectID: f.Project.ID, Name: "Yara", Email: "yara@yards.test", CreatedAt: now.Add(time.Second)}
	f.Conversation = &model.Conversation{ID: newID(), ProjectID: f.Project.ID, ContractorID: f.Contractor.ID, CreatedAt: now, LastActivityAt: now}

	Expect(s.CreateProject(ctx, f.Project)).To(Succeed())
	Expect(s.CreateContractor(ctx, f.Contractor)).To(Succeed())
	Expect(s.CreateContractor(ctx, f.Other)).To(Succeed())
	Expect(s.CreateConversation(ctx, f.Conversation)).To(Succeed())
	return f
}

// TextMessage builds a plain message at the given time.
func TextMessage(convID string, sender model.Sender, content string, at time.Time) *model.Message {
	return &model.Message{
		ID: newID(), ConversationID: convID, Sender: sender,
		Kind: model.MessageKindText, Content: content, CreatedAt: at,
	}
}

// ActionMessage builds an action_request message owning a pending action.
func ActionMessage(convID string, params model.ActionParams, at time.Time) *model.Message {
	msgID := newID()
	return &model.Message{
		ID: msgID, ConversationID: convID, Sender: model.SenderAI,
		Kind: model.MessageKindActionRequest, Content: "I'd like to do something.", CreatedAt: at,
		Action: &model.Action{
			ID: newID(), MessageID: msgID, ConversationID: convID,
			Type: params.ActionType(), Params: params, Status: model.ActionStatusPending,
			Reasoning: "because", Summary: "do it", CreatedAt: at, UpdatedAt: at,
		},
	}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// DescribeStore registers the store contract tests. newStore is called before each one.
func DescribeStore(name string, newStore func() store.Store) bool {
	return Describe(name+" store contract", func() {
		var (
			ctx context.Context
			s   store.Store
			f   *Fixture
			t0  time.Time
		)

		BeforeEach(func() {
			ctx = context.Background()
			s = newStore()
			DeferCleanup(func() { _ = s.Close() })
			f = Seed(ctx, s)
			t0 = f.Conversation.CreatedAt
		})

		Describe("conversations", func() {
			It("allows one conversation per project and contractor", func() {
				dup := &model.Conversation{ID: newID(), ProjectID: f.Project.ID, ContractorID: f.Contractor.ID, CreatedAt: t0, LastActivityAt: t0}
				Expect(s.CreateConversation(ctx, dup)).To(MatchError(store.ErrDuplicate))
			})

			It("finds a conversation by participants", func() {
				got, err := s.GetConversationByParticipants(ctx, f.Project.ID, f.Contractor.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal(f.Conversation.ID))

				_, err = s.GetConversationByParticipants(ctx, f.Project.ID, f.Other.ID)
				Expect(err).To(MatchError(store.ErrNotFound))
			})

			It("lists a project's conversations", func() {
				other := &model.Conversation{ID: newID(), ProjectID: f.Project.ID, ContractorID: f.Other.ID, CreatedAt: t0, LastActivityAt: t0.Add(time.Minute)}
				Expect(s.CreateConversation(ctx, other)).To(Succeed())

				list, err := s.ListConversations(ctx, f.Project.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(list).To(HaveLen(2))
				Expect(list[0].ID).To(Equal(other.ID))
			})

			It("advances last activity on touch", func() {
				later := t0.Add(time.Hour)
				Expect(s.TouchConversation(ctx, f.Conversation.ID, later)).To(Succeed())
				got, err := s.GetConversation(ctx, f.Conversation.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.LastActivityAt).To(BeTemporally("==", later))

				Expect(s.TouchConversation(ctx, "missing", later)).To(MatchError(store.ErrNotFound))
			})
		})

		Describe("messages", func() {
			It("assigns increasing sequence numbers and keeps order", func() {
				for i := 0; i < 5; i++ {
					m := TextMessage(f.Conversation.ID, model.SenderHuman, fmt.Sprintf("m%d", i), t0.Add(time.Duration(i)*time.Second))
					Expect(s.AppendMessage(ctx, m)).To(Succeed())
					Expect(m.Sequence).To(Equal(uint64(i + 1)))
				}

				all, err := s.ListMessages(ctx, f.Conversation.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(5))
				Expect(all[0].Content).To(Equal("m0"))
				Expect(all[4].Content).To(Equal("m4"))

				recent, err := s.ListRecentMessages(ctx, f.Conversation.ID, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(recent).To(HaveLen(2))
				Expect(recent[0].Content).To(Equal("m3"))
				Expect(recent[1].Content).To(Equal("m4"))

				conv, err := s.GetConversation(ctx, f.Conversation.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(conv.MessageCount).To(Equal(5))
			})

			It("rejects messages for unknown conversations", func() {
				m := TextMessage("missing", model.SenderHuman, "hi", t0)
				Expect(s.AppendMessage(ctx, m)).To(MatchError(store.ErrNotFound))
			})

			It("stores the embedded action with the message", func() {
				m := ActionMessage(f.Conversation.ID, model.SendEmailParams{Subject: "Warranty", Body: "<p>Hi</p>"}, t0)
				Expect(s.AppendMessage(ctx, m)).To(Succeed())

				got, err := s.GetMessage(ctx, m.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Action).NotTo(BeNil())
				Expect(got.Action.ID).To(Equal(m.Action.ID))
				Expect(got.Action.Params).To(Equal(model.SendEmailParams{Subject: "Warranty", Body: "<p>Hi</p>"}))

				a, err := s.GetAction(ctx, m.Action.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(a.MessageID).To(Equal(m.ID))
				Expect(a.Status).To(Equal(model.ActionStatusPending))
			})

			It("returns the current action state with listed messages", func() {
				m := ActionMessage(f.Conversation.ID, model.FetchEmailParams{MaxCount: 3}, t0)
				Expect(s.AppendMessage(ctx, m)).To(Succeed())
				_, err := s.TransitionAction(ctx, m.Action.ID, model.ActionStatusPending, func(a *model.Action) error {
					a.Status = model.ActionStatusRejected
					a.RejectionSummary = "Declined: fetch email"
					return nil
				})
				Expect(err).NotTo(HaveOccurred())

				all, err := s.ListMessages(ctx, f.Conversation.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(all[0].Content).To(Equal("I'd like to do something."))
				Expect(all[0].Action.Status).To(Equal(model.ActionStatusRejected))
				Expect(all[0].DisplayContent()).To(Equal("Declined: fetch email"))
			})
		})

		Describe("action transitions", func() {
			var m *model.Message

			BeforeEach(func() {
				m = ActionMessage(f.Conversation.ID, model.AnalyzeOfferParams{OfferID: "o1", ContractorID: f.Contractor.ID}, t0)
				Expect(s.AppendMessage(ctx, m)).To(Succeed())
			})

			It("applies an update when the expected status matches", func() {
				a, err := s.TransitionAction(ctx, m.Action.ID, model.ActionStatusPending, func(a *model.Action) error {
					a.Status = model.ActionStatusApproved
					a.Params = model.AnalyzeOfferParams{OfferID: "o1", ContractorID: f.Contractor.ID, Focus: "warranty"}
					return nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(a.Status).To(Equal(model.ActionStatusApproved))

				a, err = s.TransitionAction(ctx, m.Action.ID, model.ActionStatusApproved, func(a *model.Action) error {
					a.Status = model.ActionStatusExecuted
					a.Result = model.AnalyzeOfferResult{AnalysisID: "an1"}
					a.Attempts++
					return nil
				})
				Expect(err).NotTo(HaveOccurred())

				got, err := s.GetAction(ctx, m.Action.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Status).To(Equal(model.ActionStatusExecuted))
				Expect(got.Result).To(Equal(model.AnalyzeOfferResult{AnalysisID: "an1"}))
				Expect(got.Params.(model.AnalyzeOfferParams).Focus).To(Equal("warranty"))
				Expect(got.Attempts).To(Equal(1))
			})

			It("refuses a stale expected status", func() {
				_, err := s.TransitionAction(ctx, m.Action.ID, model.ActionStatusApproved, func(a *model.Action) error {
					a.Status = model.ActionStatusExecuted
					return nil
				})
				Expect(err).To(MatchError(store.ErrStatusConflict))
			})

			It("refuses an illegal edge", func() {
				_, err := s.TransitionAction(ctx, m.Action.ID, model.ActionStatusPending, func(a *model.Action) error {
					a.Status = model.ActionStatusExecuted
					return nil
				})
				var te *store.TransitionError
				Expect(errors.As(err, &te)).To(BeTrue())

				got, err := s.GetAction(ctx, m.Action.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Status).To(Equal(model.ActionStatusPending))
			})

			It("keeps the stored action when the update fails", func() {
				boom := errors.New("boom")
				_, err := s.TransitionAction(ctx, m.Action.ID, model.ActionStatusPending, func(a *model.Action) error {
					a.Status = model.ActionStatusApproved
					return boom
				})
				Expect(err).To(MatchError(boom))

				got, err := s.GetAction(ctx, m.Action.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Status).To(Equal(model.ActionStatusPending))
			})

			It("lists actions by status", func() {
				list, err := s.ListActionsByStatus(ctx, model.ActionStatusPending, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(list).To(HaveLen(1))
				Expect(list[0].ID).To(Equal(m.Action.ID))

				list, err = s.ListActionsByStatus(ctx, model.ActionStatusFailed, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(list).To(BeEmpty())
			})

			It("reports missing actions", func() {
				_, err := s.GetAction(ctx, "missing")
				Expect(err).To(MatchError(store.ErrNotFound))
			})
		})

		Describe("offers", func() {
			It("selects the current offer by offer date", func() {
				older := &model.Offer{ID: newID(), ProjectID: f.Project.ID, ContractorID: f.Contractor.ID, TotalPrice: 20000, Currency: "USD", Scope: "v1", OfferDate: t0, CreatedAt: t0}
				newer := &model.Offer{ID: newID(), ProjectID: f.Project.ID, ContractorID: f.Contractor.ID, TotalPrice: 18400, Currency: "USD", Scope: "v2", OfferDate: t0.Add(24 * time.Hour), CreatedAt: t0}
				other := &model.Offer{ID: newID(), ProjectID: f.Project.ID, ContractorID: f.Other.ID, TotalPrice: 21000, Currency: "USD", Scope: "y1", OfferDate: t0, CreatedAt: t0}
				for _, o := range []*model.Offer{older, newer, other} {
					Expect(s.CreateOffer(ctx, o)).To(Succeed())
				}

				cur, err := s.LatestOffer(ctx, f.Project.ID, f.Contractor.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(cur.ID).To(Equal(newer.ID))

				all, err := s.LatestOffers(ctx, f.Project.ID)
				Expect(err).NotTo(HaveOccurred())
				ids := []string{}
				for _, o := range all {
					ids = append(ids, o.ID)
				}
				Expect(ids).To(ConsistOf(newer.ID, other.ID))
			})

			It("reports contractors without offers", func() {
				_, err := s.LatestOffer(ctx, f.Project.ID, f.Other.ID)
				Expect(err).To(MatchError(store.ErrNotFound))
			})
		})

		Describe("analyses", func() {
			It("keeps every analysis and lists newest first", func() {
				first := &model.Analysis{ID: newID(), OfferID: "o1", ProjectID: f.Project.ID, ContractorID: f.Contractor.ID, ConversationID: f.Conversation.ID, Summary: "first", Concerns: []string{"no warranty"}, CreatedAt: t0}
				second := &model.Analysis{ID: newID(), OfferID: "o1", ProjectID: f.Project.ID, ContractorID: f.Contractor.ID, ConversationID: f.Conversation.ID, Summary: "second", HasConversationUpdates: true, PreviousAnalysisID: first.ID, CreatedAt: t0.Add(time.Minute)}
				Expect(s.CreateAnalysis(ctx, first)).To(Succeed())
				Expect(s.CreateAnalysis(ctx, second)).To(Succeed())

				list, err := s.ListAnalyses(ctx, "o1")
				Expect(err).NotTo(HaveOccurred())
				Expect(list).To(HaveLen(2))
				Expect(list[0].ID).To(Equal(second.ID))

				latest, err := s.LatestAnalysis(ctx, "o1")
				Expect(err).NotTo(HaveOccurred())
				Expect(latest.PreviousAnalysisID).To(Equal(first.ID))

				got, err := s.GetAnalysis(ctx, first.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Summary).To(Equal("first"))
				Expect(got.Concerns).To(Equal([]string{"no warranty"}))

				_, err = s.LatestAnalysis(ctx, "none")
				Expect(err).To(MatchError(store.ErrNotFound))
			})

			It("stores comparisons", func() {
				c := &model.Comparison{
					ID: newID(), ProjectID: f.Project.ID, ConversationID: f.Conversation.ID,
					PrimaryOfferID: "o1", OfferIDs: []string{"o1", "o2"}, Summary: "close",
					Entries:   []model.ComparisonEntry{{OfferID: "o1", ContractorID: f.Contractor.ID, Rank: 1, Strengths: []string{"price"}}},
					CreatedAt: t0,
				}
				Expect(s.CreateComparison(ctx, c)).To(Succeed())

				got, err := s.GetComparison(ctx, c.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.OfferIDs).To(Equal([]string{"o1", "o2"}))
				Expect(got.Entries).To(HaveLen(1))
				Expect(got.Entries[0].Strengths).To(Equal([]string{"price"}))
			})
		})

		Describe("inbound emails", func() {
			It("returns ErrNotFound for an email never ingested", func() {
				_, err := s.GetInbound(ctx, f.Conversation.ID, "quote-1@builders.test")
				Expect(err).To(MatchError(store.ErrNotFound))
			})

			It("saves a record and replaces it on the next save", func() {
				rec := &model.InboundRecord{
					ConversationID: f.Conversation.ID,
					MessageID:      "quote-1@builders.test",
					LocalMessageID: "m-local",
					SeenAt:         f.Conversation.CreatedAt,
				}
				Expect(s.SaveInbound(ctx, rec)).To(Succeed())

				got, err := s.GetInbound(ctx, f.Conversation.ID, "quote-1@builders.test")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.LocalMessageID).To(Equal("m-local"))
				Expect(got.Extracted).To(BeFalse())

				rec.Extracted = true
				Expect(s.SaveInbound(ctx, rec)).To(Succeed())
				got, err = s.GetInbound(ctx, f.Conversation.ID, "quote-1@builders.test")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Extracted).To(BeTrue())
				Expect(got.SeenAt).To(BeTemporally("~", f.Conversation.CreatedAt, time.Second))
			})
		})
	})
}
