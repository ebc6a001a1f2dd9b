package action_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/action"
	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	"github.com/capitalize-ai/renovation-planner/internal/email"
	"github.com/capitalize-ai/renovation-planner/internal/email/emailtest"
	"github.com/capitalize-ai/renovation-planner/internal/llm/llmtest"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/prompt"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/internal/store/storetest"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

// offerlessStore fails every offer write.
type offerlessStore struct {
	*store.Memory
}

func (offerlessStore) CreateOffer(context.Context, *model.Offer) error {
	return errors.New("disk full")
}

var _ = Describe("Executor", func() {
	var (
		ctx       context.Context
		s         *store.Memory
		f         *storetest.Fixture
		scope     *model.Scope
		client    *llmtest.Client
		transport *emailtest.Transport
		exec      *action.Executor
		clock     time.Time
		mine      *model.Offer
		theirs    *model.Offer
	)

	t0 := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	tick := func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	newAction := func(params model.ActionParams) *model.Action {
		return &model.Action{
			ID: "act-1", ConversationID: f.Conversation.ID, Type: params.ActionType(), Params: params,
			Status: model.ActionStatusApproved, Reasoning: "needed", Summary: "do it",
		}
	}

	appendText := func(sender model.Sender, text string) {
		Expect(s.AppendMessage(ctx, storetest.TextMessage(f.Conversation.ID, sender, text, tick()))).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		clock = t0
		s = store.NewMemory()
		f = storetest.Seed(ctx, s)
		scope = &model.Scope{Project: f.Project, Contractor: f.Contractor, Conversation: f.Conversation}
		client = llmtest.New()
		transport = emailtest.New()

		mine = &model.Offer{ID: offerA, ProjectID: f.Project.ID, ContractorID: f.Contractor.ID, TotalPrice: 18000, Currency: "USD", Scope: "Cabinets", OfferDate: t0}
		theirs = &model.Offer{ID: offerB, ProjectID: f.Project.ID, ContractorID: f.Other.ID, TotalPrice: 21000, Currency: "USD", Scope: "Full kitchen", OfferDate: t0}
		Expect(s.CreateOffer(ctx, mine)).To(Succeed())
		Expect(s.CreateOffer(ctx, theirs)).To(Succeed())

		exec = action.NewExecutor(s, transport, client, prompt.NewBuilder(s), action.ExecutorConfig{
			Timeout: 200 * time.Millisecond, From: "dana@example.com",
		}, logger.NewNop()).WithClock(tick)
	})

	Describe("send_email", func() {
		It("sends to the scope contractor and returns the receipt", func() {
			out, err := exec.Execute(ctx, scope, newAction(model.SendEmailParams{
				Subject: "Warranty", Body: "<p>What warranty comes with offer:" + offerA + "?</p>",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(transport.Sent).To(HaveLen(1))
			sent := transport.Sent[0]
			Expect(sent.To).To(Equal("bob@builders.test"))
			Expect(sent.HTMLBody).NotTo(ContainSubstring("offer:"))
			Expect(sent.TextBody).To(ContainSubstring("What warranty comes with"))

			result := out.Result.(model.SendEmailResult)
			Expect(result.MessageID).To(Equal("sent-1@test"))
			Expect(result.To).To(Equal("bob@builders.test"))
		})

		It("replies in the thread of the latest contractor email", func() {
			msg := storetest.TextMessage(f.Conversation.ID, model.SenderContractor, "Quote attached", tick())
			msg.InboundMessageID = "quote-1@builders.test"
			Expect(s.AppendMessage(ctx, msg)).To(Succeed())

			_, err := exec.Execute(ctx, scope, newAction(model.SendEmailParams{Subject: "Re: Quote", Body: "<p>Thanks</p>"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(transport.Sent[0].InReplyTo).To(Equal("quote-1@builders.test"))
		})

		It("distinguishes credential failures from transport failures", func() {
			transport.SendErr = fmt.Errorf("smtp send: %w", email.ErrCredentials)
			_, err := exec.Execute(ctx, scope, newAction(model.SendEmailParams{Subject: "s", Body: "b"}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindCredential))
			Expect(apperr.IsRetryable(err)).To(BeTrue())

			transport.SendErr = errors.New("connection reset")
			_, err = exec.Execute(ctx, scope, newAction(model.SendEmailParams{Subject: "s", Body: "b"}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindTransport))
		})

		It("fails with a timeout when the transport hangs", func() {
			transport.Block = true
			_, err := exec.Execute(ctx, scope, newAction(model.SendEmailParams{Subject: "s", Body: "b"}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindTimeout))
		})

		It("refuses incomplete parameters", func() {
			_, err := exec.Execute(ctx, scope, newAction(model.SendEmailParams{Subject: "s"}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindValidation))
			Expect(transport.SentCount()).To(BeZero())
		})
	})

	Describe("fetch_email", func() {
		inbound := func(id, subject, body string, at time.Time) email.RawEmail {
			return email.RawEmail{MessageID: id, From: "bob@builders.test", Subject: subject, TextBody: body, Date: at}
		}

		It("appends a non-offer email and succeeds without an offer", func() {
			transport.Inbox = []email.RawEmail{inbound("m1@b", "Schedule", "Can we meet Tuesday?", t0)}
			client.QueueOutput(action.ExtractionSchemaName, action.ExtractedOffer{IsOffer: false})

			out, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).NotTo(HaveOccurred())
			result := out.Result.(model.FetchEmailResult)
			Expect(result.OfferID).To(BeEmpty())
			Expect(result.Emails).To(HaveLen(1))
			Expect(result.Emails[0].Preview).To(Equal("Can we meet Tuesday?"))

			Expect(out.Appended).To(HaveLen(1))
			msgs, err := s.ListMessages(ctx, f.Conversation.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Sender).To(Equal(model.SenderContractor))
			Expect(msgs[0].Content).To(Equal("Subject: Schedule\n\nCan we meet Tuesday?"))
			Expect(transport.Queries[0].From).To(Equal("bob@builders.test"))
		})

		It("treats an empty inbox as a successful no-op", func() {
			out, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 3}))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Result.(model.FetchEmailResult).Emails).To(BeEmpty())
		})

		It("does not import the same email twice", func() {
			transport.Inbox = []email.RawEmail{inbound("m1@b", "Hi", "Hello", t0)}
			client.QueueOutput(action.ExtractionSchemaName, action.ExtractedOffer{})

			_, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).NotTo(HaveOccurred())
			out, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Result.(model.FetchEmailResult).Emails).To(BeEmpty())

			msgs, _ := s.ListMessages(ctx, f.Conversation.ID)
			Expect(msgs).To(HaveLen(1))
		})

		It("records a detected offer as the contractor's new current offer", func() {
			transport.Inbox = []email.RawEmail{inbound("q2@b", "Revised quote", "New total is $17,500, 4 to 6 weeks.", t0.Add(24*time.Hour))}
			client.QueueOutput(action.ExtractionSchemaName, action.ExtractedOffer{
				IsOffer: true, TotalPrice: 17500, Currency: "usd", TimelineMinDays: 28, TimelineMaxDays: 42, Scope: "Cabinets and counters",
			})

			out, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 1}))
			Expect(err).NotTo(HaveOccurred())
			offerID := out.Result.(model.FetchEmailResult).OfferID
			Expect(offerID).NotTo(BeEmpty())

			latest, err := s.LatestOffer(ctx, f.Project.ID, f.Contractor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.ID).To(Equal(offerID))
			Expect(latest.Currency).To(Equal("USD"))
			Expect(latest.SourceMessageID).To(Equal(out.Appended[0].ID))
		})

		It("keeps going when extraction fails", func() {
			transport.Inbox = []email.RawEmail{inbound("m1@b", "Hi", "Hello", t0)}
			client.StructuredErr = errors.New("overloaded")

			out, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Appended).To(HaveLen(1))
			Expect(out.Result.(model.FetchEmailResult).PendingExtractions).To(Equal(1))
		})

		It("detects the offer on the next fetch when extraction failed", func() {
			transport.Inbox = []email.RawEmail{inbound("q3@b", "Quote", "Total is $16,000, three weeks.", t0.Add(time.Hour))}
			client.StructuredErr = errors.New("model overloaded")

			first, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Appended).To(HaveLen(1))
			latest, err := s.LatestOffer(ctx, f.Project.ID, f.Contractor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.ID).To(Equal(offerA))

			client.StructuredErr = nil
			client.QueueOutput(action.ExtractionSchemaName, action.ExtractedOffer{
				IsOffer: true, TotalPrice: 16000, Currency: "USD", Scope: "Cabinets",
			})

			second, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).NotTo(HaveOccurred())
			result := second.Result.(model.FetchEmailResult)
			Expect(second.Appended).To(BeEmpty())
			Expect(result.Emails).To(BeEmpty())
			Expect(result.PendingExtractions).To(BeZero())
			Expect(result.OfferID).NotTo(BeEmpty())

			latest, err = s.LatestOffer(ctx, f.Project.ID, f.Contractor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(latest.ID).To(Equal(result.OfferID))
			Expect(latest.SourceMessageID).To(Equal(first.Appended[0].ID))

			msgs, err := s.ListMessages(ctx, f.Conversation.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))

			_, err = exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).NotTo(HaveOccurred())
			Expect(client.StructuredCount(action.ExtractionSchemaName)).To(Equal(2))
		})

		It("reports appended emails when the fetch fails and settles them on retry", func() {
			transport.Inbox = []email.RawEmail{inbound("q4@b", "Quote", "Total is $15,000.", t0.Add(time.Hour))}
			client.QueueOutput(action.ExtractionSchemaName, action.ExtractedOffer{IsOffer: true, TotalPrice: 15000, Currency: "USD"})

			broken := action.NewExecutor(&offerlessStore{Memory: s}, transport, client, prompt.NewBuilder(s), action.ExecutorConfig{
				Timeout: 200 * time.Millisecond, From: "dana@example.com",
			}, logger.NewNop()).WithClock(tick)
			out, err := broken.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).To(HaveOccurred())
			Expect(out).NotTo(BeNil())
			Expect(out.Appended).To(HaveLen(1))

			client.QueueOutput(action.ExtractionSchemaName, action.ExtractedOffer{IsOffer: true, TotalPrice: 15000, Currency: "USD"})
			retry, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(err).NotTo(HaveOccurred())
			Expect(retry.Appended).To(BeEmpty())
			offerID := retry.Result.(model.FetchEmailResult).OfferID
			Expect(offerID).NotTo(BeEmpty())

			saved, err := s.GetOffer(ctx, offerID)
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.SourceMessageID).To(Equal(out.Appended[0].ID))
		})

		It("fails on credential errors", func() {
			transport.FetchErr = fmt.Errorf("imap login: %w", email.ErrCredentials)
			_, err := exec.Execute(ctx, scope, newAction(model.FetchEmailParams{MaxCount: 5}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindCredential))
		})
	})

	Describe("analyze_offer", func() {
		analyze := func() *model.Analysis {
			client.QueueOutput(action.AnalysisSchemaName, action.AnalysisOutput{Summary: "Reasonable", Concerns: []string{"No warranty"}})
			out, err := exec.Execute(ctx, scope, newAction(model.AnalyzeOfferParams{OfferID: offerA, ContractorID: f.Contractor.ID}))
			Expect(err).NotTo(HaveOccurred())
			a, err := s.GetAnalysis(ctx, out.Result.(model.AnalyzeOfferResult).AnalysisID)
			Expect(err).NotTo(HaveOccurred())
			return a
		}

		It("creates a new analysis on every run and leaves earlier ones intact", func() {
			appendText(model.SenderHuman, "Is the warranty included?")
			first := analyze()
			Expect(first.HasConversationUpdates).To(BeTrue())
			Expect(first.TranscriptEntries).To(Equal(1))
			Expect(first.PreviousAnalysisID).To(BeEmpty())

			appendText(model.SenderContractor, "Two years on labor.")
			second := analyze()
			Expect(second.ID).NotTo(Equal(first.ID))
			Expect(second.PreviousAnalysisID).To(Equal(first.ID))
			Expect(second.HasConversationUpdates).To(BeTrue())
			Expect(second.TranscriptEntries).To(Equal(2))

			again, err := s.GetAnalysis(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(first))

			history, err := s.ListAnalyses(ctx, offerA)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
		})

		It("records when nothing new was said since the previous analysis", func() {
			appendText(model.SenderHuman, "Is the warranty included?")
			analyze()
			Expect(analyze().HasConversationUpdates).To(BeFalse())
		})

		It("hands the transcript and the previous analysis to the model", func() {
			appendText(model.SenderHuman, "Is the warranty included?")
			analyze()
			analyze()
			req := client.StructuredCalls[1]
			Expect(req.SystemPrompt).To(Equal(prompt.AnalysisSystemPrompt))
			Expect(req.UserPrompt).To(ContainSubstring("Homeowner: Is the warranty included?"))
			Expect(req.UserPrompt).To(ContainSubstring("# Previous analysis"))
		})

		It("rejects another contractor's offer", func() {
			_, err := exec.Execute(ctx, scope, newAction(model.AnalyzeOfferParams{OfferID: offerB, ContractorID: f.Contractor.ID}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindValidation))
			Expect(client.StructuredCalls).To(BeEmpty())
		})

		It("fails on malformed output", func() {
			client.QueueOutput(action.AnalysisSchemaName, action.AnalysisOutput{})
			_, err := exec.Execute(ctx, scope, newAction(model.AnalyzeOfferParams{OfferID: offerA, ContractorID: f.Contractor.ID}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindModel))
		})

		It("fails with a timeout when the model hangs", func() {
			client.Block = true
			_, err := exec.Execute(ctx, scope, newAction(model.AnalyzeOfferParams{OfferID: offerA, ContractorID: f.Contractor.ID}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindTimeout))
		})
	})

	Describe("compare_offers", func() {
		It("persists a ranked comparison", func() {
			client.QueueOutput(action.ComparisonSchemaName, action.ComparisonOutput{
				Summary: "A is cheaper",
				Rankings: []action.RankingOutput{
					{OfferID: "offer:" + offerA, Rank: 1},
					{OfferID: "offer:" + offerB, Rank: 2},
				},
				Recommendation: "Go with A",
			})
			out, err := exec.Execute(ctx, scope, newAction(model.CompareOffersParams{PrimaryOfferID: offerA, ComparisonOfferIDs: []string{offerB}}))
			Expect(err).NotTo(HaveOccurred())

			c, err := s.GetComparison(ctx, out.Result.(model.CompareOffersResult).ComparisonID)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.OfferIDs).To(Equal([]string{offerA, offerB}))
			Expect(c.Entries).To(HaveLen(2))
			Expect(c.Entries[1].ContractorID).To(Equal(f.Other.ID))
		})

		It("rejects another contractor's offer in the primary slot", func() {
			_, err := exec.Execute(ctx, scope, newAction(model.CompareOffersParams{PrimaryOfferID: offerB, ComparisonOfferIDs: []string{offerA}}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindValidation))
		})

		It("fails when a compared offer is left unranked", func() {
			client.QueueOutput(action.ComparisonSchemaName, action.ComparisonOutput{
				Summary:  "Only one",
				Rankings: []action.RankingOutput{{OfferID: offerA, Rank: 1}},
			})
			_, err := exec.Execute(ctx, scope, newAction(model.CompareOffersParams{PrimaryOfferID: offerA, ComparisonOfferIDs: []string{offerB}}))
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindModel))
		})
	})
})
