package action_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/action"
	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/model"
)

const (
	offerA = "0190a000-0000-7000-8000-00000000000a"
	offerB = "0190a000-0000-7000-8000-00000000000b"
)

func call(name string, args any) *llm.ToolCall {
	raw, err := json.Marshal(args)
	Expect(err).NotTo(HaveOccurred())
	return &llm.ToolCall{ID: "c1", Name: name, Arguments: raw}
}

var _ = Describe("Tools", func() {
	It("offers one tool per action type", func() {
		tools := action.Tools()
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		Expect(names).To(Equal([]string{"send_email", "fetch_email", "analyze_offer", "compare_offers"}))
		Expect(tools[0].Schema.Required).To(ConsistOf("subject", "body", "reasoning", "action_summary"))
		Expect(tools[2].Schema.Required).NotTo(ContainElement("focus"))
	})
})

var _ = Describe("ParseToolCall", func() {
	scope := &model.Scope{Contractor: &model.Contractor{ID: "c-1", Name: "Bob"}}

	It("parses a complete send_email call", func() {
		p, err := action.ParseToolCall(call("send_email", action.SendEmailArgs{
			Subject: " Warranty ", Body: "<p>What warranty do you offer?</p>", Reasoning: "Homeowner asked", ActionSummary: "Ask about warranty",
		}), scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.ValidationErr).NotTo(HaveOccurred())
		Expect(p.Params).To(Equal(model.SendEmailParams{Subject: "Warranty", Body: "<p>What warranty do you offer?</p>"}))
		Expect(p.Summary).To(Equal("Ask about warranty"))
	})

	It("keeps an incomplete proposal with its validation error", func() {
		p, err := action.ParseToolCall(call("send_email", map[string]string{"subject": "Hi", "reasoning": "r", "action_summary": "s"}), scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Type).To(Equal(model.ActionTypeSendEmail))
		Expect(p.ValidationErr).To(MatchError(action.ErrMissingBody))
	})

	It("flags arguments that are not an object", func() {
		p, err := action.ParseToolCall(&llm.ToolCall{Name: "fetch_email", Arguments: json.RawMessage(`"ten"`)}, scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.ValidationErr).To(MatchError(action.ErrMalformedArguments))
	})

	It("resolves offer handles and binds analyses to the scope contractor", func() {
		p, err := action.ParseToolCall(call("analyze_offer", action.AnalyzeOfferArgs{OfferID: "offer:" + offerA, Reasoning: "r", ActionSummary: "s"}), scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Params).To(Equal(model.AnalyzeOfferParams{OfferID: offerA, ContractorID: "c-1"}))
	})

	It("resolves every comparison handle", func() {
		p, err := action.ParseToolCall(call("compare_offers", action.CompareOffersArgs{
			PrimaryOfferID: "offer:" + offerA, ComparisonOfferIDs: []string{"offer:" + offerB},
		}), scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Params).To(Equal(model.CompareOffersParams{PrimaryOfferID: offerA, ComparisonOfferIDs: []string{offerB}}))
		Expect(p.ValidationErr).NotTo(HaveOccurred())
	})

	It("rejects unknown tools", func() {
		_, err := action.ParseToolCall(call("delete_offer", map[string]string{}), scope)
		Expect(err).To(MatchError(action.ErrUnknownTool))
	})
})

var _ = Describe("Validate", func() {
	DescribeTable("fetch_email bounds",
		func(n int, ok bool) {
			err := action.Validate(model.FetchEmailParams{MaxCount: n}, "", "")
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(action.ErrFetchCountRange))
			}
		},
		Entry("zero", 0, false),
		Entry("one", 1, true),
		Entry("ten", 10, true),
		Entry("eleven", 11, false),
	)

	DescribeTable("compare_offers structure",
		func(params model.CompareOffersParams, want error) {
			err := action.Validate(params, "", "")
			if want == nil {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(want))
			}
		},
		Entry("valid", model.CompareOffersParams{PrimaryOfferID: "a", ComparisonOfferIDs: []string{"b", "c"}}, nil),
		Entry("no primary", model.CompareOffersParams{ComparisonOfferIDs: []string{"b"}}, action.ErrMissingPrimary),
		Entry("no comparisons", model.CompareOffersParams{PrimaryOfferID: "a"}, action.ErrNoComparisons),
		Entry("duplicates", model.CompareOffersParams{PrimaryOfferID: "a", ComparisonOfferIDs: []string{"b", "b"}}, action.ErrDuplicateOffer),
		Entry("primary in list", model.CompareOffersParams{PrimaryOfferID: "a", ComparisonOfferIDs: []string{"a"}}, action.ErrPrimaryInList),
	)

	It("requires reasoning and a summary for send_email", func() {
		Expect(action.Validate(model.SendEmailParams{Subject: "s", Body: "b"}, "", "x")).To(MatchError(action.ErrMissingReasoning))
		Expect(action.Validate(model.SendEmailParams{Subject: "s", Body: "b"}, "x", "")).To(MatchError(action.ErrMissingSummary))
	})
})

var _ = Describe("ApplyOverrides", func() {
	It("replaces textual email fields", func() {
		out, err := action.ApplyOverrides(model.SendEmailParams{Subject: "a", Body: "b"}, map[string]string{"body": "<p>new</p>"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(model.SendEmailParams{Subject: "a", Body: "<p>new</p>"}))
	})

	It("rejects structural fields", func() {
		_, err := action.ApplyOverrides(model.SendEmailParams{Subject: "a", Body: "b"}, map[string]string{"to": "x@y.z"})
		Expect(err).To(MatchError(action.ErrFieldNotModifiable))

		_, err = action.ApplyOverrides(model.CompareOffersParams{PrimaryOfferID: "a", ComparisonOfferIDs: []string{"b"}}, map[string]string{"primary_offer_id": "b"})
		Expect(err).To(MatchError(action.ErrFieldNotModifiable))

		_, err = action.ApplyOverrides(model.FetchEmailParams{MaxCount: 2}, map[string]string{"max_count": "5"})
		Expect(err).To(MatchError(action.ErrFieldNotModifiable))
	})

	It("sets the focus of analyses", func() {
		out, err := action.ApplyOverrides(model.AnalyzeOfferParams{OfferID: "a", ContractorID: "c"}, map[string]string{"focus": "timeline"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.(model.AnalyzeOfferParams).Focus).To(Equal("timeline"))
	})

	It("returns the parameters untouched without overrides", func() {
		in := model.FetchEmailParams{MaxCount: 3}
		Expect(action.ApplyOverrides(in, nil)).To(Equal(in))
	})
})

var _ = Describe("StripOfferHandles", func() {
	It("removes offer handles", func() {
		body, n := action.StripOfferHandles("<p>About your quote (offer:" + offerA + "), is the sink included?</p>")
		Expect(n).To(Equal(1))
		Expect(body).To(Equal("<p>About your quote, is the sink included?</p>"))
	})

	It("leaves clean bodies alone", func() {
		body, n := action.StripOfferHandles("<p>Thanks for the offer: very clear.</p>")
		Expect(n).To(BeZero())
		Expect(body).To(Equal("<p>Thanks for the offer: very clear.</p>"))
	})
})
