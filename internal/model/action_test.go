package model_test

import (
	"encoding/json"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Action", func() {
	Describe("CanTransition", func() {
		all := []model.ActionStatus{
			model.ActionStatusPending,
			model.ActionStatusApproved,
			model.ActionStatusRejected,
			model.ActionStatusExecuted,
			model.ActionStatusFailed,
		}
		allowed := map[[2]model.ActionStatus]bool{
			{model.ActionStatusPending, model.ActionStatusApproved}:  true,
			{model.ActionStatusPending, model.ActionStatusRejected}:  true,
			{model.ActionStatusApproved, model.ActionStatusExecuted}: true,
			{model.ActionStatusApproved, model.ActionStatusFailed}:   true,
			{model.ActionStatusFailed, model.ActionStatusApproved}:   true,
		}

		It("permits only the lifecycle edges", func() {
			for _, from := range all {
				for _, to := range all {
					Expect(model.CanTransition(from, to)).To(Equal(allowed[[2]model.ActionStatus{from, to}]),
						"%s -> %s", from, to)
				}
			}
		})

		It("treats executed and rejected as terminal", func() {
			Expect(model.ActionStatusExecuted.Terminal()).To(BeTrue())
			Expect(model.ActionStatusRejected.Terminal()).To(BeTrue())
			Expect(model.ActionStatusFailed.Terminal()).To(BeFalse())
		})
	})

	Describe("JSON", func() {
		It("serializes type and status as their wire strings", func() {
			a := model.Action{
				ID:     "a1",
				Type:   model.ActionTypeCompareOffers,
				Status: model.ActionStatusExecuted,
				Params: model.CompareOffersParams{PrimaryOfferID: "o1", ComparisonOfferIDs: []string{"o2"}},
				Result: model.CompareOffersResult{ComparisonID: "c1"},
			}
			b, err := json.Marshal(a)
			Expect(err).NotTo(HaveOccurred())

			var raw map[string]any
			Expect(json.Unmarshal(b, &raw)).To(Succeed())
			Expect(raw["type"]).To(Equal("compare_offers"))
			Expect(raw["status"]).To(Equal("executed"))

			var back model.Action
			Expect(json.Unmarshal(b, &back)).To(Succeed())
			Expect(back.Params).To(Equal(model.CompareOffersParams{PrimaryOfferID: "o1", ComparisonOfferIDs: []string{"o2"}}))
			Expect(back.Result).To(Equal(model.CompareOffersResult{ComparisonID: "c1"}))
		})

		It("refuses parameters that do not match the type", func() {
			a := model.Action{ID: "a1", Type: model.ActionTypeSendEmail, Params: model.FetchEmailParams{MaxCount: 3}}
			_, err := json.Marshal(a)
			Expect(err).To(HaveOccurred())
		})

		It("rejects unknown action types on decode", func() {
			var a model.Action
			err := json.Unmarshal([]byte(`{"id":"x","type":"delete_project","status":"pending","parameters":{}}`), &a)
			Expect(err).To(MatchError(ContainSubstring("unknown action type")))
		})

		It("rejects unknown statuses on decode", func() {
			var a model.Action
			err := json.Unmarshal([]byte(`{"id":"x","type":"fetch_email","status":"done","parameters":{"max_count":2}}`), &a)
			Expect(err).To(MatchError(ContainSubstring("unknown action status")))
		})

		It("catches malformed payloads", func() {
			_, err := model.DecodeParams(model.ActionTypeFetchEmail, json.RawMessage(`{"max_count":"three"}`))
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Message", func() {
	It("shows the rejection summary without touching content", func() {
		msg := model.Message{
			Content: "I'd like to email the contractor about the warranty.",
			Kind:    model.MessageKindActionRequest,
			Action: &model.Action{
				Status:           model.ActionStatusRejected,
				RejectionSummary: "Rejected: email about warranty",
			},
			CreatedAt: time.Now(),
		}
		Expect(msg.DisplayContent()).To(Equal("Rejected: email about warranty"))
		Expect(msg.Content).To(Equal("I'd like to email the contractor about the warranty."))
	})

	It("renders plain messages as-is", func() {
		msg := model.Message{Content: "hello"}
		Expect(msg.DisplayContent()).To(Equal("hello"))
	})
})
