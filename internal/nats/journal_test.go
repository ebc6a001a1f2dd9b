package nats_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/nats"
)

var _ = Describe("subjects", func() {
	It("nests events under their conversation", func() {
		subject := nats.EventSubject("p1", "c1", model.EventTypeActionTransition)
		Expect(subject).To(Equal("reno.p1.c1.action_transition"))
		Expect(nats.ConversationFilter("p1", "c1")).To(Equal("reno.p1.c1.>"))
	})
})
