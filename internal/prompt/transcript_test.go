package prompt_test

import (
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/prompt"
)

var base = time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)

func messages(n int) []model.Message {
	senders := []model.Sender{model.SenderHuman, model.SenderAI, model.SenderContractor, model.SenderSystem}
	out := make([]model.Message, n)
	for i := range out {
		out[i] = model.Message{
			ID:        fmt.Sprintf("m%d", i),
			Sender:    senders[i%len(senders)],
			Kind:      model.MessageKindText,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

var _ = Describe("FormatTranscript", func() {
	DescribeTable("renders exactly N chronological entries for N <= 30",
		func(n int) {
			t := prompt.FormatTranscript(messages(n), 30)
			Expect(t.Entries()).To(Equal(n))
			labels := []string{"Homeowner", "AI", "Contractor", "System"}
			for i, line := range t.Lines {
				ts := base.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04")
				Expect(line).To(Equal(fmt.Sprintf("[%s] %s: message %d", ts, labels[i%4], i)))
			}
		},
		Entry("empty", 0),
		Entry("one", 1),
		Entry("seven", 7),
		Entry("thirty", 30),
	)

	It("keeps only the last 30 messages", func() {
		t := prompt.FormatTranscript(messages(45), 30)
		Expect(t.Entries()).To(Equal(30))
		Expect(t.Lines[0]).To(HaveSuffix("message 15"))
		Expect(t.Lines[29]).To(HaveSuffix("message 44"))
	})

	It("renders one line per message", func() {
		msgs := []model.Message{{Sender: model.SenderContractor, Kind: model.MessageKindText, Content: "Line one\n\nLine two", CreatedAt: base}}
		t := prompt.FormatTranscript(msgs, 30)
		Expect(t.Text).To(Equal("[2025-03-04 09:00] Contractor: Line one Line two"))
	})

	It("summarizes action requests with type and status", func() {
		msgs := []model.Message{{
			Sender: model.SenderAI, Kind: model.MessageKindActionRequest, Content: "Let me email them.", CreatedAt: base,
			Action: &model.Action{Type: model.ActionTypeSendEmail, Status: model.ActionStatusExecuted, Summary: "Ask about warranty"},
		}}
		Expect(prompt.FormatTranscript(msgs, 30).Lines[0]).To(Equal("[2025-03-04 09:00] AI: [send_email executed] Ask about warranty"))
	})

	It("shows the rejection summary for declined actions", func() {
		msgs := []model.Message{{
			Sender: model.SenderAI, Kind: model.MessageKindActionRequest, Content: "Let me email them.", CreatedAt: base,
			Action: &model.Action{Type: model.ActionTypeSendEmail, Status: model.ActionStatusRejected, RejectionSummary: "Declined: email about warranty"},
		}}
		Expect(prompt.FormatTranscript(msgs, 30).Lines[0]).To(HaveSuffix("AI: Declined: email about warranty"))
	})

	It("lists attachment names", func() {
		msgs := []model.Message{{Sender: model.SenderHuman, Kind: model.MessageKindText, Content: "See plan", CreatedAt: base,
			Attachments: []model.Attachment{{Name: "floorplan.pdf"}}}}
		Expect(prompt.FormatTranscript(msgs, 30).Text).To(HaveSuffix("See plan (attachments: floorplan.pdf)"))
	})
})

var _ = Describe("Transcript.HasUpdatesSince", func() {
	It("counts any homeowner or contractor message for a first analysis", func() {
		Expect(prompt.FormatTranscript(messages(1), 30).HasUpdatesSince(time.Time{})).To(BeTrue())
		Expect(prompt.FormatTranscript(nil, 30).HasUpdatesSince(time.Time{})).To(BeFalse())
	})

	It("only counts messages newer than the previous analysis", func() {
		// homeowner at +0, AI at +1m, contractor at +2m
		t := prompt.FormatTranscript(messages(3), 30)
		Expect(t.HasUpdatesSince(base.Add(150 * time.Second))).To(BeFalse())
		Expect(t.HasUpdatesSince(base.Add(90 * time.Second))).To(BeTrue())
		Expect(t.HasUpdatesSince(base.Add(30 * time.Second))).To(BeTrue())
	})

	It("ignores AI and system messages", func() {
		msgs := []model.Message{{Sender: model.SenderAI, Kind: model.MessageKindText, Content: "hi", CreatedAt: base}}
		Expect(prompt.FormatTranscript(msgs, 30).HasUpdatesSince(time.Time{})).To(BeFalse())
	})
})

var _ = Describe("TrimHistory", func() {
	It("drops the oldest messages first and keeps the newest", func() {
		history := []llm.ChatMessage{
			{Role: llm.RoleUser, Content: strings.Repeat("a", 400)},
			{Role: llm.RoleAssistant, Content: strings.Repeat("b", 40)},
			{Role: llm.RoleUser, Content: strings.Repeat("c", 40)},
		}
		out := prompt.TrimHistory(history, 25, prompt.ApproxCounter())
		Expect(out).To(HaveLen(1))
		Expect(out[0].Content).To(Equal(strings.Repeat("c", 40)))
	})

	It("keeps an oversized newest message", func() {
		history := []llm.ChatMessage{{Role: llm.RoleUser, Content: strings.Repeat("x", 1000)}}
		Expect(prompt.TrimHistory(history, 10, prompt.ApproxCounter())).To(HaveLen(1))
	})

	It("merges consecutive same-role messages and starts with the user", func() {
		history := []llm.ChatMessage{
			{Role: llm.RoleAssistant, Content: "orphan"},
			{Role: llm.RoleUser, Content: "one"},
			{Role: llm.RoleUser, Content: "two"},
			{Role: llm.RoleAssistant, Content: "three"},
		}
		out := prompt.TrimHistory(history, 1000, prompt.ApproxCounter())
		Expect(out).To(Equal([]llm.ChatMessage{
			{Role: llm.RoleUser, Content: "one\n\ntwo"},
			{Role: llm.RoleAssistant, Content: "three"},
		}))
	})
})
