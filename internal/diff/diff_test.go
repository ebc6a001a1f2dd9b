package diff_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/diff"
	"github.com/capitalize-ai/renovation-planner/internal/model"
)

var _ = Describe("Text", func() {
	It("marks added and removed lines with their line numbers", func() {
		lines := diff.Text("alpha\nbeta\n", "alpha\ngamma\n")
		Expect(lines).To(Equal([]diff.Line{
			{Kind: diff.LineSame, Text: "alpha", Before: 1, After: 1},
			{Kind: diff.LineRemoved, Text: "beta", Before: 2},
			{Kind: diff.LineAdded, Text: "gamma", After: 2},
		}))
	})

	It("returns no changes for equal texts", func() {
		for _, l := range diff.Text("a\nb\n", "a\nb\n") {
			Expect(l.Kind).To(Equal(diff.LineSame))
		}
	})
})

var _ = Describe("Analyses", func() {
	It("shows what a re-analysis changed", func() {
		before := &model.Analysis{ID: "a1", Summary: "Fair price", Concerns: []string{"No warranty stated"}, HasConversationUpdates: true}
		after := &model.Analysis{ID: "a2", Summary: "Fair price", Concerns: []string{"Permit fees excluded"}, HasConversationUpdates: true}

		d := diff.Analyses(before, after)
		Expect(d.BeforeID).To(Equal("a1"))
		Expect(d.AfterID).To(Equal("a2"))
		Expect(d.Added).To(Equal(1))
		Expect(d.Removed).To(Equal(1))
		Expect(d.Lines).To(ContainElement(diff.Line{Kind: diff.LineRemoved, Text: "- No warranty stated", Before: 3}))
		Expect(d.Lines).To(ContainElement(diff.Line{Kind: diff.LineAdded, Text: "- Permit fees excluded", After: 3}))
	})
})
