package sqlite_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/internal/store/sqlite"
	"github.com/capitalize-ai/renovation-planner/internal/store/storetest"
)

func openTemp() *sqlite.Store {
	s, err := sqlite.OpenAndMigrate(filepath.Join(GinkgoT().TempDir(), "test.db"))
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = storetest.DescribeStore("sqlite", func() store.Store { return openTemp() })

var _ = Describe("Migrate", func() {
	It("is idempotent and records the schema version", func() {
		s := openTemp()
		defer s.Close()

		Expect(sqlite.Migrate(s.DB)).To(Succeed())
		v, err := sqlite.Version(s.DB)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(1))
	})
})

var _ = Describe("durability", func() {
	It("persists actions with results and failures across reopen", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), "reopen.db")

		s, err := sqlite.OpenAndMigrate(path)
		Expect(err).NotTo(HaveOccurred())
		f := storetest.Seed(ctx, s)
		m := storetest.ActionMessage(f.Conversation.ID, model.SendEmailParams{Subject: "Warranty", Body: "<p>Hi</p>"}, time.Now())
		Expect(s.AppendMessage(ctx, m)).To(Succeed())
		_, err = s.TransitionAction(ctx, m.Action.ID, model.ActionStatusPending, func(a *model.Action) error {
			a.Status = model.ActionStatusApproved
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = s.TransitionAction(ctx, m.Action.ID, model.ActionStatusApproved, func(a *model.Action) error {
			a.Status = model.ActionStatusFailed
			a.Failure = &model.Failure{Kind: "credential", Message: "mailbox credentials rejected", Retryable: true}
			a.Attempts = 1
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		s, err = sqlite.OpenAndMigrate(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		failed, err := s.ListActionsByStatus(ctx, model.ActionStatusFailed, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(failed).To(HaveLen(1))
		Expect(failed[0].Failure).To(Equal(&model.Failure{Kind: "credential", Message: "mailbox credentials rejected", Retryable: true}))
		Expect(failed[0].Params).To(Equal(model.SendEmailParams{Subject: "Warranty", Body: "<p>Hi</p>"}))
		Expect(failed[0].Attempts).To(Equal(1))
	})
})
