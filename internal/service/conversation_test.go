package service_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/service"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/internal/store/storetest"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

var _ = Describe("ConversationService", func() {
	var (
		ctx   context.Context
		s     *store.Memory
		f     *storetest.Fixture
		convs *service.ConversationService
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = store.NewMemory()
		f = storetest.Seed(ctx, s)
		convs = service.NewConversationService(s, nil, logger.NewNop())
	})

	Describe("Ensure", func() {
		It("returns the existing conversation for a pair", func() {
			conv, created, err := convs.Ensure(ctx, f.Project.ID, f.Contractor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(conv.ID).To(Equal(f.Conversation.ID))
		})

		It("creates a conversation on first contact", func() {
			conv, created, err := convs.Ensure(ctx, f.Project.ID, f.Other.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(conv.ContractorID).To(Equal(f.Other.ID))

			again, created, err := convs.Ensure(ctx, f.Project.ID, f.Other.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(again.ID).To(Equal(conv.ID))
		})

		It("creates exactly one conversation under concurrent first contact", func() {
			var wg sync.WaitGroup
			ids := make([]string, 8)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					conv, _, err := convs.Ensure(ctx, f.Project.ID, f.Other.ID)
					Expect(err).NotTo(HaveOccurred())
					ids[i] = conv.ID
				}(i)
			}
			wg.Wait()
			for _, id := range ids {
				Expect(id).To(Equal(ids[0]))
			}
		})

		It("rejects a contractor from another project", func() {
			other := &model.Project{ID: "p-2", Name: "Bathroom"}
			Expect(s.CreateProject(ctx, other)).To(Succeed())

			_, _, err := convs.Ensure(ctx, other.ID, f.Contractor.ID)
			Expect(apperr.Is(err, apperr.KindValidation)).To(BeTrue())
		})

		It("reports unknown participants as not found", func() {
			_, _, err := convs.Ensure(ctx, f.Project.ID, "nobody")
			Expect(apperr.Is(err, apperr.KindNotFound)).To(BeTrue())
		})
	})

	It("lists a project's conversations", func() {
		_, _, err := convs.Ensure(ctx, f.Project.ID, f.Other.ID)
		Expect(err).NotTo(HaveOccurred())

		list, err := convs.ListByProject(ctx, f.Project.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Total).To(Equal(2))
	})

	It("resolves the scope of a conversation", func() {
		scope, err := convs.Scope(ctx, f.Conversation.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(scope.Contractor.ID).To(Equal(f.Contractor.ID))
		Expect(scope.Project.ID).To(Equal(f.Project.ID))
	})

	It("reports a disabled journal on replay", func() {
		_, err := convs.Events(ctx, f.Conversation.ID, 0, 10)
		Expect(err).To(MatchError(service.ErrJournalDisabled))
	})
})
