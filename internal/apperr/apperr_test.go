package apperr_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/capitalize-ai/renovation-planner/internal/apperr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("apperr", func() {
	It("finds the kind through wrapping", func() {
		err := fmt.Errorf("deciding: %w", apperr.InvalidState("decide", "action is %s", "executed"))
		Expect(apperr.KindOf(err)).To(Equal(apperr.KindInvalidState))
		Expect(err.Error()).To(ContainSubstring("action is executed"))
	})

	It("treats deadline errors as timeouts", func() {
		Expect(apperr.KindOf(context.DeadlineExceeded)).To(Equal(apperr.KindTimeout))
		classified := apperr.Classify("llm.invoke", fmt.Errorf("call: %w", context.DeadlineExceeded), apperr.Model)
		Expect(classified.Kind).To(Equal(apperr.KindTimeout))
		Expect(classified.Retryable).To(BeTrue())
	})

	It("falls back for unclassified errors", func() {
		classified := apperr.Classify("smtp.send", errors.New("connection reset"), apperr.Transport)
		Expect(classified.Kind).To(Equal(apperr.KindTransport))
		Expect(errors.Unwrap(classified)).To(MatchError("connection reset"))
	})

	It("keeps an already classified error", func() {
		orig := apperr.Credential("imap.login", errors.New("bad password"))
		Expect(apperr.Classify("fetch", orig, apperr.Transport)).To(BeIdenticalTo(orig))
	})

	It("reports unknown errors as internal", func() {
		Expect(apperr.KindOf(errors.New("boom"))).To(Equal(apperr.KindInternal))
		Expect(apperr.IsRetryable(errors.New("boom"))).To(BeFalse())
	})
})
