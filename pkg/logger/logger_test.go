package logger_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zapcore"

	"github.com/capitalize-ai/renovation-planner/pkg/logger"
)

var _ = Describe("ParseLevel", func() {
	DescribeTable("maps names to levels",
		func(name string, want zapcore.Level) {
			Expect(logger.ParseLevel(name)).To(Equal(want))
		},
		Entry("debug", "debug", zapcore.DebugLevel),
		Entry("mixed case", " WARN ", zapcore.WarnLevel),
		Entry("warning alias", "warning", zapcore.WarnLevel),
		Entry("error", "error", zapcore.ErrorLevel),
		Entry("unknown", "verbose", zapcore.InfoLevel),
		Entry("empty", "", zapcore.InfoLevel),
	)
})

var _ = Describe("Mask", func() {
	It("keeps only the last four characters of long secrets", func() {
		Expect(logger.Mask("sk-ant-0123456789abcd")).To(Equal("****abcd"))
	})

	It("hides short secrets entirely", func() {
		Expect(logger.Mask("hunter2")).To(Equal("****"))
	})

	It("leaves an unset secret empty", func() {
		Expect(logger.Mask("  ")).To(BeEmpty())
	})
})

var _ = Describe("New", func() {
	It("builds production and development loggers", func() {
		prod, err := logger.New(logger.Options{Level: "debug"})
		Expect(err).NotTo(HaveOccurred())
		Expect(prod.Core().Enabled(zapcore.DebugLevel)).To(BeTrue())

		dev, err := logger.New(logger.Options{Level: "error", Development: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(dev.Core().Enabled(zapcore.WarnLevel)).To(BeFalse())
	})
})
