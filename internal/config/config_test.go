package config_test

import (
	"os"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Load", func() {
	setEnv := func(key, value string) {
		prev, had := os.LookupEnv(key)
		Expect(os.Setenv(key, value)).To(Succeed())
		DeferCleanup(func() {
			if had {
				os.Setenv(key, prev)
			} else {
				os.Unsetenv(key)
			}
		})
	}

	It("applies defaults", func() {
		cfg := config.Load()
		Expect(cfg.TranscriptLimit).To(Equal(30))
		Expect(cfg.IMAPMailbox).To(Equal("INBOX"))
		Expect(cfg.LLMTimeout).To(Equal(60 * time.Second))
	})

	It("reads overrides from the environment", func() {
		setEnv("LLM_TIMEOUT", "5s")
		setEnv("MAX_CONCURRENT_ACTIONS", "2")
		setEnv("NATS_ENABLED", "true")

		cfg := config.Load()
		Expect(cfg.LLMTimeout).To(Equal(5 * time.Second))
		Expect(cfg.MaxConcurrentActions).To(Equal(2))
		Expect(cfg.NATSEnabled).To(BeTrue())
	})

	It("ignores unparseable values", func() {
		setEnv("TRANSCRIPT_LIMIT", "many")
		Expect(config.Load().TranscriptLimit).To(Equal(30))
	})

	It("splits the CORS origin list", func() {
		setEnv("CORS_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:3000,")
		Expect(config.Load().CORSOrigins).To(Equal([]string{"https://app.example.com", "http://localhost:3000"}))
	})

	It("requires both mail directions for email", func() {
		setEnv("SMTP_HOST", "smtp.example.com")
		Expect(config.Load().EmailConfigured()).To(BeFalse())
		setEnv("IMAP_HOST", "imap.example.com")
		Expect(config.Load().EmailConfigured()).To(BeTrue())
	})
})
