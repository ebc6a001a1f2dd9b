package llm_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/llm"
)

type sampleArgs struct {
	Subject string `json:"subject" jsonschema_description:"Email subject"`
	Count   int    `json:"count"`
	Note    string `json:"note,omitempty"`
}

type stubClient struct {
	resp *llm.InvokeResponse
	err  error
}

func (s *stubClient) Invoke(context.Context, *llm.InvokeRequest) (*llm.InvokeResponse, error) {
	return s.resp, s.err
}

func (s *stubClient) Structured(_ context.Context, _ *llm.StructuredRequest, out any) (*llm.Usage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Usage{Model: "stub"}, json.Unmarshal([]byte(`{"subject":"hi","count":2}`), out)
}

func (s *stubClient) Name() string     { return "stub" }
func (s *stubClient) Models() []string { return []string{"stub"} }

var _ = Describe("GenerateSchema", func() {
	It("produces a closed object schema with required fields", func() {
		schema := llm.GenerateSchema[sampleArgs]()
		Expect(schema.Type).To(Equal("object"))
		Expect(schema.Required).To(ConsistOf("subject", "count"))

		prop, ok := schema.Properties.Get("subject")
		Expect(ok).To(BeTrue())
		Expect(prop.Description).To(Equal("Email subject"))

		b, err := json.Marshal(schema)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(ContainSubstring(`"additionalProperties":false`))
	})
})

var _ = Describe("NewClient", func() {
	It("rejects unknown providers", func() {
		_, err := llm.NewClient("mistral", "key", "")
		Expect(err).To(MatchError(ContainSubstring("unknown LLM provider")))
	})

	It("requires an API key", func() {
		_, err := llm.NewClient(llm.ProviderAnthropic, "", "")
		Expect(err).To(HaveOccurred())
		_, err = llm.NewClient(llm.ProviderOpenAI, "", "")
		Expect(err).To(HaveOccurred())
	})

	It("builds both providers", func() {
		c, err := llm.NewClient(llm.ProviderAnthropic, "key", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name()).To(Equal("anthropic"))

		c, err = llm.NewClient(llm.ProviderOpenAI, "key", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name()).To(Equal("openai"))
	})
})

var _ = Describe("Instrumented", func() {
	It("passes replies through", func() {
		c := llm.WithMetrics(&stubClient{resp: &llm.InvokeResponse{Reply: "hello", Model: "stub"}})
		resp, err := c.Invoke(context.Background(), &llm.InvokeRequest{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.IsToolCall()).To(BeFalse())
		Expect(resp.Reply).To(Equal("hello"))
	})

	It("passes errors through", func() {
		boom := errors.New("boom")
		c := llm.WithMetrics(&stubClient{err: boom})
		_, err := c.Invoke(context.Background(), &llm.InvokeRequest{})
		Expect(err).To(MatchError(boom))

		var out sampleArgs
		_, err = c.Structured(context.Background(), &llm.StructuredRequest{}, &out)
		Expect(err).To(MatchError(boom))
	})

	It("decodes structured output", func() {
		c := llm.WithMetrics(&stubClient{})
		var out sampleArgs
		usage, err := c.Structured(context.Background(), &llm.StructuredRequest{SchemaName: "sample"}, &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(usage.Model).To(Equal("stub"))
		Expect(out.Count).To(Equal(2))
	})
})
