// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ErrNoOutput is returned when the provider answered with neither text nor a tool call.
var ErrNoOutput = errors.New("model returned no output")

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool is a function the model may call instead of replying.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// InvokeRequest is a chat turn. Context is appended to the system prompt.
type InvokeRequest struct {
	Model        string
	SystemPrompt string
	Context      string
	History      []ChatMessage
	Tools        []Tool
	MaxTokens    int
	Temperature  *float64
}

// InvokeResponse is either a plain reply or a single tool call.
type InvokeResponse struct {
	Reply      string
	ToolCall   *ToolCall
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// IsToolCall reports whether the model proposed a tool call.
func (r *InvokeResponse) IsToolCall() bool {
	return r.ToolCall != nil
}

// StructuredRequest asks for a schema-conforming object.
type StructuredRequest struct {
	Model             string
	SystemPrompt      string
	UserPrompt        string
	SchemaName        string
	SchemaDescription string
	Schema            *jsonschema.Schema
	MaxTokens         int
}

// Usage reports what a structured call consumed.
type Usage struct {
	Model     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Invoke runs a chat turn that may end in a reply or a tool call.
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)

	// Structured runs the model in structured-analysis mode and decodes the
	// schema-validated object into out.
	Structured(ctx context.Context, req *StructuredRequest, out any) (*Usage, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey, model string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, model)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// decodeStructured unmarshals tool arguments into out.
func decodeStructured(schemaName string, raw []byte, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%s: %w", schemaName, ErrNoOutput)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s output: %w", schemaName, err)
	}
	return nil
}

func systemWithContext(system, context string) string {
	if context == "" {
		return system
	}
	if system == "" {
		return context
	}
	return system + "\n\n" + context
}
