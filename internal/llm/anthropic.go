package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

// Models returns available models.
func (c *AnthropicClient) Models() []string {
	return []string{
		"claude-sonnet-4-5-20250929",
		"claude-opus-4-1-20250805",
		"claude-3-5-haiku-20241022",
	}
}

// Invoke sends a chat turn with the action tools attached.
func (c *AnthropicClient) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	start := time.Now()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(req.Model)),
		MaxTokens: int64(maxTokensOr(req.MaxTokens, 4096)),
		Messages:  convertAnthropicMessages(req.History),
	}
	if system := systemWithContext(req.SystemPrompt, req.Context); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic invoke: %w", err)
	}

	out := &InvokeResponse{
		Model:      string(resp.Model),
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}

	// The first tool_use block wins; the engine holds one action per turn.
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Reply += block.Text
		case "tool_use":
			if out.ToolCall == nil {
				out.ToolCall = &ToolCall{
					ID:        block.ID,
					Name:      block.Name,
					Arguments: append([]byte(nil), block.Input...),
				}
			}
		}
	}

	if out.ToolCall == nil && out.Reply == "" {
		return nil, ErrNoOutput
	}
	return out, nil
}

// Structured forces a single tool whose input schema is the requested output.
func (c *AnthropicClient) Structured(ctx context.Context, req *StructuredRequest, out any) (*Usage, error) {
	start := time.Now()

	tool := Tool{Name: req.SchemaName, Description: req.SchemaDescription, Schema: req.Schema}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel(req.Model)),
		MaxTokens: int64(maxTokensOr(req.MaxTokens, 4096)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Tools:      convertAnthropicTools([]Tool{tool}),
		ToolChoice: anthropic.ToolChoiceParamOfTool(req.SchemaName),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic structured: %w", err)
	}

	var raw []byte
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == req.SchemaName {
			raw = block.Input
			break
		}
	}
	if err := decodeStructured(req.SchemaName, raw, out); err != nil {
		return nil, err
	}

	return &Usage{
		Model:     string(resp.Model),
		TokensIn:  int(resp.Usage.InputTokens),
		TokensOut: int(resp.Usage.OutputTokens),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *AnthropicClient) pickModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

func convertAnthropicMessages(history []ChatMessage) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}

func convertAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{}
		if t.Schema != nil {
			inputSchema.Properties = t.Schema.Properties
			inputSchema.Required = t.Schema.Required
		}
		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: inputSchema,
			},
		}
	}
	return result
}

func maxTokensOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}
