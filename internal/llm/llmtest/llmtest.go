// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/capitalize-ai/renovation-planner/internal/llm"
)

// Client replays queued responses. A Client with Block set waits for the
// context to end, which simulates a call that exceeds its timeout.
type Client struct {
	mu sync.Mutex

	replies []*llm.InvokeResponse
	outputs map[string][]json.RawMessage

	InvokeErr     error
	StructuredErr error
	Block         bool

	Invocations     []*llm.InvokeRequest
	StructuredCalls []*llm.StructuredRequest
}

// New returns an empty scripted client.
func New() *Client {
	return &Client{outputs: make(map[string][]json.RawMessage)}
}

// QueueReply queues a plain text reply.
func (c *Client) QueueReply(text string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, &llm.InvokeResponse{Reply: text, Model: "scripted"})
	return c
}

// QueueToolCall queues a tool call with args marshalled as its arguments.
func (c *Client) QueueToolCall(name string, args any) *Client {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, &llm.InvokeResponse{
		Model:    "scripted",
		ToolCall: &llm.ToolCall{ID: fmt.Sprintf("call_%d", len(c.replies)), Name: name, Arguments: raw},
	})
	return c
}

// QueueOutput queues a structured output for the named schema.
func (c *Client) QueueOutput(schema string, v any) *Client {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[schema] = append(c.outputs[schema], raw)
	return c
}

func (c *Client) Invoke(ctx context.Context, req *llm.InvokeRequest) (*llm.InvokeResponse, error) {
	c.mu.Lock()
	c.Invocations = append(c.Invocations, req)
	block, err := c.Block, c.InvokeErr
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return nil, llm.ErrNoOutput
	}
	resp := c.replies[0]
	c.replies = c.replies[1:]
	return resp, nil
}

func (c *Client) Structured(ctx context.Context, req *llm.StructuredRequest, out any) (*llm.Usage, error) {
	c.mu.Lock()
	c.StructuredCalls = append(c.StructuredCalls, req)
	block, err := c.Block, c.StructuredErr
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.outputs[req.SchemaName]
	if len(queue) == 0 {
		return nil, fmt.Errorf("%s: %w", req.SchemaName, llm.ErrNoOutput)
	}
	c.outputs[req.SchemaName] = queue[1:]
	if err := json.Unmarshal(queue[0], out); err != nil {
		return nil, err
	}
	return &llm.Usage{Model: "scripted"}, nil
}

// StructuredCount returns how many structured calls used schema.
func (c *Client) StructuredCount(schema string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, req := range c.StructuredCalls {
		if req.SchemaName == schema {
			n++
		}
	}
	return n
}

func (c *Client) Name() string     { return "scripted" }
func (c *Client) Models() []string { return []string{"scripted"} }
