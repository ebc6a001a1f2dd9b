package llm

import (
	"context"
	"errors"
	"time"

	"github.com/capitalize-ai/renovation-planner/pkg/metrics"
)

const (
	modeChat       = "chat"
	modeStructured = "structured"
)

// Instrumented records call metrics around another client.
type Instrumented struct {
	Client
}

// WithMetrics wraps a client so every call is recorded.
func WithMetrics(c Client) *Instrumented {
	return &Instrumented{Client: c}
}

// Invoke records chat-mode latency and token usage.
func (i *Instrumented) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	start := time.Now()
	resp, err := i.Client.Invoke(ctx, req)
	if err != nil {
		metrics.RecordLLMCall(i.Name(), modeChat, "", statusOf(err), time.Since(start).Seconds(), 0, 0)
		return nil, err
	}
	metrics.RecordLLMCall(i.Name(), modeChat, resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return resp, nil
}

// Structured records structured-mode latency and token usage.
func (i *Instrumented) Structured(ctx context.Context, req *StructuredRequest, out any) (*Usage, error) {
	start := time.Now()
	usage, err := i.Client.Structured(ctx, req, out)
	if err != nil {
		metrics.RecordLLMCall(i.Name(), modeStructured, "", statusOf(err), time.Since(start).Seconds(), 0, 0)
		return nil, err
	}
	metrics.RecordLLMCall(i.Name(), modeStructured, usage.Model, "success", time.Since(start).Seconds(), usage.TokensIn, usage.TokensOut)
	return usage, nil
}

func statusOf(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	return "error"
}
