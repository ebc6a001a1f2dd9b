package prompt

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/capitalize-ai/renovation-planner/internal/llm"
)

// TokenCounter estimates prompt size.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// approxCounter assumes roughly four characters per token.
type approxCounter struct{}

func (approxCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// NewTokenCounter returns a tiktoken counter for model, falling back to
// cl100k_base and then to a character estimate when no encoding loads.
func NewTokenCounter(model string) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return approxCounter{}
		}
	}
	return tiktokenCounter{enc: enc}
}

// ApproxCounter returns the character-based estimator.
func ApproxCounter() TokenCounter {
	return approxCounter{}
}

// TrimHistory drops the oldest messages until the rest fit budget tokens.
// The newest message is always kept.
func TrimHistory(history []llm.ChatMessage, budget int, counter TokenCounter) []llm.ChatMessage {
	if budget <= 0 || len(history) == 0 {
		return history
	}
	if counter == nil {
		counter = approxCounter{}
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := counter.Count(history[i].Content)
		if used+n > budget && i != len(history)-1 {
			break
		}
		used += n
		start = i
	}
	return normalizeHistory(history[start:])
}
