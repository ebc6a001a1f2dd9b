// Package emailtest provides an in-memory email.Transport for tests.
package emailtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/email"
)

// Transport records sent mail and serves a fixed inbox.
type Transport struct {
	mu sync.Mutex

	Inbox    []email.RawEmail
	Sent     []email.OutboundEmail
	Queries  []email.FetchQuery
	SendErr  error
	FetchErr error
	Block    bool
}

// New returns an empty transport.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) Send(ctx context.Context, msg *email.OutboundEmail) (*email.DeliveryReceipt, error) {
	if t.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return nil, t.SendErr
	}
	t.Sent = append(t.Sent, *msg)
	return &email.DeliveryReceipt{
		MessageID: fmt.Sprintf("sent-%d@test", len(t.Sent)),
		To:        msg.To,
		SentAt:    time.Now().UTC(),
	}, nil
}

func (t *Transport) FetchRecent(ctx context.Context, q email.FetchQuery) ([]email.RawEmail, error) {
	if t.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Queries = append(t.Queries, q)
	if t.FetchErr != nil {
		return nil, t.FetchErr
	}
	var out []email.RawEmail
	for _, m := range t.Inbox {
		if q.From == "" || m.From == q.From {
			out = append(out, m)
		}
	}
	if q.MaxCount > 0 && len(out) > q.MaxCount {
		out = out[len(out)-q.MaxCount:]
	}
	return out, nil
}

// SentCount returns the number of delivered messages.
func (t *Transport) SentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Sent)
}
