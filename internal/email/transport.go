// Package email implements the mail transport used by the send_email and
// fetch_email actions.
package email

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

// ErrCredentials marks a failure caused by rejected mailbox credentials, as
// opposed to a network or server failure.
var ErrCredentials = errors.New("mailbox credentials rejected")

// ErrNotConfigured is returned by the disabled transport.
var ErrNotConfigured = errors.New("email transport not configured")

// OutboundEmail is a message to deliver.
type OutboundEmail struct {
	From       string
	To         string
	Subject    string
	HTMLBody   string
	TextBody   string
	InReplyTo  string
	References []string
}

// DeliveryReceipt confirms the server accepted a message.
type DeliveryReceipt struct {
	MessageID string
	To        string
	SentAt    time.Time
}

// FetchQuery selects the most recent messages from one sender.
type FetchQuery struct {
	Mailbox  string
	From     string
	MaxCount int
}

// RawEmail is a fetched message before normalization.
type RawEmail struct {
	UID         uint32
	MessageID   string
	InReplyTo   string
	References  []string
	From        string
	Subject     string
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Attachments []model.Attachment
}

// Sender delivers outbound mail.
type Sender interface {
	Send(ctx context.Context, msg *OutboundEmail) (*DeliveryReceipt, error)
}

// Fetcher pulls recent inbound mail.
type Fetcher interface {
	FetchRecent(ctx context.Context, q FetchQuery) ([]RawEmail, error)
}

// Transport is the combined send and fetch surface.
type Transport interface {
	Sender
	Fetcher
}

type mailer struct {
	Sender
	Fetcher
}

// New combines a sender and a fetcher into a Transport.
func New(s Sender, f Fetcher) Transport {
	return &mailer{Sender: s, Fetcher: f}
}

// Disabled is a Transport that fails every call. Used when SMTP/IMAP are not configured.
type Disabled struct{}

func (Disabled) Send(context.Context, *OutboundEmail) (*DeliveryReceipt, error) {
	return nil, ErrNotConfigured
}

func (Disabled) FetchRecent(context.Context, FetchQuery) ([]RawEmail, error) {
	return nil, ErrNotConfigured
}

// IsCredentialError reports whether err stems from rejected credentials.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCredentials) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"535", "534", "authenticationfailed", "authentication failed", "invalid credentials", "username and password not accepted"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
