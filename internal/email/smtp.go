package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/capitalize-ai/renovation-planner/pkg/metrics"
)

// SMTPConfig holds outbound server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates a sender for the given relay.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers msg and returns the Message-ID it was sent with.
func (s *SMTPSender) Send(ctx context.Context, msg *OutboundEmail) (*DeliveryReceipt, error) {
	m, messageID, err := s.build(msg)
	if err != nil {
		return nil, err
	}

	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	err = client.DialAndSendWithContext(ctx, m)
	metrics.RecordEmail("send", err)
	if err != nil {
		if IsCredentialError(err) {
			return nil, fmt.Errorf("smtp send: %w: %v", ErrCredentials, err)
		}
		return nil, fmt.Errorf("smtp send: %w", err)
	}

	return &DeliveryReceipt{
		MessageID: messageID,
		To:        msg.To,
		SentAt:    time.Now().UTC(),
	}, nil
}

func (s *SMTPSender) build(msg *OutboundEmail) (*mail.Msg, string, error) {
	from := msg.From
	if from == "" {
		from = s.cfg.From
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, "", fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, "", fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)

	messageID := uuid.NewString() + "@" + domainOf(from)
	m.SetMessageIDWithValue(messageID)
	if msg.InReplyTo != "" {
		m.SetGenHeader(mail.HeaderInReplyTo, "<"+msg.InReplyTo+">")
	}
	if len(msg.References) > 0 {
		refs := make([]string, len(msg.References))
		for i, r := range msg.References {
			refs[i] = "<" + r + ">"
		}
		m.SetGenHeader(mail.HeaderReferences, strings.Join(refs, " "))
	}

	m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	if msg.TextBody != "" {
		m.AddAlternativeString(mail.TypeTextPlain, msg.TextBody)
	}
	return m, messageID, nil
}

func domainOf(addr string) string {
	addr = strings.TrimSuffix(addr, ">")
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
