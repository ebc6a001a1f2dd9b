package email

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/pkg/metrics"
)

// IMAPConfig holds inbound server settings.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

// IMAPFetcher reads recent messages over IMAPS.
type IMAPFetcher struct {
	cfg IMAPConfig
}

// NewIMAPFetcher creates a fetcher for the given server.
func NewIMAPFetcher(cfg IMAPConfig) *IMAPFetcher {
	return &IMAPFetcher{cfg: cfg}
}

// FetchRecent returns up to q.MaxCount of the newest messages from q.From,
// oldest first.
func (f *IMAPFetcher) FetchRecent(ctx context.Context, q FetchQuery) ([]RawEmail, error) {
	emails, err := f.fetch(ctx, q)
	metrics.RecordEmail("fetch", err)
	return emails, err
}

func (f *IMAPFetcher) fetch(ctx context.Context, q FetchQuery) ([]RawEmail, error) {
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	defer c.Logout()

	if deadline, ok := ctx.Deadline(); ok {
		c.Timeout = time.Until(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := c.Login(f.cfg.Username, f.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w: %v", ErrCredentials, err)
	}

	mailbox := q.Mailbox
	if mailbox == "" {
		mailbox = f.cfg.Mailbox
	}
	if _, err := c.Select(mailbox, true); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	if q.From != "" {
		criteria.Header.Add("From", q.From)
	}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if q.MaxCount > 0 && len(uids) > q.MaxCount {
		uids = uids[len(uids)-q.MaxCount:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var emails []RawEmail
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := ParseMessage(body)
		if err != nil {
			// A single unparseable message should not sink the batch.
			continue
		}
		raw.UID = msg.Uid
		if raw.Date.IsZero() {
			raw.Date = msg.InternalDate
		}
		emails = append(emails, *raw)
	}
	if err := <-done; err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	sortByDate(emails)
	return emails, nil
}

// ParseMessage reads an RFC 5322 message into a RawEmail.
func ParseMessage(r io.Reader) (*RawEmail, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	out := &RawEmail{}
	out.MessageID, _ = h.MessageID()
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		out.InReplyTo = ids[0]
	}
	out.References, _ = h.MsgIDList("References")
	out.Subject, _ = h.Subject()
	out.Date, _ = h.Date()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		out.From = from[0].Address
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}

		switch ph := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read inline part: %w", err)
			}
			switch {
			case contentType == "text/html" && out.HTMLBody == "":
				out.HTMLBody = string(b)
			case (contentType == "text/plain" || contentType == "") && out.TextBody == "":
				out.TextBody = string(b)
			}
		case *gomail.AttachmentHeader:
			name, _ := ph.Filename()
			contentType, _, _ := ph.ContentType()
			n, _ := io.Copy(io.Discard, part.Body)
			out.Attachments = append(out.Attachments, model.Attachment{
				Name:        name,
				ContentType: contentType,
				Size:        n,
			})
		}
	}
	return out, nil
}
