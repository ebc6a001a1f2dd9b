package email_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capitalize-ai/renovation-planner/internal/email"
)

var _ = Describe("StripQuoted", func() {
	It("cuts at an attribution line", func() {
		body := "Sounds good, Tuesday works.\n\nOn Mon, Mar 3, 2025 at 9:12 AM Dana <dana@example.com> wrote:\n> Can you start Tuesday?"
		Expect(email.StripQuoted(body)).To(Equal("Sounds good, Tuesday works."))
	})

	It("cuts at an attribution wrapped over two lines", func() {
		body := "Yes.\n\nOn Mon, Mar 3, 2025 at 9:12 AM Dana Homeowner\n<dana@example.com> wrote:\n> question"
		Expect(email.StripQuoted(body)).To(Equal("Yes."))
	})

	It("cuts at an attribution whose second line is only the verb", func() {
		body := "Yes.\n\nOn Mon, Mar 3, 2025 at 9:12 AM Dana Homeowner <dana@example.com>\nwrote:\n> question"
		Expect(email.StripQuoted(body)).To(Equal("Yes."))
	})

	It("keeps a line that merely starts with On", func() {
		body := "On Tuesday we start demolition.\nThe crew arrives at 8."
		Expect(email.StripQuoted(body)).To(Equal(body))
	})

	It("cuts at an Outlook original message block", func() {
		body := "Revised quote attached.\n\n-----Original Message-----\nFrom: Dana\nSent: Monday"
		Expect(email.StripQuoted(body)).To(Equal("Revised quote attached."))
	})

	It("cuts at a forwarded header block", func() {
		body := "See below.\n\nFrom: Dana <dana@example.com>\nSubject: kitchen"
		Expect(email.StripQuoted(body)).To(Equal("See below."))
	})

	It("leaves unquoted text alone", func() {
		Expect(email.StripQuoted("Total is $18,400 for the kitchen.")).To(Equal("Total is $18,400 for the kitchen."))
	})

	It("falls back to the whole body when everything is quoted", func() {
		Expect(email.StripQuoted("> only quoted")).To(Equal("> only quoted"))
	})
})

var _ = Describe("Normalize", func() {
	It("renders HTML-only bodies as markdown", func() {
		in := email.Normalize(email.RawEmail{
			MessageID: "a@x",
			HTMLBody:  "<p>Price is <strong>$12,000</strong></p>",
		})
		Expect(in.Body).To(ContainSubstring("**$12,000**"))
		Expect(in.LatestReply).To(Equal(in.Body))
	})

	It("prefers the plain text part", func() {
		in := email.Normalize(email.RawEmail{TextBody: "plain", HTMLBody: "<p>html</p>"})
		Expect(in.Body).To(Equal("plain"))
	})

	It("threads by the first reference", func() {
		in := email.Normalize(email.RawEmail{MessageID: "c@x", InReplyTo: "b@x", References: []string{"a@x", "b@x"}})
		Expect(in.ThreadID).To(Equal("a@x"))
	})
})

var _ = Describe("NormalizeAll", func() {
	It("marks only the newest message of each thread", func() {
		base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		out := email.NormalizeAll([]email.RawEmail{
			{MessageID: "a@x", TextBody: "first", Date: base},
			{MessageID: "b@x", References: []string{"a@x"}, TextBody: "second", Date: base.Add(time.Hour)},
			{MessageID: "z@x", TextBody: "other thread", Date: base},
		})
		Expect(out[0].IsLatestInThread).To(BeFalse())
		Expect(out[1].IsLatestInThread).To(BeTrue())
		Expect(out[2].IsLatestInThread).To(BeTrue())
	})
})

var _ = Describe("ParseMessage", func() {
	It("reads headers, the text part and attachments", func() {
		msg := strings.Join([]string{
			"From: Bob Builder <bob@builders.test>",
			"To: dana@example.com",
			"Subject: Kitchen quote",
			"Date: Tue, 04 Mar 2025 14:00:00 +0000",
			"Message-ID: <quote-1@builders.test>",
			"In-Reply-To: <ask-1@example.com>",
			"References: <ask-1@example.com>",
			"MIME-Version: 1.0",
			`Content-Type: multipart/mixed; boundary="b1"`,
			"",
			"--b1",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"Total $18,400, six weeks.",
			"--b1",
			"Content-Type: application/pdf",
			`Content-Disposition: attachment; filename="quote.pdf"`,
			"",
			"%PDF-1.4",
			"--b1--",
			"",
		}, "\r\n")

		raw, err := email.ParseMessage(strings.NewReader(msg))
		Expect(err).NotTo(HaveOccurred())
		Expect(raw.From).To(Equal("bob@builders.test"))
		Expect(raw.Subject).To(Equal("Kitchen quote"))
		Expect(raw.MessageID).To(Equal("quote-1@builders.test"))
		Expect(raw.InReplyTo).To(Equal("ask-1@example.com"))
		Expect(raw.References).To(ConsistOf("ask-1@example.com"))
		Expect(raw.TextBody).To(ContainSubstring("Total $18,400"))
		Expect(raw.Date.UTC()).To(Equal(time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)))
		Expect(raw.Attachments).To(HaveLen(1))
		Expect(raw.Attachments[0].Name).To(Equal("quote.pdf"))
		Expect(raw.Attachments[0].ContentType).To(Equal("application/pdf"))
	})
})

var _ = Describe("IsCredentialError", func() {
	It("recognizes wrapped sentinel errors", func() {
		Expect(email.IsCredentialError(fmt.Errorf("imap login: %w", email.ErrCredentials))).To(BeTrue())
	})

	It("recognizes SMTP auth reply codes", func() {
		Expect(email.IsCredentialError(errors.New("535 5.7.8 Username and Password not accepted"))).To(BeTrue())
	})

	It("treats other failures as transport errors", func() {
		Expect(email.IsCredentialError(errors.New("dial tcp: connection refused"))).To(BeFalse())
		Expect(email.IsCredentialError(nil)).To(BeFalse())
	})
})

var _ = Describe("Disabled", func() {
	It("fails both directions with ErrNotConfigured", func() {
		var t email.Transport = email.Disabled{}
		_, err := t.Send(context.Background(), &email.OutboundEmail{})
		Expect(err).To(MatchError(email.ErrNotConfigured))
		_, err = t.FetchRecent(context.Background(), email.FetchQuery{})
		Expect(err).To(MatchError(email.ErrNotConfigured))
	})
})
