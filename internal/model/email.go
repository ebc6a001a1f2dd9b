package model

import (
	"time"
)

// InboundEmail is a contractor email after ingestion. LatestReply holds the
// newest text of the thread with quoted history removed.
type InboundEmail struct {
	MessageID        string       `json:"message_id"`
	ThreadID         string       `json:"thread_id,omitempty"`
	InReplyTo        string       `json:"in_reply_to,omitempty"`
	From             string       `json:"from"`
	Subject          string       `json:"subject"`
	Body             string       `json:"body"`
	LatestReply      string       `json:"latest_reply"`
	IsLatestInThread bool         `json:"is_latest_in_thread"`
	ReceivedAt       time.Time    `json:"received_at"`
	Attachments      []Attachment `json:"attachments,omitempty"`
}

// InboundRecord tracks one inbound email in a conversation. LocalMessageID is
// the conversation message holding the email. Extracted is set once offer
// detection has completed, so an email whose extraction failed is retried by
// the next fetch instead of being skipped as already seen.
type InboundRecord struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	LocalMessageID string    `json:"local_message_id"`
	Extracted      bool      `json:"extracted"`
	SeenAt         time.Time `json:"seen_at"`
}
