package model

import (
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderHuman      Sender = "human"
	SenderAI         Sender = "ai_agent"
	SenderContractor Sender = "contractor"
	SenderSystem     Sender = "system"
)

// MessageKind distinguishes plain messages from action bookkeeping.
type MessageKind string

const (
	MessageKindText           MessageKind = "text"
	MessageKindActionRequest  MessageKind = "action_request"
	MessageKindActionExecuted MessageKind = "action_executed"
)

// Attachment is a file reference carried by a message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Message is an entry in a conversation. Content never changes after the
// message is appended; only the embedded Action moves through its lifecycle.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         Sender       `json:"sender"`
	Kind           MessageKind  `json:"kind"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`

	// Action is set only for action_request messages.
	Action *Action `json:"action,omitempty"`

	// ActionRef links an action_executed confirmation to the action it reports on.
	ActionRef string `json:"action_ref,omitempty"`

	// InboundMessageID is the RFC 5322 Message-ID for contractor emails.
	InboundMessageID string `json:"inbound_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Sequence  uint64    `json:"sequence"`
}

// DisplayContent is what the conversation surface renders for the message.
// A rejected action request shows its rejection summary instead of the
// original proposal text; the stored content is left untouched.
func (m *Message) DisplayContent() string {
	if m.Action != nil && m.Action.Status == ActionStatusRejected && m.Action.RejectionSummary != "" {
		return m.Action.RejectionSummary
	}
	return m.Content
}

// SendTurnRequest is the request to submit a homeowner turn.
type SendTurnRequest struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// TurnResponse lists the messages appended by a turn, oldest first.
type TurnResponse struct {
	Messages []Message `json:"messages"`
	// Failure is set when the model call failed and a system message was recorded instead.
	Failure *Failure `json:"failure,omitempty"`
}

// MessageView is the rendering of a message for the conversation surface.
type MessageView struct {
	Message
	Display string `json:"display"`
}

// ConversationView is a conversation with its rendered messages.
type ConversationView struct {
	Conversation
	Messages []MessageView `json:"messages"`
}

// NewConversationView renders messages for display.
func NewConversationView(conv *Conversation, messages []Message) *ConversationView {
	view := &ConversationView{Conversation: *conv}
	view.Conversation.Messages = nil
	view.MessageCount = len(messages)
	view.Messages = make([]MessageView, len(messages))
	for i := range messages {
		view.Messages[i] = MessageView{Message: messages[i], Display: messages[i].DisplayContent()}
	}
	return view
}
