package model

import (
	"time"
)

// EventType represents the type of journal event.
type EventType string

const (
	EventTypeMessageAppended  EventType = "message_appended"
	EventTypeActionTransition EventType = "action_transition"
	EventTypeTurnFailed       EventType = "turn_failed"
)

// ConversationEvent is a journal entry for a conversation.
type ConversationEvent struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	ProjectID      string       `json:"project_id"`
	Type           EventType    `json:"type"`
	MessageID      string       `json:"message_id,omitempty"`
	ActionID       string       `json:"action_id,omitempty"`
	ActionType     ActionType   `json:"action_type,omitempty"`
	FromStatus     ActionStatus `json:"from_status,omitempty"`
	ToStatus       ActionStatus `json:"to_status,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Sequence       uint64       `json:"sequence,omitempty"`
}

// ListEventsResponse is a page of journal events.
type ListEventsResponse struct {
	Events       []ConversationEvent `json:"events"`
	HasMore      bool                `json:"has_more"`
	LastSequence uint64              `json:"last_sequence"`
}
