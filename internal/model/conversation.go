// Package model defines data structures for the renovation planner.
package model

import (
	"time"
)

// Conversation is the message thread between a homeowner and one contractor
// for one project. There is at most one per (project, contractor) pair.
type Conversation struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	ContractorID   string    `json:"contractor_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	MessageCount   int       `json:"message_count,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
}

// EnsureConversationRequest is the request to open (or reopen) a conversation.
type EnsureConversationRequest struct {
	ProjectID    string `json:"project_id"`
	ContractorID string `json:"contractor_id"`
}

// ListConversationsResponse is the response for listing a project's conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
