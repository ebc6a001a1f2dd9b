package model

// Scope is the eligibility frame of a turn or action: the conversation, its
// project and the one contractor whose data it may act on. It is resolved
// from the conversation once and passed explicitly to context assembly and
// the executor.
type Scope struct {
	Project      *Project
	Contractor   *Contractor
	Conversation *Conversation
}

// ConversationID returns the scoped conversation's ID.
func (s *Scope) ConversationID() string {
	return s.Conversation.ID
}
