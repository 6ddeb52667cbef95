package leads

import "time"

// Lead is a qualified prospect captured from a widget conversation. Exactly
// one lead may exist per conversation; the conversations table enforces that
// through its lead_id column. Phone is carried on the record for agents to
// fill in later; the chat engine does not extract phone numbers.
type Lead struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Intent         string    `json:"intent"`
	Score          int       `json:"score"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
