package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
)

// Conversation represents a visitor-scoped chat session for one site.
type Conversation struct {
	ID          surrealmodels.RecordID `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	SiteID      string                 `json:"site_id"`
	VisitorID   *string                `json:"visitor_id,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Message is a single chat message within a conversation.
type Message struct {
	ID               surrealmodels.RecordID `json:"id"`
	WorkspaceID      string                 `json:"workspace_id"`
	ConversationID   string                 `json:"conversation_id"`
	Role             MessageRole            `json:"role"`
	Content          string                 `json:"content"`
	Citations        []Citation             `json:"citations,omitempty"`
	PromptTokens     int                    `json:"prompt_tokens,omitempty"`
	CompletionTokens int                    `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}
