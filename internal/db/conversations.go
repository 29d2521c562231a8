package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

// CreateConversation starts a new visitor conversation for a site.
func (c *Client) CreateConversation(
	ctx context.Context,
	workspaceID string,
	siteID string,
	visitorID *string,
) (*models.Conversation, error) {
	sql := `
		CREATE type::record("conversation", $id) SET
			workspace_id = $workspace_id,
			site_id = $site_id,
			visitor_id = $visitor_id
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, sql, map[string]any{
		"id":           uuid.NewString(),
		"workspace_id": workspaceID,
		"site_id":      siteID,
		"visitor_id":   visitorID,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create conversation: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetConversation retrieves a conversation by ID. Returns nil if not found.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// MessageInput carries the fields persisted for one chat message.
type MessageInput struct {
	WorkspaceID      string
	ConversationID   string
	Role             models.MessageRole
	Content          string
	Citations        []models.Citation
	PromptTokens     int
	CompletionTokens int
}

// CreateMessage persists a chat message and touches the conversation's
// updated_at.
func (c *Client) CreateMessage(ctx context.Context, in MessageInput) (*models.Message, error) {
	sql := `
		UPDATE type::record("conversation", $conversation_id) SET updated_at = time::now();
		CREATE type::record("message", $id) SET
			workspace_id = $workspace_id,
			conversation_id = $conversation_id,
			role = $role,
			content = $content,
			citations = $citations,
			prompt_tokens = $prompt_tokens,
			completion_tokens = $completion_tokens
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, sql, map[string]any{
		"id":                uuid.NewString(),
		"workspace_id":      in.WorkspaceID,
		"conversation_id":   in.ConversationID,
		"role":              string(in.Role),
		"content":           in.Content,
		"citations":         in.Citations,
		"prompt_tokens":     in.PromptTokens,
		"completion_tokens": in.CompletionTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", wrapQueryError(err))
	}

	// Two statements: the CREATE result is the last entry.
	if results == nil || len(*results) == 0 {
		return nil, fmt.Errorf("create message: no result returned")
	}
	last := (*results)[len(*results)-1].Result
	if len(last) == 0 {
		return nil, fmt.Errorf("create message: no result returned")
	}
	return &last[0], nil
}

// ListRecentMessages returns the last limit messages of a conversation
// in chronological order.
func (c *Client) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message WHERE conversation_id = $conversation_id
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{"conversation_id": conversationID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}

	msgs := (*results)[0].Result
	// Query returns newest first; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
