package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llmtypes"
)

const titleLength = 60

// Conversation is one logged chat session
type Conversation struct {
	ID        string
	Agent     string
	Model     string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationSummary is a list entry
type ConversationSummary struct {
	Conversation
	MessageCount int
}

// StoredMessage is one logged message
type StoredMessage struct {
	ID             int64
	ConversationID string
	Sequence       int
	Role           llmtypes.Role
	Content        string
	ToolName       string
	CreatedAt      time.Time
}

// Message converts a stored message back to a history entry
func (m StoredMessage) Message() llmtypes.Message {
	return llmtypes.Message{Role: m.Role, Content: m.Content, Name: m.ToolName}
}

// CreateConversation inserts c, generating an id when c.ID is empty
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, agent, model, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Agent, c.Model, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return apperrors.NewStoreError("create conversation", err)
	}
	return nil
}

// GetConversation returns the conversation with id or ErrNotFound
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent, model, title, created_at, updated_at
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Agent, &c.Model, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get conversation", err)
	}
	return &c, nil
}

// ListConversations returns the most recently updated conversations first
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.agent, c.model, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages WHERE conversation_id = c.id) AS message_count
		FROM conversations c
		ORDER BY c.updated_at DESC, c.created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.NewStoreError("list conversations", err)
	}
	defer rows.Close()

	var results []ConversationSummary
	for rows.Next() {
		var sum ConversationSummary
		if err := rows.Scan(&sum.ID, &sum.Agent, &sum.Model, &sum.Title,
			&sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount); err != nil {
			return nil, apperrors.NewStoreError("list conversations", err)
		}
		results = append(results, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("list conversations", err)
	}
	return results, nil
}

// DeleteConversation removes a conversation and its messages
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return apperrors.NewStoreError("delete conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddMessage appends a message to a conversation. The first user message
// becomes the conversation title.
func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID string, role llmtypes.Role, content, toolName string) error {
	if !role.Valid() {
		return apperrors.NewStoreError("add message", fmt.Errorf("invalid role %q", role))
	}
	now := s.now()

	return s.withTx(ctx, "add message", func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sequence) + 1, 0) FROM messages WHERE conversation_id = ?`,
			conversationID).Scan(&next)
		if err != nil {
			return fmt.Errorf("get next sequence: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, sequence, role, content, tool_name, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			conversationID, next, string(role), content, nullString(toolName), now)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
		if err != nil {
			return fmt.Errorf("update conversation timestamp: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}

		if role == llmtypes.RoleUser {
			_, err = tx.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ? AND title = ''`,
				makeTitle(content), conversationID)
			if err != nil {
				return fmt.Errorf("set title: %w", err)
			}
		}
		return nil
	})
}

// GetMessages returns the messages of a conversation in order
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sequence, role, content, tool_name, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sequence ASC`, conversationID)
	if err != nil {
		return nil, apperrors.NewStoreError("get messages", err)
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var role string
		var toolName sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sequence, &role, &m.Content, &toolName, &m.CreatedAt); err != nil {
			return nil, apperrors.NewStoreError("get messages", err)
		}
		m.Role = llmtypes.Role(role)
		if toolName.Valid {
			m.ToolName = toolName.String
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("get messages", err)
	}
	return messages, nil
}

// Turns returns the conversation as history entries without system messages,
// ready for a session to resume from
func (s *SQLiteStore) Turns(ctx context.Context, conversationID string) ([]llmtypes.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	stored, err := s.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	turns := make([]llmtypes.Message, 0, len(stored))
	for _, m := range stored {
		if m.Role == llmtypes.RoleSystem {
			continue
		}
		turns = append(turns, m.Message())
	}
	return turns, nil
}

// ConversationLogger appends messages to one conversation
type ConversationLogger struct {
	store          *SQLiteStore
	conversationID string
}

// MessageLogger returns a logger bound to conversationID
func (s *SQLiteStore) MessageLogger(conversationID string) *ConversationLogger {
	return &ConversationLogger{store: s, conversationID: conversationID}
}

// Log stores one message
func (l *ConversationLogger) Log(ctx context.Context, role llmtypes.Role, content, toolName string) error {
	return l.store.AddMessage(ctx, l.conversationID, role, content, toolName)
}

func makeTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if r := []rune(title); len(r) > titleLength {
		title = string(r[:titleLength-3]) + "..."
	}
	return title
}
