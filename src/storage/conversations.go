package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// CreateConversation inserts a new conversation and returns its id.
func CreateConversation(ctx context.Context, db Execer, title string, createdAt time.Time) (int64, error) {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO conversations (title, created_at) VALUES (?, ?)`
	res, err := db.ExecContext(ctx, query, title, createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetConversation retrieves a conversation by id, or nil when absent.
func GetConversation(ctx context.Context, db sqlscan.Querier, id int64) (*Conversation, error) {
	query := `SELECT id, title, created_at FROM conversations WHERE id = ?`
	var conv Conversation
	err := sqlscan.Get(ctx, db, &conv, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns all conversations, most recent first.
func ListConversations(ctx context.Context, db sqlscan.Querier) ([]Conversation, error) {
	query := `SELECT id, title, created_at FROM conversations ORDER BY created_at DESC, id DESC`
	var conversations []Conversation
	if err := sqlscan.Select(ctx, db, &conversations, query); err != nil {
		return nil, err
	}
	return conversations, nil
}

// RenameConversation updates a conversation title.
func RenameConversation(ctx context.Context, db Execer, id int64, title string) error {
	query := `UPDATE conversations SET title = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, title, id)
	return err
}

// DeleteConversation removes a conversation; its messages and tag
// associations go with it through the cascade.
func DeleteConversation(ctx context.Context, db Execer, id int64) error {
	query := `DELETE FROM conversations WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	return err
}

// SearchConversations matches the query case-insensitively against
// conversation titles and message content.
func SearchConversations(ctx context.Context, db sqlscan.Querier, query string) ([]Conversation, error) {
	pattern := "%" + query + "%"
	stmt := `
		SELECT DISTINCT c.id, c.title, c.created_at
		FROM conversations c
		LEFT JOIN messages m ON c.id = m.conversation_id
		WHERE LOWER(c.title) LIKE LOWER(?) OR LOWER(m.content) LIKE LOWER(?)
		ORDER BY c.created_at DESC, c.id DESC`

	var conversations []Conversation
	if err := sqlscan.Select(ctx, db, &conversations, stmt, pattern, pattern); err != nil {
		return nil, err
	}
	return conversations, nil
}

// CountConversations returns the number of stored conversations.
func CountConversations(ctx context.Context, db sqlscan.Querier) (int, error) {
	var count int
	if err := sqlscan.Get(ctx, db, &count, `SELECT COUNT(*) FROM conversations`); err != nil {
		return 0, err
	}
	return count, nil
}

// AddMessage inserts a message and returns its id. The token estimate is
// cached at write time but recomputed from content on reads.
func AddMessage(ctx context.Context, db Execer, conversationID int64, role, content string, timestamp time.Time) (int64, error) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	query := `INSERT INTO messages (conversation_id, role, content, timestamp, tokens_estimated) VALUES (?, ?, ?, ?, ?)`
	res, err := db.ExecContext(ctx, query, conversationID, role, content, timestamp, EstimateTokens(content))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetMessages retrieves all messages of a conversation in creation order.
// Token estimates are recomputed from content, so a row written before the
// tokens_estimated column existed still reports a usable value.
func GetMessages(ctx context.Context, db sqlscan.Querier, conversationID int64) ([]Message, error) {
	query := `SELECT id, conversation_id, role, content, timestamp, tokens_estimated
		FROM messages WHERE conversation_id = ? ORDER BY timestamp, id`
	var messages []Message
	if err := sqlscan.Select(ctx, db, &messages, query, conversationID); err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].TokensEstimated = EstimateTokens(messages[i].Content)
	}
	return messages, nil
}

// CountMessages returns the number of messages in a conversation.
func CountMessages(ctx context.Context, db sqlscan.Querier, conversationID int64) (int, error) {
	var count int
	err := sqlscan.Get(ctx, db, &count, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ConversationTokenTotal sums the derived token estimates of a conversation.
func ConversationTokenTotal(ctx context.Context, db sqlscan.Querier, conversationID int64) (int, error) {
	messages, err := GetMessages(ctx, db, conversationID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range messages {
		total += m.TokensEstimated
	}
	return total, nil
}
