package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/georgysavva/scany/v2/sqlscan"
)

const defaultTagColor = "#4CAF50"

// CreateTag inserts a tag and returns its id. Tag names are unique; creating
// a tag that already exists returns the existing id.
func CreateTag(ctx context.Context, db ExecQuerier, name, color string) (int64, error) {
	if color == "" {
		color = defaultTagColor
	}

	res, err := db.ExecContext(ctx, `INSERT INTO tags (name, color) VALUES (?, ?)`, name, color)
	if err == nil {
		return res.LastInsertId()
	}

	// Unique constraint: fall back to the existing tag.
	var existing Tag
	if getErr := sqlscan.Get(ctx, db, &existing, `SELECT id, name, color FROM tags WHERE name = ?`, name); getErr == nil {
		return existing.ID, nil
	}
	return 0, err
}

// ListTags returns all tags ordered by name.
func ListTags(ctx context.Context, db sqlscan.Querier) ([]Tag, error) {
	var tags []Tag
	if err := sqlscan.Select(ctx, db, &tags, `SELECT id, name, color FROM tags ORDER BY name ASC`); err != nil {
		return nil, err
	}
	return tags, nil
}

// DeleteTag removes a tag and its conversation associations.
func DeleteTag(ctx context.Context, db Execer, id int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	return err
}

// TagConversation associates a tag with a conversation. Idempotent.
func TagConversation(ctx context.Context, db Execer, conversationID, tagID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversation_tags (conversation_id, tag_id) VALUES (?, ?)`,
		conversationID, tagID)
	return err
}

// UntagConversation removes a tag association from a conversation.
func UntagConversation(ctx context.Context, db Execer, conversationID, tagID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM conversation_tags WHERE conversation_id = ? AND tag_id = ?`,
		conversationID, tagID)
	return err
}

// GetConversationTags returns the tags of a conversation ordered by name.
func GetConversationTags(ctx context.Context, db sqlscan.Querier, conversationID int64) ([]Tag, error) {
	query := `
		SELECT t.id, t.name, t.color
		FROM tags t
		JOIN conversation_tags ct ON t.id = ct.tag_id
		WHERE ct.conversation_id = ?
		ORDER BY t.name ASC`

	var tags []Tag
	if err := sqlscan.Select(ctx, db, &tags, query, conversationID); err != nil {
		return nil, err
	}
	return tags, nil
}

// GetConversationsByTag returns the conversations carrying a tag, most recent
// first.
func GetConversationsByTag(ctx context.Context, db sqlscan.Querier, tagID int64) ([]Conversation, error) {
	query := `
		SELECT c.id, c.title, c.created_at
		FROM conversations c
		JOIN conversation_tags ct ON c.id = ct.conversation_id
		WHERE ct.tag_id = ?
		ORDER BY c.created_at DESC, c.id DESC`

	var conversations []Conversation
	if err := sqlscan.Select(ctx, db, &conversations, query, tagID); err != nil {
		return nil, err
	}
	return conversations, nil
}

// GetTagByName retrieves a tag by its unique name, or nil when absent.
func GetTagByName(ctx context.Context, db sqlscan.Querier, name string) (*Tag, error) {
	var tag Tag
	err := sqlscan.Get(ctx, db, &tag, `SELECT id, name, color FROM tags WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tag, nil
}
