package storage

import "time"

// Conversation is one chat session. Exactly one conversation is current in
// the session state at a time, or none.
type Conversation struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Message is one immutable entry of a conversation. Messages within a
// conversation are totally ordered by creation timestamp; that order is
// presented both to the renderer and to the upstream API.
type Message struct {
	ID              int64     `json:"id" db:"id"`
	ConversationID  int64     `json:"conversation_id" db:"conversation_id"`
	Role            string    `json:"role" db:"role"`
	Content         string    `json:"content" db:"content"`
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
	TokensEstimated int       `json:"tokens_estimated" db:"tokens_estimated"`
}

// Tag labels conversations, many-to-many.
type Tag struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Color string `json:"color" db:"color"`
}

// EstimateTokens approximates the token count of content as length divided by
// four, with a floor of one for non-empty content. The value is derived and
// non-authoritative; it is recomputed from content on every read and the
// tokens_estimated column is only a cache.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	n := len(content) / 4
	if n < 1 {
		n = 1
	}
	return n
}
