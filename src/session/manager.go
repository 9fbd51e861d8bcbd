// Package session holds the in-memory mirror of the currently open
// conversation: its identity and ordered message list.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bdm-labs/chatdesk/src/chatapi"
	"github.com/bdm-labs/chatdesk/src/storage"
)

// ErrNoConversation indicates an append without a current conversation.
var ErrNoConversation = errors.New("no current conversation")

// Manager owns the session state. All mutation goes through its methods; the
// streaming coordinator writes into it only via the append operations, never
// directly. Safe for concurrent use.
type Manager struct {
	db     *storage.DB
	logger *slog.Logger

	mu         sync.Mutex
	currentID  int64
	hasCurrent bool
	messages   []chatapi.Message
}

// NewManager creates a session manager over the given store.
func NewManager(db *storage.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:     db,
		logger: logger.With("component", "session"),
	}
}

// Current returns the id of the current conversation, if any.
func (m *Manager) Current() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID, m.hasCurrent
}

// Create persists a new conversation, makes it current, and clears the
// in-memory transcript.
func (m *Manager) Create(ctx context.Context, title string) (int64, error) {
	id, err := storage.CreateConversation(ctx, m.db.DB(), title, time.Now())
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}

	m.mu.Lock()
	m.currentID = id
	m.hasCurrent = true
	m.messages = nil
	m.mu.Unlock()

	m.logger.Debug("conversation created", "conversation_id", id, "title", title)
	return id, nil
}

// Load makes the conversation current and replaces the in-memory transcript
// with a copy of its persisted messages. The returned slice is a snapshot;
// later mutation of the live transcript never alters it.
func (m *Manager) Load(ctx context.Context, id int64) ([]storage.Message, error) {
	persisted, err := storage.GetMessages(ctx, m.db.DB(), id)
	if err != nil {
		return nil, fmt.Errorf("load conversation %d: %w", id, err)
	}

	transcript := make([]chatapi.Message, len(persisted))
	for i, msg := range persisted {
		transcript[i] = chatapi.Message{Role: msg.Role, Content: msg.Content}
	}

	m.mu.Lock()
	m.currentID = id
	m.hasCurrent = true
	m.messages = transcript
	m.mu.Unlock()

	m.logger.Debug("conversation loaded", "conversation_id", id, "messages", len(persisted))
	return persisted, nil
}

// AppendUser persists a user message, then mirrors it into memory. Persist
// first: a crash between the two leaves the store authoritative and the
// in-memory view merely stale, never the reverse.
func (m *Manager) AppendUser(ctx context.Context, content string) (int64, error) {
	return m.append(ctx, chatapi.RoleUser, content)
}

// AppendAssistant persists an assistant message, then mirrors it into memory.
func (m *Manager) AppendAssistant(ctx context.Context, content string) (int64, error) {
	return m.append(ctx, chatapi.RoleAssistant, content)
}

func (m *Manager) append(ctx context.Context, role, content string) (int64, error) {
	m.mu.Lock()
	if !m.hasCurrent {
		m.mu.Unlock()
		return 0, ErrNoConversation
	}
	convID := m.currentID
	m.mu.Unlock()

	msgID, err := storage.AddMessage(ctx, m.db.DB(), convID, role, content, time.Now())
	if err != nil {
		return 0, fmt.Errorf("persist %s message: %w", role, err)
	}

	m.mu.Lock()
	// Mirror only if the conversation is still current; a concurrent Load or
	// Delete wins over a straggling append.
	if m.hasCurrent && m.currentID == convID {
		m.messages = append(m.messages, chatapi.Message{Role: role, Content: content})
	}
	m.mu.Unlock()

	return msgID, nil
}

// Delete removes the given conversations, cascading to their messages. If
// the current conversation is among them, the session resets to no current
// conversation and the transcript clears.
func (m *Manager) Delete(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := storage.DeleteConversation(ctx, m.db.DB(), id); err != nil {
			return fmt.Errorf("delete conversation %d: %w", id, err)
		}

		m.mu.Lock()
		if m.hasCurrent && m.currentID == id {
			m.hasCurrent = false
			m.currentID = 0
			m.messages = nil
		}
		m.mu.Unlock()
	}

	m.logger.Debug("conversations deleted", "count", len(ids))
	return nil
}

// Clear resets the session to no current conversation without touching the
// store.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.hasCurrent = false
	m.currentID = 0
	m.messages = nil
	m.mu.Unlock()
}

// History returns a copy of the in-memory transcript in creation order: the
// exact list handed to the transport as API history.
func (m *Manager) History() []chatapi.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chatapi.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// TokenTotal returns the derived token estimate of the transcript.
func (m *Manager) TokenTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, msg := range m.messages {
		total += storage.EstimateTokens(msg.Content)
	}
	return total
}
