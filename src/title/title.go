// Package title derives conversation titles: a synchronous provisional title
// from the user's first message, and a background inference pass that asks
// the model for a better one after the first exchange.
package title

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/bdm-labs/chatdesk/src/chatapi"
	"github.com/bdm-labs/chatdesk/src/storage"
)

const (
	// ProvisionalMaxLength bounds the synchronous title derived from the
	// first user message.
	ProvisionalMaxLength = 25

	// InferredMaxLength bounds the model-generated title.
	InferredMaxLength = 50

	// promptMessageLimit is how much of the user message the inference
	// prompt carries.
	promptMessageLimit = 500

	inferTemperature = 0.3
	inferMaxTokens   = 30

	// DefaultTitle names a conversation when nothing usable can be derived.
	DefaultTitle = "New session"
)

const inferPrompt = "Generate a short title (maximum 8 words) in the same language as the user message " +
	"that summarizes the following message. Reply ONLY with the title, nothing else:\n\n"

// Provisional derives a synchronous placeholder title from the user's first
// message. The result never exceeds max runes: longer input keeps max-1 runes
// and an ellipsis. Blank input yields DefaultTitle.
func Provisional(text string, max int) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return DefaultTitle
	}
	runes := []rune(t)
	if len(runes) > max {
		return string(runes[:max-1]) + "..."
	}
	return t
}

// Completer is the non-streaming completion surface the worker needs.
// Implemented by apiclient.Client.
type Completer interface {
	Complete(ctx context.Context, history []chatapi.Message, temperature float64, maxTokens *int) (string, error)
}

// Worker renames conversations in the background after their first exchange.
// Every failure is swallowed to the logger: title inference is cosmetic and
// must never surface an error into the chat flow.
type Worker struct {
	completer Completer
	db        storage.Execer
	logger    *slog.Logger
	notify    func(conversationID int64, title string)

	mu   sync.Mutex
	seen map[int64]bool
}

// NewWorker creates a title worker. notify may be nil; when set it is called
// once after a successful rename so the UI can refresh its conversation list.
func NewWorker(completer Completer, db storage.Execer, logger *slog.Logger, notify func(int64, string)) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		completer: completer,
		db:        db,
		logger:    logger.With("component", "title_worker"),
		notify:    notify,
		seen:      make(map[int64]bool),
	}
}

// Infer asks the model for a title summarizing the first user message, then
// renames the conversation and fires the notification. At most one inference
// runs per conversation for the lifetime of the worker; repeats are ignored.
func (w *Worker) Infer(ctx context.Context, conversationID int64, userMessage string) {
	w.mu.Lock()
	if w.seen[conversationID] {
		w.mu.Unlock()
		return
	}
	w.seen[conversationID] = true
	w.mu.Unlock()

	logger := w.logger.With("conversation_id", conversationID)
	logger.Debug("inferring title")

	excerpt := userMessage
	if runes := []rune(excerpt); len(runes) > promptMessageLimit {
		excerpt = string(runes[:promptMessageLimit])
	}

	maxTokens := inferMaxTokens
	raw, err := w.completer.Complete(ctx, []chatapi.Message{
		{Role: chatapi.RoleUser, Content: inferPrompt + excerpt},
	}, inferTemperature, &maxTokens)
	if err != nil {
		logger.Warn("title inference failed", "error", err)
		return
	}

	t := Clean(raw)
	if t == "" {
		logger.Warn("title inference returned nothing usable")
		return
	}

	if err := storage.RenameConversation(ctx, w.db, conversationID, t); err != nil {
		logger.Warn("title rename failed", "error", err)
		return
	}

	logger.Debug("title inferred", "title", t)
	if w.notify != nil {
		w.notify(conversationID, t)
	}
}

// Clean normalizes a model-produced title: strips surrounding quotes and
// whitespace, collapses newlines, and truncates to InferredMaxLength.
func Clean(raw string) string {
	t := strings.TrimSpace(raw)
	t = strings.Trim(t, `"`)
	t = strings.Trim(t, "'")
	t = strings.TrimSpace(t)
	t = strings.ReplaceAll(t, "\n", " ")
	t = strings.Join(strings.Fields(t), " ")

	runes := []rune(t)
	if len(runes) > InferredMaxLength {
		t = string(runes[:InferredMaxLength]) + "..."
	}
	return t
}
