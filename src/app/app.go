// Package app wires the application together: configuration, storage, the
// session, the streaming coordinator, and the transcript renderer.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/bdm-labs/chatdesk/src/apiclient"
	"github.com/bdm-labs/chatdesk/src/chatapi"
	"github.com/bdm-labs/chatdesk/src/config"
	"github.com/bdm-labs/chatdesk/src/export"
	"github.com/bdm-labs/chatdesk/src/session"
	"github.com/bdm-labs/chatdesk/src/storage"
	"github.com/bdm-labs/chatdesk/src/stream"
	"github.com/bdm-labs/chatdesk/src/title"
)

// Options configures App construction.
type Options struct {
	// ConfigPath overrides the settings file location; empty uses XDG.
	ConfigPath string

	// DatabasePath overrides the store location; empty uses XDG.
	DatabasePath string

	Renderer Renderer
	Logger   *slog.Logger

	// Fs is the filesystem exports are written to; nil uses the OS.
	Fs afero.Fs
}

// App is the application core, constructed once at process start. All
// collaborators are passed down explicitly.
type App struct {
	ConfigManager *config.Manager
	Store         *storage.DB
	Session       *session.Manager
	Coordinator   *stream.Coordinator
	Logger        *slog.Logger

	renderer *dedupeRenderer
	titles   *title.Worker
	fs       afero.Fs

	// notes carries worker-side status notifications onto the Run loop, so
	// background goroutines never touch the renderer directly.
	notes chan string

	mu     sync.RWMutex
	client *apiclient.Client
}

// New builds the application core.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	manager, err := config.NewManager(opts.ConfigPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg := manager.Get()

	dbPath := opts.DatabasePath
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	sess := session.NewManager(store, logger)
	coordinator := stream.NewCoordinator(stream.Config{
		Session: sess,
		Logger:  logger,
	})

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	renderer := opts.Renderer
	if renderer == nil {
		renderer = nopRenderer{}
	}

	a := &App{
		ConfigManager: manager,
		Store:         store,
		Session:       sess,
		Coordinator:   coordinator,
		Logger:        logger,
		renderer:      newDedupeRenderer(renderer),
		fs:            fs,
		notes:         make(chan string, 4),
	}
	a.client = buildClient(cfg, logger)
	a.titles = title.NewWorker(a, store.DB(), logger, a.onTitleInferred)

	// Reconfiguration rebuilds the transport client only; streaming state
	// is never touched.
	manager.Subscribe(func(c *config.Config) {
		a.mu.Lock()
		a.client = buildClient(*c, logger)
		a.mu.Unlock()
		logger.Info("api client rebuilt from configuration")
	})

	return a, nil
}

func buildClient(cfg config.Config, logger *slog.Logger) *apiclient.Client {
	if cfg.API.APIKey == "" {
		return nil
	}
	return apiclient.NewClient(apiclient.Config{
		APIKey:         cfg.API.APIKey,
		BaseURL:        cfg.API.BaseURL,
		Model:          cfg.API.Model,
		Timeout:        time.Duration(cfg.API.TimeoutSeconds * float64(time.Second)),
		ConnectTimeout: time.Duration(cfg.API.ConnectTimeoutSeconds * float64(time.Second)),
		VerifySSL:      cfg.API.VerifySSLEnabled(),
		Logger:         logger,
	})
}

// Client returns the current transport client, or nil when unconfigured.
func (a *App) Client() *apiclient.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

// Run consumes coordinator events and worker notifications and drives the
// renderer until the context ends. Every streaming-side transcript mutation
// originates here; workers only ever publish events.
func (a *App) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.Coordinator.Events():
			a.handleEvent(ctx, ev)
		case note := <-a.notes:
			a.renderer.ShowStatus(note)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, ev stream.Event) {
	switch ev.Kind {
	case stream.EventUserSubmitted:
		a.renderer.AppendMessage(ev.Message.Role, ev.Message.Content)

	case stream.EventTypingStarted:
		a.renderer.ShowTyping()

	case stream.EventCompleted:
		// The placeholder goes away before the finalized message appears;
		// the transcript never shows both at once.
		a.renderer.HideTyping()
		a.renderer.AppendMessage(ev.Message.Role, ev.Message.Content)
		if ev.FirstExchange {
			a.triggerTitleInference(ctx, ev.ConversationID)
		}

	case stream.EventFailed:
		a.renderer.HideTyping()
		a.renderer.ShowError(errorMessage(ev.Err))

	case stream.EventCancelled:
		a.renderer.HideTyping()
		a.renderer.ShowStatus("Response cancelled")
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "request failed"
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if s := apiErr.Suggestion(); s != "" {
			return apiErr.Error() + " (" + s + ")"
		}
	}
	return err.Error()
}

// triggerTitleInference fires the background rename after a conversation's
// first exchange.
func (a *App) triggerTitleInference(ctx context.Context, conversationID int64) {
	history := a.Session.History()
	if len(history) == 0 {
		return
	}
	firstUser := ""
	for _, m := range history {
		if m.Role == chatapi.RoleUser {
			firstUser = m.Content
			break
		}
	}
	if firstUser == "" {
		return
	}
	go a.titles.Infer(context.WithoutCancel(ctx), conversationID, firstUser)
}

// onTitleInferred runs on the title worker's goroutine; the notification is
// marshalled onto the Run loop rather than rendered here.
func (a *App) onTitleInferred(conversationID int64, inferred string) {
	select {
	case a.notes <- "Conversation renamed: " + inferred:
	default:
		a.Logger.Debug("dropped rename notification", "conversation_id", conversationID)
	}
}

// Complete satisfies the title worker's completion surface by delegating to
// the current client.
func (a *App) Complete(ctx context.Context, history []chatapi.Message, temperature float64, maxTokens *int) (string, error) {
	client := a.Client()
	if client == nil {
		return "", stream.ErrClientNotConfigured
	}
	return client.Complete(ctx, history, temperature, maxTokens)
}

// SendMessage submits the user's text for streaming. The coordinator
// persists it before any network I/O and echoes it back as an event, so the
// transcript write happens on the Run loop, not the caller's goroutine.
func (a *App) SendMessage(ctx context.Context, text string) error {
	client := a.Client()
	if client == nil {
		return stream.ErrClientNotConfigured
	}

	cfg := a.ConfigManager.Get()
	var maxTokens *int
	if cfg.API.MaxTokens > 0 {
		mt := cfg.API.MaxTokens
		maxTokens = &mt
	}

	return a.Coordinator.Submit(ctx, client, text, stream.SubmitOptions{
		Temperature: cfg.API.Temperature,
		MaxTokens:   maxTokens,
	})
}

// CancelStreaming stops the in-flight response, if any.
func (a *App) CancelStreaming() bool {
	return a.Coordinator.Cancel()
}

// TestConnection verifies the configured endpoint and credentials.
func (a *App) TestConnection(ctx context.Context) error {
	client := a.Client()
	if client == nil {
		return stream.ErrClientNotConfigured
	}
	return client.TestConnection(ctx)
}

// ApplySettings mutates, validates, persists, and fans out the new
// configuration. The transport client is rebuilt by the subscription.
func (a *App) ApplySettings(mutate func(*config.Config)) error {
	return a.ConfigManager.Update(mutate)
}

// NewConversation starts a fresh conversation and clears the transcript.
func (a *App) NewConversation(ctx context.Context, name string) (int64, error) {
	if name == "" {
		name = title.DefaultTitle
	}
	id, err := a.Session.Create(ctx, name)
	if err != nil {
		return 0, err
	}
	a.renderer.Clear()
	return id, nil
}

// LoadConversation makes a stored conversation current and re-renders its
// transcript from the snapshot.
func (a *App) LoadConversation(ctx context.Context, id int64) error {
	msgs, err := a.Session.Load(ctx, id)
	if err != nil {
		return err
	}
	a.renderer.Clear()
	max := a.ConfigManager.Get().UI.MaxDisplayedMessages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	for _, m := range msgs {
		a.renderer.AppendMessage(m.Role, m.Content)
	}
	return nil
}

// ListConversations returns all conversations, newest first.
func (a *App) ListConversations(ctx context.Context) ([]storage.Conversation, error) {
	return storage.ListConversations(ctx, a.Store.DB())
}

// SearchConversations matches titles and message content.
func (a *App) SearchConversations(ctx context.Context, query string) ([]storage.Conversation, error) {
	return storage.SearchConversations(ctx, a.Store.DB(), query)
}

// DeleteConversations removes conversations and their messages; the session
// resets if the current conversation is among them.
func (a *App) DeleteConversations(ctx context.Context, ids []int64) error {
	if err := a.Session.Delete(ctx, ids); err != nil {
		return err
	}
	if _, ok := a.Session.Current(); !ok {
		a.renderer.Clear()
	}
	return nil
}

// RenameConversation sets a conversation's title.
func (a *App) RenameConversation(ctx context.Context, id int64, name string) error {
	return storage.RenameConversation(ctx, a.Store.DB(), id, name)
}

// Export writes the selected conversations (all when ids is empty) in the
// given format.
func (a *App) Export(ctx context.Context, format, path string, ids []int64) error {
	snaps, err := export.Prepare(ctx, a.Store.DB(), ids)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		return export.WriteJSON(a.fs, path, snaps)
	case "markdown", "md":
		return export.WriteMarkdown(a.fs, path, snaps)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// Close shuts the streaming worker down and releases storage.
func (a *App) Close() error {
	a.Coordinator.Shutdown()
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// nopRenderer is used when no presentation layer is attached, e.g. one-shot
// CLI commands.
type nopRenderer struct{}

func (nopRenderer) AppendMessage(string, string) {}
func (nopRenderer) ShowTyping()                  {}
func (nopRenderer) HideTyping()                  {}
func (nopRenderer) ShowError(string)             {}
func (nopRenderer) ShowStatus(string)            {}
func (nopRenderer) Clear()                       {}
