// Package stream owns the single in-flight streaming exchange: dispatch,
// incremental accumulation, cancellation, and the persistence protocol around
// an assistant turn.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdm-labs/chatdesk/src/chatapi"
	"github.com/bdm-labs/chatdesk/src/session"
	"github.com/bdm-labs/chatdesk/src/title"
)

// Caller errors. Both leave the coordinator Idle.
var (
	// ErrClientNotConfigured indicates no transport is available; the user
	// has not configured credentials yet.
	ErrClientNotConfigured = errors.New("API client not configured")

	// ErrAlreadyStreaming indicates a submit while a task is live. Requests
	// are rejected, never queued and never silently dropped.
	ErrAlreadyStreaming = errors.New("a response is already streaming")
)

// State of the coordinator's streaming machine.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateAccumulating
	StateFinalizing
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAccumulating:
		return "accumulating"
	case StateFinalizing:
		return "finalizing"
	case StateCancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// EventKind discriminates coordinator events.
type EventKind int

const (
	// EventUserSubmitted fires after the user's message has been persisted
	// and before the network call is dispatched. The control thread echoes
	// it into the transcript; submitters never render it themselves.
	EventUserSubmitted EventKind = iota

	// EventTypingStarted fires when the first fragment arrives: the moment
	// the renderer should show its composing placeholder, and not before.
	EventTypingStarted

	// EventCompleted fires exactly once per successful exchange, after the
	// assistant message has been persisted and mirrored into the session.
	EventCompleted

	// EventFailed fires once when the exchange fails; the partial output is
	// discarded, nothing is persisted.
	EventFailed

	// EventCancelled fires once when a user cancellation wins. Cancellation
	// is an informational status, not a failure.
	EventCancelled
)

// Event is what the coordinator publishes to the control thread. The control
// thread, never the streaming worker, pushes to the transcript renderer.
type Event struct {
	Kind           EventKind
	ConversationID int64
	TaskID         string
	Message        chatapi.Message // EventUserSubmitted and EventCompleted
	Err            error           // EventFailed only

	// FirstExchange marks the completion of a conversation's first
	// user/assistant turn; the trigger for asynchronous title inference.
	FirstExchange bool
}

// Transport opens one streaming chat-completion exchange. Implemented by
// apiclient.Client; tests substitute fakes.
type Transport interface {
	CreateChatCompletionStream(ctx context.Context, history []chatapi.Message, temperature float64, maxTokens *int) (chatapi.StreamInterface, error)
}

// SubmitOptions carries per-exchange generation parameters.
type SubmitOptions struct {
	Temperature float64
	MaxTokens   *int
}

// Config configures a Coordinator.
type Config struct {
	Session *session.Manager
	Logger  *slog.Logger

	// JoinTimeout bounds how long Cancel waits for the worker to unwind
	// before abandoning it. Default 10s.
	JoinTimeout time.Duration

	// ProvisionalTitleLen bounds the synchronously derived title for a
	// brand-new conversation. Default 25.
	ProvisionalTitleLen int
}

// task is one streaming exchange. The accumulation buffer belongs to the
// task, not the coordinator, so an abandoned worker can never corrupt a
// successor's buffer.
type task struct {
	id     string
	convID int64
	buf    strings.Builder // guarded by Coordinator.mu
	stop   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc

	// finished is set under Coordinator.mu by the worker's own terminal
	// transition; Cancel uses it to tell whether it lost the race.
	finished bool
}

// Coordinator owns at most one live streaming task per process.
type Coordinator struct {
	sess        *session.Manager
	logger      *slog.Logger
	joinTimeout time.Duration
	titleLen    int
	events      chan Event

	// mu guards cur (including cur.buf) and state as one unit, so a
	// concurrent reader never observes a torn running-flag/buffer pair.
	mu    sync.Mutex
	cur   *task
	state State
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	joinTimeout := cfg.JoinTimeout
	if joinTimeout == 0 {
		joinTimeout = 10 * time.Second
	}
	titleLen := cfg.ProvisionalTitleLen
	if titleLen == 0 {
		titleLen = title.ProvisionalMaxLength
	}

	return &Coordinator{
		sess:        cfg.Session,
		logger:      logger.With("component", "stream_coordinator"),
		joinTimeout: joinTimeout,
		titleLen:    titleLen,
		events:      make(chan Event, 16),
	}
}

// Events returns the channel the coordinator publishes on. Consume it from a
// single control goroutine.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// State reports the current machine state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Streaming reports whether an exchange is live, including the dispatch
// window before the worker starts.
func (c *Coordinator) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateIdle
}

// AccumulatedLen returns the byte length of the live accumulation buffer. It
// is updated under the same lock as the buffer itself, so it never reads torn
// or decreasing within one task.
func (c *Coordinator) AccumulatedLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return 0
	}
	return c.cur.buf.Len()
}

// Submit starts a streaming exchange for the user's text.
//
// The user message is appended to the session and persisted synchronously
// before any network I/O; a persistence failure is returned immediately and
// no call is dispatched, so user input is never silently lost. If no
// conversation is current, one is created first with a provisional title
// derived from the message, so the session is never untitled. The persisted
// message is then echoed on the event channel for the control thread to
// render; no other goroutine touches the transcript.
func (c *Coordinator) Submit(ctx context.Context, transport Transport, text string, opts SubmitOptions) error {
	if transport == nil {
		return ErrClientNotConfigured
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStreaming
	}
	c.state = StateDispatching
	c.mu.Unlock()

	revert := func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}

	if _, ok := c.sess.Current(); !ok {
		if _, err := c.sess.Create(ctx, title.Provisional(text, c.titleLen)); err != nil {
			revert()
			return err
		}
	}

	if _, err := c.sess.AppendUser(ctx, text); err != nil {
		revert()
		return err
	}

	history := c.sess.History()
	convID, _ := c.sess.Current()

	streamCtx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:     uuid.New().String(),
		convID: convID,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	c.mu.Lock()
	c.cur = t
	c.mu.Unlock()

	c.events <- Event{
		Kind:           EventUserSubmitted,
		ConversationID: convID,
		TaskID:         t.id,
		Message:        chatapi.Message{Role: chatapi.RoleUser, Content: text},
	}

	c.logger.Debug("dispatching stream",
		"task_id", t.id, "conversation_id", convID, "history", len(history))

	go c.run(streamCtx, transport, t, history, opts)
	return nil
}

// run is the streaming worker. It is the only goroutine that pulls from the
// transport; it checks the stop flag between fragment pulls and stops
// consuming on cancellation rather than tearing the connection down mid-read.
func (c *Coordinator) run(ctx context.Context, transport Transport, t *task, history []chatapi.Message, opts SubmitOptions) {
	defer close(t.done)
	defer t.cancel()

	logger := c.logger.With("task_id", t.id, "conversation_id", t.convID)

	stream, err := transport.CreateChatCompletionStream(ctx, history, opts.Temperature, opts.MaxTokens)
	if err != nil {
		c.finishFailed(t, fmt.Errorf("dispatch failed: %w", err))
		return
	}
	defer stream.Close()

	typingSent := false
	fragments := 0

	for {
		select {
		case <-t.stop:
			logger.Debug("worker stopped by cancellation", "fragments", fragments)
			return
		default:
		}

		chunk, err := stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			c.finishFailed(t, fmt.Errorf("stream read: %w", err))
			return
		}
		if chunk == nil || chunk.Done {
			break
		}
		if chunk.Err != nil {
			// Error sentinel: the partial buffer is discarded, nothing is
			// persisted as if it were the model's real answer.
			logger.Warn("stream yielded error sentinel", "fragments", fragments, "error", chunk.Err)
			c.finishFailed(t, chunk.Err)
			return
		}
		if chunk.Content == "" {
			continue
		}

		fragments++
		if !typingSent {
			typingSent = true
			c.mu.Lock()
			if c.cur == t {
				c.state = StateAccumulating
			}
			c.mu.Unlock()
			c.events <- Event{Kind: EventTypingStarted, ConversationID: t.convID, TaskID: t.id}
		}

		c.mu.Lock()
		t.buf.WriteString(chunk.Content)
		c.mu.Unlock()
	}

	// Exhausted normally; re-check cancellation before finalizing so a late
	// cancel never turns into a persisted assistant message.
	select {
	case <-t.stop:
		logger.Debug("cancelled at finalize boundary", "fragments", fragments)
		return
	default:
	}

	c.mu.Lock()
	if c.cur != t {
		c.mu.Unlock()
		return
	}
	c.state = StateFinalizing
	full := t.buf.String()
	c.mu.Unlock()

	logger.Debug("stream exhausted", "fragments", fragments, "chars", len(full))

	// Persist on a fresh context: finalization must not be aborted by the
	// stream context, which belongs to the exchange that just ended.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer persistCancel()

	if _, err := c.sess.AppendAssistant(persistCtx, full); err != nil {
		c.finishFailed(t, err)
		return
	}

	c.finish(t, Event{
		Kind:           EventCompleted,
		ConversationID: t.convID,
		TaskID:         t.id,
		Message:        chatapi.Message{Role: chatapi.RoleAssistant, Content: full},
		FirstExchange:  len(history) == 1,
	})
}

// finishFailed discards the buffer and publishes a single failure after the
// machine is back to Idle. A failure that arrives after cancellation was
// signalled is the cancellation's own wake, so the cancel path keeps the
// terminal transition and the user sees Cancelled, not Failed.
func (c *Coordinator) finishFailed(t *task, err error) {
	select {
	case <-t.stop:
		return
	default:
	}
	c.finish(t, Event{Kind: EventFailed, ConversationID: t.convID, TaskID: t.id, Err: err})
}

// finish performs the worker's terminal transition. It is a no-op if a
// cancellation already detached the task; a cancellation that is merely
// signalled does not suppress it, so a completion whose message is already
// persisted is reported rather than mislabelled as cancelled.
func (c *Coordinator) finish(t *task, ev Event) {
	c.mu.Lock()
	if c.cur != t {
		c.mu.Unlock()
		return
	}
	t.finished = true
	c.cur = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.events <- ev
}

// Cancel stops the live task, if any. It signals the worker cooperatively,
// waits up to the join timeout for it to unwind, and forcibly detaches on
// timeout so the control thread never hangs on a stuck stream. A cancelled
// exchange never persists a partial; a completion that already persisted wins
// the race and is reported as a completion. Returns true if a task was
// cancelled.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	t := c.cur
	if t == nil {
		c.mu.Unlock()
		return false
	}
	c.state = StateCancelling
	c.mu.Unlock()

	close(t.stop)
	t.cancel()

	select {
	case <-t.done:
	case <-time.After(c.joinTimeout):
		// Abandon rather than deadlock; the worker is leaked but isolated
		// and can no longer reach shared state.
		c.logger.Warn("cancel join timed out, detaching worker",
			"task_id", t.id, "timeout", c.joinTimeout)
	}

	c.mu.Lock()
	if c.cur != t {
		// The worker's terminal transition won the race; nothing to undo.
		c.mu.Unlock()
		return false
	}
	c.cur = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.logger.Info("stream cancelled", "task_id", t.id)
	c.events <- Event{Kind: EventCancelled, ConversationID: t.convID, TaskID: t.id}
	return true
}

// Shutdown cancels any live task and waits briefly for it to unwind. Used on
// application exit.
func (c *Coordinator) Shutdown() {
	c.Cancel()
}
