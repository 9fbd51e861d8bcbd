package app

import "sync"

// Renderer is the transcript presentation boundary. Streaming and title
// results are marshalled onto the App's Run loop before they reach it, and
// the wrapper the App installs serializes entry, so implementations never
// see concurrent calls.
type Renderer interface {
	// AppendMessage adds a finalized message to the transcript.
	AppendMessage(role, content string)

	// ShowTyping displays the composing placeholder; HideTyping removes it.
	// HideTyping is always called before the finalized message is appended.
	ShowTyping()
	HideTyping()

	// ShowError surfaces a failure to the user.
	ShowError(message string)

	// ShowStatus surfaces an informational state change.
	ShowStatus(message string)

	// Clear empties the transcript, for conversation switches.
	Clear()
}

// dedupeRenderer suppresses a message identical to the one rendered
// immediately before it. Retries and event replays can hand the renderer the
// same finalized message twice in a row; the transcript should show it once.
// Non-adjacent repeats are legitimate and pass through.
//
// The lock is held across the inner call, so the wrapped Renderer never runs
// concurrently even when a command method races the event loop.
type dedupeRenderer struct {
	inner Renderer

	mu          sync.Mutex
	lastRole    string
	lastContent string
	hasLast     bool
}

func newDedupeRenderer(inner Renderer) *dedupeRenderer {
	return &dedupeRenderer{inner: inner}
}

func (d *dedupeRenderer) AppendMessage(role, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasLast && d.lastRole == role && d.lastContent == content {
		return
	}
	d.lastRole = role
	d.lastContent = content
	d.hasLast = true
	d.inner.AppendMessage(role, content)
}

func (d *dedupeRenderer) ShowTyping() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inner.ShowTyping()
}

func (d *dedupeRenderer) HideTyping() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inner.HideTyping()
}

func (d *dedupeRenderer) ShowError(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inner.ShowError(message)
}

func (d *dedupeRenderer) ShowStatus(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inner.ShowStatus(message)
}

func (d *dedupeRenderer) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasLast = false
	d.lastRole = ""
	d.lastContent = ""
	d.inner.Clear()
}
