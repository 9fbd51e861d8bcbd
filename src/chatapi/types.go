// Package chatapi defines the wire types shared between the transport client
// and the rest of the application.
package chatapi

// Message roles recognized by the chat-completion endpoint.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single entry of a conversation history, in the shape the
// chat-completions endpoint expects.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is a request to the chat completions endpoint.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatCompletionResponse is a non-streaming response from the endpoint.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int      `json:"index"`
	Message      Message  `json:"message"`
	Delta        *Message `json:"delta,omitempty"` // streaming only
	FinishReason string   `json:"finish_reason"`
}

// Usage reports token accounting from the endpoint.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one incremental fragment of a streaming response.
//
// A transport failure mid-stream is delivered in-band: the stream yields one
// final chunk with Err set instead of raising past the iteration boundary, so
// whatever was already accumulated stays available to the caller.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// StreamInterface reads a finite, non-restartable sequence of fragments.
// Each streaming call opens a new transport-level connection.
type StreamInterface interface {
	// Read returns the next chunk, or io.EOF when the sequence is exhausted.
	Read() (*StreamChunk, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// Error represents an API error payload.
type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// ErrorResponse wraps an error from the API.
type ErrorResponse struct {
	Error Error `json:"error"`
}
