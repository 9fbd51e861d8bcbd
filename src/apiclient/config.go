package apiclient

import (
	"log/slog"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4"

	// defaultTimeout bounds non-streaming exchanges. Streaming requests carry
	// no overall deadline; the read loop is cancelled cooperatively instead.
	defaultTimeout        = 60 * time.Second
	defaultConnectTimeout = 10 * time.Second
)

// Config holds configuration for the chat-completion client. It is immutable
// after construction except for the model identifier, which may be swapped
// with Client.SetModel without reconnecting.
type Config struct {
	APIKey         string        // bearer token for the endpoint
	BaseURL        string        // endpoint base URL, supports self-hosted servers
	Model          string        // default model identifier
	Timeout        time.Duration // overall timeout for non-streaming requests
	ConnectTimeout time.Duration

	// VerifySSL controls TLS certificate verification. False permits
	// self-signed certificates; the flag is propagated verbatim as an
	// explicit, user-visible trust decision.
	VerifySSL bool

	Logger *slog.Logger
}
