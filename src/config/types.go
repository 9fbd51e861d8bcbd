// Package config owns the application's configuration surface: the JSON
// settings file, its defaults and validation, and hot reconfiguration.
package config

import "fmt"

// Config is the full application configuration.
type Config struct {
	Version string        `json:"version,omitempty"`
	API     APIConfig     `json:"api"`
	UI      UIConfig      `json:"ui"`
	Logging LoggingConfig `json:"logging"`
}

// APIConfig configures the chat-completion endpoint.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"omitempty,url"`
	APIKey  string `json:"api_key,omitempty"`

	// APIKeyEnvVar names an environment variable consulted when APIKey is
	// empty, so the key can stay out of the settings file.
	APIKeyEnvVar string `json:"api_key_env_var,omitempty"`

	Model       string  `json:"model"`
	Temperature float64 `json:"temperature" validate:"gte=0,lte=2"`

	// MaxTokens caps the response length; 0 means no cap is sent.
	MaxTokens int `json:"max_tokens,omitempty" validate:"gte=0"`

	// VerifySSL controls TLS certificate verification on API calls. Nil
	// means the default (verify). Stored as a pointer so a settings file
	// that omits the field does not silently disable verification.
	VerifySSL *bool `json:"verify_ssl,omitempty"`

	// TimeoutSeconds bounds non-streaming calls; ConnectTimeoutSeconds
	// bounds dial and TLS handshake on all calls.
	TimeoutSeconds        float64 `json:"timeout_seconds,omitempty" validate:"gte=0"`
	ConnectTimeoutSeconds float64 `json:"connect_timeout_seconds,omitempty" validate:"gte=0"`
}

// VerifySSLEnabled resolves the tri-state flag.
func (a APIConfig) VerifySSLEnabled() bool {
	return a.VerifySSL == nil || *a.VerifySSL
}

// UIConfig holds presentation settings surfaced by the shell.
type UIConfig struct {
	// MaxDisplayedMessages bounds how many transcript messages a renderer
	// keeps visible; 0 means unbounded.
	MaxDisplayedMessages int `json:"max_displayed_messages" validate:"gte=0"`
}

// LoggingConfig configures the application log.
type LoggingConfig struct {
	Level  string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `json:"format" validate:"omitempty,oneof=text json"`

	// File overrides the default log file path; empty uses the state dir.
	File string `json:"file,omitempty"`
}

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config field %s: %s", e.Field, e.Message)
}
