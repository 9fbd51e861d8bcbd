package config

// Default values matching the documented behavior of the OpenAI-compatible
// chat-completions surface.
const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "gpt-4"
	DefaultTemperature    = 0.7
	DefaultTimeout        = 60.0
	DefaultConnectTimeout = 10.0

	DefaultMaxDisplayedMessages = 100

	DefaultAPIKeyEnvVar = "OPENAI_API_KEY"
)

// DefaultConfig returns a fresh configuration with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		API: APIConfig{
			BaseURL:               DefaultBaseURL,
			APIKeyEnvVar:          DefaultAPIKeyEnvVar,
			Model:                 DefaultModel,
			Temperature:           DefaultTemperature,
			TimeoutSeconds:        DefaultTimeout,
			ConnectTimeoutSeconds: DefaultConnectTimeout,
		},
		UI: UIConfig{
			MaxDisplayedMessages: DefaultMaxDisplayedMessages,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
