package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// EnvPrefix namespaces environment variable overrides.
const EnvPrefix = "CHATDESK"

// Loader reads and writes the settings file.
type Loader struct {
	path      string
	validator *Validator
}

// NewLoader creates a loader for the given settings file path; empty uses
// the default XDG location.
func NewLoader(path string) *Loader {
	if path == "" {
		path = DefaultConfigPath()
	}
	return &Loader{path: path, validator: NewValidator()}
}

// Path returns the settings file path this loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the settings file over the defaults, applies environment
// overrides, resolves the API key, and validates the result. A missing file
// is not an error; the defaults stand.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		// Unmarshal over the defaults so absent fields keep their default
		// values rather than collapsing to zero.
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", l.path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}

	l.applyEnvironmentOverrides(config)
	resolveAPIKey(config)

	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// SaveFile writes the configuration to the settings file, creating parent
// directories as needed. The file is written 0600 because it may carry the
// API key.
func (l *Loader) SaveFile(config *Config) error {
	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(l.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", l.path, err)
	}
	return nil
}

func (l *Loader) applyEnvironmentOverrides(config *Config) {
	if v := os.Getenv(EnvPrefix + "_API_KEY"); v != "" {
		config.API.APIKey = v
	}
	if v := os.Getenv(EnvPrefix + "_BASE_URL"); v != "" {
		config.API.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "_MODEL"); v != "" {
		config.API.Model = v
	}
	if v := os.Getenv(EnvPrefix + "_VERIFY_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.API.VerifySSL = &b
		}
	}
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// resolveAPIKey fills the key from its environment variable when the file
// carries none.
func resolveAPIKey(config *Config) {
	if config.API.APIKey != "" || config.API.APIKeyEnvVar == "" {
		return
	}
	if v := os.Getenv(config.API.APIKeyEnvVar); v != "" {
		config.API.APIKey = v
	}
}
