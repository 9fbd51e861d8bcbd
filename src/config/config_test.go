package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://api.openai.com/v1", cfg.API.BaseURL)
	assert.Equal(t, "gpt-4", cfg.API.Model)
	assert.Equal(t, 0.7, cfg.API.Temperature)
	assert.Equal(t, 60.0, cfg.API.TimeoutSeconds)
	assert.Equal(t, 10.0, cfg.API.ConnectTimeoutSeconds)
	assert.True(t, cfg.API.VerifySSLEnabled())
	assert.Equal(t, 100, cfg.UI.MaxDisplayedMessages)

	require.NoError(t, NewValidator().Validate(cfg))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent", "config.json"))
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.API.Model)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api": {"model": "gpt-4o-mini"}}`), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.API.Model)
	// Absent fields keep their defaults.
	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, DefaultTemperature, cfg.API.Temperature)
	assert.True(t, cfg.API.VerifySSLEnabled())
}

func TestLoadVerifySSLDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api": {"verify_ssl": false}}`), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.False(t, cfg.API.VerifySSLEnabled())
}

func TestLoadRejectsInvalidTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api": {"temperature": 5.0}}`), 0o600))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestSaveRoundTrip(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nested", "config.json"))

	cfg := DefaultConfig()
	cfg.API.Model = "gpt-4o"
	verify := false
	cfg.API.VerifySSL = &verify
	require.NoError(t, loader.SaveFile(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", loaded.API.Model)
	assert.False(t, loaded.API.VerifySSLEnabled())

	info, err := os.Stat(loader.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"_MODEL", "env-model")
	t.Setenv(EnvPrefix+"_VERIFY_SSL", "false")

	cfg, err := NewLoader(filepath.Join(t.TempDir(), "config.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.API.Model)
	assert.False(t, cfg.API.VerifySSLEnabled())
}

func TestAPIKeyResolvedFromEnvVar(t *testing.T) {
	t.Setenv("CHATDESK_TEST_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api": {"api_key_env_var": "CHATDESK_TEST_KEY"}}`), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.API.APIKey)
}

func TestManagerUpdatePersistsAndNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	m, err := NewManager(path, nil)
	require.NoError(t, err)

	var notified *Config
	m.Subscribe(func(c *Config) { notified = c })

	require.NoError(t, m.Update(func(c *Config) { c.API.Model = "gpt-4o" }))
	assert.Equal(t, "gpt-4o", m.Get().API.Model)
	require.NotNil(t, notified)
	assert.Equal(t, "gpt-4o", notified.API.Model)

	// The update survived to disk.
	reloaded, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", reloaded.API.Model)
}

func TestManagerUpdateRejectsInvalid(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.json"), nil)
	require.NoError(t, err)

	err = m.Update(func(c *Config) { c.API.Temperature = 9 })
	require.Error(t, err)
	assert.Equal(t, DefaultTemperature, m.Get().API.Temperature)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	m, err := NewManager(path, nil)
	require.NoError(t, err)

	w, err := NewWatcher(m, nil)
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	t.Cleanup(func() { w.Close() })

	require.NoError(t, os.WriteFile(path, []byte(`{"api": {"model": "watched-model"}}`), 0o600))

	assert.Eventually(t, func() bool {
		return m.Get().API.Model == "watched-model"
	}, 5*time.Second, 50*time.Millisecond)
}
