package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bdm-labs/chatdesk/src/config"
)

// ConfigCmd shows or changes settings.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"1" help:"Show the active settings"`
	Set  ConfigSetCmd  `cmd:"" help:"Change a setting and persist it"`
	Path ConfigPathCmd `cmd:"" help:"Print the settings file path"`
}

// ConfigShowCmd prints the active settings with the key redacted.
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(cli *CLI) error {
	a, err := openApp(context.Background(), cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.ConfigManager.Get()
	fmt.Printf("settings file:  %s\n", a.ConfigManager.Path())
	fmt.Printf("base_url:       %s\n", cfg.API.BaseURL)
	fmt.Printf("model:          %s\n", cfg.API.Model)
	fmt.Printf("api_key:        %s\n", redactKey(cfg.API.APIKey))
	fmt.Printf("verify_ssl:     %v\n", cfg.API.VerifySSLEnabled())
	fmt.Printf("temperature:    %g\n", cfg.API.Temperature)
	if cfg.API.MaxTokens > 0 {
		fmt.Printf("max_tokens:     %d\n", cfg.API.MaxTokens)
	} else {
		fmt.Printf("max_tokens:     (unset)\n")
	}
	fmt.Printf("log level:      %s\n", cfg.Logging.Level)
	return nil
}

func redactKey(key string) string {
	if key == "" {
		return "(unset)"
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// ConfigSetCmd changes one setting.
type ConfigSetCmd struct {
	Key   string `arg:"" help:"Setting name (api-key|base-url|model|verify-ssl|temperature|max-tokens)" enum:"api-key,base-url,model,verify-ssl,temperature,max-tokens"`
	Value string `arg:"" help:"New value"`
}

func (c *ConfigSetCmd) Run(cli *CLI) error {
	a, err := openApp(context.Background(), cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.ApplySettings(func(cfg *config.Config) {
		switch c.Key {
		case "api-key":
			cfg.API.APIKey = c.Value
		case "base-url":
			cfg.API.BaseURL = c.Value
		case "model":
			cfg.API.Model = c.Value
		case "verify-ssl":
			if b, err := strconv.ParseBool(c.Value); err == nil {
				cfg.API.VerifySSL = &b
			}
		case "temperature":
			if f, err := strconv.ParseFloat(c.Value, 64); err == nil {
				cfg.API.Temperature = f
			}
		case "max-tokens":
			if n, err := strconv.Atoi(c.Value); err == nil {
				cfg.API.MaxTokens = n
			}
		}
	})
}

// ConfigPathCmd prints where settings live, for editing by hand.
type ConfigPathCmd struct{}

func (c *ConfigPathCmd) Run(cli *CLI) error {
	if cli.Config != "" {
		fmt.Println(cli.Config)
		return nil
	}
	fmt.Println(config.DefaultConfigPath())
	return nil
}
