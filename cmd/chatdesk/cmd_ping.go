package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bdm-labs/chatdesk/src/apiclient"
	"github.com/bdm-labs/chatdesk/src/stream"
)

// PingCmd verifies the configured endpoint and credentials with a minimal
// request.
type PingCmd struct {
	Timeout time.Duration `default:"15s" help:"Overall timeout"`
}

func (c *PingCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.ConfigManager.Get()
	fmt.Printf("endpoint: %s (model %s, verify_ssl %v)\n",
		cfg.API.BaseURL, cfg.API.Model, cfg.API.VerifySSLEnabled())

	start := time.Now()
	if err := a.TestConnection(ctx); err != nil {
		if errors.Is(err, stream.ErrClientNotConfigured) {
			return errors.New("no API key configured; run: chatdesk config set api-key <key>")
		}
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w (%s)", err, apiErr.Suggestion())
		}
		return err
	}

	fmt.Printf("ok (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}
