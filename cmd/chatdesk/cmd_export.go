package main

import (
	"context"
	"fmt"

	"github.com/bdm-labs/chatdesk/src/export"
)

// ExportCmd writes conversations to a JSON or Markdown file.
type ExportCmd struct {
	Format string  `help:"Export format (json|markdown)" default:"json" enum:"json,markdown,md"`
	Output string  `short:"o" help:"Output file (default: timestamped name in the working directory)" type:"path"`
	IDs    []int64 `arg:"" optional:"" help:"Conversation ids (default: all)"`
}

func (c *ExportCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := c.Output
	if out == "" {
		ext := "json"
		if c.Format != "json" {
			ext = "md"
		}
		out = export.Filename("chatdesk_export", ext)
	}

	if err := a.Export(ctx, c.Format, out, c.IDs); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", out)
	return nil
}
