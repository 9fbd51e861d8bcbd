package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/bdm-labs/chatdesk/src/app"
	"github.com/bdm-labs/chatdesk/src/config"
)

// CLI is the top-level command structure.
type CLI struct {
	Config   string `help:"Settings file path (default: XDG config dir)" type:"path"`
	Database string `help:"Conversation database path (default: XDG state dir)" type:"path"`
	LogLevel string `default:"warn" help:"Log level (debug|info|warn|error)"`

	Chat     ChatCmd     `cmd:"" default:"1" help:"Interactive chat session (default)"`
	Sessions SessionsCmd `cmd:"" help:"Manage stored conversations"`
	Tags     TagsCmd     `cmd:"" help:"Manage conversation tags"`
	Export   ExportCmd   `cmd:"" help:"Export conversations to JSON or Markdown"`
	Ping     PingCmd     `cmd:"" help:"Test the configured API endpoint"`
	Settings ConfigCmd   `cmd:"" name:"config" help:"Show or change settings"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("chatdesk"),
		kong.Description("Desktop-class chat client for OpenAI-compatible endpoints"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openApp builds the application core for a command. Interactive commands
// pass a renderer and a file logger; one-shot commands run headless with the
// tinted stderr logger.
func openApp(ctx context.Context, cli *CLI, renderer app.Renderer, interactive bool) (*app.App, error) {
	logger := createCLILogger(cli.LogLevel)
	if interactive {
		logger = createChatLogger(cli.LogLevel)
	}
	return app.New(ctx, app.Options{
		ConfigPath:   cli.Config,
		DatabasePath: cli.Database,
		Renderer:     renderer,
		Logger:       logger,
	})
}

// newConfigWatcher starts settings-file hot reload for interactive sessions.
func newConfigWatcher(a *app.App) (*config.Watcher, error) {
	w, err := config.NewWatcher(a.ConfigManager, a.Logger)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}
