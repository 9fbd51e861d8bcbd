package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bdm-labs/chatdesk/src/app"
	"github.com/bdm-labs/chatdesk/src/chatapi"
	"github.com/bdm-labs/chatdesk/src/stream"
)

// ChatCmd runs the interactive chat loop.
type ChatCmd struct {
	Conversation int64 `help:"Resume a stored conversation by id"`
}

// consoleRenderer prints the transcript to stdout.
type consoleRenderer struct{}

func (consoleRenderer) AppendMessage(role, content string) {
	switch role {
	case chatapi.RoleUser:
		fmt.Printf("\nyou> %s\n", content)
	case chatapi.RoleAssistant:
		fmt.Printf("\nassistant> %s\n", content)
	default:
		fmt.Printf("\n%s> %s\n", role, content)
	}
}

func (consoleRenderer) ShowTyping() { fmt.Println("\nassistant is typing...") }
func (consoleRenderer) HideTyping() {}
func (consoleRenderer) ShowError(m string) {
	fmt.Printf("\n[error] %s\n", m)
}
func (consoleRenderer) ShowStatus(m string) {
	fmt.Printf("\n[%s]\n", m)
}
func (consoleRenderer) Clear() { fmt.Println("\n--- new conversation ---") }

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cli, consoleRenderer{}, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// Hot-reload the settings file while the session runs.
	watcher, err := newConfigWatcher(a)
	if err != nil {
		a.Logger.Warn("settings hot-reload unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	go a.Run(ctx)

	if c.Conversation != 0 {
		if err := a.LoadConversation(ctx, c.Conversation); err != nil {
			return err
		}
	}

	// Ctrl-C cancels an in-flight response instead of killing the session.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			if !a.CancelStreaming() {
				cancel()
				return
			}
		}
	}()

	fmt.Println("chatdesk: type a message, /help for commands, /quit to exit")
	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !reader.Scan() {
			return reader.Err()
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := c.handleCommand(ctx, a, line)
			if err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := a.SendMessage(ctx, line); err != nil {
			if errors.Is(err, stream.ErrClientNotConfigured) {
				fmt.Println("[error] no API key configured; run: chatdesk config set api-key <key>")
				continue
			}
			fmt.Printf("[error] %v\n", err)
			continue
		}

		// Block until the exchange settles so prompts and output interleave
		// sanely on a line-oriented console.
		for a.Coordinator.Streaming() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (c *ChatCmd) handleCommand(ctx context.Context, a *app.App, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Println("/new [title]   start a new conversation")
		fmt.Println("/list          list stored conversations")
		fmt.Println("/load <id>     resume a stored conversation")
		fmt.Println("/cancel        cancel the in-flight response")
		fmt.Println("/tokens        show the session token estimate")
		fmt.Println("/quit          exit")
		return false, nil

	case "/new":
		name := strings.TrimSpace(strings.TrimPrefix(line, "/new"))
		_, err := a.NewConversation(ctx, name)
		return false, err

	case "/list":
		convs, err := a.ListConversations(ctx)
		if err != nil {
			return false, err
		}
		for _, conv := range convs {
			fmt.Printf("%4d  %s  %s\n", conv.ID, conv.CreatedAt.Format("2006-01-02 15:04"), conv.Title)
		}
		return false, nil

	case "/load":
		if len(fields) < 2 {
			return false, errors.New("usage: /load <id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("bad conversation id %q", fields[1])
		}
		return false, a.LoadConversation(ctx, id)

	case "/cancel":
		if !a.CancelStreaming() {
			fmt.Println("[nothing to cancel]")
		}
		return false, nil

	case "/tokens":
		fmt.Printf("~%d tokens across %d messages\n", a.Session.TokenTotal(), a.Session.Len())
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}
