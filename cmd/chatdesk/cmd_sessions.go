package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bdm-labs/chatdesk/src/storage"
)

// SessionsCmd groups conversation management subcommands.
type SessionsCmd struct {
	List   SessionsListCmd   `cmd:"" default:"1" help:"List stored conversations"`
	Search SessionsSearchCmd `cmd:"" help:"Search conversations by title and content"`
	Rm     SessionsRmCmd     `cmd:"" help:"Delete conversations"`
	Rename SessionsRenameCmd `cmd:"" help:"Rename a conversation"`
}

// SessionsListCmd lists conversations, newest first.
type SessionsListCmd struct{}

func (c *SessionsListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	convs, err := a.ListConversations(ctx)
	if err != nil {
		return err
	}
	return printConversations(ctx, a.Store.DB(), convs)
}

// SessionsSearchCmd searches titles and message content.
type SessionsSearchCmd struct {
	Query string `arg:"" help:"Search text"`
}

func (c *SessionsSearchCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	convs, err := a.SearchConversations(ctx, c.Query)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("no matches")
		return nil
	}
	return printConversations(ctx, a.Store.DB(), convs)
}

// SessionsRmCmd deletes conversations and their messages.
type SessionsRmCmd struct {
	IDs []int64 `arg:"" help:"Conversation ids to delete"`
}

func (c *SessionsRmCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.DeleteConversations(ctx, c.IDs); err != nil {
		return err
	}
	fmt.Printf("deleted %d conversation(s)\n", len(c.IDs))
	return nil
}

// SessionsRenameCmd sets a conversation title.
type SessionsRenameCmd struct {
	ID    int64  `arg:"" help:"Conversation id"`
	Title string `arg:"" help:"New title"`
}

func (c *SessionsRenameCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.RenameConversation(ctx, c.ID, c.Title)
}

func printConversations(ctx context.Context, db *sql.DB, convs []storage.Conversation) error {
	for _, conv := range convs {
		count, err := storage.CountMessages(ctx, db, conv.ID)
		if err != nil {
			return err
		}
		tags, err := storage.GetConversationTags(ctx, db, conv.ID)
		if err != nil {
			return err
		}

		line := fmt.Sprintf("%4d  %s  %-40s  %d msg", conv.ID, conv.CreatedAt.Format("2006-01-02 15:04"), conv.Title, count)
		if len(tags) > 0 {
			names := make([]string, 0, len(tags))
			for _, tag := range tags {
				names = append(names, tag.Name)
			}
			line += "  [" + strings.Join(names, ", ") + "]"
		}
		fmt.Println(line)
	}
	return nil
}
