package main

import (
	"context"
	"fmt"

	"github.com/bdm-labs/chatdesk/src/storage"
)

// TagsCmd groups tag subcommands.
type TagsCmd struct {
	List   TagsListCmd   `cmd:"" default:"1" help:"List tags"`
	Add    TagsAddCmd    `cmd:"" help:"Create a tag"`
	Rm     TagsRmCmd     `cmd:"" help:"Delete a tag"`
	Assign TagsAssignCmd `cmd:"" help:"Attach a tag to a conversation"`
	Remove TagsRemoveCmd `cmd:"" help:"Detach a tag from a conversation"`
	Show   TagsShowCmd   `cmd:"" help:"List conversations carrying a tag"`
}

// TagsListCmd lists all tags.
type TagsListCmd struct{}

func (c *TagsListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	tags, err := storage.ListTags(ctx, a.Store.DB())
	if err != nil {
		return err
	}
	for _, tag := range tags {
		fmt.Printf("%4d  %-20s  %s\n", tag.ID, tag.Name, tag.Color)
	}
	return nil
}

// TagsAddCmd creates a tag; re-adding an existing name is a no-op.
type TagsAddCmd struct {
	Name  string `arg:"" help:"Tag name"`
	Color string `help:"Hex color" default:"#4CAF50"`
}

func (c *TagsAddCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := storage.CreateTag(ctx, a.Store.DB(), c.Name, c.Color)
	if err != nil {
		return err
	}
	fmt.Printf("tag %q (id %d)\n", c.Name, id)
	return nil
}

// TagsRmCmd deletes a tag; its conversation associations go with it.
type TagsRmCmd struct {
	Name string `arg:"" help:"Tag name"`
}

func (c *TagsRmCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	tag, err := storage.GetTagByName(ctx, a.Store.DB(), c.Name)
	if err != nil {
		return err
	}
	if tag == nil {
		return fmt.Errorf("no tag named %q", c.Name)
	}
	return storage.DeleteTag(ctx, a.Store.DB(), tag.ID)
}

// TagsAssignCmd attaches a tag to a conversation, creating the tag if
// needed.
type TagsAssignCmd struct {
	Name         string `arg:"" help:"Tag name"`
	Conversation int64  `arg:"" help:"Conversation id"`
}

func (c *TagsAssignCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	tagID, err := storage.CreateTag(ctx, a.Store.DB(), c.Name, "")
	if err != nil {
		return err
	}
	return storage.TagConversation(ctx, a.Store.DB(), c.Conversation, tagID)
}

// TagsRemoveCmd detaches a tag from a conversation.
type TagsRemoveCmd struct {
	Name         string `arg:"" help:"Tag name"`
	Conversation int64  `arg:"" help:"Conversation id"`
}

func (c *TagsRemoveCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	tag, err := storage.GetTagByName(ctx, a.Store.DB(), c.Name)
	if err != nil {
		return err
	}
	if tag == nil {
		return fmt.Errorf("no tag named %q", c.Name)
	}
	return storage.UntagConversation(ctx, a.Store.DB(), c.Conversation, tag.ID)
}

// TagsShowCmd lists the conversations carrying a tag.
type TagsShowCmd struct {
	Name string `arg:"" help:"Tag name"`
}

func (c *TagsShowCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := openApp(ctx, cli, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	tag, err := storage.GetTagByName(ctx, a.Store.DB(), c.Name)
	if err != nil {
		return err
	}
	if tag == nil {
		return fmt.Errorf("no tag named %q", c.Name)
	}
	convs, err := storage.GetConversationsByTag(ctx, a.Store.DB(), tag.ID)
	if err != nil {
		return err
	}
	return printConversations(ctx, a.Store.DB(), convs)
}
