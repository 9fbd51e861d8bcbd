// Package export materializes conversations out of the store and writes them
// as JSON or Markdown documents.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/spf13/afero"

	"github.com/bdm-labs/chatdesk/src/chatapi"
	"github.com/bdm-labs/chatdesk/src/storage"
)

// Snapshot is one fully-materialized conversation. Snapshots come from the
// store, never from a live accumulation buffer, so an export taken while a
// response is streaming only contains completed turns.
type Snapshot struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []SnapshotMessage `json:"messages"`
}

// SnapshotMessage is one exported turn.
type SnapshotMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// document is the JSON export envelope.
type document struct {
	ExportDate        time.Time  `json:"export_date"`
	Version           string     `json:"version"`
	ConversationCount int        `json:"conversation_count"`
	Conversations     []Snapshot `json:"conversations"`
}

const documentVersion = "1.0"

// Prepare materializes the given conversations; a nil or empty ids slice
// means all of them. Unknown ids are skipped, not errors, so a stale
// selection still exports what remains.
func Prepare(ctx context.Context, db sqlscan.Querier, ids []int64) ([]Snapshot, error) {
	if len(ids) == 0 {
		convs, err := storage.ListConversations(ctx, db)
		if err != nil {
			return nil, err
		}
		for _, c := range convs {
			ids = append(ids, c.ID)
		}
	}

	snapshots := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		conv, err := storage.GetConversation(ctx, db, id)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			continue
		}
		msgs, err := storage.GetMessages(ctx, db, id)
		if err != nil {
			return nil, err
		}
		snap := Snapshot{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			Messages:  make([]SnapshotMessage, 0, len(msgs)),
		}
		for _, m := range msgs {
			snap.Messages = append(snap.Messages, SnapshotMessage{
				Role:      m.Role,
				Content:   m.Content,
				Timestamp: m.Timestamp,
			})
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// WriteJSON writes the snapshots as a single indented JSON document.
func WriteJSON(fs afero.Fs, path string, snapshots []Snapshot) error {
	doc := document{
		ExportDate:        time.Now(),
		Version:           documentVersion,
		ConversationCount: len(snapshots),
		Conversations:     snapshots,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := afero.WriteFile(fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// WriteMarkdown writes the snapshots as one Markdown document with a header
// section followed by each conversation.
func WriteMarkdown(fs afero.Fs, path string, snapshots []Snapshot) error {
	var b strings.Builder
	b.WriteString("# Conversation Export\n\n")
	fmt.Fprintf(&b, "**Export date:** %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Conversations:** %d\n\n", len(snapshots))
	b.WriteString("---\n\n")

	for i, snap := range snapshots {
		writeConversationMarkdown(&b, snap, i+1)
	}

	if err := afero.WriteFile(fs, path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// WriteSingleMarkdown writes one conversation as its own document, titled by
// the conversation rather than the export.
func WriteSingleMarkdown(fs afero.Fs, path string, snap Snapshot) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", snap.Title)
	fmt.Fprintf(&b, "**Created:** %s  \n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**ID:** %d  \n\n", snap.ID)
	b.WriteString("---\n\n")

	for _, m := range snap.Messages {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n---\n\n", roleLabel(m.Role), m.Content)
	}

	if err := afero.WriteFile(fs, path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func writeConversationMarkdown(b *strings.Builder, snap Snapshot, index int) {
	fmt.Fprintf(b, "## %d. %s\n\n", index, snap.Title)
	fmt.Fprintf(b, "**ID:** %d  \n", snap.ID)
	fmt.Fprintf(b, "**Created:** %s  \n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(b, "**Messages:** %d\n\n", len(snap.Messages))

	for i, m := range snap.Messages {
		fmt.Fprintf(b, "### %s (message %d)\n\n%s\n\n", roleLabel(m.Role), i+1, m.Content)
	}
	b.WriteString("---\n\n")
}

func roleLabel(role string) string {
	switch role {
	case chatapi.RoleUser:
		return "User"
	case chatapi.RoleAssistant:
		return "Assistant"
	case chatapi.RoleSystem:
		return "System"
	default:
		return role
	}
}

// Filename derives a timestamped export file name such as
// "chatdesk_export_20240131_154500.json".
func Filename(base, extension string) string {
	return fmt.Sprintf("%s_%s.%s", base, time.Now().Format("20060102_150405"), extension)
}
