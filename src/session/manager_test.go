package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdm-labs/chatdesk/src/chatapi"
	"github.com/bdm-labs/chatdesk/src/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewManager(db, nil), db
}

func TestCreateMakesCurrentAndClears(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	id, err := m.Create(ctx, "first")
	require.NoError(t, err)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, id, cur)
	assert.Zero(t, m.Len())

	_, err = m.AppendUser(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	// A second Create switches the session and clears the transcript.
	_, err = m.Create(ctx, "second")
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestAppendWithoutConversation(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.AppendUser(context.Background(), "orphan")
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestPersistThenMirror(t *testing.T) {
	ctx := context.Background()
	m, db := newTestManager(t)

	id, err := m.Create(ctx, "persist")
	require.NoError(t, err)

	_, err = m.AppendUser(ctx, "Hello")
	require.NoError(t, err)
	_, err = m.AppendAssistant(ctx, "Hi there!")
	require.NoError(t, err)

	// The durable store is authoritative.
	persisted, err := storage.GetMessages(ctx, db.DB(), id)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, "user", persisted[0].Role)
	assert.Equal(t, "Hello", persisted[0].Content)
	assert.Equal(t, "assistant", persisted[1].Role)
	assert.Equal(t, "Hi there!", persisted[1].Content)

	assert.Equal(t, []chatapi.Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there!"},
	}, m.History())
}

func TestLoadSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	id, err := m.Create(ctx, "snapshot")
	require.NoError(t, err)
	_, err = m.AppendUser(ctx, "before")
	require.NoError(t, err)

	snapshot, err := m.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	// Mutating the live transcript must not alter the earlier snapshot.
	_, err = m.AppendAssistant(ctx, "after")
	require.NoError(t, err)

	require.Len(t, snapshot, 1)
	assert.Equal(t, "before", snapshot[0].Content)

	// Same isolation for History copies.
	history := m.History()
	_, err = m.AppendUser(ctx, "later still")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestDeleteCurrentResetsSession(t *testing.T) {
	ctx := context.Background()
	m, db := newTestManager(t)

	keep, err := m.Create(ctx, "keep")
	require.NoError(t, err)
	doomed, err := m.Create(ctx, "doomed")
	require.NoError(t, err)
	_, err = m.AppendUser(ctx, "going away")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, []int64{doomed}))

	_, ok := m.Current()
	assert.False(t, ok, "deleting the current conversation must reset the session")
	assert.Zero(t, m.Len())

	// The other conversation is untouched.
	conv, err := storage.GetConversation(ctx, db.DB(), keep)
	require.NoError(t, err)
	require.NotNil(t, conv)
}

func TestDeleteOtherKeepsSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	other, err := m.Create(ctx, "other")
	require.NoError(t, err)
	current, err := m.Create(ctx, "current")
	require.NoError(t, err)
	_, err = m.AppendUser(ctx, "stays")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, []int64{other}))

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, current, cur)
	assert.Equal(t, 1, m.Len())
}

func TestTokenTotal(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, err := m.Create(ctx, "tokens")
	require.NoError(t, err)
	_, err = m.AppendUser(ctx, "12345678") // 2 tokens
	require.NoError(t, err)
	_, err = m.AppendAssistant(ctx, "abc") // floor 1
	require.NoError(t, err)

	assert.Equal(t, 3, m.TokenTotal())
}
