package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "chatdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConversationCRUD(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := CreateConversation(ctx, db.DB(), "First session", time.Now())
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	conv, err := GetConversation(ctx, db.DB(), id)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "First session", conv.Title)

	require.NoError(t, RenameConversation(ctx, db.DB(), id, "Renamed"))
	conv, err = GetConversation(ctx, db.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", conv.Title)

	missing, err := GetConversation(ctx, db.DB(), 99999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMessageOrdering(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	convID, err := CreateConversation(ctx, db.DB(), "ordering", time.Now())
	require.NoError(t, err)

	base := time.Now()
	contents := []string{"one", "two", "three", "four"}
	for i, c := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		_, err := AddMessage(ctx, db.DB(), convID, role, c, base.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
	}

	messages, err := GetMessages(ctx, db.DB(), convID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	for i, m := range messages {
		assert.Equal(t, contents[i], m.Content)
	}
}

func TestCascadeDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	convID, err := CreateConversation(ctx, db.DB(), "doomed", time.Now())
	require.NoError(t, err)
	_, err = AddMessage(ctx, db.DB(), convID, "user", "hello", time.Now())
	require.NoError(t, err)

	tagID, err := CreateTag(ctx, db.DB(), "work", "")
	require.NoError(t, err)
	require.NoError(t, TagConversation(ctx, db.DB(), convID, tagID))

	require.NoError(t, DeleteConversation(ctx, db.DB(), convID))

	count, err := CountMessages(ctx, db.DB(), convID)
	require.NoError(t, err)
	assert.Zero(t, count, "messages must be cascade-deleted")

	convs, err := GetConversationsByTag(ctx, db.DB(), tagID)
	require.NoError(t, err)
	assert.Empty(t, convs, "tag associations must be cascade-deleted")

	// The tag itself survives.
	tags, err := ListTags(ctx, db.DB())
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestSearchConversations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first, err := CreateConversation(ctx, db.DB(), "Quicksort help", time.Now())
	require.NoError(t, err)
	second, err := CreateConversation(ctx, db.DB(), "Dinner ideas", time.Now())
	require.NoError(t, err)
	_, err = AddMessage(ctx, db.DB(), second, "user", "something about SORTING pasta", time.Now())
	require.NoError(t, err)

	results, err := SearchConversations(ctx, db.DB(), "sort")
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = SearchConversations(ctx, db.DB(), "quicksort")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, first, results[0].ID)

	results, err = SearchConversations(ctx, db.DB(), "nope")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTagUniqueness(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id1, err := CreateTag(ctx, db.DB(), "ideas", "#112233")
	require.NoError(t, err)
	id2, err := CreateTag(ctx, db.DB(), "ideas", "#445566")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "duplicate tag name must resolve to the existing tag")
}

func TestTagAssociation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	convID, err := CreateConversation(ctx, db.DB(), "Tagged", time.Now())
	require.NoError(t, err)
	otherID, err := CreateConversation(ctx, db.DB(), "Untagged", time.Now())
	require.NoError(t, err)

	tagID, err := CreateTag(ctx, db.DB(), "work", "#112233")
	require.NoError(t, err)

	require.NoError(t, TagConversation(ctx, db.DB(), convID, tagID))
	// assigning twice is a no-op, not an error
	require.NoError(t, TagConversation(ctx, db.DB(), convID, tagID))

	tags, err := GetConversationTags(ctx, db.DB(), convID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "work", tags[0].Name)

	byTag, err := GetConversationsByTag(ctx, db.DB(), tagID)
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, convID, byTag[0].ID)

	none, err := GetConversationTags(ctx, db.DB(), otherID)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, UntagConversation(ctx, db.DB(), convID, tagID))
	tags, err = GetConversationTags(ctx, db.DB(), convID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"hi", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{"Hello, world! This is a test.", 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.content), "content %q", tt.content)
	}
}

func TestTokenEstimateRecomputedOnRead(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	convID, err := CreateConversation(ctx, db.DB(), "tokens", time.Now())
	require.NoError(t, err)
	_, err = AddMessage(ctx, db.DB(), convID, "user", "12345678", time.Now())
	require.NoError(t, err)

	// Simulate a row written before the cache column carried a value.
	_, err = db.DB().Exec("UPDATE messages SET tokens_estimated = 0")
	require.NoError(t, err)

	messages, err := GetMessages(ctx, db.DB(), convID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, 2, messages[0].TokensEstimated)

	total, err := ConversationTokenTotal(ctx, db.DB(), convID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
