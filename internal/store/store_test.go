package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llmtypes"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "ansari.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	var storeErr *apperrors.StoreError
	assert.True(t, errors.As(err, &storeErr))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ansari.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateConversation(ctx, &Conversation{ID: "c1", Agent: "ansari", Model: "gpt-4"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	c, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", c.Model)
}

func TestConversations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first := &Conversation{Agent: "ansari", Model: "gpt-4"}
	require.NoError(t, s.CreateConversation(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &Conversation{Agent: "ansari", Model: "gpt-4"}
	require.NoError(t, s.CreateConversation(ctx, second))

	require.NoError(t, s.AddMessage(ctx, first.ID, llmtypes.RoleUser, "What is   zakat?", ""))
	require.NoError(t, s.AddMessage(ctx, first.ID, llmtypes.RoleFunction, "result", "search_quran"))
	require.NoError(t, s.AddMessage(ctx, first.ID, llmtypes.RoleAssistant, "Zakat is ...", ""))
	require.NoError(t, s.AddMessage(ctx, first.ID, llmtypes.RoleUser, "Second question", ""))

	list, err := s.ListConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID, "most recently updated first")
	assert.Equal(t, 4, list[0].MessageCount)
	assert.Equal(t, "What is zakat?", list[0].Title, "first user message becomes the title")
	assert.Equal(t, 0, list[1].MessageCount)

	msgs, err := s.GetMessages(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, i, m.Sequence)
	}
	assert.Equal(t, "search_quran", msgs[1].ToolName)
	assert.Equal(t, llmtypes.RoleFunction, msgs[1].Role)
	assert.Empty(t, msgs[0].ToolName)
}

func TestAddMessage_UnknownConversation(t *testing.T) {
	s := openTestStore(t)
	err := s.AddMessage(context.Background(), "missing", llmtypes.RoleUser, "hi", "")
	require.Error(t, err)
}

func TestAddMessage_InvalidRole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, &Conversation{ID: "c", Agent: "a", Model: "m"}))

	err := s.AddMessage(ctx, "c", llmtypes.Role("tool"), "x", "")
	var storeErr *apperrors.StoreError
	assert.True(t, errors.As(err, &storeErr))
}

func TestTurnsAndMessageLogger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, &Conversation{ID: "c", Agent: "ansari", Model: "m"}))

	logger := s.MessageLogger("c")
	require.NoError(t, logger.Log(ctx, llmtypes.RoleSystem, "system prompt", ""))
	require.NoError(t, logger.Log(ctx, llmtypes.RoleUser, "q", ""))
	require.NoError(t, logger.Log(ctx, llmtypes.RoleFunction, "r", "search_hadith"))
	require.NoError(t, logger.Log(ctx, llmtypes.RoleAssistant, "a", ""))

	turns, err := s.Turns(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []llmtypes.Message{
		{Role: llmtypes.RoleUser, Content: "q"},
		{Role: llmtypes.RoleFunction, Content: "r", Name: "search_hadith"},
		{Role: llmtypes.RoleAssistant, Content: "a"},
	}, turns)

	_, err = s.Turns(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, &Conversation{ID: "c", Agent: "a", Model: "m"}))
	require.NoError(t, s.AddMessage(ctx, "c", llmtypes.RoleUser, "hi", ""))

	require.NoError(t, s.DeleteConversation(ctx, "c"))
	_, err := s.GetConversation(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := s.GetMessages(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages are deleted with their conversation")

	assert.ErrorIs(t, s.DeleteConversation(ctx, "c"), ErrNotFound)
}

func TestMakeTitle(t *testing.T) {
	assert.Equal(t, "a b", makeTitle("  a\n\tb "))

	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	title := makeTitle(long)
	assert.Len(t, []rune(title), titleLength)
	assert.Equal(t, "...", title[len(title)-3:])
}
