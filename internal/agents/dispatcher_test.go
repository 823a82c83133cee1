package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/logging"
	testHelpers "github.com/user/ansari/internal/testing"
	"github.com/user/ansari/internal/tools"
)

func TestDispatcher_Dispatch(t *testing.T) {
	quran := testHelpers.NewFakeTool("search_quran", "verse 1", "verse 2")
	d := NewDispatcher(tools.NewRegistry(quran), logging.NewTestLogger(t))

	msgs, err := d.Dispatch(context.Background(), "search_quran", `{"query":"patience"}`)
	require.NoError(t, err)

	want := []llmtypes.Message{
		{Role: llmtypes.RoleFunction, Name: "search_quran", Content: "verse 1"},
		{Role: llmtypes.RoleFunction, Name: "search_quran", Content: "verse 2"},
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("Dispatch() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"patience"}, quran.Queries())
}

func TestDispatcher_NoResults(t *testing.T) {
	d := NewDispatcher(tools.NewRegistry(testHelpers.NewFakeTool("search_hadith")), logging.NewTestLogger(t))

	msgs, err := d.Dispatch(context.Background(), "search_hadith", `{"query":"nothing"}`)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, NoResultsMessage, msgs[0].Content)
	assert.Equal(t, "search_hadith", msgs[0].Name)
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := NewDispatcher(tools.NewRegistry(testHelpers.NewFakeTool("search_quran")), logging.NewTestLogger(t))

	msgs, err := d.Dispatch(context.Background(), "search_tafsir", `{"query":"x"}`)
	assert.Nil(t, msgs)
	var unknown *apperrors.UnknownToolError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "search_tafsir", unknown.Tool)
}

func TestDispatcher_MalformedArguments(t *testing.T) {
	tool := testHelpers.NewFakeTool("search_quran", "r")
	d := NewDispatcher(tools.NewRegistry(tool), logging.NewTestLogger(t))

	for _, args := range []string{`{"query":`, `{"q":"x"}`, `{"query":42}`, ``} {
		msgs, err := d.Dispatch(context.Background(), "search_quran", args)
		assert.Nil(t, msgs, "args %q", args)
		var malformed *apperrors.MalformedToolArgumentsError
		assert.True(t, errors.As(err, &malformed), "args %q: expected MalformedToolArgumentsError, got %v", args, err)
	}
	assert.Empty(t, tool.Queries(), "tool should not run on malformed arguments")
}

func TestDispatcher_ToolFailureBecomesMessage(t *testing.T) {
	tool := testHelpers.NewFakeTool("search_mawsuah")
	tool.Err = errors.New("upstream 503")
	d := NewDispatcher(tools.NewRegistry(tool), logging.NewTestLogger(t))

	msgs, err := d.Dispatch(context.Background(), "search_mawsuah", `{"query":"zakat"}`)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Error: upstream 503", msgs[0].Content)
	assert.Equal(t, llmtypes.RoleFunction, msgs[0].Role)
}

func TestDispatcher_ToolFailureAfterCancel(t *testing.T) {
	tool := testHelpers.NewFakeTool("search_quran")
	tool.Err = errors.New("request aborted")
	d := NewDispatcher(tools.NewRegistry(tool), logging.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Dispatch(ctx, "search_quran", `{"query":"x"}`)
	assert.ErrorIs(t, err, context.Canceled)
}
