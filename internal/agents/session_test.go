package agents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ansari/internal/config"
	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/telemetry"
	testHelpers "github.com/user/ansari/internal/testing"
	"github.com/user/ansari/internal/tools"
)

const testSystemPrompt = "You are a helpful assistant."

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingTracer struct {
	mu          sync.Mutex
	generations []telemetry.Generation
	err         error
}

func (r *recordingTracer) Record(ctx context.Context, gen telemetry.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations = append(r.generations, gen)
	return r.err
}

func (r *recordingTracer) Generations() []telemetry.Generation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.Generation(nil), r.generations...)
}

type fixture struct {
	client  *testHelpers.ScriptedClient
	quran   *testHelpers.FakeTool
	sleeper *sleepRecorder
	tracer  *recordingTracer
	agent   *Agent
}

func defaultConversation() config.ConversationConfig {
	return config.ConversationConfig{
		MaxFunctionTries:  3,
		MaxFailures:       3,
		MaxMalformedCalls: 3,
		FailureBackoff:    5,
	}
}

func newFixture(t *testing.T, conv config.ConversationConfig, rounds ...testHelpers.Round) *fixture {
	t.Helper()
	f := &fixture{
		client:  testHelpers.NewScriptedClient(rounds...),
		quran:   testHelpers.NewFakeTool("search_quran", "verse 1", "verse 2"),
		sleeper: &sleepRecorder{},
		tracer:  &recordingTracer{},
	}
	f.agent = NewAgent(AgentConfig{
		SystemPrompt: testSystemPrompt,
		Greeting:     "Assalamu alaikum",
		Conversation: conv,
		Tracer:       f.tracer,
		Sleep:        f.sleeper.Sleep,
		Now:          func() time.Time { return testNow },
	}, f.client, tools.NewRegistry(f.quran), nil)
	return f
}

func collectTokens(t *testing.T, r *Reply) ([]string, error) {
	t.Helper()
	var tokens []string
	for s := range r.Tokens() {
		tokens = append(tokens, s)
	}
	return tokens, r.Err()
}

func TestSession_TextAnswer(t *testing.T) {
	f := newFixture(t, defaultConversation(), testHelpers.TextRound("Hi", " there"))
	s := f.agent.NewSession(SessionConfig{})

	tokens, err := collectTokens(t, s.ProcessInput(context.Background(), "Hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, tokens)

	want := []llmtypes.Message{
		{Role: llmtypes.RoleSystem, Content: testSystemPrompt},
		{Role: llmtypes.RoleUser, Content: "Hello"},
		{Role: llmtypes.RoleAssistant, Content: "Hi there"},
	}
	if diff := cmp.Diff(want, s.History()); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}

	reqs := f.client.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Functions, 1, "tools should be offered on the first round")
	assert.Equal(t, "search_quran", reqs[0].Functions[0].Name)
	assert.True(t, f.client.AllStreamsClosed())
}

func TestSession_FunctionCallThenAnswer(t *testing.T) {
	f := newFixture(t, defaultConversation(),
		testHelpers.FunctionRound("search_quran", `{"query":`, `"patience"}`),
		testHelpers.TextRound("Be patient."),
	)
	s := f.agent.NewSession(SessionConfig{})

	tokens, err := collectTokens(t, s.ProcessInput(context.Background(), "What does the Quran say about patience?"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Be patient."}, tokens, "function rounds emit no text")
	assert.Equal(t, []string{"patience"}, f.quran.Queries())

	want := []llmtypes.Message{
		{Role: llmtypes.RoleSystem, Content: testSystemPrompt},
		{Role: llmtypes.RoleUser, Content: "What does the Quran say about patience?"},
		{Role: llmtypes.RoleFunction, Name: "search_quran", Content: "verse 1"},
		{Role: llmtypes.RoleFunction, Name: "search_quran", Content: "verse 2"},
		{Role: llmtypes.RoleAssistant, Content: "Be patient."},
	}
	if diff := cmp.Diff(want, s.History()); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}

	reqs := f.client.Requests()
	require.Len(t, reqs, 2)
	if diff := cmp.Diff(want[:4], reqs[1].Messages); diff != "" {
		t.Errorf("Second request should carry the tool results (-want +got):\n%s", diff)
	}
}

func TestSession_UnknownToolStartsAnotherRound(t *testing.T) {
	f := newFixture(t, defaultConversation(),
		testHelpers.FunctionRound("search_tafsir", `{"query":"x"}`),
		testHelpers.TextRound("ok"),
	)
	s := f.agent.NewSession(SessionConfig{})

	text, err := s.ProcessInput(context.Background(), "q").Collect()
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, f.client.Calls())

	for _, m := range s.History() {
		assert.NotEqual(t, llmtypes.RoleFunction, m.Role, "unknown tool must not add function messages")
	}
}

func TestSession_TooManyFailures(t *testing.T) {
	transient := apperrors.NewLLMConnectionError("scripted", errors.New("connection refused"))
	f := newFixture(t, defaultConversation(),
		testHelpers.Round{OpenErr: transient},
		testHelpers.Round{OpenErr: transient},
		testHelpers.Round{OpenErr: transient},
		testHelpers.TextRound("never reached"),
	)
	s := f.agent.NewSession(SessionConfig{})

	text, err := s.ProcessInput(context.Background(), "q").Collect()
	assert.Empty(t, text)

	var tooMany *apperrors.TooManyFailuresError
	require.True(t, errors.As(err, &tooMany), "expected TooManyFailuresError, got %v", err)
	assert.Equal(t, 3, f.client.Calls(), "exactly MaxFailures attempts")
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, f.sleeper.waits)
	assert.Len(t, s.History(), 2, "no assistant message is committed")
	assert.Empty(t, f.tracer.Generations(), "failed loops are not traced")
}

func TestSession_NonRetryableOpenError(t *testing.T) {
	fatal := apperrors.NewLLMResponseError("scripted", "401 unauthorized")
	f := newFixture(t, defaultConversation(), testHelpers.Round{OpenErr: fatal})
	s := f.agent.NewSession(SessionConfig{})

	_, err := s.ProcessInput(context.Background(), "q").Collect()
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, f.client.Calls())
	assert.Empty(t, f.sleeper.waits)
}

func TestSession_BrokenStreamIsRetried(t *testing.T) {
	f := newFixture(t, defaultConversation(),
		testHelpers.Round{Fragments: []llmtypes.Fragment{llmtypes.TextFragment("par")}},
		testHelpers.TextRound("full answer"),
	)
	s := f.agent.NewSession(SessionConfig{})

	tokens, err := collectTokens(t, s.ProcessInput(context.Background(), "q"))
	require.NoError(t, err)
	// Delivered text of the broken round is kept and the retry follows it
	assert.Equal(t, []string{"par", "full answer"}, tokens)
	assert.Len(t, f.sleeper.waits, 1)

	last := s.History()[len(s.History())-1]
	assert.Equal(t, "full answer", last.Content, "only the completed round is committed")
	assert.True(t, f.client.AllStreamsClosed())
}

func TestSession_CollectKeepsBrokenRoundText(t *testing.T) {
	f := newFixture(t, defaultConversation(),
		testHelpers.Round{Fragments: []llmtypes.Fragment{llmtypes.TextFragment("Mercy is ")}},
		testHelpers.TextRound("Mercy encompasses all things."),
	)
	s := f.agent.NewSession(SessionConfig{})

	answer, err := s.ProcessInput(context.Background(), "q").Collect()
	require.NoError(t, err)
	assert.Equal(t, "Mercy is Mercy encompasses all things.", answer)

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, "Mercy encompasses all things.", history[2].Content)
}

func TestSession_FunctionTriesExhausted(t *testing.T) {
	conv := defaultConversation()
	conv.MaxFunctionTries = 2
	f := newFixture(t, conv,
		testHelpers.FunctionRound("search_quran", `{"query":"a"}`),
		testHelpers.FunctionRound("search_quran", `{"query":"b"}`),
		testHelpers.TextRound("done"),
	)
	s := f.agent.NewSession(SessionConfig{})

	_, err := s.ProcessInput(context.Background(), "q").Collect()
	require.NoError(t, err)

	reqs := f.client.Requests()
	require.Len(t, reqs, 3)
	assert.NotEmpty(t, reqs[0].Functions)
	assert.NotEmpty(t, reqs[1].Functions)
	assert.Empty(t, reqs[2].Functions, "tools are withheld once function tries are spent")
}

func TestSession_CountersResetPerInput(t *testing.T) {
	conv := defaultConversation()
	conv.MaxFunctionTries = 1
	f := newFixture(t, conv,
		testHelpers.FunctionRound("search_quran", `{"query":"a"}`),
		testHelpers.TextRound("first"),
		testHelpers.TextRound("second"),
	)
	s := f.agent.NewSession(SessionConfig{})

	_, err := s.ProcessInput(context.Background(), "one").Collect()
	require.NoError(t, err)
	_, err = s.ProcessInput(context.Background(), "two").Collect()
	require.NoError(t, err)

	reqs := f.client.Requests()
	require.Len(t, reqs, 3)
	assert.Empty(t, reqs[1].Functions)
	assert.NotEmpty(t, reqs[2].Functions, "a new input gets a fresh function budget")
}

func TestSession_MalformedCallsWithdrawTools(t *testing.T) {
	conv := defaultConversation()
	conv.MaxMalformedCalls = 2
	f := newFixture(t, conv,
		testHelpers.FunctionRound("search_quran", `not json`),
		testHelpers.FunctionRound("search_quran", `{"q":1}`),
		testHelpers.TextRound("answer without tools"),
	)
	s := f.agent.NewSession(SessionConfig{})

	text, err := s.ProcessInput(context.Background(), "q").Collect()
	require.NoError(t, err)
	assert.Equal(t, "answer without tools", text)
	assert.Empty(t, f.quran.Queries())

	reqs := f.client.Requests()
	require.Len(t, reqs, 3)
	assert.NotEmpty(t, reqs[1].Functions)
	assert.Empty(t, reqs[2].Functions, "the round after the cap is sent without tools")
}

func TestSession_UnknownToolsThenForcedText(t *testing.T) {
	f := newFixture(t, defaultConversation(),
		testHelpers.FunctionRound("search_tafsir", `{"query":"a"}`),
		testHelpers.FunctionRound("search_tafsir", `{"query":"b"}`),
		testHelpers.FunctionRound("search_tafsir", `{"query":"c"}`),
		testHelpers.TextRound("forced text answer"),
	)
	s := f.agent.NewSession(SessionConfig{})

	text, err := s.ProcessInput(context.Background(), "q").Collect()
	require.NoError(t, err)
	assert.Equal(t, "forced text answer", text)

	reqs := f.client.Requests()
	require.Len(t, reqs, 4)
	assert.Empty(t, reqs[3].Functions)

	history := s.History()
	assert.Len(t, history, 3, "undispatchable calls leave no messages behind")
	assert.Equal(t, llmtypes.RoleAssistant, history[2].Role)
}

func TestSession_MalformedCallsWithoutTools(t *testing.T) {
	conv := defaultConversation()
	conv.MaxFunctionTries = 0
	conv.MaxMalformedCalls = 2
	f := newFixture(t, conv,
		testHelpers.FunctionRound("search_quran", `not json`),
		testHelpers.FunctionRound("search_quran", `not json`),
		testHelpers.TextRound("unreachable"),
	)
	s := f.agent.NewSession(SessionConfig{})

	_, err := s.ProcessInput(context.Background(), "q").Collect()
	var malformed *apperrors.MalformedToolCallsError
	require.True(t, errors.As(err, &malformed), "expected MalformedToolCallsError, got %v", err)
	assert.Equal(t, 2, f.client.Calls())
}

func TestSession_MessageLogger(t *testing.T) {
	f := newFixture(t, defaultConversation(),
		testHelpers.FunctionRound("search_quran", `{"query":"x"}`),
		testHelpers.TextRound("answer"),
	)
	recorder := &testHelpers.MessageRecorder{}
	s := f.agent.NewSession(SessionConfig{MessageLogger: recorder})

	_, err := s.ProcessInput(context.Background(), "question").Collect()
	require.NoError(t, err)

	want := []llmtypes.Message{
		{Role: llmtypes.RoleUser, Content: "question"},
		{Role: llmtypes.RoleFunction, Name: "search_quran", Content: "verse 1"},
		{Role: llmtypes.RoleFunction, Name: "search_quran", Content: "verse 2"},
		{Role: llmtypes.RoleAssistant, Content: "answer"},
	}
	if diff := cmp.Diff(want, recorder.Messages()); diff != "" {
		t.Errorf("Logged messages mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_MessageLoggerErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, defaultConversation(), testHelpers.TextRound("fine"))
	recorder := &testHelpers.MessageRecorder{Err: errors.New("disk full")}
	s := f.agent.NewSession(SessionConfig{MessageLogger: recorder})

	text, err := s.ProcessInput(context.Background(), "q").Collect()
	require.NoError(t, err)
	assert.Equal(t, "fine", text)
	assert.Len(t, recorder.Messages(), 2)
}

func TestSession_ReplaceMessageHistory(t *testing.T) {
	f := newFixture(t, defaultConversation(), testHelpers.TextRound("d"))
	recorder := &testHelpers.MessageRecorder{}
	s := f.agent.NewSession(SessionConfig{MessageLogger: recorder})

	turns := []llmtypes.Message{
		{Role: llmtypes.RoleUser, Content: "a"},
		{Role: llmtypes.RoleAssistant, Content: "b"},
		{Role: llmtypes.RoleUser, Content: "c"},
	}
	text, err := s.ReplaceMessageHistory(context.Background(), turns).Collect()
	require.NoError(t, err)
	assert.Equal(t, "d", text)

	reqs := f.client.Requests()
	require.Len(t, reqs, 1)
	wantReq := append([]llmtypes.Message{{Role: llmtypes.RoleSystem, Content: testSystemPrompt}}, turns...)
	if diff := cmp.Diff(wantReq, reqs[0].Messages); diff != "" {
		t.Errorf("Request mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []llmtypes.Message{{Role: llmtypes.RoleAssistant, Content: "d"}}, recorder.Messages(),
		"restored turns are not logged again")
}

func TestSession_ReplaceMessageHistoryEndingWithAssistant(t *testing.T) {
	f := newFixture(t, defaultConversation())
	s := f.agent.NewSession(SessionConfig{})

	turns := []llmtypes.Message{
		{Role: llmtypes.RoleUser, Content: "a"},
		{Role: llmtypes.RoleAssistant, Content: "b"},
	}
	text, err := s.ReplaceMessageHistory(context.Background(), turns).Collect()
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 0, f.client.Calls(), "nothing to answer")
}

func TestSession_ReplaceMessageHistoryRejectsSystemTurns(t *testing.T) {
	f := newFixture(t, defaultConversation())
	s := f.agent.NewSession(SessionConfig{})

	_, err := s.ReplaceMessageHistory(context.Background(), []llmtypes.Message{
		{Role: llmtypes.RoleSystem, Content: "override"},
	}).Collect()
	assert.Error(t, err)
	assert.Len(t, s.History(), 1)
}

func TestSession_BusyAndClose(t *testing.T) {
	f := newFixture(t, defaultConversation(),
		testHelpers.Round{Fragments: []llmtypes.Fragment{llmtypes.TextFragment("thinking")}, Block: true},
		testHelpers.TextRound("after"),
	)
	s := f.agent.NewSession(SessionConfig{})

	first := s.ProcessInput(context.Background(), "one")
	assert.Equal(t, "thinking", <-first.Tokens())

	_, err := s.ProcessInput(context.Background(), "two").Collect()
	assert.ErrorIs(t, err, ErrSessionBusy)

	require.NoError(t, first.Close())
	assert.True(t, f.client.AllStreamsClosed())
	assert.Len(t, s.History(), 2, "an abandoned round commits nothing")

	text, err := s.ProcessInput(context.Background(), "three").Collect()
	require.NoError(t, err)
	assert.Equal(t, "after", text)
}

func TestSession_Trace(t *testing.T) {
	f := newFixture(t, defaultConversation(), testHelpers.TextRound("Hi", " there"))
	s := f.agent.NewSession(SessionConfig{ID: "session-1"})

	_, err := s.ProcessInput(context.Background(), "Hello").Collect()
	require.NoError(t, err)

	gens := f.tracer.Generations()
	require.Len(t, gens, 1)
	gen := gens[0]
	assert.Equal(t, ComputeTraceID(testNow, "Hello"), gen.TraceID)
	assert.Equal(t, "session-1", gen.SessionID)
	assert.Equal(t, "scripted-model", gen.Model)
	assert.Equal(t, "Hi there", gen.Completion)
	assert.Len(t, gen.Prompt, 2)
}

func TestSession_TraceErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, defaultConversation(), testHelpers.TextRound("ok"))
	f.tracer.err = errors.New("langfuse down")
	s := f.agent.NewSession(SessionConfig{})

	text, err := s.ProcessInput(context.Background(), "q").Collect()
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestSession_JSONFormat(t *testing.T) {
	client := testHelpers.NewScriptedClient(testHelpers.TextRound(`{"a":1}`))
	agent := NewAgent(AgentConfig{
		SystemPrompt: testSystemPrompt,
		Conversation: defaultConversation(),
		JSONFormat:   true,
	}, client, nil, nil)

	_, err := agent.NewSession(SessionConfig{}).ProcessInput(context.Background(), "q").Collect()
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, llmtypes.ResponseFormatJSON, reqs[0].ResponseFormat)
	assert.Empty(t, reqs[0].Functions, "an agent without tools offers none")
}

func TestAgent_Accessors(t *testing.T) {
	f := newFixture(t, defaultConversation())
	assert.Equal(t, "ansari", f.agent.Name())
	assert.Equal(t, "Assalamu alaikum", f.agent.Greet())
	assert.Equal(t, "scripted-model", f.agent.Model())

	s := f.agent.NewSession(SessionConfig{})
	assert.NotEmpty(t, s.ID())
	assert.NotEqual(t, s.ID(), f.agent.NewSession(SessionConfig{}).ID())
}
