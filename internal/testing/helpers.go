package testing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/user/ansari/internal/llm"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/tools"
)

// Round scripts the outcome of one StreamCompletion call
type Round struct {
	OpenErr   error               // returned by StreamCompletion itself
	Fragments []llmtypes.Fragment // delivered in order by Recv
	StreamErr error               // returned by Recv after the fragments instead of io.EOF
	Block     bool                // after the fragments Recv blocks until the context is done
}

// TextRound scripts a text answer delivered in the given pieces
func TextRound(pieces ...string) Round {
	frags := make([]llmtypes.Fragment, 0, len(pieces)+1)
	for _, p := range pieces {
		frags = append(frags, llmtypes.TextFragment(p))
	}
	return Round{Fragments: append(frags, llmtypes.EndFragment())}
}

// FunctionRound scripts a function call whose arguments arrive in pieces
func FunctionRound(name string, argPieces ...string) Round {
	frags := []llmtypes.Fragment{llmtypes.FunctionFragment(name, "")}
	for _, p := range argPieces {
		frags = append(frags, llmtypes.FunctionFragment("", p))
	}
	return Round{Fragments: append(frags, llmtypes.EndFragment())}
}

// ScriptedClient implements llm.StreamingClient by replaying rounds
type ScriptedClient struct {
	mu       sync.Mutex
	rounds   []Round
	requests []llm.CompletionRequest
	streams  []*SliceStream
	Model    string
}

// NewScriptedClient creates a client that answers call i with rounds[i]
func NewScriptedClient(rounds ...Round) *ScriptedClient {
	return &ScriptedClient{rounds: rounds, Model: "scripted-model"}
}

// StreamCompletion implements llm.StreamingClient
func (c *ScriptedClient) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (llm.FragmentStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Snapshot the request so later history appends do not show through
	req.Messages = append([]llmtypes.Message(nil), req.Messages...)
	req.Functions = append([]llmtypes.FunctionDefinition(nil), req.Functions...)
	c.requests = append(c.requests, req)

	n := len(c.requests) - 1
	if n >= len(c.rounds) {
		return nil, fmt.Errorf("scripted client: no round scripted for call %d", n+1)
	}
	round := c.rounds[n]
	if round.OpenErr != nil {
		return nil, round.OpenErr
	}

	stream := &SliceStream{ctx: ctx, fragments: round.Fragments, err: round.StreamErr, block: round.Block}
	c.streams = append(c.streams, stream)
	return stream, nil
}

// GetProvider implements llm.StreamingClient
func (c *ScriptedClient) GetProvider() string {
	return "scripted"
}

// GetModel implements llm.StreamingClient
func (c *ScriptedClient) GetModel() string {
	return c.Model
}

// Calls returns the number of StreamCompletion calls made
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns the recorded requests
func (c *ScriptedClient) Requests() []llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.CompletionRequest(nil), c.requests...)
}

// AllStreamsClosed reports whether every opened stream was closed
func (c *ScriptedClient) AllStreamsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.streams {
		if !s.Closed() {
			return false
		}
	}
	return true
}

// SliceStream implements llm.FragmentStream over a fixed fragment list
type SliceStream struct {
	ctx       context.Context
	fragments []llmtypes.Fragment
	err       error
	block     bool

	mu     sync.Mutex
	pos    int
	closed bool
}

// NewSliceStream creates a stream that yields fragments then err (or io.EOF)
func NewSliceStream(fragments []llmtypes.Fragment, err error) *SliceStream {
	return &SliceStream{ctx: context.Background(), fragments: fragments, err: err}
}

// Recv implements llm.FragmentStream
func (s *SliceStream) Recv() (llmtypes.Fragment, error) {
	s.mu.Lock()
	if s.pos < len(s.fragments) {
		f := s.fragments[s.pos]
		s.pos++
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()

	if s.block {
		<-s.ctx.Done()
		return llmtypes.Fragment{}, s.ctx.Err()
	}
	if s.err != nil {
		return llmtypes.Fragment{}, s.err
	}
	return llmtypes.Fragment{}, io.EOF
}

// Close implements llm.FragmentStream
func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *SliceStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeTool implements tools.Tool with canned results
type FakeTool struct {
	ToolName string
	Results  []string
	Err      error

	mu      sync.Mutex
	queries []string
}

// NewFakeTool creates a fake tool returning results
func NewFakeTool(name string, results ...string) *FakeTool {
	return &FakeTool{ToolName: name, Results: results}
}

func (f *FakeTool) Name() string        { return f.ToolName }
func (f *FakeTool) Description() string { return "fake " + f.ToolName }

func (f *FakeTool) Parameters() map[string]interface{} {
	return tools.QueryParameters("search query")
}

// Run records the query and returns the canned outcome
func (f *FakeTool) Run(ctx context.Context, query string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]string(nil), f.Results...), nil
}

// Queries returns the queries the tool was run with
func (f *FakeTool) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// MessageRecorder records logged messages
type MessageRecorder struct {
	mu       sync.Mutex
	messages []llmtypes.Message
	Err      error
}

// Log records one message
func (r *MessageRecorder) Log(ctx context.Context, role llmtypes.Role, content, toolName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, llmtypes.Message{Role: role, Content: content, Name: toolName})
	return r.Err
}

// Messages returns the recorded messages
func (r *MessageRecorder) Messages() []llmtypes.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llmtypes.Message(nil), r.messages...)
}

// AssertFileExists checks if a file exists at the given path
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Expected file to exist: %s", path)
	}
}

// AssertFileContains checks if a file contains the expected content
func AssertFileContains(t *testing.T, path, expected string) {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}

	if !strings.Contains(string(content), expected) {
		t.Errorf("File %s does not contain expected content.\nExpected substring: %s\nActual content:\n%s",
			path, expected, string(content))
	}
}

// WriteFile writes content under dir, creating parent directories
func WriteFile(t *testing.T, dir, relPath, content string) string {
	t.Helper()
	fullPath := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", fullPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", fullPath, err)
	}
	return fullPath
}
