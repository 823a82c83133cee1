package tools

import (
	"context"
	"net/http"
	"time"

	"github.com/user/ansari/internal/llmtypes"
)

// Tool is the interface that all search tools must implement
type Tool interface {
	// Name returns the tool name the model calls it by
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the JSON schema for the tool's parameters
	Parameters() map[string]interface{}

	// Run executes the search and returns the results in relevance order.
	// An empty slice means nothing matched.
	Run(ctx context.Context, query string) ([]string, error)
}

// HTTPDoer executes HTTP requests. *http.Client and llm.RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultRequestTimeout bounds a whole search request, body included
const DefaultRequestTimeout = 30 * time.Second

// NewHTTPClient returns the client tools use when none is given. A
// non-positive timeout means DefaultRequestTimeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &http.Client{Timeout: timeout}
}

// QueryParameters is the schema shared by every search tool: a single
// required string named query
func QueryParameters(description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"query"},
	}
}

// Registry maps tool names to tools. It is built once and only read
// afterwards, so it can be shared by concurrent sessions.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry; a later tool replaces an earlier one with
// the same name
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; !exists {
			r.order = append(r.order, t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r
}

// Get looks a tool up by name
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the tool names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	return len(r.order)
}

// Definitions returns the function schemas sent to the completion endpoint
func (r *Registry) Definitions() []llmtypes.FunctionDefinition {
	defs := make([]llmtypes.FunctionDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llmtypes.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
