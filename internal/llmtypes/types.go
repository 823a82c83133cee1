package llmtypes

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// Valid reports whether r is one of the four conversation roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction:
		return true
	}
	return false
}

// Message represents a chat message. Messages are values; once appended to a
// history they are never modified.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"` // tool that produced the message (for role="function")
}

// FunctionDefinition describes a callable tool to the completion endpoint
type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ResponseFormat constrains the shape of the completion
type ResponseFormat string

const (
	ResponseFormatText ResponseFormat = ""
	ResponseFormatJSON ResponseFormat = "json_object"
)

// CompletionRequest is a request for a streamed completion
type CompletionRequest struct {
	Messages       []Message
	Functions      []FunctionDefinition // omitted from the wire when empty
	Temperature    float64
	ResponseFormat ResponseFormat
}

// FunctionCallDelta is the function-call component of a fragment
type FunctionCallDelta struct {
	Name      string // only set on the first fragment of a function round
	Arguments string
}

// Fragment is one incremental unit of a streamed response.
//
// Content is nil when the delta carries no text: in a text round that is the
// end-of-round marker. FunctionCall is nil when the delta carries no
// function-call component: in a function round that is the end-of-round
// marker.
type Fragment struct {
	Content      *string
	FunctionCall *FunctionCallDelta
}

// TextFragment builds a fragment carrying a text delta
func TextFragment(s string) Fragment {
	return Fragment{Content: &s}
}

// FunctionFragment builds a fragment carrying a function-call delta
func FunctionFragment(name, arguments string) Fragment {
	return Fragment{FunctionCall: &FunctionCallDelta{Name: name, Arguments: arguments}}
}

// EndFragment builds a fragment with no content and no function call
func EndFragment() Fragment {
	return Fragment{}
}
