package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/ansari/internal/config"
	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llmtypes"
)

const anthropicMaxTokens = 4096

// AnthropicClient implements StreamingClient for Anthropic Claude.
//
// The messages API has no function role, so function results are sent back
// as user text prefixed with the tool name. Tool use blocks are mapped onto
// function fragments. A json_object response format is not supported and is
// ignored.
type AnthropicClient struct {
	*BaseLLMClient
	apiKey  string
	model   string
	baseURL string
}

// anthropicRequest represents the request body for Anthropic API
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Stream      bool               `json:"stream"`
}

// anthropicMessage represents a message in Anthropic format
type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

// anthropicContentBlock represents a text content block
type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicTool represents a tool definition
type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// anthropicStreamEvent covers every event type of the messages stream
type anthropicStreamEvent struct {
	Type         string                `json:"type"`
	Index        int                   `json:"index"`
	ContentBlock *anthropicStreamBlock `json:"content_block,omitempty"`
	Delta        *anthropicStreamDelta `json:"delta,omitempty"`
	Error        *anthropicError       `json:"error,omitempty"`
}

type anthropicStreamBlock struct {
	Type string `json:"type"` // text, tool_use
	Text string `json:"text,omitempty"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type anthropicStreamDelta struct {
	Type        string `json:"type"` // text_delta, input_json_delta
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// anthropicError represents an error from Anthropic
type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(cfg config.LLMConfig, retryClient *RetryClient) *AnthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicClient{
		BaseLLMClient: NewBaseLLMClient(retryClient, cfg.GetRequestTimeout()),
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
	}
}

// StreamCompletion opens a streamed message
func (c *AnthropicClient) StreamCompletion(ctx context.Context, req CompletionRequest) (FragmentStream, error) {
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}
	url := c.baseURL + "/v1/messages"
	return c.openStream(ctx, c.GetProvider(), url, headers, c.convertRequest(req), c.decodeEvent)
}

// GetProvider returns the provider name
func (c *AnthropicClient) GetProvider() string {
	return "anthropic"
}

// GetModel returns the configured model
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// convertRequest converts internal request to Anthropic format
func (c *AnthropicClient) convertRequest(req CompletionRequest) anthropicRequest {
	var system []string
	var messages []anthropicMessage

	appendText := func(role, text string) {
		block := anthropicContentBlock{Type: "text", Text: text}
		// Consecutive turns of the same role are merged
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, block)
			return
		}
		messages = append(messages, anthropicMessage{Role: role, Content: []anthropicContentBlock{block}})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case llmtypes.RoleSystem:
			system = append(system, msg.Content)
		case llmtypes.RoleAssistant:
			if msg.Content != "" {
				appendText("assistant", msg.Content)
			}
		case llmtypes.RoleFunction:
			appendText("user", functionResultText(msg))
		default:
			appendText("user", msg.Content)
		}
	}

	anReq := anthropicRequest{
		Model:       c.model,
		Messages:    messages,
		System:      strings.Join(system, "\n\n"),
		MaxTokens:   anthropicMaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}

	if len(req.Functions) > 0 {
		anReq.Tools = make([]anthropicTool, len(req.Functions))
		for i, fn := range req.Functions {
			anReq.Tools[i] = anthropicTool{
				Name:        fn.Name,
				Description: fn.Description,
				InputSchema: fn.Parameters,
			}
		}
	}

	return anReq
}

// decodeEvent maps stream events to fragments:
// a text block start or text delta is a text fragment, a tool_use block start
// carries the function name and input_json_delta carries argument pieces.
// message_stop yields the end marker.
func (c *AnthropicClient) decodeEvent(event SSEEvent) ([]Fragment, bool, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(event.Data, &ev); err != nil {
		return nil, false, apperrors.NewLLMResponseError(c.GetProvider(), fmt.Sprintf("malformed event: %v", err))
	}

	switch ev.Type {
	case "content_block_start":
		if ev.ContentBlock == nil {
			return nil, false, nil
		}
		switch ev.ContentBlock.Type {
		case "text":
			// The block opens empty; its text follows as deltas
			if ev.ContentBlock.Text == "" {
				return nil, false, nil
			}
			return []Fragment{llmtypes.TextFragment(ev.ContentBlock.Text)}, false, nil
		case "tool_use":
			return []Fragment{llmtypes.FunctionFragment(ev.ContentBlock.Name, "")}, false, nil
		}
	case "content_block_delta":
		if ev.Delta == nil {
			return nil, false, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []Fragment{llmtypes.TextFragment(ev.Delta.Text)}, false, nil
		case "input_json_delta":
			return []Fragment{llmtypes.FunctionFragment("", ev.Delta.PartialJSON)}, false, nil
		}
	case "message_stop":
		return []Fragment{llmtypes.EndFragment()}, true, nil
	case "error":
		reason := "stream error"
		if ev.Error != nil {
			reason = ev.Error.Message
			if ev.Error.Type == "overloaded_error" {
				return nil, false, apperrors.NewRetryableLLMResponseError(c.GetProvider(), reason)
			}
		}
		return nil, false, apperrors.NewLLMResponseError(c.GetProvider(), reason)
	}
	// message_start, content_block_stop, message_delta, ping
	return nil, false, nil
}

// functionResultText renders a function message for providers without a
// function role
func functionResultText(msg Message) string {
	if msg.Name == "" {
		return msg.Content
	}
	return fmt.Sprintf("Result from %s:\n%s", msg.Name, msg.Content)
}
