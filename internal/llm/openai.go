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

// OpenAIClient implements StreamingClient for OpenAI-compatible chat
// completion APIs using the functions / function_call protocol
type OpenAIClient struct {
	*BaseLLMClient
	apiKey  string
	baseURL string
	model   string
}

// openaiRequest represents the request body for OpenAI API
type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	Stream         bool                  `json:"stream"`
	Functions      []openaiFunction      `json:"functions,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

// openaiMessage represents a message in OpenAI format
type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// openaiFunction represents a function definition in OpenAI format
type openaiFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

// openaiStreamChunk represents one chat.completion.chunk
type openaiStreamChunk struct {
	ID      string               `json:"id"`
	Choices []openaiStreamChoice `json:"choices"`
	Error   *openaiErrorDetail   `json:"error,omitempty"`
}

type openaiStreamChoice struct {
	Index        int         `json:"index"`
	Delta        openaiDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// openaiDelta keeps pointer fields so that an absent or null content stays
// distinguishable from an empty string
type openaiDelta struct {
	Role         string               `json:"role,omitempty"`
	Content      *string              `json:"content"`
	FunctionCall *openaiFunctionDelta `json:"function_call,omitempty"`
}

type openaiFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// openaiErrorDetail represents an error from OpenAI
type openaiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg config.LLMConfig, retryClient *RetryClient) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIClient{
		BaseLLMClient: NewBaseLLMClient(retryClient, cfg.GetRequestTimeout()),
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		model:         cfg.Model,
	}
}

// StreamCompletion opens a streamed chat completion
func (c *OpenAIClient) StreamCompletion(ctx context.Context, req CompletionRequest) (FragmentStream, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}
	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	return c.openStream(ctx, c.GetProvider(), url, headers, c.convertRequest(req), c.decodeEvent)
}

// GetProvider returns the provider name
func (c *OpenAIClient) GetProvider() string {
	return "openai"
}

// GetModel returns the configured model
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// convertRequest converts internal request to OpenAI format
func (c *OpenAIClient) convertRequest(req CompletionRequest) openaiRequest {
	messages := make([]openaiMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openaiMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
			Name:    msg.Name,
		})
	}

	oaReq := openaiRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      true,
	}

	if len(req.Functions) > 0 {
		oaReq.Functions = make([]openaiFunction, len(req.Functions))
		for i, fn := range req.Functions {
			oaReq.Functions[i] = openaiFunction{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			}
		}
	}

	if req.ResponseFormat == llmtypes.ResponseFormatJSON {
		oaReq.ResponseFormat = &openaiResponseFormat{Type: string(llmtypes.ResponseFormatJSON)}
	}

	return oaReq
}

// decodeEvent maps the first choice's delta of a chunk to a fragment.
// Chunks without choices carry no delta and yield nothing.
func (c *OpenAIClient) decodeEvent(event SSEEvent) ([]Fragment, bool, error) {
	if IsSSEDone(event.Data) {
		return nil, true, nil
	}

	var chunk openaiStreamChunk
	if err := json.Unmarshal(event.Data, &chunk); err != nil {
		return nil, false, apperrors.NewLLMResponseError(c.GetProvider(), fmt.Sprintf("malformed chunk: %v", err))
	}
	if chunk.Error != nil {
		return nil, false, apperrors.NewLLMResponseError(c.GetProvider(), chunk.Error.Message)
	}
	if len(chunk.Choices) == 0 {
		return nil, false, nil
	}

	delta := chunk.Choices[0].Delta
	fragment := Fragment{Content: delta.Content}
	if delta.FunctionCall != nil {
		fragment.FunctionCall = &llmtypes.FunctionCallDelta{
			Name:      delta.FunctionCall.Name,
			Arguments: delta.FunctionCall.Arguments,
		}
	}
	return []Fragment{fragment}, false, nil
}
