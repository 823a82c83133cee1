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

// GeminiClient implements StreamingClient for Google Gemini.
//
// Gemini delivers a function call in one piece, so a function round is a
// single function fragment carrying the serialized args followed by the end
// marker emitted on finishReason.
type GeminiClient struct {
	*BaseLLMClient
	apiKey  string
	model   string
	baseURL string
}

// geminiRequest represents the request body for Gemini API
type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	Tools             []geminiTool           `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
}

// geminiContent represents content in Gemini format
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart represents a part of content
type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// geminiTool represents a tool declaration
type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// geminiFunctionDeclaration represents a function declaration
type geminiFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// geminiGenerationConfig represents generation configuration
type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// geminiStreamChunk represents a single streaming response chunk
type geminiStreamChunk struct {
	Candidates []geminiStreamCandidate `json:"candidates"`
	Error      *geminiError            `json:"error,omitempty"`
}

// geminiStreamCandidate represents a candidate in a streaming chunk
type geminiStreamCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason *string       `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

// geminiError represents an error
type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(cfg config.LLMConfig, retryClient *RetryClient) *GeminiClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return &GeminiClient{
		BaseLLMClient: NewBaseLLMClient(retryClient, cfg.GetRequestTimeout()),
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
	}
}

// StreamCompletion opens a streamed generateContent call
func (c *GeminiClient) StreamCompletion(ctx context.Context, req CompletionRequest) (FragmentStream, error) {
	// Model format: models/gemini-1.5-pro or models/gemini-pro
	modelName := c.model
	if !strings.HasPrefix(modelName, "models/") {
		modelName = "models/" + modelName
	}
	url := fmt.Sprintf("%s/v1beta/%s:streamGenerateContent?alt=sse", c.baseURL, modelName)
	headers := map[string]string{
		"x-goog-api-key": c.apiKey,
	}
	return c.openStream(ctx, c.GetProvider(), url, headers, c.convertRequest(req), c.decodeEvent)
}

// GetProvider returns the provider name
func (c *GeminiClient) GetProvider() string {
	return "gemini"
}

// GetModel returns the configured model
func (c *GeminiClient) GetModel() string {
	return c.model
}

// convertRequest converts internal request to Gemini format
func (c *GeminiClient) convertRequest(req CompletionRequest) geminiRequest {
	var system []geminiPart
	var contents []geminiContent

	appendText := func(role, text string) {
		part := geminiPart{Text: text}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			return
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{part}})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case llmtypes.RoleSystem:
			system = append(system, geminiPart{Text: msg.Content})
		case llmtypes.RoleAssistant:
			if msg.Content != "" {
				appendText("model", msg.Content)
			}
		case llmtypes.RoleFunction:
			appendText("user", functionResultText(msg))
		default:
			if msg.Content == "" {
				continue
			}
			appendText("user", msg.Content)
		}
	}

	gemReq := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature: req.Temperature,
		},
	}
	if len(system) > 0 {
		gemReq.SystemInstruction = &geminiContent{Parts: system}
	}
	if req.ResponseFormat == llmtypes.ResponseFormatJSON {
		gemReq.GenerationConfig.ResponseMimeType = "application/json"
	}

	if len(req.Functions) > 0 {
		functions := make([]geminiFunctionDeclaration, len(req.Functions))
		for i, fn := range req.Functions {
			functions[i] = geminiFunctionDeclaration{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			}
		}
		gemReq.Tools = []geminiTool{{FunctionDeclarations: functions}}
	}

	return gemReq
}

// decodeEvent maps the parts of the first candidate to fragments and
// appends the end marker once a finishReason is present
func (c *GeminiClient) decodeEvent(event SSEEvent) ([]Fragment, bool, error) {
	var chunk geminiStreamChunk
	if err := json.Unmarshal(event.Data, &chunk); err != nil {
		return nil, false, apperrors.NewLLMResponseError(c.GetProvider(), fmt.Sprintf("malformed chunk: %v", err))
	}
	if chunk.Error != nil {
		if chunk.Error.Code == 429 || chunk.Error.Code >= 500 {
			return nil, false, apperrors.NewRetryableLLMResponseError(c.GetProvider(), chunk.Error.Message)
		}
		return nil, false, apperrors.NewLLMResponseError(c.GetProvider(), chunk.Error.Message)
	}
	if len(chunk.Candidates) == 0 {
		return nil, false, nil
	}

	candidate := chunk.Candidates[0]
	var fragments []Fragment
	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, false, apperrors.NewLLMResponseError(c.GetProvider(), fmt.Sprintf("unencodable function args: %v", err))
			}
			fragments = append(fragments, llmtypes.FunctionFragment(part.FunctionCall.Name, string(args)))
		case part.Text != "":
			fragments = append(fragments, llmtypes.TextFragment(part.Text))
		}
	}

	if candidate.FinishReason != nil {
		fragments = append(fragments, llmtypes.EndFragment())
		return fragments, true, nil
	}
	return fragments, false, nil
}
