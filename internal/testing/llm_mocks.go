package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func WriteSSE(w http.ResponseWriter, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func WriteSSEDone(w http.ResponseWriter) {
	fmt.Fprintln(w, "data: [DONE]")
	fmt.Fprintln(w)
}

func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
}

func SetJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

type MockServerOption func(*mockServerConfig)

type mockServerConfig struct {
	validateAuth bool
	authHeader   string
	authValue    string
}

func WithAuthValidation(header, value string) MockServerOption {
	return func(cfg *mockServerConfig) {
		cfg.validateAuth = true
		cfg.authHeader = header
		cfg.authValue = value
	}
}

func NewMockServer(t *testing.T, handler http.HandlerFunc, opts ...MockServerOption) *httptest.Server {
	t.Helper()
	cfg := &mockServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	wrappedHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.validateAuth {
			if r.Header.Get(cfg.authHeader) != cfg.authValue {
				t.Errorf("Expected %s header '%s', got '%s'", cfg.authHeader, cfg.authValue, r.Header.Get(cfg.authHeader))
			}
		}
		handler(w, r)
	})

	server := httptest.NewServer(wrappedHandler)
	t.Cleanup(server.Close)
	return server
}

func UnauthorizedHandler(errorBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(errorBody))
	}
}

func RateLimitHandler(errorBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(errorBody))
	}
}

func InternalErrorHandler(errorBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(errorBody))
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// OpenAIStreamChunk builds a chat.completion.chunk with a text delta.
// An empty content produces a delta without the content key.
func OpenAIStreamChunk(content string, finishReason string) string {
	fr := "null"
	if finishReason != "" {
		fr = jsonString(finishReason)
	}
	deltaContent := ""
	if content != "" {
		deltaContent = `"content":` + jsonString(content)
	}
	return fmt.Sprintf(`{"id":"chatcmpl-123","object":"chat.completion.chunk","created":1234567890,"model":"gpt-4o","choices":[{"index":0,"delta":{%s},"finish_reason":%s}]}`, deltaContent, fr)
}

// OpenAIRoleChunk is the opening chunk of a text round
func OpenAIRoleChunk() string {
	return `{"id":"chatcmpl-123","object":"chat.completion.chunk","created":1234567890,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}`
}

// OpenAIFunctionCallChunk builds a chunk carrying a function_call delta.
// The name is only present when non-empty.
func OpenAIFunctionCallChunk(name, args string) string {
	namePart := ""
	if name != "" {
		namePart = `"name":` + jsonString(name) + `,`
	}
	return fmt.Sprintf(`{"id":"chatcmpl-123","object":"chat.completion.chunk","created":1234567890,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":null,"function_call":{%s"arguments":%s}},"finish_reason":null}]}`, namePart, jsonString(args))
}

func OpenAIStreamHandler(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		WriteSSE(w, "", OpenAIRoleChunk())
		WriteSSE(w, "", OpenAIStreamChunk(content, ""))
		WriteSSE(w, "", OpenAIStreamChunk("", "stop"))
		WriteSSEDone(w)
	}
}

// OpenAIFunctionCallHandler streams a function round whose arguments are
// split into the given pieces
func OpenAIFunctionCallHandler(name string, argPieces ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		WriteSSE(w, "", OpenAIFunctionCallChunk(name, ""))
		for _, piece := range argPieces {
			WriteSSE(w, "", OpenAIFunctionCallChunk("", piece))
		}
		WriteSSE(w, "", OpenAIStreamChunk("", "function_call"))
		WriteSSEDone(w)
	}
}

func AnthropicMessageStart(inputTokens int) string {
	return fmt.Sprintf(`{"type":"message_start","message":{"id":"msg_123","type":"message","role":"assistant","content":[],"model":"claude-3-5-sonnet","stop_reason":null,"usage":{"input_tokens":%d,"output_tokens":0}}}`, inputTokens)
}

func AnthropicContentBlockStart(index int, blockType string) string {
	if blockType == "text" {
		return fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, index)
	}
	return AnthropicToolUseStart(index, "")
}

func AnthropicToolUseStart(index int, name string) string {
	return fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":"toolu_123","name":%s,"input":{}}}`, index, jsonString(name))
}

func AnthropicTextDelta(index int, text string) string {
	return fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%s}}`, index, jsonString(text))
}

func AnthropicInputJSONDelta(index int, partial string) string {
	return fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":%s}}`, index, jsonString(partial))
}

func AnthropicContentBlockStop(index int) string {
	return fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, index)
}

func AnthropicMessageDelta(stopReason string, outputTokens int) string {
	return fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":"%s","stop_sequence":null},"usage":{"output_tokens":%d}}`, stopReason, outputTokens)
}

func AnthropicMessageStop() string {
	return `{"type":"message_stop"}`
}

func AnthropicStreamHandler(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		WriteSSE(w, "message_start", AnthropicMessageStart(10))
		WriteSSE(w, "content_block_start", AnthropicContentBlockStart(0, "text"))
		WriteSSE(w, "content_block_delta", AnthropicTextDelta(0, content))
		WriteSSE(w, "content_block_stop", AnthropicContentBlockStop(0))
		WriteSSE(w, "message_delta", AnthropicMessageDelta("end_turn", 5))
		WriteSSE(w, "message_stop", AnthropicMessageStop())
	}
}

// AnthropicToolUseHandler streams one tool_use block whose input arrives in
// argPieces
func AnthropicToolUseHandler(name string, argPieces ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		WriteSSE(w, "message_start", AnthropicMessageStart(10))
		WriteSSE(w, "content_block_start", AnthropicToolUseStart(0, name))
		for _, piece := range argPieces {
			WriteSSE(w, "content_block_delta", AnthropicInputJSONDelta(0, piece))
		}
		WriteSSE(w, "content_block_stop", AnthropicContentBlockStop(0))
		WriteSSE(w, "message_delta", AnthropicMessageDelta("tool_use", 5))
		WriteSSE(w, "message_stop", AnthropicMessageStop())
	}
}

func GeminiChunk(text string, finishReason string) string {
	fr := ""
	if finishReason != "" {
		fr = `,"finishReason":` + jsonString(finishReason)
	}
	textPart := ""
	if text != "" {
		textPart = `{"text":` + jsonString(text) + `}`
	}
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[%s],"role":"model"}%s,"index":0}]}`, textPart, fr)
}

func GeminiFunctionCallChunk(name string, args map[string]interface{}) string {
	argsJSON, _ := json.Marshal(args)
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"functionCall":{"name":%s,"args":%s}}],"role":"model"},"finishReason":"STOP","index":0}]}`, jsonString(name), argsJSON)
}

func GeminiStreamHandler(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		WriteSSE(w, "", GeminiChunk(content, ""))
		WriteSSE(w, "", GeminiChunk("", "STOP"))
	}
}

// GeminiFunctionCallHandler streams a single functionCall part
func GeminiFunctionCallHandler(name string, args map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetSSEHeaders(w)
		WriteSSE(w, "", GeminiFunctionCallChunk(name, args))
	}
}

type RetryHandler struct {
	callCount      atomic.Int32
	failUntil      int
	failStatusCode int
	failBody       string
	successHandler http.HandlerFunc
}

func NewRetryHandler(failUntil, failStatusCode int, failBody string, successHandler http.HandlerFunc) *RetryHandler {
	return &RetryHandler{
		failUntil:      failUntil,
		failStatusCode: failStatusCode,
		failBody:       failBody,
		successHandler: successHandler,
	}
}

func (h *RetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(h.callCount.Add(1))
	if n <= h.failUntil {
		w.WriteHeader(h.failStatusCode)
		w.Write([]byte(h.failBody))
		return
	}
	h.successHandler(w, r)
}

func (h *RetryHandler) CallCount() int {
	return int(h.callCount.Load())
}

// SequenceHandler serves the i-th request with handlers[i]; requests past
// the end are served by the last handler
type SequenceHandler struct {
	callCount atomic.Int32
	handlers  []http.HandlerFunc
}

func NewSequenceHandler(handlers ...http.HandlerFunc) *SequenceHandler {
	return &SequenceHandler{handlers: handlers}
}

func (h *SequenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(h.callCount.Add(1))
	if n > len(h.handlers) {
		n = len(h.handlers)
	}
	h.handlers[n-1](w, r)
}

func (h *SequenceHandler) CallCount() int {
	return int(h.callCount.Load())
}
