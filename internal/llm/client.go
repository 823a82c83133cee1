package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llmtypes"
)

// Type aliases for backward compatibility
type Message = llmtypes.Message
type Fragment = llmtypes.Fragment
type CompletionRequest = llmtypes.CompletionRequest
type FunctionDefinition = llmtypes.FunctionDefinition

// FragmentStream yields the fragments of one streamed completion.
// Recv returns io.EOF once the provider finished the stream.
type FragmentStream interface {
	Recv() (Fragment, error)
	Close() error
}

// StreamingClient is the interface for completion providers
type StreamingClient interface {
	// StreamCompletion opens a streamed completion. The returned stream
	// must be closed by the caller.
	StreamCompletion(ctx context.Context, req CompletionRequest) (FragmentStream, error)

	// GetProvider returns the provider name
	GetProvider() string

	// GetModel returns the configured model identifier
	GetModel() string
}

// BaseLLMClient provides common functionality for all LLM clients
type BaseLLMClient struct {
	retryClient *RetryClient
	idleTimeout time.Duration
}

// NewBaseLLMClient creates a new base LLM client
func NewBaseLLMClient(retryClient *RetryClient, idleTimeout time.Duration) *BaseLLMClient {
	// If no retry client provided, create a default one
	if retryClient == nil {
		retryClient = NewRetryClient(nil) // Uses default config
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultRequestTimeout
	}
	return &BaseLLMClient{
		retryClient: retryClient,
		idleTimeout: idleTimeout,
	}
}

// openStream posts payload and returns an SSE stream decoded by decode.
//
// Transport failures are returned as retryable connection errors. Status 429
// and 5xx are retryable response errors; any other non-200 status is final.
// Cancellation of ctx is returned unwrapped.
func (b *BaseLLMClient) openStream(
	ctx context.Context,
	provider string,
	url string,
	headers map[string]string,
	payload interface{},
	decode decodeFunc,
) (FragmentStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := b.doHTTPRequest(streamCtx, http.MethodPost, url, headers, payload)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.NewLLMConnectionError(provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		reason := fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apperrors.NewRetryableLLMResponseError(provider, reason)
		}
		return nil, apperrors.NewLLMResponseError(provider, reason)
	}

	return newSSEStream(streamCtx, cancel, provider, resp.Body, b.idleTimeout, decode), nil
}

// doHTTPRequest executes an HTTP request with JSON payload and returns the response.
// The caller is responsible for closing the response body and handling status codes.
func (b *BaseLLMClient) doHTTPRequest(
	ctx context.Context,
	method string,
	url string,
	headers map[string]string,
	payload interface{},
) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := b.retryClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}
