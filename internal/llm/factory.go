package llm

import (
	"fmt"

	"github.com/user/ansari/internal/config"
)

// Factory creates LLM clients
type Factory struct {
	retryClient *RetryClient
}

// NewFactory creates a new LLM factory. A nil retry client is replaced by
// one with the default configuration.
func NewFactory(retryClient *RetryClient) *Factory {
	return &Factory{
		retryClient: retryClient,
	}
}

// NewFactoryFromConfig builds the shared retry client from cfg
func NewFactoryFromConfig(cfg config.LLMConfig) *Factory {
	retryCfg := DefaultRetryConfig()
	if cfg.HTTPRetries > 0 {
		retryCfg.MaxAttempts = cfg.HTTPRetries
	}
	return NewFactory(NewRetryClientWithTimeout(cfg.GetRequestTimeout(), retryCfg))
}

// CreateClient creates a streaming client based on the provider configuration
func (f *Factory) CreateClient(cfg config.LLMConfig) (StreamingClient, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg, f.retryClient), nil
	case "anthropic":
		return NewAnthropicClient(cfg, f.retryClient), nil
	case "gemini":
		return NewGeminiClient(cfg, f.retryClient), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic, gemini)", cfg.Provider)
	}
}
