package config

import (
	"time"
)

// Settings holds every knob of the agent. Keys mirror the environment
// variable names (lowercased) so that .env, config.yaml and the process
// environment all address the same field.
type Settings struct {
	LLM          LLMConfig          `mapstructure:",squash" yaml:",inline"`
	Conversation ConversationConfig `mapstructure:",squash" yaml:",inline"`
	Tools        ToolsConfig        `mapstructure:",squash" yaml:",inline"`
	Prompts      PromptsConfig      `mapstructure:",squash" yaml:",inline"`
	Langfuse     LangfuseConfig     `mapstructure:",squash" yaml:",inline"`
	ABTesting    ABTestingConfig    `mapstructure:",squash" yaml:",inline"`
	Store        StoreConfig        `mapstructure:",squash" yaml:",inline"`
	Logging      LoggingConfig      `mapstructure:",squash" yaml:",inline"`
}

// LLMConfig holds completion endpoint configuration
type LLMConfig struct {
	Provider       string `mapstructure:"llm_provider" yaml:"llm_provider"` // openai, anthropic, gemini
	Model          string `mapstructure:"model" yaml:"model"`
	APIKey         string `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	BaseURL        string `mapstructure:"llm_base_url" yaml:"llm_base_url"`
	RequestTimeout int    `mapstructure:"request_timeout" yaml:"request_timeout"` // seconds
	HTTPRetries    int    `mapstructure:"http_retries" yaml:"http_retries"`
	JSONFormat     bool   `mapstructure:"json_format" yaml:"json_format"`
}

// ConversationConfig holds the round loop budgets
type ConversationConfig struct {
	MaxFunctionTries  int `mapstructure:"max_function_tries" yaml:"max_function_tries"`
	MaxFailures       int `mapstructure:"max_failures" yaml:"max_failures"`
	MaxMalformedCalls int `mapstructure:"max_malformed_calls" yaml:"max_malformed_calls"`
	FailureBackoff    int `mapstructure:"failure_backoff" yaml:"failure_backoff"` // seconds
}

// ToolsConfig holds the search tool credentials and the result cache
type ToolsConfig struct {
	KalematAPIKey     string `mapstructure:"kalemat_api_key" yaml:"kalemat_api_key"`
	KalematBaseURL    string `mapstructure:"kalemat_base_url" yaml:"kalemat_base_url"`
	VectaraAuthToken  string `mapstructure:"vectara_auth_token" yaml:"vectara_auth_token"`
	VectaraCustomerID string `mapstructure:"vectara_customer_id" yaml:"vectara_customer_id"`
	VectaraCorpusID   string `mapstructure:"vectara_corpus_id" yaml:"vectara_corpus_id"`
	VectaraBaseURL    string `mapstructure:"vectara_base_url" yaml:"vectara_base_url"`
	NumResults        int    `mapstructure:"tool_num_results" yaml:"tool_num_results"`
	CacheEnabled      bool   `mapstructure:"tool_cache_enabled" yaml:"tool_cache_enabled"`
	CacheMaxSize      int    `mapstructure:"tool_cache_max_size" yaml:"tool_cache_max_size"`
	CacheTTL          int    `mapstructure:"tool_cache_ttl" yaml:"tool_cache_ttl"` // minutes
}

// PromptsConfig selects the prompt templates
type PromptsConfig struct {
	TemplateDir          string `mapstructure:"template_dir" yaml:"template_dir"`
	SystemPromptFileName string `mapstructure:"system_prompt_file_name" yaml:"system_prompt_file_name"`
}

// LangfuseConfig enables trace export when both keys are set
type LangfuseConfig struct {
	PublicKey string `mapstructure:"langfuse_public_key" yaml:"langfuse_public_key"`
	SecretKey string `mapstructure:"langfuse_secret_key" yaml:"langfuse_secret_key"`
	Host      string `mapstructure:"langfuse_host" yaml:"langfuse_host"`
}

// ABTestingConfig identifies the comparison experiment
type ABTestingConfig struct {
	ExperimentID     int    `mapstructure:"ab_testing_experiment_id" yaml:"ab_testing_experiment_id"`
	Model1ID         int    `mapstructure:"ab_testing_model_1_id" yaml:"ab_testing_model_1_id"`
	Model2ID         int    `mapstructure:"ab_testing_model_2_id" yaml:"ab_testing_model_2_id"`
	Model1PromptName string `mapstructure:"ab_testing_model_1_prompt" yaml:"ab_testing_model_1_prompt"`
	Model2PromptName string `mapstructure:"ab_testing_model_2_prompt" yaml:"ab_testing_model_2_prompt"`
}

// StoreConfig holds the SQLite message store location
type StoreConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	LogDir       string `mapstructure:"log_dir" yaml:"log_dir"`
	FileLevel    string `mapstructure:"log_file_level" yaml:"log_file_level"`       // debug, info, warn, error
	ConsoleLevel string `mapstructure:"log_console_level" yaml:"log_console_level"` // debug, info, warn, error
}

// GetRequestTimeout returns the per-call network timeout
func (c *LLMConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetFailureBackoff returns the fixed wait between failed attempts
func (c *ConversationConfig) GetFailureBackoff() time.Duration {
	if c.FailureBackoff < 0 {
		return 0
	}
	return time.Duration(c.FailureBackoff) * time.Second
}

// GetCacheTTL returns the tool cache TTL as a time.Duration
func (c *ToolsConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.CacheTTL) * time.Minute
}

// Enabled reports whether trace export is configured
func (c *LangfuseConfig) Enabled() bool {
	return c.SecretKey != "" && c.PublicKey != ""
}

// Redacted returns a copy with secrets masked, for display
func (s Settings) Redacted() Settings {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		if len(v) <= 4 {
			return "****"
		}
		return v[:2] + "****" + v[len(v)-2:]
	}
	s.LLM.APIKey = mask(s.LLM.APIKey)
	s.Tools.KalematAPIKey = mask(s.Tools.KalematAPIKey)
	s.Tools.VectaraAuthToken = mask(s.Tools.VectaraAuthToken)
	s.Langfuse.SecretKey = mask(s.Langfuse.SecretKey)
	return s
}
