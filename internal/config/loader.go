package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/user/ansari/internal/errors"
)

// defaults mirrors the settings of the original deployment
var defaults = map[string]interface{}{
	"llm_provider":              "openai",
	"model":                     "gpt-4o-2024-05-13",
	"openai_api_key":            "",
	"llm_base_url":              "",
	"request_timeout":           30,
	"http_retries":              2,
	"json_format":               false,
	"max_function_tries":        3,
	"max_failures":              1,
	"max_malformed_calls":       3,
	"failure_backoff":           5,
	"kalemat_api_key":           "",
	"kalemat_base_url":          "https://api.kalimat.dev",
	"vectara_auth_token":        "",
	"vectara_customer_id":       "",
	"vectara_corpus_id":         "",
	"vectara_base_url":          "https://api.vectara.io",
	"tool_num_results":          10,
	"tool_cache_enabled":        true,
	"tool_cache_max_size":       500,
	"tool_cache_ttl":            1440,
	"template_dir":              "resources/prompts",
	"system_prompt_file_name":   "system_msg_fn",
	"langfuse_public_key":       "",
	"langfuse_secret_key":       "",
	"langfuse_host":             "https://cloud.langfuse.com",
	"ab_testing_experiment_id":  1,
	"ab_testing_model_1_id":     1,
	"ab_testing_model_2_id":     2,
	"ab_testing_model_1_prompt": "system_msg_fn_v1",
	"ab_testing_model_2_prompt": "system_msg_fn",
	"db_path":                   ".ansari/ansari.db",
	"log_dir":                   ".ansari/logs",
	"log_file_level":            "info",
	"log_console_level":         "warn",
}

// Loader handles loading configuration from multiple sources
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return &Loader{v: v}
}

// Load resolves the settings.
// Precedence: CLI > environment > .ansari/config.yaml > ~/.ansari.yaml > defaults
func (l *Loader) Load(workDir string, cliOverrides map[string]interface{}) (*Settings, error) {
	if err := l.loadGlobalConfig(); err != nil {
		return nil, err
	}

	if err := l.loadProjectConfig(workDir); err != nil {
		return nil, err
	}

	l.applyCLIOverrides(cliOverrides)

	cfg := &Settings{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadGlobalConfig loads configuration from ~/.ansari.yaml
func (l *Loader) loadGlobalConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	globalConfig := filepath.Join(homeDir, ".ansari.yaml")
	if _, err := os.Stat(globalConfig); err != nil {
		return nil
	}

	l.v.SetConfigFile(globalConfig)
	if err := l.v.MergeInConfig(); err != nil {
		return errors.NewConfigFileError(globalConfig, err)
	}

	return nil
}

// loadProjectConfig loads configuration from .ansari/config.yaml
func (l *Loader) loadProjectConfig(workDir string) error {
	if workDir == "" {
		workDir = "."
	}

	configPath := filepath.Join(workDir, ".ansari", "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}

	l.v.SetConfigFile(configPath)
	if err := l.v.MergeInConfig(); err != nil {
		return errors.NewConfigFileError(configPath, err)
	}

	return nil
}

// applyCLIOverrides applies CLI flag overrides; nil values are skipped
func (l *Loader) applyCLIOverrides(overrides map[string]interface{}) {
	for key, value := range overrides {
		if value != nil {
			l.v.Set(key, value)
		}
	}
}

// Validate checks the settings needed by every command
func Validate(cfg *Settings) error {
	validProviders := map[string]bool{
		"openai":    true,
		"anthropic": true,
		"gemini":    true,
	}
	if !validProviders[cfg.LLM.Provider] {
		return errors.NewInvalidEnvVarError("LLM_PROVIDER", cfg.LLM.Provider, "Must be one of: openai, anthropic, gemini")
	}

	if cfg.Conversation.MaxFailures < 1 {
		return errors.NewInvalidEnvVarError("MAX_FAILURES", fmt.Sprint(cfg.Conversation.MaxFailures), "Must be at least 1")
	}
	if cfg.Conversation.MaxFunctionTries < 0 {
		return errors.NewInvalidEnvVarError("MAX_FUNCTION_TRIES", fmt.Sprint(cfg.Conversation.MaxFunctionTries), "Must not be negative")
	}
	if cfg.Conversation.MaxMalformedCalls < 1 {
		return errors.NewInvalidEnvVarError("MAX_MALFORMED_CALLS", fmt.Sprint(cfg.Conversation.MaxMalformedCalls), "Must be at least 1")
	}

	return nil
}

// RequireAPIKey is checked by commands that talk to the completion endpoint
func RequireAPIKey(cfg *Settings) error {
	if cfg.LLM.APIKey == "" {
		return errors.NewMissingEnvVarError("OPENAI_API_KEY", "API key for the completion endpoint")
	}
	return nil
}
