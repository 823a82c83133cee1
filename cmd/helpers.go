package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/ansari/internal/agents"
	"github.com/user/ansari/internal/config"
	"github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llm"
	"github.com/user/ansari/internal/logging"
	"github.com/user/ansari/internal/prompts"
	"github.com/user/ansari/internal/store"
	"github.com/user/ansari/internal/telemetry"
	"github.com/user/ansari/internal/tools"
)

// CommandContext holds the resources shared by the CLI commands: the
// resolved settings, the logger and everything an agent is built from.
type CommandContext struct {
	Settings *config.Settings
	Logger   *logging.Logger
	WorkDir  string

	Prompts  *prompts.Manager
	Registry *tools.Registry
	Tracer   telemetry.Tracer

	// Client is used for every agent when set; otherwise one is created
	// from the settings
	Client llm.StreamingClient
}

// InitLogger creates the logger for CLI commands.
//
// Logs always go to the JSON file under cfg.LogDir. verbose adds a console
// core on stderr, debug adds caller information. The caller is responsible
// for calling logger.Sync() when done.
func InitLogger(cfg config.LoggingConfig, debug bool, verbose bool) (*logging.Logger, error) {
	logDir := cfg.LogDir
	if logDir == "" {
		logDir = ".ansari/logs"
	}

	consoleLevel := logging.LevelFromString(cfg.ConsoleLevel)
	if debug {
		consoleLevel = logging.LevelFromString("debug")
	}

	logger, err := logging.NewLogger(&logging.Config{
		LogDir:         logDir,
		FileLevel:      logging.LevelFromString(cfg.FileLevel),
		ConsoleLevel:   consoleLevel,
		EnableCaller:   debug,
		ConsoleEnabled: verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// LoadSettings resolves the settings for workDir with the given overrides
func LoadSettings(workDir string, overrides map[string]interface{}) (*config.Settings, error) {
	return config.NewLoader().Load(workDir, overrides)
}

// NewCommandContext builds prompts, tools and tracer from settings
func NewCommandContext(settings *config.Settings, workDir string, logger *logging.Logger) (*CommandContext, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	templateDir := settings.Prompts.TemplateDir
	if templateDir != "" && !filepath.IsAbs(templateDir) {
		templateDir = filepath.Join(workDir, templateDir)
	}
	pm, err := prompts.NewDefaultManager(templateDir)
	if err != nil {
		return nil, errors.WrapError(err, "Failed to load prompt templates", errors.ExitConfigError)
	}

	return &CommandContext{
		Settings: settings,
		Logger:   logger,
		WorkDir:  workDir,
		Prompts:  pm,
		Registry: tools.NewDefaultRegistry(settings.Tools, tools.NewHTTPClient(settings.LLM.GetRequestTimeout())),
		Tracer:   telemetry.NewTracer(settings.Langfuse, logger),
	}, nil
}

// setupCommand loads the settings and builds the command context from the
// persistent flags
func setupCommand(cmd *cobra.Command) (*CommandContext, error) {
	settings, err := LoadSettings(workDirFlag, cliOverrides())
	if err != nil {
		return nil, err
	}

	logger, err := InitLogger(settings.Logging, debugFlag, verboseFlag)
	if err != nil {
		return nil, err
	}

	logger.Debug("Settings loaded",
		logging.String("command", cmd.Name()),
		logging.String("provider", settings.LLM.Provider),
		logging.String("model", settings.LLM.Model),
	)

	return NewCommandContext(settings, workDirFlag, logger)
}

// streamingClient returns the injected client or builds one from settings
func (c *CommandContext) streamingClient() (llm.StreamingClient, error) {
	if c.Client != nil {
		return c.Client, nil
	}
	if err := config.RequireAPIKey(c.Settings); err != nil {
		return nil, err
	}
	client, err := llm.NewFactoryFromConfig(c.Settings.LLM).CreateClient(c.Settings.LLM)
	if err != nil {
		return nil, errors.WrapError(err, "Failed to create completion client", errors.ExitConfigError)
	}
	return client, nil
}

// NewAgent builds an agent using the system prompt called promptName
func (c *CommandContext) NewAgent(name, promptName string) (*agents.Agent, error) {
	client, err := c.streamingClient()
	if err != nil {
		return nil, err
	}

	systemPrompt, err := c.Prompts.SystemPrompt(promptName)
	if err != nil {
		return nil, errors.WrapError(err, fmt.Sprintf("Failed to render system prompt %q", promptName), errors.ExitConfigError)
	}
	greeting, err := c.Prompts.Greeting()
	if err != nil {
		return nil, errors.WrapError(err, "Failed to render greeting", errors.ExitConfigError)
	}

	return agents.NewAgent(agents.AgentConfig{
		Name:         name,
		SystemPrompt: systemPrompt,
		Greeting:     greeting,
		Conversation: c.Settings.Conversation,
		JSONFormat:   c.Settings.LLM.JSONFormat,
		Tracer:       c.Tracer,
	}, client, c.Registry, c.Logger), nil
}

// DefaultAgent builds the agent with the configured system prompt
func (c *CommandContext) DefaultAgent() (*agents.Agent, error) {
	return c.NewAgent("ansari", c.Settings.Prompts.SystemPromptFileName)
}

// OpenStore opens the message store, relative paths resolve against WorkDir
func (c *CommandContext) OpenStore() (*store.SQLiteStore, error) {
	path := c.Settings.Store.DBPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.WorkDir, path)
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("Store opened", logging.String("path", path))
	return s, nil
}

// HandleCommandError prints application errors with their context to w and
// returns err unchanged so the caller can return it for the exit code
func HandleCommandError(err error, w io.Writer) error {
	if err == nil {
		return nil
	}

	if appErr, ok := errors.AsAppError(err); ok {
		fmt.Fprintf(w, "%s\n", appErr.GetUserMessage())
	}
	return err
}

// collectReply streams reply tokens to w as they arrive and returns the
// full text
func collectReply(reply *agents.Reply, w io.Writer) (string, error) {
	defer reply.Close()

	var text []byte
	for token := range reply.Tokens() {
		text = append(text, token...)
		if w != nil {
			fmt.Fprint(w, token)
		}
	}
	if err := reply.Err(); err != nil {
		return string(text), err
	}
	return string(text), nil
}
