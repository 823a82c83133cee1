package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/ansari/internal/config"
)

var showSecrets bool

// configCmd groups the configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
	Long: `Inspect the effective configuration.

Settings are read from the environment (and .env), ~/.ansari.yaml and
.ansari/config.yaml. The YAML keys are the lowercased environment variable
names, for example:

  model: gpt-4o-2024-05-13
  max_function_tries: 3
  langfuse_host: https://cloud.langfuse.com`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := LoadSettings(workDirFlag, cliOverrides())
		if err != nil {
			return HandleCommandError(err, cmd.ErrOrStderr())
		}
		return runConfigShow(settings, showSecrets, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print API keys unmasked")
}

func runConfigShow(settings *config.Settings, unmasked bool, out io.Writer) error {
	s := *settings
	if !unmasked {
		s = s.Redacted()
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return enc.Close()
}
