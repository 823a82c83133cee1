package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/ansari/internal/errors"
)

var (
	debugFlag    bool
	verboseFlag  bool
	workDirFlag  string
	providerFlag string
	modelFlag    string
	baseURLFlag  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ansari",
	Short: "Tool-augmented assistant for questions about Islam",
	Long: `Ansari answers questions by streaming a model completion and, when the
model asks for it, searching the Quran, the Hadith collections and the
Mawsuah encyclopedia of jurisprudence before answering.

Settings come from the environment (and a .env file), ~/.ansari.yaml,
.ansari/config.yaml and the flags below, in increasing order of precedence.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the error's exit code
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if _, ok := errors.AsAppError(err); !ok {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(errors.ExitCodeOf(err).Int())
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging with caller information")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Also write logs to stderr")
	rootCmd.PersistentFlags().StringVar(&workDirFlag, "work-dir", ".", "Directory holding .ansari/config.yaml")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "Completion provider (openai, anthropic, gemini)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model identifier")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Completion endpoint base URL")
}

// cliOverrides maps the persistent flags onto settings keys. Unset flags
// are nil so they do not shadow the environment.
func cliOverrides() map[string]interface{} {
	overrides := map[string]interface{}{}
	if providerFlag != "" {
		overrides["llm_provider"] = providerFlag
	}
	if modelFlag != "" {
		overrides["model"] = modelFlag
	}
	if baseURLFlag != "" {
		overrides["llm_base_url"] = baseURLFlag
	}
	if debugFlag {
		overrides["log_file_level"] = "debug"
	}
	return overrides
}
