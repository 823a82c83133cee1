package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/ansari/internal/config"
	"github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llm"
)

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by the completion endpoint",
	Long: `List the models offered by an OpenAI-compatible completion endpoint
(LLM_BASE_URL, or api.openai.com by default).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := setupCommand(cmd)
		if err != nil {
			return HandleCommandError(err, cmd.ErrOrStderr())
		}
		defer cc.Logger.Close()

		return HandleCommandError(runModels(cmd.Context(), cc.Settings, cmd.OutOrStdout()), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(ctx context.Context, settings *config.Settings, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if settings.LLM.Provider != "openai" {
		return errors.NewConfigurationError(fmt.Sprintf("listing models is only supported for openai-compatible endpoints, not %s", settings.LLM.Provider))
	}
	if err := config.RequireAPIKey(settings); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, settings.LLM.GetRequestTimeout())
	defer cancel()

	models, err := llm.NewModelLister(settings.LLM).ListModels(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tOWNER\tCREATED")
	for _, m := range models {
		marker := ""
		if m.ID == settings.LLM.Model {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\n", m.ID, marker, m.OwnedBy, time.Unix(m.Created, 0).UTC().Format("2006-01-02"))
	}
	return tw.Flush()
}
