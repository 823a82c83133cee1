package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/ansari/internal/export"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/store"
)

var (
	historyLimit  int
	exportFormat  string
	exportOutput  string
	showFunctions bool
)

// historyCmd groups the conversation log commands
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse, export and delete logged conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.SQLiteStore) error {
			return runHistoryList(ctx, st, historyLimit, cmd.OutOrStdout())
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show id",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.SQLiteStore) error {
			return runHistoryShow(ctx, st, args[0], showFunctions, cmd.OutOrStdout())
		})
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export id",
	Short: "Export a conversation as JSON or HTML",
	Long: `Export a conversation as JSON or HTML. Assistant answers are rendered
from Markdown in HTML exports. Without --output the file is named after the
conversation id in the current directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.SQLiteStore) error {
			path, err := runHistoryExport(ctx, st, args[0], exportFormat, exportOutput)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete id",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.SQLiteStore) error {
			if err := st.DeleteConversation(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd, historyDeleteCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of conversations")
	historyShowCmd.Flags().BoolVar(&showFunctions, "tools", false, "Include tool results")
	historyExportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format (json, html)")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file")
}

// withStore runs fn with the configured store
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st *store.SQLiteStore) error) error {
	cc, err := setupCommand(cmd)
	if err != nil {
		return HandleCommandError(err, cmd.ErrOrStderr())
	}
	defer cc.Logger.Close()

	st, err := cc.OpenStore()
	if err != nil {
		return HandleCommandError(err, cmd.ErrOrStderr())
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return HandleCommandError(fn(ctx, st), cmd.ErrOrStderr())
}

func runHistoryList(ctx context.Context, st *store.SQLiteStore, limit int, out io.Writer) error {
	convs, err := st.ListConversations(ctx, limit)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUPDATED\tMESSAGES\tTITLE")
	for _, c := range convs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.MessageCount, c.Title)
	}
	return tw.Flush()
}

func runHistoryShow(ctx context.Context, st *store.SQLiteStore, id string, withTools bool, out io.Writer) error {
	conv, err := st.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := st.GetMessages(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s (%s, %s)\n", titleOrID(conv), conv.Agent, conv.Model)
	for _, m := range msgs {
		switch m.Role {
		case llmtypes.RoleUser:
			fmt.Fprintf(out, "\n> %s\n", m.Content)
		case llmtypes.RoleAssistant:
			fmt.Fprintf(out, "\n%s\n", m.Content)
		case llmtypes.RoleFunction:
			if withTools {
				fmt.Fprintf(out, "\n[%s]\n%s\n", m.ToolName, m.Content)
			}
		}
	}
	return nil
}

func runHistoryExport(ctx context.Context, st *store.SQLiteStore, id, format, output string) (string, error) {
	exporter, err := export.NewExporter(format)
	if err != nil {
		return "", err
	}

	t, err := loadTranscript(ctx, st, id)
	if err != nil {
		return "", err
	}

	if output == "" {
		output = filepath.Clean(id + exporter.Extension())
	}
	if err := export.ExportFile(exporter, t, output); err != nil {
		return "", err
	}
	return output, nil
}

// loadTranscript converts a stored conversation for export
func loadTranscript(ctx context.Context, st *store.SQLiteStore, id string) (export.Transcript, error) {
	conv, err := st.GetConversation(ctx, id)
	if err != nil {
		return export.Transcript{}, err
	}
	msgs, err := st.GetMessages(ctx, id)
	if err != nil {
		return export.Transcript{}, err
	}

	t := export.Transcript{
		ID:        conv.ID,
		Title:     conv.Title,
		Agent:     conv.Agent,
		Model:     conv.Model,
		CreatedAt: conv.CreatedAt,
		Messages:  make([]export.TranscriptMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		t.Messages = append(t.Messages, export.TranscriptMessage{
			Role:      m.Role,
			Content:   m.Content,
			ToolName:  m.ToolName,
			CreatedAt: m.CreatedAt,
		})
	}
	return t, nil
}

func titleOrID(c *store.Conversation) string {
	if c.Title != "" {
		return c.Title
	}
	return c.ID
}
