package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/ansari/internal/agents"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/logging"
	"github.com/user/ansari/internal/store"
)

var (
	resumeID string
	noStore  bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation. Answers are streamed as they are
generated. Type "exit" or "quit" (or send EOF) to leave.

Every message is logged to the local store unless --no-store is given; use
--resume with a conversation id from "ansari history list" to continue an
earlier conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := setupCommand(cmd)
		if err != nil {
			return HandleCommandError(err, cmd.ErrOrStderr())
		}
		defer cc.Logger.Close()

		err = runChat(cmd.Context(), cc, chatOptions{ResumeID: resumeID, NoStore: noStore}, cmd.InOrStdin(), cmd.OutOrStdout())
		return HandleCommandError(err, cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&resumeID, "resume", "", "Conversation id to continue")
	chatCmd.Flags().BoolVar(&noStore, "no-store", false, "Do not log the conversation")
}

type chatOptions struct {
	ResumeID string
	NoStore  bool
}

func runChat(ctx context.Context, cc *CommandContext, opts chatOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.NoStore && opts.ResumeID != "" {
		return fmt.Errorf("--resume needs the store, drop --no-store")
	}

	agent, err := cc.DefaultAgent()
	if err != nil {
		return err
	}

	sessionCfg := agents.SessionConfig{ID: opts.ResumeID}
	var turns []llmtypes.Message

	if !opts.NoStore {
		st, err := cc.OpenStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if opts.ResumeID != "" {
			turns, err = st.Turns(ctx, opts.ResumeID)
			if err != nil {
				return fmt.Errorf("cannot resume conversation %s: %w", opts.ResumeID, err)
			}
		} else {
			conv := &store.Conversation{Agent: agent.Name(), Model: agent.Model()}
			if err := st.CreateConversation(ctx, conv); err != nil {
				return err
			}
			sessionCfg.ID = conv.ID
		}
		sessionCfg.MessageLogger = st.MessageLogger(sessionCfg.ID)
	}

	session := agent.NewSession(sessionCfg)
	cc.Logger.Info("Chat started",
		logging.SessionID(session.ID()),
		logging.Bool("resumed", len(turns) > 0))

	if len(turns) > 0 {
		fmt.Fprintf(out, "Resuming conversation %s (%d messages)\n", session.ID(), len(turns))
		// A conversation that ended on a user turn gets its answer now
		if _, err := collectReply(session.ReplaceMessageHistory(ctx, turns), out); err != nil {
			return err
		}
		if turns[len(turns)-1].Role != llmtypes.RoleAssistant {
			fmt.Fprintln(out)
		}
	} else {
		fmt.Fprintln(out, agent.Greet())
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if _, err := collectReply(session.ProcessInput(ctx, input), out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The session stays usable after a failed loop
			cc.Logger.Error("Processing failed", logging.Error(err))
			fmt.Fprintf(out, "\n[error] %v\n", err)
			continue
		}
		fmt.Fprintln(out)
	}

	return scanner.Err()
}
