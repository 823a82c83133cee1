package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/ansari/internal/agents"
	"github.com/user/ansari/internal/logging"
	"github.com/user/ansari/internal/worker_pool"
)

var (
	askFile    string
	askWorkers int
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question, or every line of a file",
	Long: `Answer one question and exit. The answer is streamed to stdout.

With --file, every non-empty line of the file is answered in its own
conversation; up to --workers questions run at the same time and the
answers are printed in file order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if askFile == "" && len(args) == 0 {
			return fmt.Errorf("either a question or --file is required")
		}

		cc, err := setupCommand(cmd)
		if err != nil {
			return HandleCommandError(err, cmd.ErrOrStderr())
		}
		defer cc.Logger.Close()

		if askFile != "" {
			questions, err := readQuestions(askFile)
			if err != nil {
				return err
			}
			err = runAskBatch(cmd.Context(), cc, questions, askWorkers, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return HandleCommandError(err, cmd.ErrOrStderr())
		}

		err = runAsk(cmd.Context(), cc, args[0], cmd.OutOrStdout())
		return HandleCommandError(err, cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "File with one question per line")
	askCmd.Flags().IntVar(&askWorkers, "workers", 0, "Maximum concurrent questions (0=auto)")
}

func runAsk(ctx context.Context, cc *CommandContext, question string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	agent, err := cc.DefaultAgent()
	if err != nil {
		return err
	}

	session := agent.NewSession(agents.SessionConfig{})
	if _, err := collectReply(session.ProcessInput(ctx, question), out); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return nil
}

// runAskBatch answers every question in its own session. Failed questions
// are reported in place; the first failure is returned after all finished.
func runAskBatch(ctx context.Context, cc *CommandContext, questions []string, workers int, out, progressOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	agent, err := cc.DefaultAgent()
	if err != nil {
		return err
	}

	tasks := make([]worker_pool.Task[string], len(questions))
	for i, q := range questions {
		q := q
		tasks[i] = func(ctx context.Context) (string, error) {
			session := agent.NewSession(agents.SessionConfig{})
			return session.ProcessInput(ctx, q).Collect()
		}
	}

	pool := worker_pool.NewWorkerPool(workers)
	cc.Logger.Info("Answering questions",
		logging.Int("questions", len(questions)),
		logging.Int("workers", pool.GetMaxWorkers()))

	results := worker_pool.Run(ctx, pool, tasks, func(done, total int) {
		fmt.Fprintf(progressOut, "\r[%d/%d] answered", done, total)
		if done == total {
			fmt.Fprintln(progressOut)
		}
	})

	var firstErr error
	for i, res := range results {
		fmt.Fprintf(out, "Q%d: %s\n", i+1, questions[i])
		if res.Error != nil {
			fmt.Fprintf(out, "[error] %v\n\n", res.Error)
			cc.Logger.Warn("Question failed", logging.Int("index", i+1), logging.Error(res.Error))
			if firstErr == nil {
				firstErr = res.Error
			}
			continue
		}
		fmt.Fprintf(out, "%s\n\n", strings.TrimSpace(res.Value))
	}
	return firstErr
}

// readQuestions returns the non-empty lines of path
func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open questions file: %w", err)
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			questions = append(questions, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no questions in %s", path)
	}
	return questions, nil
}
