package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/ansari/internal/agents"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/logging"
	"github.com/user/ansari/internal/store"
)

var compareVote string

const regenerateCommand = "/regenerate"

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare question",
	Short: "Answer a question with two prompts side by side and vote",
	Long: `Answer the question with the two models of the A/B experiment at the same
time. The models differ by system prompt (AB_TESTING_MODEL_1_PROMPT and
AB_TESTING_MODEL_2_PROMPT) and are shown as A and B in random order.

The vote (A, B, Tie or "Both Bad") is taken from --vote or asked for on
stdin. Before voting, any other line on stdin is sent to both models as a
follow-up question, and /regenerate asks both models for a new last answer.
Both conversations and the vote are stored under the experiment id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := setupCommand(cmd)
		if err != nil {
			return HandleCommandError(err, cmd.ErrOrStderr())
		}
		defer cc.Logger.Close()

		opts := compareOptions{Question: args[0], Vote: compareVote, Swap: randomSwap}
		_, err = runCompare(cmd.Context(), cc, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		return HandleCommandError(err, cmd.ErrOrStderr())
	},
}

// compareTallyCmd prints the results of the experiment
var compareTallyCmd = &cobra.Command{
	Use:   "tally",
	Short: "Show the vote counts of the A/B experiment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := setupCommand(cmd)
		if err != nil {
			return HandleCommandError(err, cmd.ErrOrStderr())
		}
		defer cc.Logger.Close()

		return HandleCommandError(runTally(cmd.Context(), cc, cmd.OutOrStdout()), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.AddCommand(compareTallyCmd)

	compareCmd.Flags().StringVar(&compareVote, "vote", "", `Vote to record: A, B, Tie or "Both Bad"`)
}

type compareOptions struct {
	Question string
	Vote     string
	// Swap reports whether model 2 is shown as A
	Swap func() bool
}

func randomSwap() bool {
	return rand.Intn(2) == 1
}

type comparisonModel struct {
	id      int
	agent   *agents.Agent
	session *agents.Session
	answer  string
}

// runCompare returns the id of the stored comparison, or 0 when the vote
// was skipped
func runCompare(ctx context.Context, cc *CommandContext, opts compareOptions, in io.Reader, out io.Writer) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ab := cc.Settings.ABTesting

	first, err := cc.NewAgent("model_1", ab.Model1PromptName)
	if err != nil {
		return 0, err
	}
	second, err := cc.NewAgent("model_2", ab.Model2PromptName)
	if err != nil {
		return 0, err
	}

	models := []*comparisonModel{
		{id: ab.Model1ID, agent: first},
		{id: ab.Model2ID, agent: second},
	}
	if opts.Swap != nil && opts.Swap() {
		models[0], models[1] = models[1], models[0]
	}

	for _, m := range models {
		m.session = m.agent.NewSession(agents.SessionConfig{})
	}
	err = answerBoth(ctx, models, func(ctx context.Context, s *agents.Session) *agents.Reply {
		return s.ProcessInput(ctx, opts.Question)
	})
	if err != nil {
		return 0, err
	}

	cc.Logger.Info("Comparison answered",
		logging.Int("model_a", models[0].id),
		logging.Int("model_b", models[1].id))
	printAnswers(out, models)

	var vote store.Vote
	if opts.Vote != "" {
		if vote, err = store.ParseVote(opts.Vote); err != nil {
			return 0, err
		}
	} else {
		reader := bufio.NewReader(in)
		for vote == "" {
			fmt.Fprint(out, `Vote (A, B, Tie, Both Bad), /regenerate, a follow-up question, or empty to skip: `)
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return 0, err
			}
			text := strings.TrimSpace(line)
			if text == "" {
				fmt.Fprintln(out, "Vote skipped.")
				return 0, nil
			}

			if parsed, perr := store.ParseVote(text); perr == nil {
				vote = parsed
				continue
			}

			var next func(context.Context, *agents.Session) *agents.Reply
			if text == regenerateCommand {
				next = regenerate
			} else {
				next = func(ctx context.Context, s *agents.Session) *agents.Reply {
					return s.ProcessInput(ctx, text)
				}
			}
			if err := answerBoth(ctx, models, next); err != nil {
				return 0, err
			}
			printAnswers(out, models)
		}
	}

	st, err := cc.OpenStore()
	if err != nil {
		return 0, err
	}
	defer st.Close()

	id, err := st.LogVote(ctx, ab.ExperimentID,
		store.ComparisonSide{ModelID: models[0].id, Conversation: models[0].session.History()},
		store.ComparisonSide{ModelID: models[1].id, Conversation: models[1].session.History()},
		vote)
	if err != nil {
		return 0, err
	}

	fmt.Fprintf(out, "Recorded vote %q as comparison %d (experiment %d)\n", vote, id, ab.ExperimentID)
	return id, nil
}

// answerBoth runs turn on both sessions at the same time
func answerBoth(ctx context.Context, models []*comparisonModel, turn func(context.Context, *agents.Session) *agents.Reply) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range models {
		m := m
		g.Go(func() error {
			answer, err := turn(gctx, m.session).Collect()
			if err != nil {
				return fmt.Errorf("%s: %w", m.agent.Name(), err)
			}
			m.answer = answer
			return nil
		})
	}
	return g.Wait()
}

// regenerate drops the last answer of the session and asks again
func regenerate(ctx context.Context, s *agents.Session) *agents.Reply {
	turns := s.History()[1:]
	if n := len(turns); n > 0 && turns[n-1].Role == llmtypes.RoleAssistant {
		turns = turns[:n-1]
	}
	return s.ReplaceMessageHistory(ctx, turns)
}

func printAnswers(out io.Writer, models []*comparisonModel) {
	for i, m := range models {
		fmt.Fprintf(out, "=== Assistant %c ===\n%s\n\n", 'A'+i, strings.TrimSpace(m.answer))
	}
}

func runTally(ctx context.Context, cc *CommandContext, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer st.Close()

	experiment := cc.Settings.ABTesting.ExperimentID
	tally, err := st.TallyVotes(ctx, experiment)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Experiment %d: %d votes\n", experiment, tally.Total)
	ids := make([]int, 0, len(tally.Wins))
	for id := range tally.Wins {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "  model %d: %d wins\n", id, tally.Wins[id])
	}
	fmt.Fprintf(out, "  ties: %d\n  both bad: %d\n", tally.Ties, tally.BothBad)
	return nil
}
