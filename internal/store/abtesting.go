package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llmtypes"
)

// Vote is the user's verdict on a side-by-side comparison
type Vote string

const (
	VoteA       Vote = "A"
	VoteB       Vote = "B"
	VoteTie     Vote = "Tie"
	VoteBothBad Vote = "Both Bad"
)

// Votes lists every valid vote
var Votes = []Vote{VoteA, VoteB, VoteTie, VoteBothBad}

// ParseVote accepts a vote case-insensitively, with "bothbad" and
// "both-bad" as aliases for "Both Bad"
func ParseVote(s string) (Vote, error) {
	switch normalizeVote(s) {
	case "a":
		return VoteA, nil
	case "b":
		return VoteB, nil
	case "tie":
		return VoteTie, nil
	case "bothbad":
		return VoteBothBad, nil
	}
	return "", fmt.Errorf("invalid vote %q: expected A, B, Tie or Both Bad", s)
}

func normalizeVote(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+'a'-'A')
		case r == ' ' || r == '-' || r == '_':
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// ComparisonSide is one model's half of a comparison
type ComparisonSide struct {
	ModelID      int
	Conversation []llmtypes.Message // system prompt first
}

// Comparison is a stored vote
type Comparison struct {
	ID              int64
	ExperimentID    int
	ModelAID        int
	ModelBID        int
	ConversationAID int64
	ConversationBID int64
	Vote            Vote
}

// LogVote stores both conversations and the comparison between them in one
// transaction and returns the comparison id
func (s *SQLiteStore) LogVote(ctx context.Context, experimentID int, a, b ComparisonSide, vote Vote) (int64, error) {
	if _, err := ParseVote(string(vote)); err != nil {
		return 0, apperrors.NewStoreError("log vote", err)
	}
	now := s.now()

	var comparisonID int64
	err := s.withTx(ctx, "log vote", func(tx *sql.Tx) error {
		convA, err := insertABConversation(ctx, tx, a, now)
		if err != nil {
			return err
		}
		convB, err := insertABConversation(ctx, tx, b, now)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO ab_testing_comparisons
			    (experiment_id, model_a_id, model_b_id, conversation_a_id, conversation_b_id, user_vote, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			experimentID, a.ModelID, b.ModelID, convA, convB, string(vote), now)
		if err != nil {
			return fmt.Errorf("insert comparison: %w", err)
		}
		comparisonID, err = res.LastInsertId()
		return err
	})
	return comparisonID, err
}

func insertABConversation(ctx context.Context, tx *sql.Tx, side ComparisonSide, now time.Time) (int64, error) {
	data, err := json.Marshal(side.Conversation)
	if err != nil {
		return 0, fmt.Errorf("marshal conversation: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO ab_testing_conversations (model_id, conversation, timestamp)
		VALUES (?, ?, ?)`,
		side.ModelID, string(data), now)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}
	return res.LastInsertId()
}

// GetComparison returns a stored comparison
func (s *SQLiteStore) GetComparison(ctx context.Context, id int64) (*Comparison, error) {
	var c Comparison
	var vote string
	err := s.db.QueryRowContext(ctx, `
		SELECT comparison_id, experiment_id, model_a_id, model_b_id, conversation_a_id, conversation_b_id, user_vote
		FROM ab_testing_comparisons WHERE comparison_id = ?`, id).
		Scan(&c.ID, &c.ExperimentID, &c.ModelAID, &c.ModelBID, &c.ConversationAID, &c.ConversationBID, &vote)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("comparison %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get comparison", err)
	}
	c.Vote = Vote(vote)
	return &c, nil
}

// GetABConversation returns the messages stored for an A/B conversation
func (s *SQLiteStore) GetABConversation(ctx context.Context, id int64) ([]llmtypes.Message, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation FROM ab_testing_conversations WHERE conversation_id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ab conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get ab conversation", err)
	}
	var msgs []llmtypes.Message
	if err := json.Unmarshal([]byte(data), &msgs); err != nil {
		return nil, apperrors.NewStoreError("get ab conversation", err)
	}
	return msgs, nil
}

// VoteTally counts the wins of each model in an experiment. Ties and
// "Both Bad" votes are counted separately.
type VoteTally struct {
	Wins    map[int]int
	Ties    int
	BothBad int
	Total   int
}

// TallyVotes summarises the comparisons of an experiment
func (s *SQLiteStore) TallyVotes(ctx context.Context, experimentID int) (VoteTally, error) {
	tally := VoteTally{Wins: make(map[int]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT model_a_id, model_b_id, user_vote
		FROM ab_testing_comparisons WHERE experiment_id = ?`, experimentID)
	if err != nil {
		return tally, apperrors.NewStoreError("tally votes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var modelA, modelB int
		var vote string
		if err := rows.Scan(&modelA, &modelB, &vote); err != nil {
			return tally, apperrors.NewStoreError("tally votes", err)
		}
		tally.Total++
		switch Vote(vote) {
		case VoteA:
			tally.Wins[modelA]++
		case VoteB:
			tally.Wins[modelB]++
		case VoteTie:
			tally.Ties++
		case VoteBothBad:
			tally.BothBad++
		}
	}
	if err := rows.Err(); err != nil {
		return tally, apperrors.NewStoreError("tally votes", err)
	}
	return tally, nil
}
