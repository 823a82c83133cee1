package agents

import (
	"errors"
	"io"
	"strings"

	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llm"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/logging"
)

// roundMode is latched by the first fragment of a round and never changes
type roundMode int

const (
	modeUndetermined roundMode = iota
	modeText
	modeFunction
)

func (m roundMode) String() string {
	switch m {
	case modeText:
		return "text"
	case modeFunction:
		return "function"
	default:
		return "undetermined"
	}
}

// RoundResult is what a finished round produced: either assistant text or
// a single function call
type RoundResult struct {
	Text         string
	FunctionName string
	Arguments    string
	function     bool
}

// IsFunctionCall reports whether the round ended in a function call
func (r RoundResult) IsFunctionCall() bool {
	return r.function
}

// RoundDecoder turns the fragments of one completion stream into a
// RoundResult. It is not safe for concurrent use.
type RoundDecoder struct {
	provider string
	logger   *logging.Logger

	mode  roundMode
	done  bool
	words strings.Builder
	name  string
	args  strings.Builder
}

// NewRoundDecoder creates a decoder for one round
func NewRoundDecoder(provider string, logger *logging.Logger) *RoundDecoder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RoundDecoder{provider: provider, logger: logger}
}

// Feed consumes one fragment. It returns the text to emit to the caller
// (empty for function calls and empty deltas) and whether the end of the
// round was reached. Fragments fed after the end are ignored.
func (d *RoundDecoder) Feed(f llmtypes.Fragment) (string, bool) {
	if d.done {
		return "", true
	}

	if d.mode == modeUndetermined {
		if f.FunctionCall != nil {
			d.mode = modeFunction
			d.name = f.FunctionCall.Name
			d.args.WriteString(f.FunctionCall.Arguments)
			d.logger.Debug("Round latched to function mode", logging.String("function", d.name))
			return "", false
		}
		d.mode = modeText
	}

	if d.mode == modeText {
		return d.feedText(f)
	}
	return d.feedFunction(f)
}

func (d *RoundDecoder) feedText(f llmtypes.Fragment) (string, bool) {
	if f.FunctionCall != nil {
		d.logger.Warn("Ignoring function call fragment in a text round",
			logging.String("function", f.FunctionCall.Name))
		return "", false
	}
	if f.Content == nil {
		d.done = true
		return "", true
	}
	d.words.WriteString(*f.Content)
	return *f.Content, false
}

func (d *RoundDecoder) feedFunction(f llmtypes.Fragment) (string, bool) {
	if f.FunctionCall == nil {
		if f.Content != nil && *f.Content != "" {
			d.logger.Warn("Ignoring text fragment in a function round",
				logging.Int("length", len(*f.Content)))
			return "", false
		}
		d.done = true
		return "", true
	}

	if f.FunctionCall.Name != "" && f.FunctionCall.Name != d.name {
		d.logger.Warn("Function name changed mid-round, keeping the first",
			logging.String("function", d.name),
			logging.String("ignored", f.FunctionCall.Name))
	}
	if f.FunctionCall.Arguments == "" {
		d.logger.Debug("Skipping function fragment without arguments",
			logging.String("function", d.name))
		return "", false
	}
	d.args.WriteString(f.FunctionCall.Arguments)
	return "", false
}

// Done reports whether the end marker was seen
func (d *RoundDecoder) Done() bool {
	return d.done
}

// Result returns what the round produced so far
func (d *RoundDecoder) Result() RoundResult {
	if d.mode == modeFunction {
		return RoundResult{
			FunctionName: d.name,
			Arguments:    d.args.String(),
			function:     true,
		}
	}
	return RoundResult{Text: d.words.String()}
}

// Decode reads stream until the end marker, passing every text delta to
// emit. A stream that ends before the marker yields a retryable StreamError
// and no result.
func (d *RoundDecoder) Decode(stream llm.FragmentStream, emit func(string) error) (RoundResult, error) {
	for {
		f, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return RoundResult{}, apperrors.NewStreamError(d.provider,
				"stream ended before the end of the round ("+d.mode.String()+" mode)", nil)
		}
		if err != nil {
			return RoundResult{}, err
		}

		delta, done := d.Feed(f)
		if delta != "" {
			if err := emit(delta); err != nil {
				return RoundResult{}, err
			}
		}
		if done {
			return d.Result(), nil
		}
	}
}
