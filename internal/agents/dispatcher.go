package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/logging"
	"github.com/user/ansari/internal/tools"
)

// NoResultsMessage is the function message content used when a tool
// returns nothing
const NoResultsMessage = "No results found"

// Dispatcher routes a decoded function call to the registered tool and turns
// its results into function messages
type Dispatcher struct {
	registry *tools.Registry
	logger   *logging.Logger
}

// NewDispatcher creates a dispatcher over registry. A nil registry has no tools.
func NewDispatcher(registry *tools.Registry, logger *logging.Logger) *Dispatcher {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

type toolArguments struct {
	Query *string `json:"query"`
}

// Dispatch runs the named tool with the "query" field of args. It returns
// one function message per result, or a single "No results found" message.
//
// Unknown tools and malformed arguments are reported as errors and produce
// no messages. A failing tool produces an "Error: ..." message instead of an
// error so the model can see what went wrong, unless ctx was cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, name, args string) ([]llmtypes.Message, error) {
	tool, ok := d.registry.Get(name)
	if !ok {
		d.logger.Warn("Unknown function call", logging.String("function", name))
		return nil, apperrors.NewUnknownToolError(name)
	}

	var parsed toolArguments
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		d.logger.Warn("Malformed function arguments",
			logging.String("function", name),
			logging.String("arguments", args),
			logging.Error(err))
		return nil, apperrors.NewMalformedToolArgumentsError(name, args, err)
	}
	if parsed.Query == nil {
		d.logger.Warn("Function arguments carry no query",
			logging.String("function", name),
			logging.String("arguments", args))
		return nil, apperrors.NewMalformedToolArgumentsError(name, args, fmt.Errorf("missing string field \"query\""))
	}

	d.logger.Info("Executing tool",
		logging.Tool(name),
		logging.String("query", *parsed.Query))

	start := time.Now()
	results, err := tool.Run(ctx, *parsed.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		execErr := apperrors.NewToolExecutionError(name, err)
		d.logger.Error("Tool execution failed",
			logging.Tool(name),
			logging.Error(execErr))
		return []llmtypes.Message{{
			Role:    llmtypes.RoleFunction,
			Name:    name,
			Content: fmt.Sprintf("Error: %v", err),
		}}, nil
	}

	d.logger.Info("Tool finished",
		logging.Tool(name),
		logging.Int("results", len(results)),
		logging.Duration("elapsed", time.Since(start)))

	if len(results) == 0 {
		return []llmtypes.Message{{Role: llmtypes.RoleFunction, Name: name, Content: NoResultsMessage}}, nil
	}

	msgs := make([]llmtypes.Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, llmtypes.Message{Role: llmtypes.RoleFunction, Name: name, Content: r})
	}
	return msgs, nil
}
