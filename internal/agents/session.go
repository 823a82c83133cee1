package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/user/ansari/internal/config"
	apperrors "github.com/user/ansari/internal/errors"
	"github.com/user/ansari/internal/llm"
	"github.com/user/ansari/internal/llmtypes"
	"github.com/user/ansari/internal/logging"
	"github.com/user/ansari/internal/telemetry"
	"github.com/user/ansari/internal/tools"
)

const (
	messageLogTimeout = 5 * time.Second
	traceTimeout      = 10 * time.Second
)

// ErrSessionBusy is returned when a session is asked to process input while
// a previous reply is still running
var ErrSessionBusy = errors.New("session is already processing a message")

// MessageLogger persists every message appended to a session's history
type MessageLogger interface {
	Log(ctx context.Context, role llmtypes.Role, content, toolName string) error
}

// AgentConfig holds what every session of an agent shares
type AgentConfig struct {
	Name         string
	SystemPrompt string
	Greeting     string
	Conversation config.ConversationConfig
	JSONFormat   bool
	Temperature  float64
	Tracer       telemetry.Tracer
	Sleep        SleepFunc
	Now          func() time.Time
}

// Agent is a conversation template: the model, the tools and the prompts.
// Each conversation runs in its own Session.
type Agent struct {
	cfg      AgentConfig
	client   llm.StreamingClient
	registry *tools.Registry
	logger   *logging.Logger
}

// NewAgent creates an agent. A nil registry disables tools.
func NewAgent(cfg AgentConfig, client llm.StreamingClient, registry *tools.Registry, logger *logging.Logger) *Agent {
	if cfg.Name == "" {
		cfg.Name = "ansari"
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NopTracer{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Agent{
		cfg:      cfg,
		client:   client,
		registry: registry,
		logger:   logger.Named(cfg.Name),
	}
}

func (a *Agent) Name() string {
	return a.cfg.Name
}

// Greet returns the opening line shown before the first user input
func (a *Agent) Greet() string {
	return a.cfg.Greeting
}

func (a *Agent) Model() string {
	return a.client.GetModel()
}

// SessionConfig customises one session
type SessionConfig struct {
	ID            string // generated when empty
	MessageLogger MessageLogger
}

// NewSession starts a conversation holding only the system prompt
func (a *Agent) NewSession(cfg SessionConfig) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	logger := a.logger.ForSession(cfg.ID)
	s := &Session{
		id:            cfg.ID,
		agent:         a,
		history:       NewHistory(a.cfg.SystemPrompt),
		dispatcher:    NewDispatcher(a.registry, logger),
		retry:         NewRetryController(a.cfg.Conversation.MaxFailures, a.cfg.Conversation.GetFailureBackoff(), a.cfg.Sleep, logger),
		messageLogger: cfg.MessageLogger,
		logger:        logger,
		busy:          make(chan struct{}, 1),
	}
	s.history.SetAppendHook(s.logMessage)
	return s
}

// Session is one conversation. It processes one input at a time.
type Session struct {
	id            string
	agent         *Agent
	history       *History
	dispatcher    *Dispatcher
	retry         *RetryController
	messageLogger MessageLogger
	logger        *logging.Logger

	busy chan struct{}

	// reset at the start of every processing loop
	functionTries  int
	malformedCalls int
	startTime      time.Time
}

func (s *Session) ID() string {
	return s.id
}

// History returns a copy of the transcript, system prompt included
func (s *Session) History() []llmtypes.Message {
	return s.history.Snapshot()
}

// ProcessInput appends a user message and runs rounds until the model
// answers with text. Partial text of a round that fails and is retried
// stays in the Reply; see Reply.
func (s *Session) ProcessInput(ctx context.Context, input string) *Reply {
	if !s.acquire() {
		return failedReply(ErrSessionBusy)
	}
	s.history.Append(llmtypes.Message{Role: llmtypes.RoleUser, Content: input})
	return s.start(ctx)
}

// ReplaceMessageHistory keeps the system prompt, replaces every other turn
// with turns and runs rounds until the model answers with text. Restored
// turns are not sent to the message logger.
func (s *Session) ReplaceMessageHistory(ctx context.Context, turns []llmtypes.Message) *Reply {
	for i, m := range turns {
		if !m.Role.Valid() || m.Role == llmtypes.RoleSystem {
			return failedReply(fmt.Errorf("turn %d has invalid role %q", i, m.Role))
		}
	}
	if !s.acquire() {
		return failedReply(ErrSessionBusy)
	}
	s.history.Reset(turns)
	return s.start(ctx)
}

func (s *Session) acquire() bool {
	select {
	case s.busy <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) start(ctx context.Context) *Reply {
	return startReply(ctx, func(ctx context.Context, emit func(string) error) error {
		defer func() { <-s.busy }()
		return s.processMessageHistory(ctx, emit)
	})
}

func (s *Session) processMessageHistory(ctx context.Context, emit func(string) error) error {
	conv := s.agent.cfg.Conversation
	s.startTime = s.agent.cfg.Now()
	s.functionTries = 0
	s.malformedCalls = 0
	budget := s.retry.NewBudget("conversation round")

	for {
		last, err := s.history.Last()
		if err != nil {
			return err
		}
		if last.Role == llmtypes.RoleAssistant {
			break
		}

		useTools := s.functionTries < conv.MaxFunctionTries
		if !useTools && s.functionTries == conv.MaxFunctionTries {
			s.logger.Warn("Function tries exhausted, answering without tools",
				logging.Int("function_tries", s.functionTries))
		}

		err = s.runRound(ctx, useTools, emit)
		if err == nil {
			s.functionTries++
			continue
		}
		if err := budget.Fail(ctx, err); err != nil {
			return err
		}
	}

	s.recordTrace(ctx)
	return nil
}

// runRound performs one completion call and commits its outcome. Nothing is
// appended to the history when it returns an error.
func (s *Session) runRound(ctx context.Context, useTools bool, emit func(string) error) error {
	req := llm.CompletionRequest{
		Messages:    s.history.Snapshot(),
		Temperature: s.agent.cfg.Temperature,
	}
	if useTools {
		req.Functions = s.agent.registry.Definitions()
	}
	if s.agent.cfg.JSONFormat {
		req.ResponseFormat = llmtypes.ResponseFormatJSON
	}

	s.logger.Debug("Starting round",
		logging.Int("messages", len(req.Messages)),
		logging.Int("functions", len(req.Functions)),
		logging.Int("function_tries", s.functionTries))

	var stream llm.FragmentStream
	err := s.retry.Do(ctx, "completion request", func(ctx context.Context) error {
		st, err := s.agent.client.StreamCompletion(ctx, req)
		if err != nil {
			return err
		}
		stream = st
		return nil
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	decoder := NewRoundDecoder(s.agent.client.GetProvider(), s.logger)
	result, err := decoder.Decode(stream, emit)
	if err != nil {
		return err
	}

	if !result.IsFunctionCall() {
		s.history.Append(llmtypes.Message{Role: llmtypes.RoleAssistant, Content: result.Text})
		return nil
	}

	msgs, err := s.dispatcher.Dispatch(ctx, result.FunctionName, result.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.malformedCalls++
		limit := s.agent.cfg.Conversation.MaxMalformedCalls
		if limit <= 0 || s.malformedCalls < limit {
			return nil
		}
		if !useTools {
			return apperrors.NewMalformedToolCallsError(s.malformedCalls, err)
		}
		// Spend the rest of the function budget so the next round runs
		// without tools and has to answer in text
		s.logger.Warn("Too many undispatchable function calls, withdrawing tools",
			logging.Int("malformed_calls", s.malformedCalls))
		s.malformedCalls = 0
		s.functionTries = s.agent.cfg.Conversation.MaxFunctionTries - 1
		return nil
	}

	s.malformedCalls = 0
	for _, m := range msgs {
		s.history.Append(m)
	}
	return nil
}

func (s *Session) logMessage(msg llmtypes.Message) {
	if s.messageLogger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), messageLogTimeout)
	defer cancel()
	if err := s.messageLogger.Log(ctx, msg.Role, msg.Content, msg.Name); err != nil {
		s.logger.Warn("Failed to log message",
			logging.Role(string(msg.Role)),
			logging.Error(err))
	}
}

func (s *Session) recordTrace(ctx context.Context) {
	msgs := s.history.Snapshot()
	if len(msgs) < 2 {
		return
	}

	firstUser := ""
	for _, m := range msgs[1:] {
		if m.Role == llmtypes.RoleUser {
			firstUser = m.Content
			break
		}
	}
	end := s.agent.cfg.Now()
	gen := telemetry.Generation{
		TraceID:    ComputeTraceID(end, firstUser),
		SessionID:  s.id,
		Model:      s.agent.client.GetModel(),
		StartTime:  s.startTime,
		EndTime:    end,
		Prompt:     msgs[:len(msgs)-1],
		Completion: msgs[len(msgs)-1].Content,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traceTimeout)
	defer cancel()
	if err := s.agent.cfg.Tracer.Record(ctx, gen); err != nil {
		s.logger.Warn("Failed to export trace",
			logging.String("trace_id", gen.TraceID),
			logging.Error(err))
		return
	}
	s.logger.Debug("Trace recorded", logging.String("trace_id", gen.TraceID))
}
