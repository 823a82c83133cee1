package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/ansari/internal/config"
	"github.com/user/ansari/internal/logging"
)

const (
	// DefaultLangfuseHost is used when LANGFUSE_HOST is empty
	DefaultLangfuseHost = "https://cloud.langfuse.com"

	ingestionPath = "/api/public/ingestion"
)

// LangfuseTracer sends generations to the Langfuse ingestion API
type LangfuseTracer struct {
	client    *http.Client
	host      string
	publicKey string
	secretKey string
	logger    *logging.Logger
	newID     func() string
	now       func() time.Time
}

type ingestionBatch struct {
	Batch []ingestionEvent `json:"batch"`
}

type ingestionEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Body      interface{} `json:"body"`
}

type traceBody struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SessionID string `json:"sessionId,omitempty"`
}

type generationBody struct {
	ID        string      `json:"id"`
	TraceID   string      `json:"traceId"`
	Name      string      `json:"name"`
	StartTime string      `json:"startTime"`
	EndTime   string      `json:"endTime"`
	Model     string      `json:"model"`
	Input     interface{} `json:"input"`
	Output    string      `json:"output"`
}

// NewLangfuseTracer creates a tracer from cfg. A nil client uses a client
// with a 10 second timeout.
func NewLangfuseTracer(cfg config.LangfuseConfig, client *http.Client, logger *logging.Logger) *LangfuseTracer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	host := cfg.Host
	if host == "" {
		host = DefaultLangfuseHost
	}
	return &LangfuseTracer{
		client:    client,
		host:      strings.TrimSuffix(host, "/"),
		publicKey: cfg.PublicKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// NewTracer returns a LangfuseTracer when cfg carries both keys and a
// NopTracer otherwise
func NewTracer(cfg config.LangfuseConfig, logger *logging.Logger) Tracer {
	if !cfg.Enabled() {
		return NopTracer{}
	}
	return NewLangfuseTracer(cfg, nil, logger)
}

// Record sends a trace-create and a generation-create event in one batch
func (lt *LangfuseTracer) Record(ctx context.Context, gen Generation) error {
	if gen.TraceName == "" {
		gen.TraceName = "ansari-trace"
	}
	if gen.Name == "" {
		gen.Name = "ansari-gen"
	}

	ts := lt.now().UTC().Format(time.RFC3339Nano)
	batch := ingestionBatch{Batch: []ingestionEvent{
		{
			ID:        lt.newID(),
			Type:      "trace-create",
			Timestamp: ts,
			Body:      traceBody{ID: gen.TraceID, Name: gen.TraceName, SessionID: gen.SessionID},
		},
		{
			ID:        lt.newID(),
			Type:      "generation-create",
			Timestamp: ts,
			Body: generationBody{
				ID:        lt.newID(),
				TraceID:   gen.TraceID,
				Name:      gen.Name,
				StartTime: gen.StartTime.UTC().Format(time.RFC3339Nano),
				EndTime:   gen.EndTime.UTC().Format(time.RFC3339Nano),
				Model:     gen.Model,
				Input:     gen.Prompt,
				Output:    gen.Completion,
			},
		},
	}}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal langfuse batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lt.host+ingestionPath, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create langfuse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(lt.publicKey, lt.secretKey)

	resp, err := lt.client.Do(req)
	if err != nil {
		return fmt.Errorf("langfuse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("langfuse error: status %d, body: %s", resp.StatusCode, string(body))
	}

	lt.logger.Debug("Trace exported",
		logging.String("trace_id", gen.TraceID),
		logging.Int("status", resp.StatusCode))
	return nil
}
