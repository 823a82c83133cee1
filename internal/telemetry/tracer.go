package telemetry

import (
	"context"
	"time"

	"github.com/user/ansari/internal/llmtypes"
)

// Generation describes one completed processing loop
type Generation struct {
	TraceID    string
	TraceName  string
	Name       string
	SessionID  string
	Model      string
	StartTime  time.Time
	EndTime    time.Time
	Prompt     []llmtypes.Message
	Completion string
}

// Tracer exports generations to an observability backend
type Tracer interface {
	Record(ctx context.Context, gen Generation) error
}

// NopTracer drops every generation
type NopTracer struct{}

func (NopTracer) Record(ctx context.Context, gen Generation) error {
	return nil
}
