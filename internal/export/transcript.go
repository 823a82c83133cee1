package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/user/ansari/internal/llmtypes"
)

// Transcript is a conversation prepared for export
type Transcript struct {
	ID        string
	Title     string
	Agent     string
	Model     string
	CreatedAt time.Time
	Messages  []TranscriptMessage
}

// TranscriptMessage is one exported message
type TranscriptMessage struct {
	Role      llmtypes.Role
	Content   string
	ToolName  string
	CreatedAt time.Time
}

// Exporter writes a transcript in one format
type Exporter interface {
	Export(w io.Writer, t Transcript) error
	Extension() string
}

// NewExporter returns the exporter for format ("json" or "html")
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return NewJSONExporter(), nil
	case "html":
		return NewHTMLExporter()
	default:
		return nil, fmt.Errorf("unsupported export format %q (use json or html)", format)
	}
}

// ExportFile writes t to outputPath
func ExportFile(e Exporter, t Transcript, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	if err := e.Export(f, t); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

func (t Transcript) displayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return "Conversation " + t.ID
}

// roleLabel is the heading shown above a message
func roleLabel(m TranscriptMessage) string {
	switch m.Role {
	case llmtypes.RoleUser:
		return "You"
	case llmtypes.RoleAssistant:
		return "Ansari"
	case llmtypes.RoleFunction:
		if m.ToolName != "" {
			return "Tool result: " + m.ToolName
		}
		return "Tool result"
	default:
		return "System"
	}
}
