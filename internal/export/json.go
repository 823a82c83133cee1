package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/user/ansari/internal/llmtypes"
)

// JSONDocument is the JSON export layout
type JSONDocument struct {
	Metadata Metadata      `json:"metadata"`
	Messages []JSONMessage `json:"messages"`
}

// Metadata describes the exported conversation
type Metadata struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Agent          string    `json:"agent,omitempty"`
	Model          string    `json:"model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExportedAt     time.Time `json:"exported_at"`
	Generator      Generator `json:"generator"`
	MessageCount   int       `json:"message_count"`
	WordCount      int       `json:"word_count"`
}

// Generator information
type Generator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// JSONMessage is one exported message. Headings lists the markdown
// headings of assistant answers.
type JSONMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Headings  []Heading `json:"headings,omitempty"`
}

// Heading is a markdown heading found in a message
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// JSONExporter writes transcripts as indented JSON
type JSONExporter struct {
	markdown  goldmark.Markdown
	generator Generator
	now       func() time.Time
}

// NewJSONExporter creates a JSON exporter
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		generator: Generator{Name: "ansari", Version: "1.0.0"},
		now:       time.Now,
	}
}

func (e *JSONExporter) Extension() string {
	return ".json"
}

// Export writes t to w
func (e *JSONExporter) Export(w io.Writer, t Transcript) error {
	doc := JSONDocument{
		Metadata: Metadata{
			ConversationID: t.ID,
			Title:          t.displayTitle(),
			Agent:          t.Agent,
			Model:          t.Model,
			CreatedAt:      t.CreatedAt,
			ExportedAt:     e.now(),
			Generator:      e.generator,
			MessageCount:   len(t.Messages),
		},
		Messages: make([]JSONMessage, 0, len(t.Messages)),
	}

	for _, m := range t.Messages {
		jm := JSONMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			ToolName:  m.ToolName,
			CreatedAt: m.CreatedAt,
		}
		if m.Role == llmtypes.RoleAssistant {
			jm.Headings = e.extractHeadings(m.Content)
		}
		doc.Metadata.WordCount += len(strings.Fields(m.Content))
		doc.Messages = append(doc.Messages, jm)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// extractHeadings walks the markdown AST and collects headings in order
func (e *JSONExporter) extractHeadings(content string) []Heading {
	source := []byte(content)
	doc := e.markdown.Parser().Parse(text.NewReader(source))

	var headings []Heading
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		headings = append(headings, Heading{Level: h.Level, Text: nodeText(h, source)})
		return ast.WalkSkipChildren, nil
	})
	return headings
}

// nodeText concatenates the text segments below n
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				b.Write(t.Segment.Value(source))
				if t.SoftLineBreak() {
					b.WriteByte(' ')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
