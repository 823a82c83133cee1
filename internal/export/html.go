package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/user/ansari/internal/llmtypes"
)

// HTMLExporter renders transcripts as standalone HTML pages. Message bodies
// are treated as Markdown; raw HTML inside them is escaped.
type HTMLExporter struct {
	markdown     goldmark.Markdown
	htmlTemplate *template.Template
	now          func() time.Time
}

// HTMLDocument is the data for the page template
type HTMLDocument struct {
	Title       string
	Model       string
	CreatedAt   string
	GeneratedAt string
	Messages    []HTMLMessage
	CSS         template.CSS
}

// HTMLMessage is one rendered message
type HTMLMessage struct {
	Class string
	Label string
	Body  template.HTML
}

// NewHTMLExporter creates a new HTML exporter with Goldmark configured
func NewHTMLExporter() (*HTMLExporter, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	tmpl, err := template.New("transcript").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to load HTML template: %w", err)
	}

	return &HTMLExporter{
		markdown:     md,
		htmlTemplate: tmpl,
		now:          time.Now,
	}, nil
}

func (e *HTMLExporter) Extension() string {
	return ".html"
}

// Export renders t to w
func (e *HTMLExporter) Export(w io.Writer, t Transcript) error {
	doc := HTMLDocument{
		Title:       t.displayTitle(),
		Model:       t.Model,
		GeneratedAt: e.now().Format("2006-01-02 15:04:05"),
		CSS:         template.CSS(defaultCSS),
	}
	if !t.CreatedAt.IsZero() {
		doc.CreatedAt = t.CreatedAt.Format("2006-01-02 15:04")
	}

	for _, m := range t.Messages {
		if m.Role == llmtypes.RoleSystem {
			continue
		}
		var buf bytes.Buffer
		if err := e.markdown.Convert([]byte(m.Content), &buf); err != nil {
			return fmt.Errorf("failed to convert markdown: %w", err)
		}
		doc.Messages = append(doc.Messages, HTMLMessage{
			Class: string(m.Role),
			Label: roleLabel(m),
			Body:  template.HTML(buf.String()),
		})
	}

	if err := e.htmlTemplate.Execute(w, doc); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="generator" content="Ansari">
    <title>{{.Title}}</title>
    <style>
        {{.CSS}}
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>{{.Title}}</h1>
            <div class="meta">{{if .Model}}{{.Model}}{{end}}{{if .CreatedAt}} &middot; {{.CreatedAt}}{{end}}</div>
        </header>
        <main>
{{- range .Messages}}
            <section class="message {{.Class}}">
                <div class="label">{{.Label}}</div>
                <div class="body">{{.Body}}</div>
            </section>
{{- end}}
        </main>
        <footer>
            <p>Exported on {{.GeneratedAt}} by Ansari</p>
        </footer>
    </div>
</body>
</html>`

const defaultCSS = `
        * { box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Helvetica, Arial, sans-serif;
            line-height: 1.6;
            color: #24292f;
            margin: 0;
        }

        .container { max-width: 860px; margin: 0 auto; padding: 32px; }
        header { border-bottom: 1px solid #d0d7de; margin-bottom: 24px; }
        header h1 { font-size: 1.6em; margin: 0 0 4px; }
        .meta { font-size: 12px; color: #57606a; padding-bottom: 8px; }

        .message { border-radius: 8px; padding: 12px 16px; margin-bottom: 16px; }
        .message .label { font-size: 12px; font-weight: 600; color: #57606a; margin-bottom: 4px; }
        .message.user { background-color: #ddf4ff; }
        .message.assistant { background-color: #f6f8fa; }
        .message.function { background-color: #fff8c5; font-size: 90%; }

        pre {
            border-radius: 6px;
            font-size: 85%;
            overflow: auto;
            padding: 16px;
        }

        code { font-family: ui-monospace, SFMono-Regular, 'SF Mono', Menlo, Consolas, monospace; }

        blockquote {
            padding: 0 1em;
            color: #57606a;
            border-left: 0.25em solid #d0d7de;
            margin: 0 0 16px;
        }

        footer {
            border-top: 1px solid #d0d7de;
            padding-top: 16px;
            text-align: center;
            font-size: 13px;
            color: #57606a;
        }

        [dir="rtl"], .arabic { direction: rtl; }
`
