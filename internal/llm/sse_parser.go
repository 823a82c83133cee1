package llm

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// SSEEvent represents a single Server-Sent Event
type SSEEvent struct {
	Event string // Event type (optional, empty if not specified)
	Data  []byte // Concatenated data lines, owned by the caller
	ID    string // Event ID (optional)
}

// SSEParser parses Server-Sent Events (SSE) streams
type SSEParser struct {
	reader    *bufio.Reader
	buffer    *bytes.Buffer // Accumulates data for the current event
	eventType string        // Current event type
	eventID   string        // Current event ID
}

// NewSSEParser creates a new SSE parser
func NewSSEParser(reader io.Reader) *SSEParser {
	return &SSEParser{
		reader: bufio.NewReader(reader),
		buffer: &bytes.Buffer{},
	}
}

// NextEvent reads the next SSE event from the stream
// Returns io.EOF when the stream is complete
// Returns io.ErrUnexpectedEOF if the stream ends mid-event
// Any other read error is returned as is
func (p *SSEParser) NextEvent() (SSEEvent, error) {
	for {
		line, err := p.reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				return SSEEvent{}, err
			}
			// A final line without trailing newline still counts
			if len(line) > 0 {
				p.parseLine(bytes.TrimSuffix(line, []byte{'\r'}))
			}
			if p.buffer.Len() > 0 || p.eventType != "" {
				return SSEEvent{}, fmt.Errorf("stream ended mid-event: %w", io.ErrUnexpectedEOF)
			}
			return SSEEvent{}, io.EOF
		}

		line = bytes.TrimSuffix(line, []byte{'\n'})
		line = bytes.TrimSuffix(line, []byte{'\r'})

		// Empty line dispatches the event
		if len(line) == 0 {
			if p.buffer.Len() > 0 || p.eventType != "" {
				event := SSEEvent{
					Event: p.eventType,
					Data:  bytes.Clone(p.buffer.Bytes()),
					ID:    p.eventID,
				}
				p.reset()
				return event, nil
			}
			continue
		}

		p.parseLine(line)
	}
}

// parseLine applies one non-empty line to the pending event
func (p *SSEParser) parseLine(line []byte) {
	// Comments start with ':'
	if line[0] == ':' {
		return
	}

	idx := bytes.IndexByte(line, ':')
	if idx == -1 {
		return
	}
	field := string(line[:idx])
	value := line[idx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}

	switch field {
	case "event":
		p.eventType = string(value)
	case "data":
		if p.buffer.Len() > 0 {
			p.buffer.WriteByte('\n')
		}
		p.buffer.Write(value)
	case "id":
		p.eventID = string(value)
	}
	// "retry" and unknown fields are ignored
}

// reset clears the parser state for the next event
func (p *SSEParser) reset() {
	p.buffer.Reset()
	p.eventType = ""
	p.eventID = ""
}

// IsSSEDone checks if the SSE data is the OpenAI [DONE] marker
func IsSSEDone(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]"))
}
