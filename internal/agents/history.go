package agents

import (
	"errors"
	"sync"

	"github.com/user/ansari/internal/llmtypes"
)

// ErrEmptyHistory is returned by Last on a history with no messages
var ErrEmptyHistory = errors.New("message history is empty")

// History is the ordered conversation transcript. The first message is
// always the system prompt. Messages are only ever appended; Reset swaps the
// turns after the system prompt as a whole.
type History struct {
	mu       sync.RWMutex
	messages []llmtypes.Message
	onAppend func(llmtypes.Message)
}

// NewHistory creates a history holding only the system prompt
func NewHistory(systemPrompt string) *History {
	return &History{
		messages: []llmtypes.Message{{Role: llmtypes.RoleSystem, Content: systemPrompt}},
	}
}

// SetAppendHook registers fn to be called after every Append.
// Reset does not call it.
func (h *History) SetAppendHook(fn func(llmtypes.Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAppend = fn
}

// Append adds msg to the end of the transcript
func (h *History) Append(msg llmtypes.Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	hook := h.onAppend
	h.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
}

// Last returns the most recent message
func (h *History) Last() (llmtypes.Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.messages) == 0 {
		return llmtypes.Message{}, ErrEmptyHistory
	}
	return h.messages[len(h.messages)-1], nil
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Snapshot returns a copy of the full transcript, system prompt included
func (h *History) Snapshot() []llmtypes.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]llmtypes.Message(nil), h.messages...)
}

// Turns returns a copy of the transcript without the system prompt
func (h *History) Turns() []llmtypes.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.messages) <= 1 {
		return nil
	}
	return append([]llmtypes.Message(nil), h.messages[1:]...)
}

// Reset keeps the system prompt and replaces everything after it with turns
func (h *History) Reset(turns []llmtypes.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	system := h.messages[0]
	h.messages = make([]llmtypes.Message, 0, len(turns)+1)
	h.messages = append(h.messages, system)
	h.messages = append(h.messages, turns...)
}
