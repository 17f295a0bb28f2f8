package agent

import "github.com/MrWong99/curtaincall/pkg/provider/llm"

// History is the ordered message log of one role. It only grows. A History is
// owned by the loop goroutine and is not safe for concurrent use.
type History struct {
	msgs []llm.Message
}

// Append adds a message to the end of the log.
func (h *History) Append(role, content string) {
	h.msgs = append(h.msgs, llm.Message{Role: role, Content: content})
}

// Messages returns a copy of the log.
func (h *History) Messages() []llm.Message {
	out := make([]llm.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int { return len(h.msgs) }
