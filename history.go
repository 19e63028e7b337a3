package promptchain

import "slices"

// History is an append-only conversation log owned by a single interactive session.
// It is not safe for concurrent writers.
type History struct {
	messages []ChatMessage
}

// NewHistory returns a history seeded with msgs.
func NewHistory(msgs ...ChatMessage) *History {
	return &History{messages: slices.Clone(msgs)}
}

// Append adds one message.
func (h *History) Append(role Role, content string) {
	h.messages = append(h.messages, ChatMessage{Role: role, Content: content})
}

// AddTurn records a completed exchange: the user's input followed by the assistant reply.
func (h *History) AddTurn(input, reply string) {
	h.Append(RoleUser, input)
	h.Append(RoleAssistant, reply)
}

// Messages returns a copy of the log.
func (h *History) Messages() []ChatMessage {
	if h == nil {
		return nil
	}
	return slices.Clone(h.messages)
}

// Len returns the number of messages.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.messages)
}
