package promptchain

import (
	"context"
	"iter"
	"slices"
	"strings"
)

// Role is the message role in a chat (system, user, assistant).
type Role string

// Chat message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole normalizes a role name. "human" maps to RoleUser and "ai" to RoleAssistant.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return RoleSystem, true
	case "user", "human":
		return RoleUser, true
	case "assistant", "ai":
		return RoleAssistant, true
	default:
		return "", false
	}
}

// ChatMessage is a single (role, content) pair.
type ChatMessage struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// String renders the message with a speaker prefix ("Human: hi").
func (m ChatMessage) String() string {
	return speaker(m.Role) + ": " + m.Content
}

func speaker(r Role) string {
	switch r {
	case RoleSystem:
		return "System"
	case RoleUser:
		return "Human"
	case RoleAssistant:
		return "AI"
	default:
		return string(r)
	}
}

// BufferString joins messages one per line with speaker prefixes.
func BufferString(msgs []ChatMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.String())
	}
	return strings.Join(lines, "\n")
}

// PromptValue is a rendered prompt: an ordered, immutable sequence of chat messages.
type PromptValue struct {
	messages []ChatMessage
}

// NewPromptValue copies msgs into a new PromptValue.
func NewPromptValue(msgs ...ChatMessage) *PromptValue {
	return &PromptValue{messages: slices.Clone(msgs)}
}

// UserPrompt wraps plain text as a single user message.
func UserPrompt(text string) *PromptValue {
	return NewPromptValue(ChatMessage{Role: RoleUser, Content: text})
}

// Messages returns a copy of the rendered messages.
func (p *PromptValue) Messages() []ChatMessage {
	if p == nil {
		return nil
	}
	return slices.Clone(p.messages)
}

// Len returns the number of messages.
func (p *PromptValue) Len() int {
	if p == nil {
		return 0
	}
	return len(p.messages)
}

// String returns the prompt as text. A single user message renders as its bare content.
func (p *PromptValue) String() string {
	if p == nil {
		return ""
	}
	if len(p.messages) == 1 && p.messages[0].Role == RoleUser {
		return p.messages[0].Content
	}
	return BufferString(p.messages)
}

// Usage is token accounting reported by the provider.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// ModelResponse is the text payload of a model call plus optional metadata.
// In streaming mode each chunk is a ModelResponse carrying a fragment of Text.
type ModelResponse struct {
	Text         string
	Model        string
	FinishReason string
	Usage        Usage
}

// ChatModel is a language-model client. Implementations live in the adapter packages.
type ChatModel interface {
	// Generate sends the prompt and returns the complete response.
	Generate(ctx context.Context, prompt *PromptValue, opts ...CallOption) (*ModelResponse, error)
	// Stream returns a lazy, finite sequence of partial responses. An error ends the sequence.
	Stream(ctx context.Context, prompt *PromptValue, opts ...CallOption) iter.Seq2[*ModelResponse, error]
}

// SchemaDefinition is a named JSON Schema, e.g. a manifest response_format.
type SchemaDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Schema      map[string]any `json:"schema" yaml:"schema"`
}

// PromptMetadata holds observability metadata.
type PromptMetadata struct {
	ID          string // From manifest id
	Version     string
	Description string   // From manifest description
	Tags        []string // From manifest metadata.tags
	Environment string   // Set by registry when loading by env (e.g. production); not from manifest
}

// PromptRegistry returns a chat prompt template by name and environment.
type PromptRegistry interface {
	GetTemplate(ctx context.Context, name, env string) (*ChatPromptTemplate, error)
}
