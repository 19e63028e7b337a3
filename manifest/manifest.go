package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/promptchain"
)

// fileManifest is the YAML manifest shape.
type fileManifest struct {
	ID          string                  `yaml:"id"`
	Version     string                  `yaml:"version"`
	Description string                  `yaml:"description"`
	ModelConfig map[string]any          `yaml:"model_config"`
	Metadata    struct{ Tags []string } `yaml:"metadata"`
	Variables   struct {
		Required []string       `yaml:"required"`
		Partial  map[string]any `yaml:"partial"`
	} `yaml:"variables"`
	ResponseFormat *promptchain.SchemaDefinition `yaml:"response_format"`
	Messages       []fileMessage                 `yaml:"messages"`
}

// fileMessage is either a role message (role + content) or a history slot (placeholder).
type fileMessage struct {
	Role        string `yaml:"role"`
	Content     string `yaml:"content"`
	Placeholder string `yaml:"placeholder"`
	Optional    bool   `yaml:"optional"`
}

// ParseBytes parses a YAML manifest and returns a ChatPromptTemplate.
func ParseBytes(data []byte) (*promptchain.ChatPromptTemplate, error) {
	var m fileManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", promptchain.ErrInvalidManifest, err)
	}
	return buildTemplate(&m)
}

// ParseFile reads and parses a manifest file.
func ParseFile(path string) (*promptchain.ChatPromptTemplate, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is validated by caller
	if err != nil {
		return nil, fmt.Errorf("manifest: read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseFS reads and parses a manifest from fs.FS (e.g. embed.FS).
func ParseFS(fsys fs.FS, name string) (*promptchain.ChatPromptTemplate, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read fs: %w", err)
	}
	return ParseBytes(data)
}

func buildTemplate(m *fileManifest) (*promptchain.ChatPromptTemplate, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: missing id", promptchain.ErrInvalidManifest)
	}
	if err := promptchain.ValidateID(m.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", promptchain.ErrInvalidManifest, err)
	}
	if len(m.Messages) == 0 {
		return nil, fmt.Errorf("%w: missing messages", promptchain.ErrInvalidManifest)
	}
	msgs := make([]promptchain.MessageTemplate, 0, len(m.Messages))
	for i, fm := range m.Messages {
		if fm.Placeholder != "" {
			if fm.Role != "" || fm.Content != "" {
				return nil, fmt.Errorf("%w: message %d: placeholder cannot have role or content", promptchain.ErrInvalidManifest, i)
			}
			slot := promptchain.Placeholder(fm.Placeholder)
			slot.Optional = fm.Optional
			msgs = append(msgs, slot)
			continue
		}
		role, ok := promptchain.ParseRole(fm.Role)
		if !ok {
			return nil, fmt.Errorf("%w: message %d: invalid role %q", promptchain.ErrInvalidManifest, i, fm.Role)
		}
		msgs = append(msgs, promptchain.MessageTemplate{Role: role, Content: fm.Content, Optional: fm.Optional})
	}
	if rf := m.ResponseFormat; rf != nil {
		if rf.Name == "" || len(rf.Schema) == 0 {
			return nil, fmt.Errorf("%w: response_format needs name and schema", promptchain.ErrInvalidManifest)
		}
	}
	opts := []promptchain.TemplateOption{
		promptchain.WithMetadata(promptchain.PromptMetadata{
			ID:          m.ID,
			Version:     m.Version,
			Description: m.Description,
			Tags:        m.Metadata.Tags,
		}),
	}
	if len(m.Variables.Partial) > 0 {
		opts = append(opts, promptchain.WithPartialVariables(m.Variables.Partial))
	}
	if len(m.ModelConfig) > 0 {
		opts = append(opts, promptchain.WithConfig(m.ModelConfig))
	}
	if m.ResponseFormat != nil {
		opts = append(opts, promptchain.WithOutputSchema(m.ResponseFormat))
	}
	tpl, err := promptchain.NewChatPromptTemplate(msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", promptchain.ErrInvalidManifest, err)
	}
	// Declared variables document the render contract; each must be one the template asks for.
	inputs := tpl.InputVariables()
	for _, name := range m.Variables.Required {
		if !slices.Contains(inputs, name) {
			return nil, fmt.Errorf("%w: declared variable %q is not used by any message", promptchain.ErrInvalidManifest, name)
		}
	}
	return tpl, nil
}
