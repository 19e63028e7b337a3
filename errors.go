package promptchain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for templates, chains, parsers and registries.
// All use prefix "promptchain:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrMissingVariable  = errors.New("promptchain: required template variable not provided")
	ErrDuplicateBinding = errors.New("promptchain: variable already bound by partial application")
	ErrTemplateParse    = errors.New("promptchain: template parsing failed")
	ErrInvalidHistory   = errors.New("promptchain: history placeholder bound to a non-message value")
	ErrInvalidPayload   = errors.New("promptchain: payload struct is invalid or missing prompt tags")
	ErrSchemaValidation = errors.New("promptchain: output does not satisfy schema")
	ErrOutputParse      = errors.New("promptchain: output could not be parsed")
	ErrStageExecution   = errors.New("promptchain: chain stage failed")
	ErrTemplateNotFound = errors.New("promptchain: template not found in registry")
	ErrInvalidManifest  = errors.New("promptchain: manifest file is malformed")
	ErrInvalidName      = errors.New("promptchain: invalid template name or environment")
)

// VariableError wraps a sentinel error with variable and template context.
// Use errors.Is(err, ErrMissingVariable) and errors.As(err, &variableErr) to inspect.
type VariableError struct {
	Variable string
	Template string
	Err      error
}

// Error implements error.
func (e *VariableError) Error() string {
	return fmt.Sprintf("promptchain: variable %q in template %q: %v", e.Variable, e.Template, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *VariableError) Unwrap() error { return e.Err }

// StageError reports which chain stage failed. It matches ErrStageExecution and the
// underlying stage error.
type StageError struct {
	Index int
	Stage string
	Err   error
}

// Error implements error.
func (e *StageError) Error() string {
	return fmt.Sprintf("promptchain: stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

// Unwrap exposes both ErrStageExecution and the cause.
func (e *StageError) Unwrap() []error { return []error{ErrStageExecution, e.Err} }

// FieldViolation is one failed schema constraint.
type FieldViolation struct {
	Field       string
	Description string
	Value       any
}

// String renders "field: description".
func (v FieldViolation) String() string {
	return v.Field + ": " + v.Description
}

// SchemaValidationError lists every violated constraint of one parse attempt.
type SchemaValidationError struct {
	Schema     string
	Violations []FieldViolation
}

// Error implements error.
func (e *SchemaValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	name := e.Schema
	if name == "" {
		name = "output"
	}
	return fmt.Sprintf("promptchain: %s does not satisfy schema: %s", name, strings.Join(parts, "; "))
}

// Unwrap returns ErrSchemaValidation.
func (e *SchemaValidationError) Unwrap() error { return ErrSchemaValidation }

// Fields returns the names of the violated fields in report order, without duplicates.
func (e *SchemaValidationError) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range e.Violations {
		if !seen[v.Field] {
			seen[v.Field] = true
			out = append(out, v.Field)
		}
	}
	return out
}

// IsStructural reports whether err is a template or schema error, which chains surface
// unwrapped instead of reporting as a stage failure.
func IsStructural(err error) bool {
	return errors.Is(err, ErrMissingVariable) ||
		errors.Is(err, ErrDuplicateBinding) ||
		errors.Is(err, ErrTemplateParse) ||
		errors.Is(err, ErrInvalidHistory) ||
		errors.Is(err, ErrSchemaValidation) ||
		errors.Is(err, ErrOutputParse)
}

// Compile-time checks that the error types implement error.
var (
	_ error = (*VariableError)(nil)
	_ error = (*StageError)(nil)
	_ error = (*SchemaValidationError)(nil)
)
