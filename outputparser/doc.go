// Package outputparser turns model text into Go values: trimmed strings, comma-separated
// lists, schema-validated records and typed structs. Every parser is also a chain stage
// (Invoke takes a *promptchain.ModelResponse) and exposes FormatInstructions for
// embedding in prompts. Fixing wraps a parser with a single model-backed repair attempt.
package outputparser
