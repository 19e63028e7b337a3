// Package manifest parses YAML prompt manifests into ChatPromptTemplates.
//
// A manifest names the template (id, version, description, metadata.tags), optional
// model_config passed through as template ModelConfig, partial variables, an optional
// response_format schema and the message slots. A slot is either a role message
// (role: system|user|human|assistant|ai, content with {variables}) or a history slot
// (placeholder: variable_name, optionally optional: true).
package manifest
