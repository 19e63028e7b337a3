// Package openai provides a promptchain adapter and chat model for the OpenAI Chat
// Completions API and OpenAI-compatible endpoints such as DeepSeek (see NewDeepSeek).
// Translate returns *openai.ChatCompletionNewParams; ParseResponse expects *openai.ChatCompletion.
// Use TranslateTyped to get the concrete type without a type assertion.
//
// Embedder wraps the embeddings API for retrieval pipelines.
package openai
