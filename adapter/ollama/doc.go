// Package ollama provides a promptchain ChatModel and Embedder for the Ollama API.
// Translate returns *api.ChatRequest; ParseResponse expects *api.ChatResponse.
// Use TranslateTyped to get the concrete type without a type assertion.
//
// Model options (temperature, max_tokens, top_p, stop) are set on the request's Options
// map; max_tokens maps to num_predict. A ResponseFormat schema is sent as the request
// Format so the server constrains generation to it.
package ollama
