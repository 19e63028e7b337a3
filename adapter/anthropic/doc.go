// Package anthropic provides a promptchain ChatModel for the Anthropic Messages API.
// Translate returns *anthropic.MessageNewParams; ParseResponse expects *anthropic.Message.
// Use TranslateTyped to get the concrete type without a type assertion.
//
// System messages are joined with blank lines into the request's system field. The
// Messages API has no native JSON Schema output mode, so CallOptions.ResponseFormat is
// ignored; pair the model with an outputparser.StructuredParser instead.
package anthropic
