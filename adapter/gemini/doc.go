// Package gemini provides a promptchain ChatModel for the Google Gemini (genai) API.
// Translate returns *gemini.Request (Model + Contents + Config); ParseResponse expects
// *genai.GenerateContentResponse. Use TranslateTyped to get the concrete type without a
// type assertion.
//
// System messages are joined into Config.SystemInstruction. MaxOutputTokens is clamped
// to math.MaxInt32. A CallOptions.ResponseFormat is converted to a genai.Schema and sent
// with the application/json response MIME type.
package gemini
