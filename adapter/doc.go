// Package adapter defines the ProviderAdapter contract for mapping a rendered
// promptchain.PromptValue to provider-specific request/response types (e.g. OpenAI,
// Anthropic), plus helpers shared by the provider subpackages. Implementations live in
// provider-specific subpackages, each pairing an Adapter with a promptchain.ChatModel.
package adapter
