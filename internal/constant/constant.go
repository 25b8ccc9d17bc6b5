// Package constant defines protocol constants shared across the claude-bridge
// server: upstream endpoints, the mandatory system prefix, and wire-format
// identifiers.
package constant

const (
	// AnthropicAPIURL is the base URL of the upstream Messages API.
	AnthropicAPIURL = "https://api.anthropic.com"

	// AnthropicVersion is the pinned upstream API version header value.
	AnthropicVersion = "2023-06-01"

	// AnthropicBetaOAuth is the beta header required when authenticating
	// with an OAuth access token instead of an API key.
	AnthropicBetaOAuth = "oauth-2025-04-20"

	// SystemPrefix is the mandatory first system block on every outbound
	// request. OAuth-issued tokens are only accepted by the upstream when
	// this exact text leads the system array.
	SystemPrefix = "You are Claude Code, Anthropic's official CLI for Claude."

	// DefaultModel is used when an inbound request omits the model field.
	DefaultModel = "claude-sonnet-4-20250514"

	// ContinuePlaceholder separates consecutive assistant messages so the
	// outbound conversation keeps strict user/assistant alternation.
	ContinuePlaceholder = "[continue]"

	// StartPlaceholder is prepended when the first normalized message is not
	// a user message.
	StartPlaceholder = "[start]"

	// EmptyConversationPlaceholder stands in for a conversation that is empty
	// after normalization dropped every message.
	EmptyConversationPlaceholder = "Hello"
)
