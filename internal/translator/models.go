package translator

// modelAliases maps a small set of well-known OpenAI model names onto their
// Claude equivalents. Unrecognized names pass through verbatim so callers can
// address upstream models directly.
var modelAliases = map[string]string{
	"gpt-4":         "claude-opus-4-20250514",
	"gpt-4-turbo":   "claude-sonnet-4-20250514",
	"gpt-4o":        "claude-sonnet-4-20250514",
	"gpt-4o-mini":   "claude-3-5-haiku-20241022",
	"gpt-3.5-turbo": "claude-3-5-haiku-20241022",
}

// ResolveModel maps an alias to its upstream model name, passing unknown
// names through unchanged.
func ResolveModel(model string) string {
	if mapped, ok := modelAliases[model]; ok {
		return mapped
	}
	return model
}

// FallbackModels is the static model list served when the live upstream fetch
// fails.
var FallbackModels = []string{
	"claude-opus-4-20250514",
	"claude-sonnet-4-20250514",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
}
