package translator

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MapStopReason maps a native stop reason onto the OpenAI finish_reason
// vocabulary. Unknown reasons map to "stop".
func MapStopReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return "stop"
	}
}

// MapErrorType maps a native error-type string onto the OpenAI error-type
// vocabulary.
func MapErrorType(errorType string) string {
	switch errorType {
	case "authentication_error", "permission_error", "not_found_error":
		return "invalid_request_error"
	case "rate_limit_error":
		return "rate_limit_error"
	case "overloaded_error":
		return "server_error"
	default:
		return "api_error"
	}
}

// ToOpenAI translates a buffered native Messages response into an OpenAI
// chat-completion response. All text content blocks concatenate into a single
// assistant message; other block types are ignored.
func ToOpenAI(nativeResponse []byte, requestID, originalModel string, created int64) []byte {
	template := `{"id":"","object":"chat.completion","created":0,"model":"","choices":[{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"stop"}],"usage":{"prompt_tokens":0,"completion_tokens":0,"total_tokens":0}}`

	out, _ := sjson.Set(template, "id", requestID)
	out, _ = sjson.Set(out, "created", created)
	out, _ = sjson.Set(out, "model", originalModel)

	var text strings.Builder
	if contentResult := gjson.GetBytes(nativeResponse, "content"); contentResult.IsArray() {
		for _, blockResult := range contentResult.Array() {
			if blockResult.Get("type").String() == "text" {
				text.WriteString(blockResult.Get("text").String())
			}
		}
	}
	out, _ = sjson.Set(out, "choices.0.message.content", text.String())
	out, _ = sjson.Set(out, "choices.0.finish_reason", MapStopReason(gjson.GetBytes(nativeResponse, "stop_reason").String()))

	inputTokens := gjson.GetBytes(nativeResponse, "usage.input_tokens").Int()
	outputTokens := gjson.GetBytes(nativeResponse, "usage.output_tokens").Int()
	out, _ = sjson.Set(out, "usage.prompt_tokens", inputTokens)
	out, _ = sjson.Set(out, "usage.completion_tokens", outputTokens)
	out, _ = sjson.Set(out, "usage.total_tokens", inputTokens+outputTokens)

	return []byte(out)
}

// ToOpenAIError translates a native error body into an OpenAI error body.
// Unparsable bodies are wrapped verbatim so the caller is never left hanging.
func ToOpenAIError(nativeError []byte, statusCode int) []byte {
	message := gjson.GetBytes(nativeError, "error.message").String()
	if message == "" {
		message = strings.TrimSpace(string(nativeError))
	}
	if message == "" {
		message = "upstream request failed"
	}

	template := `{"error":{"type":"api_error","message":"","code":0}}`
	out, _ := sjson.Set(template, "error.type", MapErrorType(gjson.GetBytes(nativeError, "error.type").String()))
	out, _ = sjson.Set(out, "error.message", message)
	out, _ = sjson.Set(out, "error.code", statusCode)
	return []byte(out)
}
