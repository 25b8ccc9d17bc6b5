// Package translator implements the bidirectional mapping between the OpenAI
// chat-completions schema and the Anthropic Messages schema: request
// conversion, message-role normalization, image encoding, cache-breakpoint
// placement, and response/error translation. All functions are pure; no I/O.
package translator

import (
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/yszxh/claude-bridge/internal/constant"
)

// defaultMaxTokens is used when the inbound request does not bound the
// completion length. The Messages API requires max_tokens.
const defaultMaxTokens = 4096

// Options control policy decisions during conversion.
type Options struct {
	// FilterSampling forwards at most one of temperature/top_p.
	FilterSampling bool
	// PreferParam is the surviving sampling parameter ("temperature" or
	// "top_p") when a request carries both and filtering is on.
	PreferParam string
	// CacheBreakpoints bounds the number of cache-control markers placed on
	// the outbound message list.
	CacheBreakpoints int
}

// Message is one conversation turn in the native schema after normalization.
// Content is either a string or a []any of content-block maps.
type Message struct {
	Role    string
	Content any
}

// ToAnthropic translates an OpenAI-compatible chat-completions request body
// into a Messages API body. System-role messages are split into the native
// system array behind the mandatory prefix; roles are normalized to a strict
// user/assistant alternation; unsupported fields are dropped, not errored.
func ToAnthropic(rawJSON []byte, opts Options) []byte {
	model := constant.DefaultModel
	if modelResult := gjson.GetBytes(rawJSON, "model"); modelResult.Type == gjson.String {
		model = modelResult.String()
	}
	model = ResolveModel(model)

	var systemTexts []string
	var msgs []Message

	messagesResult := gjson.GetBytes(rawJSON, "messages")
	if messagesResult.IsArray() {
		for _, messageResult := range messagesResult.Array() {
			roleResult := messageResult.Get("role")
			contentResult := messageResult.Get("content")
			if roleResult.Type != gjson.String {
				continue
			}

			if roleResult.String() == "system" {
				if text := extractText(contentResult); strings.TrimSpace(text) != "" {
					systemTexts = append(systemTexts, text)
				}
				continue
			}

			// The remaining OpenAI roles collapse to two: assistant stays
			// assistant, everything else becomes user.
			msgs = append(msgs, Message{
				Role:    roleResult.String(),
				Content: convertContent(contentResult),
			})
		}
	}

	msgs = NormalizeMessages(msgs)
	ApplyCacheBreakpoints(msgs, opts.CacheBreakpoints)

	body := map[string]any{
		"model":      model,
		"system":     buildSystemBlocks(systemTexts),
		"messages":   messagesToMaps(msgs),
		"max_tokens": maxTokensFrom(rawJSON),
	}

	if gjson.GetBytes(rawJSON, "stream").Bool() {
		body["stream"] = true
	}
	applySampling(body, rawJSON, opts)
	if stops := stopSequencesFrom(rawJSON); len(stops) > 0 {
		body["stop_sequences"] = stops
	}

	out, err := json.Marshal(body)
	if err != nil {
		log.Errorf("failed to marshal translated request: %v", err)
		return rawJSON
	}
	return out
}

// PrepareNative enforces the outbound invariants on a native-protocol request
// without disturbing fields the proxy does not understand: the mandatory
// system prefix leads the system array, messages alternate user/assistant,
// cache breakpoints are recomputed, and at most one sampling parameter
// survives when filtering is enabled.
func PrepareNative(rawJSON []byte, opts Options) []byte {
	msgs := parseNativeMessages(gjson.GetBytes(rawJSON, "messages"))
	msgs = NormalizeMessages(msgs)
	ApplyCacheBreakpoints(msgs, opts.CacheBreakpoints)

	out := rawJSON
	out, _ = sjson.SetBytes(out, "messages", messagesToMaps(msgs))
	out, _ = sjson.SetBytes(out, "system", buildNativeSystem(gjson.GetBytes(rawJSON, "system")))
	if gjson.GetBytes(out, "max_tokens").Int() <= 0 {
		out, _ = sjson.SetBytes(out, "max_tokens", defaultMaxTokens)
	}
	out = filterSamplingRaw(out, opts)
	return out
}

// NormalizeMessages collapses roles to user/assistant, drops empty messages,
// merges consecutive user messages, separates consecutive assistant messages
// with a synthetic user placeholder, and guarantees the result is non-empty,
// user-first, and strictly alternating.
func NormalizeMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		if isEmptyContent(m.Content) {
			continue
		}

		if len(out) > 0 && out[len(out)-1].Role == role {
			if role == "user" {
				out[len(out)-1].Content = mergeContent(out[len(out)-1].Content, m.Content)
				continue
			}
			// Assistant messages are never merged; a placeholder keeps the
			// alternation intact.
			out = append(out, Message{Role: "user", Content: constant.ContinuePlaceholder})
		}
		out = append(out, Message{Role: role, Content: m.Content})
	}

	if len(out) == 0 {
		return []Message{{Role: "user", Content: constant.EmptyConversationPlaceholder}}
	}
	if out[0].Role != "user" {
		out = append([]Message{{Role: "user", Content: constant.StartPlaceholder}}, out...)
	}
	return out
}

// convertContent maps OpenAI message content (string or parts array) onto
// native content: a plain string, or a []any of content-block maps.
func convertContent(contentResult gjson.Result) any {
	if contentResult.Type == gjson.String {
		return contentResult.String()
	}
	if !contentResult.IsArray() {
		return ""
	}

	blocks := make([]any, 0)
	for _, partResult := range contentResult.Array() {
		switch partResult.Get("type").String() {
		case "text":
			blocks = append(blocks, map[string]any{
				"type": "text",
				"text": partResult.Get("text").String(),
			})
		case "image_url":
			if block := convertImagePart(partResult.Get("image_url.url").String()); block != nil {
				blocks = append(blocks, block)
			}
		default:
			log.Warnf("dropping unsupported content part type %q", partResult.Get("type").String())
		}
	}
	if len(blocks) == 0 {
		return ""
	}
	return blocks
}

// convertImagePart converts an inline data URI into a base64 image block and
// a remote URL into a URL-referenced image block. Anything else is dropped
// with a warning, not an error.
func convertImagePart(imageURL string) map[string]any {
	switch {
	case strings.HasPrefix(imageURL, "data:"):
		rest := strings.TrimPrefix(imageURL, "data:")
		parts := strings.SplitN(rest, ";base64,", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Warnf("dropping malformed image data URI")
			return nil
		}
		return map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": parts[0],
				"data":       parts[1],
			},
		}
	case strings.HasPrefix(imageURL, "http://"), strings.HasPrefix(imageURL, "https://"):
		return map[string]any{
			"type": "image",
			"source": map[string]any{
				"type": "url",
				"url":  imageURL,
			},
		}
	default:
		log.Warnf("dropping image part with unsupported URL form")
		return nil
	}
}

// extractText flattens string content or the text parts of an array.
func extractText(contentResult gjson.Result) string {
	if contentResult.Type == gjson.String {
		return contentResult.String()
	}
	if contentResult.IsArray() {
		var parts []string
		for _, partResult := range contentResult.Array() {
			if partResult.Get("type").String() == "text" {
				parts = append(parts, partResult.Get("text").String())
			}
		}
		return strings.Join(parts, "\n\n")
	}
	return ""
}

// buildSystemBlocks places the mandatory prefix first, followed by any
// caller-supplied system text as its own block.
func buildSystemBlocks(systemTexts []string) []any {
	blocks := []any{map[string]any{"type": "text", "text": constant.SystemPrefix}}
	for _, text := range systemTexts {
		blocks = append(blocks, map[string]any{"type": "text", "text": text})
	}
	return blocks
}

// buildNativeSystem prepends the mandatory prefix to a native system value
// (string or block array), preserving caller content after it and stripping
// time-to-live attributes from any cache-control markers.
func buildNativeSystem(systemResult gjson.Result) []any {
	blocks := []any{map[string]any{"type": "text", "text": constant.SystemPrefix}}

	switch {
	case systemResult.Type == gjson.String:
		if strings.TrimSpace(systemResult.String()) != "" && systemResult.String() != constant.SystemPrefix {
			blocks = append(blocks, map[string]any{"type": "text", "text": systemResult.String()})
		}
	case systemResult.IsArray():
		for i, blockResult := range systemResult.Array() {
			if i == 0 && blockResult.Get("text").String() == constant.SystemPrefix {
				continue
			}
			block, ok := blockResult.Value().(map[string]any)
			if !ok {
				continue
			}
			stripCacheTTL(block)
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// parseNativeMessages loads a native messages array into Message values.
func parseNativeMessages(messagesResult gjson.Result) []Message {
	var msgs []Message
	if !messagesResult.IsArray() {
		return msgs
	}
	for _, messageResult := range messagesResult.Array() {
		var content any
		contentResult := messageResult.Get("content")
		if contentResult.Type == gjson.String {
			content = contentResult.String()
		} else if contentResult.IsArray() {
			content, _ = contentResult.Value().([]any)
		}
		msgs = append(msgs, Message{
			Role:    messageResult.Get("role").String(),
			Content: content,
		})
	}
	return msgs
}

// applySampling copies sampling parameters into the outbound body, honoring
// the single-sampling-parameter rule.
func applySampling(body map[string]any, rawJSON []byte, opts Options) {
	temperature := gjson.GetBytes(rawJSON, "temperature")
	topP := gjson.GetBytes(rawJSON, "top_p")

	dropTemperature, dropTopP := samplingDrops(temperature.Exists(), topP.Exists(), opts)
	if temperature.Exists() && !dropTemperature {
		body["temperature"] = temperature.Float()
	}
	if topP.Exists() && !dropTopP {
		body["top_p"] = topP.Float()
	}
}

// filterSamplingRaw applies the single-sampling-parameter rule in place on a
// raw native body.
func filterSamplingRaw(rawJSON []byte, opts Options) []byte {
	temperature := gjson.GetBytes(rawJSON, "temperature")
	topP := gjson.GetBytes(rawJSON, "top_p")

	dropTemperature, dropTopP := samplingDrops(temperature.Exists(), topP.Exists(), opts)
	out := rawJSON
	if dropTemperature {
		out, _ = sjson.DeleteBytes(out, "temperature")
	}
	if dropTopP {
		out, _ = sjson.DeleteBytes(out, "top_p")
	}
	return out
}

func samplingDrops(hasTemperature, hasTopP bool, opts Options) (dropTemperature, dropTopP bool) {
	if !opts.FilterSampling || !hasTemperature || !hasTopP {
		return false, false
	}
	if opts.PreferParam == "top_p" {
		return true, false
	}
	return false, true
}

// stopSequencesFrom maps OpenAI stop (string or list) to stop_sequences.
func stopSequencesFrom(rawJSON []byte) []string {
	stopResult := gjson.GetBytes(rawJSON, "stop")
	switch {
	case stopResult.Type == gjson.String:
		return []string{stopResult.String()}
	case stopResult.IsArray():
		var stops []string
		for _, s := range stopResult.Array() {
			if s.Type == gjson.String {
				stops = append(stops, s.String())
			}
		}
		return stops
	}
	return nil
}

// maxTokensFrom picks a completion bound. Zero and negative values are as
// useless upstream as an absent field and get the default too.
func maxTokensFrom(rawJSON []byte) int64 {
	if result := gjson.GetBytes(rawJSON, "max_tokens"); result.Int() > 0 {
		return result.Int()
	}
	if result := gjson.GetBytes(rawJSON, "max_completion_tokens"); result.Int() > 0 {
		return result.Int()
	}
	return defaultMaxTokens
}

// isEmptyContent reports whether content is empty or whitespace-only text.
func isEmptyContent(content any) bool {
	switch v := content.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		if len(v) == 0 {
			return true
		}
		for _, block := range v {
			blockMap, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if blockMap["type"] != "text" {
				return false
			}
			if text, _ := blockMap["text"].(string); strings.TrimSpace(text) != "" {
				return false
			}
		}
		return true
	}
	return false
}

// mergeContent concatenates two user contents: plain strings join with a
// blank line, anything block-structured concatenates as block arrays.
func mergeContent(a, b any) any {
	aString, aIsString := a.(string)
	bString, bIsString := b.(string)
	if aIsString && bIsString {
		return aString + "\n\n" + bString
	}
	return append(toBlocks(a), toBlocks(b)...)
}

// toBlocks lifts string content into a single text block.
func toBlocks(content any) []any {
	switch v := content.(type) {
	case string:
		return []any{map[string]any{"type": "text", "text": v}}
	case []any:
		return v
	}
	return nil
}

func messagesToMaps(msgs []Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{"role": m.Role, "content": m.Content})
	}
	return out
}
