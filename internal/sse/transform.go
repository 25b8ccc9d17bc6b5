package sse

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/yszxh/claude-bridge/internal/translator"
)

const chunkTemplate = `{"id":"","object":"chat.completion.chunk","created":0,"model":"","choices":[{"index":0,"delta":{},"finish_reason":null}]}`

// Usage is the accumulated token accounting for one stream.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// UsageCallback receives the accumulated usage once, just before the [DONE]
// terminator is emitted.
type UsageCallback func(Usage)

// StreamTransformer converts a native Messages SSE stream into an
// OpenAI-compatible chunk stream. One instance owns exactly one in-flight
// stream; it is discarded when the stream ends.
type StreamTransformer struct {
	decoder Decoder

	requestID string
	model     string
	created   int64

	roleEmitted bool
	usage       Usage
	onUsage     UsageCallback
}

// NewStreamTransformer creates a transformer for one streaming response.
// onUsage may be nil.
func NewStreamTransformer(requestID, model string, created int64, onUsage UsageCallback) *StreamTransformer {
	return &StreamTransformer{
		requestID: requestID,
		model:     model,
		created:   created,
		onUsage:   onUsage,
	}
}

// Transform consumes one chunk of native SSE bytes, which may start or end
// mid-line, and returns the OpenAI-format SSE bytes it completes.
func (t *StreamTransformer) Transform(chunk []byte) []byte {
	var out []byte
	for _, event := range t.decoder.Feed(chunk) {
		out = append(out, t.handleEvent(event)...)
	}
	return out
}

// Flush terminates the stream: it drains any buffered line, reports usage,
// and emits the final [DONE] terminator. Call exactly once, after the native
// stream has ended for any reason.
func (t *StreamTransformer) Flush() []byte {
	var out []byte
	for _, event := range t.decoder.Flush() {
		out = append(out, t.handleEvent(event)...)
	}
	if t.onUsage != nil {
		t.onUsage(t.usage)
		t.onUsage = nil
	}
	out = append(out, []byte("data: [DONE]\n\n")...)
	return out
}

func (t *StreamTransformer) handleEvent(event Event) []byte {
	if !gjson.Valid(event.Data) {
		log.Warnf("swallowing malformed stream data for event %q", event.Type)
		return nil
	}
	data := gjson.Parse(event.Data)

	switch event.Type {
	case "message_start":
		return t.handleMessageStart(data)
	case "content_block_delta":
		return t.handleContentBlockDelta(data)
	case "message_delta":
		return t.handleMessageDelta(data)
	case "content_block_start", "content_block_stop", "message_stop", "ping":
		// Non-content framing events produce no output.
		return nil
	default:
		// Future upstream event types must not crash the transform.
		log.Debugf("ignoring unknown stream event type %q", event.Type)
		return nil
	}
}

// handleMessageStart emits the assistant role exactly once per stream and
// captures the input token count for later usage accounting.
func (t *StreamTransformer) handleMessageStart(data gjson.Result) []byte {
	if inputTokens := data.Get("message.usage.input_tokens"); inputTokens.Exists() {
		t.usage.InputTokens = inputTokens.Int()
	}
	if t.roleEmitted {
		return nil
	}
	t.roleEmitted = true

	chunk, _ := sjson.Set(t.newChunk(), "choices.0.delta.role", "assistant")
	chunk, _ = sjson.Set(chunk, "choices.0.delta.content", "")
	return formatChunk(chunk)
}

func (t *StreamTransformer) handleContentBlockDelta(data gjson.Result) []byte {
	// Thinking deltas have no OpenAI equivalent and are intentionally dropped.
	if data.Get("delta.type").String() != "text_delta" {
		return nil
	}
	chunk, _ := sjson.Set(t.newChunk(), "choices.0.delta.content", data.Get("delta.text").String())
	return formatChunk(chunk)
}

// handleMessageDelta emits the terminal chunk carrying the mapped
// finish_reason and, when the upstream reported usage, the summed totals.
func (t *StreamTransformer) handleMessageDelta(data gjson.Result) []byte {
	chunk := t.newChunk()
	chunk, _ = sjson.Set(chunk, "choices.0.finish_reason",
		translator.MapStopReason(data.Get("delta.stop_reason").String()))

	if outputTokens := data.Get("usage.output_tokens"); outputTokens.Exists() {
		t.usage.OutputTokens = outputTokens.Int()
		chunk, _ = sjson.Set(chunk, "usage.prompt_tokens", t.usage.InputTokens)
		chunk, _ = sjson.Set(chunk, "usage.completion_tokens", t.usage.OutputTokens)
		chunk, _ = sjson.Set(chunk, "usage.total_tokens", t.usage.InputTokens+t.usage.OutputTokens)
	}
	return formatChunk(chunk)
}

func (t *StreamTransformer) newChunk() string {
	chunk, _ := sjson.Set(chunkTemplate, "id", t.requestID)
	chunk, _ = sjson.Set(chunk, "created", t.created)
	chunk, _ = sjson.Set(chunk, "model", t.model)
	return chunk
}

func formatChunk(chunk string) []byte {
	return []byte(fmt.Sprintf("data: %s\n\n", chunk))
}
