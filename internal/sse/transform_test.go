package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const nativeStream = "event: message_start\n" +
	"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_01\",\"usage\":{\"input_tokens\":25}}}\n" +
	"\n" +
	"event: content_block_start\n" +
	"data: {\"type\":\"content_block_start\",\"index\":0}\n" +
	"\n" +
	"event: ping\n" +
	"data: {\"type\":\"ping\"}\n" +
	"\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n" +
	"\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n" +
	"\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"thinking_delta\",\"thinking\":\"private\"}}\n" +
	"\n" +
	"event: content_block_stop\n" +
	"data: {\"type\":\"content_block_stop\",\"index\":0}\n" +
	"\n" +
	"event: message_delta\n" +
	"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":7}}\n" +
	"\n" +
	"event: message_stop\n" +
	"data: {\"type\":\"message_stop\"}\n" +
	"\n"

// outputChunks splits the emitted SSE text into its data payloads.
func outputChunks(t *testing.T, raw []byte) []string {
	t.Helper()
	var payloads []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}
	return payloads
}

func runTransform(t *testing.T, chunks ...[]byte) ([]string, Usage) {
	t.Helper()
	var usage Usage
	tr := NewStreamTransformer("chatcmpl-test", "gpt-4o", 1700000000, func(u Usage) { usage = u })

	var out []byte
	for _, chunk := range chunks {
		out = append(out, tr.Transform(chunk)...)
	}
	out = append(out, tr.Flush()...)
	return outputChunks(t, out), usage
}

func TestStreamTransformer_FullStream(t *testing.T) {
	payloads, usage := runTransform(t, []byte(nativeStream))

	// Role chunk, two text chunks, finish chunk, [DONE]. The thinking delta
	// and the framing events produce nothing.
	require.Len(t, payloads, 5)

	role := payloads[0]
	require.Equal(t, "chatcmpl-test", gjson.Get(role, "id").String())
	require.Equal(t, "chat.completion.chunk", gjson.Get(role, "object").String())
	require.Equal(t, "gpt-4o", gjson.Get(role, "model").String())
	require.Equal(t, "assistant", gjson.Get(role, "choices.0.delta.role").String())

	require.Equal(t, "Hel", gjson.Get(payloads[1], "choices.0.delta.content").String())
	require.Equal(t, "lo", gjson.Get(payloads[2], "choices.0.delta.content").String())

	finish := payloads[3]
	require.Equal(t, "stop", gjson.Get(finish, "choices.0.finish_reason").String())
	require.Equal(t, int64(25), gjson.Get(finish, "usage.prompt_tokens").Int())
	require.Equal(t, int64(7), gjson.Get(finish, "usage.completion_tokens").Int())
	require.Equal(t, int64(32), gjson.Get(finish, "usage.total_tokens").Int())

	require.Equal(t, "[DONE]", payloads[4])
	require.Equal(t, Usage{InputTokens: 25, OutputTokens: 7}, usage)
}

// Byte-level chunking must not change the emitted stream.
func TestStreamTransformer_SplitEquivalence(t *testing.T) {
	expected, expectedUsage := runTransform(t, []byte(nativeStream))

	for _, cut := range []int{1, 7, 42, 100, len(nativeStream) / 2, len(nativeStream) - 3} {
		got, gotUsage := runTransform(t, []byte(nativeStream[:cut]), []byte(nativeStream[cut:]))
		require.Equal(t, expected, got, "split at byte %d", cut)
		require.Equal(t, expectedUsage, gotUsage, "split at byte %d", cut)
	}
}

func TestStreamTransformer_RoleEmittedOnce(t *testing.T) {
	doubleStart := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
		"event: message_start\ndata: {\"type\":\"message_start\"}\n\n"
	payloads, _ := runTransform(t, []byte(doubleStart))

	roleChunks := 0
	for _, p := range payloads {
		if gjson.Get(p, "choices.0.delta.role").String() == "assistant" {
			roleChunks++
		}
	}
	require.Equal(t, 1, roleChunks)
}

func TestStreamTransformer_MalformedDataSwallowed(t *testing.T) {
	stream := "event: content_block_delta\ndata: {not json at all\n\n" +
		"event: content_block_delta\ndata: {\"delta\":{\"type\":\"text_delta\",\"text\":\"ok\"}}\n\n"
	payloads, _ := runTransform(t, []byte(stream))

	require.Len(t, payloads, 2)
	require.Equal(t, "ok", gjson.Get(payloads[0], "choices.0.delta.content").String())
	require.Equal(t, "[DONE]", payloads[1])
}

func TestStreamTransformer_UnknownEventIgnored(t *testing.T) {
	stream := "event: brand_new_event\ndata: {\"anything\":true}\n\n"
	payloads, _ := runTransform(t, []byte(stream))
	require.Equal(t, []string{"[DONE]"}, payloads)
}

func TestStreamTransformer_AlwaysTerminates(t *testing.T) {
	// Even a completely empty upstream stream ends with [DONE].
	payloads, usage := runTransform(t)
	require.Equal(t, []string{"[DONE]"}, payloads)
	require.Equal(t, Usage{}, usage)
}

func TestStreamTransformer_UsageCallbackOnce(t *testing.T) {
	calls := 0
	tr := NewStreamTransformer("id", "m", 0, func(Usage) { calls++ })
	_ = tr.Transform([]byte(nativeStream))
	_ = tr.Flush()
	_ = tr.Flush()
	require.Equal(t, 1, calls)
}

func TestStreamTransformer_MaxTokensStop(t *testing.T) {
	stream := "event: message_delta\ndata: {\"delta\":{\"stop_reason\":\"max_tokens\"},\"usage\":{\"output_tokens\":99}}\n\n"
	payloads, _ := runTransform(t, []byte(stream))
	require.Equal(t, "length", gjson.Get(payloads[0], "choices.0.finish_reason").String())
}

func TestStreamTransformer_NilUsageCallback(t *testing.T) {
	tr := NewStreamTransformer("id", "m", 0, nil)
	_ = tr.Transform([]byte(nativeStream))
	out := tr.Flush()
	require.True(t, strings.HasSuffix(string(out), "data: [DONE]\n\n"))
}
