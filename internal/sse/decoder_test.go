package sse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleStream = "event: message_start\r\n" +
	"data: {\"type\":\"message_start\"}\r\n" +
	"\r\n" +
	": keep-alive comment\n" +
	"event: content_block_delta\n" +
	"data: {\"delta\":{\"text\":\"hi\"}}\n" +
	"\n" +
	"data: {\"no\":\"event line\"}\n" +
	"\n"

func decodeAll(d *Decoder, chunks ...[]byte) []Event {
	var events []Event
	for _, chunk := range chunks {
		events = append(events, d.Feed(chunk)...)
	}
	return append(events, d.Flush()...)
}

func TestDecoder_WholeStream(t *testing.T) {
	events := decodeAll(&Decoder{}, []byte(sampleStream))
	require.Equal(t, []Event{
		{Type: "message_start", Data: `{"type":"message_start"}`},
		{Type: "content_block_delta", Data: `{"delta":{"text":"hi"}}`},
		{Type: "", Data: `{"no":"event line"}`},
	}, events)
}

// The transport may split the stream at any byte offset; the decoded events
// must be identical no matter where the cuts fall.
func TestDecoder_ArbitrarySplitsEquivalent(t *testing.T) {
	expected := decodeAll(&Decoder{}, []byte(sampleStream))

	for cut := 1; cut < len(sampleStream); cut++ {
		got := decodeAll(&Decoder{}, []byte(sampleStream[:cut]), []byte(sampleStream[cut:]))
		require.Equal(t, expected, got, "split at byte %d", cut)
	}
}

func TestDecoder_OneByteAtATime(t *testing.T) {
	expected := decodeAll(&Decoder{}, []byte(sampleStream))

	d := &Decoder{}
	var got []Event
	for i := 0; i < len(sampleStream); i++ {
		got = append(got, d.Feed([]byte{sampleStream[i]})...)
	}
	got = append(got, d.Flush()...)
	require.Equal(t, expected, got)
}

func TestDecoder_PartialLineNotParsed(t *testing.T) {
	d := &Decoder{}
	require.Empty(t, d.Feed([]byte("data: {\"half")))
	events := d.Feed([]byte("\":true}\n"))
	require.Equal(t, []Event{{Data: `{"half":true}`}}, events)
}

func TestDecoder_EventTypeResetsAtBlankLine(t *testing.T) {
	d := &Decoder{}
	events := d.Feed([]byte("event: ping\ndata: {}\n\ndata: {}\n"))
	require.Len(t, events, 2)
	require.Equal(t, "ping", events[0].Type)
	require.Equal(t, "", events[1].Type)
}

func TestDecoder_EventTypeStickyWithinBlock(t *testing.T) {
	d := &Decoder{}
	events := d.Feed([]byte("event: message_delta\ndata: {\"a\":1}\ndata: {\"b\":2}\n"))
	require.Len(t, events, 2)
	require.Equal(t, "message_delta", events[0].Type)
	require.Equal(t, "message_delta", events[1].Type)
}

func TestDecoder_FlushTrailingLine(t *testing.T) {
	d := &Decoder{}
	require.Empty(t, d.Feed([]byte("data: {\"tail\":true}")))
	events := d.Flush()
	require.Equal(t, []Event{{Data: `{"tail":true}`}}, events)
	require.Empty(t, d.Flush())
}
