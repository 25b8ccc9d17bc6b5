// Package sse implements an incremental server-sent-event decoder and the
// stateful transform that converts a native Messages event stream into the
// OpenAI chat-completion chunk stream. The decoder is independent of the
// underlying transport so parsing correctness is testable in isolation from
// networking.
package sse

import (
	"bytes"
	"strings"
)

// Event is one decoded (event, data) pair from the wire.
type Event struct {
	// Type is the value of the preceding "event:" line within the same
	// blank-separated block, or empty when the block carried none.
	Type string
	// Data is the payload of a single "data:" line.
	Data string
}

// Decoder is an incremental line-buffer decoder for SSE byte streams.
// The network may split or merge lines at any boundary, so each incoming
// chunk is appended to an internal buffer, complete lines are processed, and
// any trailing partial line is retained for the next chunk. A half-received
// line is never parsed.
type Decoder struct {
	partial   bytes.Buffer
	eventType string
}

// Feed consumes one chunk of bytes and returns the events completed by it.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.partial.Write(chunk)

	data := d.partial.Bytes()
	lastNewline := bytes.LastIndexByte(data, '\n')
	if lastNewline < 0 {
		return nil
	}

	complete := string(data[:lastNewline])
	rest := append([]byte(nil), data[lastNewline+1:]...)
	d.partial.Reset()
	d.partial.Write(rest)

	var events []Event
	for _, line := range strings.Split(complete, "\n") {
		if event, ok := d.processLine(line); ok {
			events = append(events, event)
		}
	}
	return events
}

// Flush processes any remaining buffered line after the stream has ended.
func (d *Decoder) Flush() []Event {
	if d.partial.Len() == 0 {
		return nil
	}
	line := d.partial.String()
	d.partial.Reset()
	if event, ok := d.processLine(line); ok {
		return []Event{event}
	}
	return nil
}

func (d *Decoder) processLine(line string) (Event, bool) {
	line = strings.TrimSuffix(line, "\r")

	switch {
	case line == "":
		// Blank line ends the block; the event-type context does not leak
		// into the next block.
		d.eventType = ""
	case strings.HasPrefix(line, "event:"):
		d.eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		return Event{Type: d.eventType, Data: strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")}, true
	}
	// Comment lines and unknown fields are ignored.
	return Event{}, false
}
