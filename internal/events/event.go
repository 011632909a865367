package events

import (
	"bytes"
	"fmt"
)

type EventType string

const (
	CatalogChanged EventType = "CatalogChangeEvent"
	Connected      EventType = "ConnectedEvent"
)

// HeartbeatFrame is an SSE comment line. The browser EventSource ignores it;
// its only job is to complete the long-poll so a dead client is noticed.
var HeartbeatFrame = []byte(":\r\r")

// Format renders an event in server-sent-event form.
func Format(t EventType, value string) []byte {
	if value == "" {
		return []byte(fmt.Sprintf("event: %s\ndata:\n\n", t))
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", t, value))
}

// Parse splits a payload produced by Format back into its type and value.
func Parse(payload []byte) (EventType, string, bool) {
	rest, ok := bytes.CutPrefix(payload, []byte("event: "))
	if !ok {
		return "", "", false
	}
	name, rest, ok := bytes.Cut(rest, []byte("\n"))
	if !ok {
		return "", "", false
	}
	rest, ok = bytes.CutPrefix(rest, []byte("data:"))
	if !ok {
		return "", "", false
	}
	rest = bytes.TrimSuffix(rest, []byte("\n\n"))
	rest = bytes.TrimPrefix(rest, []byte(" "))
	return EventType(name), string(rest), true
}
