package stream

import (
	"io"
	"strings"
)

// Event is a single frame of the SSE wire format: a named event carrying a
// data payload, or a comment frame used as a keep-alive. Frames are text
// blocks terminated by a blank line.
type Event struct {
	// Name is the value of the event: field. Empty for comment frames.
	Name string
	// Data is the data: payload, or the comment text for comment frames.
	Data string
}

// Endpoint builds the stream-opening announcement telling the client where
// to POST subsequent requests.
func Endpoint(url string) Event {
	return Event{Name: "endpoint", Data: url}
}

// Message frames a protocol envelope for delivery.
func Message(payload []byte) Event {
	return Event{Name: "message", Data: string(payload)}
}

// KeepAlive is the comment frame emitted when no message arrived within the
// pop timeout. It holds the connection open through intermediary proxies.
func KeepAlive() Event {
	return Event{Data: "keep-alive"}
}

// IsComment reports whether the event is a comment frame.
func (e Event) IsComment() bool {
	return e.Name == ""
}

// Encode renders the event in SSE wire format.
func (e Event) Encode() string {
	var b strings.Builder
	if e.IsComment() {
		b.WriteString(": ")
		b.WriteString(e.Data)
		b.WriteString("\n\n")
		return b.String()
	}

	b.WriteString("event: ")
	b.WriteString(e.Name)
	b.WriteByte('\n')
	for _, line := range strings.Split(e.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// WriteTo writes the encoded event to w.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, e.Encode())
	return int64(n), err
}
