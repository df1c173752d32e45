// ABOUTME: Server-Sent Events codec for chat events
// ABOUTME: Reads "event:/data:" frames into Events and writes Events as frames

package event

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// SSEReader parses an SSE body into events. Frames without an event name
// default to the "message" type as in the SSE spec.
type SSEReader struct {
	scanner *bufio.Scanner
	body    io.Closer
}

// NewSSEReader reads frames from r. If r is an io.Closer it is closed by Close.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	// Workflow payloads can carry whole reports; bump the line limit.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	sr := &SSEReader{scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		sr.body = c
	}
	return sr
}

// Next returns the next complete frame as an Event, or io.EOF.
func (r *SSEReader) Next(ctx context.Context) (Event, error) {
	var eventType string
	var dataLines []string

	for r.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		line := r.scanner.Text()

		// Empty line terminates a frame
		if line == "" {
			if len(dataLines) == 0 {
				eventType = ""
				continue
			}
			return decodeFrame(eventType, strings.Join(dataLines, "\n"))
		}

		if strings.HasPrefix(line, ":") {
			continue // comment / keepalive
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}

	if err := r.scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Event{}, ctxErr
		}
		return Event{}, fmt.Errorf("reading event stream: %w", err)
	}

	// Flush a final frame that was not followed by a blank line
	if len(dataLines) > 0 {
		return decodeFrame(eventType, strings.Join(dataLines, "\n"))
	}
	return Event{}, io.EOF
}

// Close closes the underlying body if there is one.
func (r *SSEReader) Close() error {
	if r.body == nil {
		return nil
	}
	return r.body.Close()
}

func decodeFrame(eventType, data string) (Event, error) {
	if eventType == "" {
		eventType = string(TypeMessage)
	}
	payload := map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return Event{}, fmt.Errorf("decoding %s event data: %w", eventType, err)
		}
	}
	return Event{Type: Type(eventType), Data: payload}, nil
}

// WriteSSE writes e as a single SSE frame.
func WriteSSE(w io.Writer, e Event) error {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", e.Type, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, dataJSON)
	return err
}
