// ABOUTME: Tests for the SSE codec
// ABOUTME: Covers multi-line data, comments, default event type and round trips

package event

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEReader_ParsesFrames(t *testing.T) {
	body := "event: start_of_agent\n" +
		"data: {\"agent_id\":\"a1\"}\n\n" +
		": keepalive\n\n" +
		"event: message\n" +
		"data: {\"delta\":\n" +
		"data: {\"content\":\"Hel\"}}\n\n"
	r := NewSSEReader(strings.NewReader(body))
	ctx := t.Context()

	e, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeStartOfAgent, e.Type)
	assert.Equal(t, "a1", e.Data["agent_id"])

	e, err = r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeMessage, e.Type)
	delta, err := Decode[MessageDelta](e)
	require.NoError(t, err)
	assert.Equal(t, "Hel", delta.Delta.Content)

	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEReader_DefaultsToMessageType(t *testing.T) {
	r := NewSSEReader(strings.NewReader("data: {\"delta\":{\"content\":\"x\"}}\n\n"))

	e, err := r.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, TypeMessage, e.Type)
}

func TestSSEReader_FlushesUnterminatedFrame(t *testing.T) {
	r := NewSSEReader(strings.NewReader("event: end_of_agent\ndata: {}"))

	e, err := r.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, TypeEndOfAgent, e.Type)
}

func TestSSEReader_InvalidJSON(t *testing.T) {
	r := NewSSEReader(strings.NewReader("event: message\ndata: {nope\n\n"))

	_, err := r.Next(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding message event data")
}

func TestSSEReader_CancelledContext(t *testing.T) {
	r := NewSSEReader(strings.NewReader("event: message\ndata: {}\n\n"))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteSSE_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, New(TypeStartOfWorkflow, map[string]any{"workflow_id": "w1"})))
	require.NoError(t, WriteSSE(&buf, Event{Type: TypeEndOfAgent}))

	assert.True(t, strings.HasPrefix(buf.String(), "event: start_of_workflow\ndata: {\"workflow_id\":\"w1\"}\n\n"))

	r := NewSSEReader(&buf)
	e, err := r.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "w1", e.Data["workflow_id"])

	e, err = r.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, TypeEndOfAgent, e.Type)
	assert.Empty(t, e.Data)
}
