// ABOUTME: Tests for the HTTP server using httptest
// ABOUTME: Drives the transport client and the conversation service against the mock backend

package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/event"
	"github.com/2389/turnstream/internal/messaging"
	"github.com/2389/turnstream/internal/metrics"
	"github.com/2389/turnstream/internal/mock"
	"github.com/2389/turnstream/internal/transport"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestOptionalRoutesAreNotRegistered(t *testing.T) {
	srv := newTestServer(t, Config{})

	for _, path := range []string{"/api/snapshots", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, err := http.Post(srv.URL+"/api/chat/stream", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatStream_ServiceTurnOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{Source: mock.NewSource()})

	store := conversation.NewStore(nil)
	svc := conversation.New(store, conversation.WithSource(transport.NewClient(transport.Config{
		URL:     srv.URL + "/api/chat/stream",
		Timeout: time.Second,
	})))

	user := messaging.NewUserMessage("hi")
	msg, err := svc.SendMessage(t.Context(), user, conversation.Params{SessionID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, user.ID, msg.ID)

	snap := store.Get()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "a1", snap.Messages[1].ID)
	text, ok := snap.Messages[1].Text()
	require.True(t, ok)
	assert.Equal(t, "Hello", text)
	assert.False(t, snap.Responding)
}

func TestChatStream_WorkflowScenarioOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{Source: mock.NewSource()})

	store := conversation.NewStore(nil)
	svc := conversation.New(store, conversation.WithSource(transport.NewClient(transport.Config{
		URL: srv.URL + "/api/chat/stream",
	})))

	_, err := svc.SendMessage(t.Context(), messaging.NewUserMessage("/scenario research"), conversation.Params{SessionID: "s1"})
	require.NoError(t, err)

	snap := store.Get()
	require.NotEmpty(t, snap.State.Messages)
	assert.Equal(t, messaging.RoleAssistant, snap.State.Messages[0].Role)

	var workflows int
	for _, m := range snap.Messages {
		if m.Kind() == messaging.KindWorkflow {
			workflows++
		}
	}
	assert.Equal(t, 1, workflows)
}

func TestChatStream_BadRequests(t *testing.T) {
	srv := newTestServer(t, Config{Source: mock.NewSource()})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"no messages", `{"messages":[]}`, http.StatusBadRequest},
		{"last from assistant", `{"messages":[{"role":"assistant","content":"x"}]}`, http.StatusBadRequest},
		{"unknown scenario", `{"messages":[{"role":"user","content":"/scenario nope"}]}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/chat/stream", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestParseChatRequest_SplitsHistory(t *testing.T) {
	req, err := parseChatRequest(strings.NewReader(`{
		"messages": [
			{"role": "user", "content": "first"},
			{"role": "assistant", "content": "reply"},
			{"role": "user", "content": "second"}
		],
		"deep_thinking_mode": true,
		"conversation_id": "c1"
	}`))
	require.NoError(t, err)

	text, _ := req.Message.Text()
	assert.Equal(t, "second", text)
	assert.Equal(t, messaging.RoleUser, req.Message.Role)
	assert.NotEmpty(t, req.Message.ID)
	assert.Equal(t, []messaging.ChatMessage{
		{Role: messaging.RoleUser, Content: "first"},
		{Role: messaging.RoleAssistant, Content: "reply"},
	}, req.History)
	assert.True(t, req.Options.DeepThinkingMode)
	assert.Equal(t, "c1", req.Options.ConversationID)
}

func TestSnapshots_StreamsCurrentThenChanges(t *testing.T) {
	store := conversation.NewStore(nil)
	srv := newTestServer(t, Config{Store: store})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/snapshots", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := event.NewSSEReader(resp.Body)

	first, err := reader.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.Type("snapshot"), first.Type)
	assert.Equal(t, false, first.Data["responding"])
	assert.Empty(t, first.Data["messages"])

	_, err = store.AppendMessage(messaging.NewTextMessage("m1", messaging.RoleUser, "hi"))
	require.NoError(t, err)

	next, err := reader.Next(ctx)
	require.NoError(t, err)
	messages, ok := next.Data["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].(map[string]any)["id"])
}

func TestSnapshots_Heartbeat(t *testing.T) {
	srv := newTestServer(t, Config{Store: conversation.NewStore(nil), Heartbeat: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/snapshots", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if scanner.Text() == ": heartbeat" {
			return
		}
	}
	t.Fatal("no heartbeat before the feed ended")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)
	collectors.ObserveEvent("message")

	srv := newTestServer(t, Config{Gatherer: reg})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `turnstream_events_total{type="message"} 1`)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	store := conversation.NewStore(nil)
	s := New(Config{Store: store, Source: mock.NewSource()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	// An open snapshot feed must not hold up shutdown
	feed, err := http.Get(base + "/api/snapshots")
	require.NoError(t, err)
	defer feed.Body.Close()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_BadAddress(t *testing.T) {
	err := New(Config{}).Run(t.Context(), "not-an-address")
	assert.Error(t, err)
}
