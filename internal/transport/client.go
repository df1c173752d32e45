// ABOUTME: Live event source that POSTs a chat request and reads the SSE response
// ABOUTME: Maps cancellation to context.Canceled and non-200 responses to StatusError

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/turnstream/internal/event"
	"github.com/2389/turnstream/internal/messaging"
)

// ErrResponseTimeout is returned when the backend does not send response
// headers within the configured timeout.
var ErrResponseTimeout = errors.New("timed out waiting for response headers")

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat stream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	// URL is the chat stream endpoint, e.g. http://localhost:8000/api/chat/stream.
	URL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds the wait for response headers. Zero means no limit.
	// Once streaming starts only the turn's context applies.
	Timeout time.Duration
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is an event.Source backed by an HTTP SSE endpoint.
type Client struct {
	url     string
	token   string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:     cfg.URL,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http:    httpClient,
		logger:  logger.With("component", "transport"),
	}
}

// ChatRequest is the JSON body sent to the backend.
type ChatRequest struct {
	Messages             []messaging.ChatMessage `json:"messages"`
	DeepThinkingMode     bool                    `json:"deep_thinking_mode"`
	SearchBeforePlanning bool                    `json:"search_before_planning"`
	ConversationID       string                  `json:"conversation_id"`
}

// NewChatRequest builds the request body: the conversation state followed
// by the user message.
func NewChatRequest(req event.Request) ChatRequest {
	msgs := messaging.CloneChatMessages(req.History)
	if cm, ok := messaging.ToChatMessage(req.Message); ok {
		msgs = append(msgs, cm)
	}
	return ChatRequest{
		Messages:             msgs,
		DeepThinkingMode:     req.Options.DeepThinkingMode,
		SearchBeforePlanning: req.Options.SearchBeforePlanning,
		ConversationID:       req.Options.ConversationID,
	}
}

// Open implements event.Source.
func (c *Client) Open(ctx context.Context, req event.Request) (event.Stream, error) {
	bodyBytes, err := json.Marshal(NewChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, func() { cancel(ErrResponseTimeout) })
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("opening chat stream", "url", c.url, "conversation_id", req.Options.ConversationID)

	resp, err := c.http.Do(httpReq)
	if timer != nil && !timer.Stop() && err == nil {
		// The timer fired after the headers arrived; the body is already
		// cancelled with ErrResponseTimeout.
		resp.Body.Close()
		cancel(nil)
		return nil, ErrResponseTimeout
	}
	if err != nil {
		cause := context.Cause(reqCtx)
		cancel(nil)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(cause, ErrResponseTimeout) {
			return nil, ErrResponseTimeout
		}
		return nil, fmt.Errorf("sending chat request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel(nil)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	return &stream{
		reader: event.NewSSEReader(resp.Body),
		reqCtx: reqCtx,
		cancel: func() { cancel(nil) },
	}, nil
}

// stream reads events from a response body.
type stream struct {
	reader *event.SSEReader
	reqCtx context.Context
	cancel func()
}

func (s *stream) Next(ctx context.Context) (event.Event, error) {
	ev, err := s.reader.Next(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		// A body read that fails because the turn was cancelled surfaces as
		// a transport error; report the cancellation instead.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return event.Event{}, ctxErr
		}
		if errors.Is(context.Cause(s.reqCtx), ErrResponseTimeout) {
			return event.Event{}, ErrResponseTimeout
		}
	}
	return ev, err
}

func (s *stream) Close() error {
	s.cancel()
	return s.reader.Close()
}
