// ABOUTME: SSE handlers for the chat stream backend and the snapshot feed
// ABOUTME: Chat stream accepts the same body the transport client sends

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/event"
	"github.com/2389/turnstream/internal/messaging"
	"github.com/2389/turnstream/internal/mock"
	"github.com/2389/turnstream/internal/transport"
)

// maxRequestBody bounds chat request bodies.
const maxRequestBody = 1 << 20

// parseChatRequest decodes a chat request and splits it into the newest
// user message and the history before it.
func parseChatRequest(r io.Reader) (event.Request, error) {
	var body transport.ChatRequest
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return event.Request{}, errors.New("invalid JSON body")
	}
	if len(body.Messages) == 0 {
		return event.Request{}, errors.New("messages is required")
	}
	last := body.Messages[len(body.Messages)-1]
	if last.Role != messaging.RoleUser {
		return event.Request{}, errors.New("last message must come from the user")
	}

	return event.Request{
		Message: messaging.NewTextMessage(uuid.New().String(), messaging.RoleUser, last.Content),
		History: messaging.CloneChatMessages(body.Messages[:len(body.Messages)-1]),
		Options: event.Options{
			DeepThinkingMode:     body.DeepThinkingMode,
			SearchBeforePlanning: body.SearchBeforePlanning,
			ConversationID:       body.ConversationID,
		},
	}, nil
}

// handleChatStream plays the configured source back as SSE.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	req, err := parseChatRequest(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	stream, err := s.source.Open(ctx, req)
	if err != nil {
		if errors.Is(err, mock.ErrUnknownScenario) {
			s.sendJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("failed to open event stream", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer stream.Close()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sent := 0
	for {
		e, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Headers are gone; the client sees a truncated stream
			if ctx.Err() == nil {
				s.logger.Error("event stream failed", "error", err, "sent", sent)
			}
			return
		}
		if err := event.WriteSSE(w, e); err != nil {
			s.logger.Debug("client went away", "error", err, "sent", sent)
			return
		}
		flusher.Flush()
		sent++
	}

	s.logger.Debug("chat stream finished",
		"events", sent,
		"conversation_id", req.Options.ConversationID)
}

// handleSnapshots streams the current store snapshot followed by every
// change until the client disconnects or the store closes.
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	updates := s.store.Watch(ctx)

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := writeSnapshot(w, s.store.Get()); err != nil {
		s.logger.Error("failed to write snapshot", "error", err)
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSnapshot(w, snap); err != nil {
				s.logger.Debug("snapshot feed closed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSnapshot(w io.Writer, snap conversation.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}
