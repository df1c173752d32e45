// ABOUTME: Pull-based event streams and the single-owner cursor shared by processor and workflow engine
// ABOUTME: Source/Request contract for opening one turn's stream, plus an in-memory stream

package event

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/2389/turnstream/internal/messaging"
)

// ErrCursorLent is returned when the owner of a cursor pulls while the
// cursor is lent to a borrower.
var ErrCursorLent = errors.New("cursor is lent to another consumer")

// ErrLoanReturned is returned when a borrower pulls after returning its loan.
var ErrLoanReturned = errors.New("loan already returned")

// Stream is an ordered, pull-based sequence of events for one turn.
// Next returns io.EOF once the sequence is exhausted. When ctx is cancelled
// Next returns an error wrapping context.Canceled.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Options are the per-turn switches forwarded to the backend.
type Options struct {
	DeepThinkingMode     bool   `json:"deep_thinking_mode"`
	SearchBeforePlanning bool   `json:"search_before_planning"`
	ConversationID       string `json:"conversation_id"`
}

// Request is everything a source needs to open a turn.
type Request struct {
	Message messaging.Message
	History []messaging.ChatMessage
	Options Options
}

// Source opens the event stream of one turn.
type Source interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req Request) (Stream, error)

// Open calls f.
func (f SourceFunc) Open(ctx context.Context, req Request) (Stream, error) {
	return f(ctx, req)
}

// SliceStream replays a fixed list of events.
type SliceStream struct {
	events []Event
	pos    int
	closed bool
}

// NewSliceStream creates a stream over events.
func NewSliceStream(events ...Event) *SliceStream {
	return &SliceStream{events: events}
}

// Next returns the next event or io.EOF.
func (s *SliceStream) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if s.closed || s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

// Close ends the stream.
func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Cursor owns a Stream and hands it to at most one borrower at a time.
// While a loan is out, the owner's Next fails with ErrCursorLent, so the
// two consumers never race on the underlying stream and no event is read
// twice or skipped at the hand-off.
type Cursor struct {
	mu       sync.Mutex
	stream   Stream
	loan     *Loan
	consumed int
}

// NewCursor wraps stream.
func NewCursor(stream Stream) *Cursor {
	return &Cursor{stream: stream}
}

// Next pulls the next event as the owner.
func (c *Cursor) Next(ctx context.Context) (Event, error) {
	c.mu.Lock()
	if c.loan != nil {
		c.mu.Unlock()
		return Event{}, ErrCursorLent
	}
	c.mu.Unlock()
	return c.pull(ctx)
}

func (c *Cursor) pull(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	e, err := c.stream.Next(ctx)
	if err != nil {
		return Event{}, err
	}
	c.mu.Lock()
	c.consumed++
	c.mu.Unlock()
	return e, nil
}

// Consumed returns the number of events pulled so far by any holder.
func (c *Cursor) Consumed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumed
}

// Lend hands pull ownership to a borrower. It fails if a loan is already out.
func (c *Cursor) Lend() (*Loan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loan != nil {
		return nil, ErrCursorLent
	}
	c.loan = &Loan{cursor: c}
	return c.loan, nil
}

// Close closes the underlying stream.
func (c *Cursor) Close() error {
	return c.stream.Close()
}

// Loan is a borrowed view of a Cursor. It implements Stream so a borrower
// can consume the remainder of the sequence; Close returns the loan instead
// of closing the underlying stream.
type Loan struct {
	cursor   *Cursor
	returned bool
}

// Next pulls the next event as the borrower.
func (l *Loan) Next(ctx context.Context) (Event, error) {
	l.cursor.mu.Lock()
	if l.returned || l.cursor.loan != l {
		l.cursor.mu.Unlock()
		return Event{}, ErrLoanReturned
	}
	l.cursor.mu.Unlock()
	return l.cursor.pull(ctx)
}

// Return gives ownership back to the cursor. It is safe to call more than once.
func (l *Loan) Return() {
	l.cursor.mu.Lock()
	defer l.cursor.mu.Unlock()
	if l.returned {
		return
	}
	l.returned = true
	if l.cursor.loan == l {
		l.cursor.loan = nil
	}
}

// Close returns the loan.
func (l *Loan) Close() error {
	l.Return()
	return nil
}
