// ABOUTME: Turn outcomes, sentinel errors and the recorder hook for completed turns
// ABOUTME: Cancellation is an outcome, not an error, so callers can switch exhaustively

package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/2389/turnstream/internal/event"
	"github.com/2389/turnstream/internal/messaging"
)

var (
	// ErrMissingSession is returned before any side effect when a turn is
	// started without a session ID.
	ErrMissingSession = errors.New("session id is required")

	// ErrTurnInProgress is returned before any side effect when another
	// turn is already running on the same store.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrDuplicateMessage is returned when appending a message whose ID is
	// already in the store.
	ErrDuplicateMessage = errors.New("duplicate message id")

	// ErrNoSource is returned when no event source is configured for the
	// selected mode.
	ErrNoSource = errors.New("no event source configured")
)

// Outcome is how a turn settled.
type Outcome int

const (
	Completed Outcome = iota + 1
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the settled state of one turn. Message is set for Completed,
// Err for Failed.
type Result struct {
	Outcome Outcome
	Message *messaging.Message
	Err     error
}

// classify maps the error that ended a turn to its outcome.
func classify(err error) Outcome {
	switch {
	case err == nil:
		return Completed
	case errors.Is(err, context.Canceled):
		return Cancelled
	default:
		return Failed
	}
}

// TurnInfo describes a turn as it starts.
type TurnInfo struct {
	ID          string
	SessionID   string
	UserMessage string
	StartedAt   time.Time
}

// Recorder receives every event of every turn. Recorder errors are logged
// and never affect the turn.
type Recorder interface {
	BeginTurn(ctx context.Context, turn TurnInfo) error
	RecordEvent(ctx context.Context, turnID string, seq int, ev event.Event) error
	EndTurn(ctx context.Context, turnID string, outcome Outcome, turnErr error) error
}
