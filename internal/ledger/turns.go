// ABOUTME: Turn recording, queries and replay on top of the ledger tables
// ABOUTME: Implements conversation.Recorder and exposes recorded turns as an event source

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/event"
)

// Turn is a recorded turn.
type Turn struct {
	ID          string
	SessionID   string
	UserMessage string
	Outcome     string // empty while the turn is running
	Error       string
	StartedAt   time.Time
	EndedAt     *time.Time
}

// RecordedEvent is one stored event of a turn.
type RecordedEvent struct {
	Seq        int
	Event      event.Event
	ReceivedAt time.Time
}

var _ conversation.Recorder = (*Ledger)(nil)

// BeginTurn implements conversation.Recorder.
func (l *Ledger) BeginTurn(ctx context.Context, turn conversation.TurnInfo) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, user_message, started_at)
		VALUES (?, ?, ?, ?)
	`, turn.ID, turn.SessionID, turn.UserMessage, turn.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	l.logger.Debug("turn recorded", "turn_id", turn.ID, "session_id", turn.SessionID)
	return nil
}

// RecordEvent implements conversation.Recorder.
func (l *Ledger) RecordEvent(ctx context.Context, turnID string, seq int, ev event.Event) error {
	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event data: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO turn_events (turn_id, seq, type, data, received_at)
		VALUES (?, ?, ?, ?, ?)
	`, turnID, seq, string(ev.Type), string(dataJSON), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// EndTurn implements conversation.Recorder.
func (l *Ledger) EndTurn(ctx context.Context, turnID string, outcome conversation.Outcome, turnErr error) error {
	var errText sql.NullString
	if turnErr != nil {
		errText = sql.NullString{String: turnErr.Error(), Valid: true}
	}
	res, err := l.db.ExecContext(ctx, `
		UPDATE turns SET outcome = ?, error = ?, ended_at = ? WHERE id = ?
	`, outcome.String(), errText, time.Now().UTC().Format(time.RFC3339Nano), turnID)
	if err != nil {
		return fmt.Errorf("updating turn: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const turnColumns = `id, session_id, user_message, outcome, error, started_at, ended_at`

// GetTurn returns one turn.
func (l *Ledger) GetTurn(ctx context.Context, id string) (*Turn, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM turns WHERE id = ?`, id)
	turn, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// ListTurns returns the most recent turns, newest first. An empty session
// lists every session. A limit of zero or less means 50.
func (l *Ledger) ListTurns(ctx context.Context, sessionID string, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + turnColumns + ` FROM turns`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

// Events returns the recorded events of a turn in pull order.
func (l *Ledger) Events(ctx context.Context, turnID string) ([]RecordedEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, type, data, received_at FROM turn_events
		WHERE turn_id = ? ORDER BY seq
	`, turnID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []RecordedEvent
	for rows.Next() {
		var rec RecordedEvent
		var typ, data, receivedAt string
		if err := rows.Scan(&rec.Seq, &typ, &data, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		payload := map[string]any{}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("decoding event %d: %w", rec.Seq, err)
		}
		rec.Event = event.Event{Type: event.Type(typ), Data: payload}
		rec.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return out, nil
}

// ReplaySource returns a source that replays the events of a recorded turn
// regardless of the request it is opened with.
func (l *Ledger) ReplaySource(turnID string) event.Source {
	return event.SourceFunc(func(ctx context.Context, _ event.Request) (event.Stream, error) {
		if _, err := l.GetTurn(ctx, turnID); err != nil {
			return nil, fmt.Errorf("turn %s: %w", turnID, err)
		}
		recs, err := l.Events(ctx, turnID)
		if err != nil {
			return nil, err
		}
		events := make([]event.Event, len(recs))
		for i, r := range recs {
			events[i] = r.Event
		}
		return event.NewSliceStream(events...), nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(row scanner) (*Turn, error) {
	var turn Turn
	var outcome, errText, endedAt sql.NullString
	var startedAt string
	err := row.Scan(&turn.ID, &turn.SessionID, &turn.UserMessage, &outcome, &errText, &startedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning turn: %w", err)
	}
	turn.Outcome = outcome.String
	turn.Error = errText.String

	turn.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		turn.EndedAt = &t
	}
	return &turn, nil
}
