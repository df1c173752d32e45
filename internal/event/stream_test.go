// ABOUTME: Tests for slice streams and cursor ownership hand-off
// ABOUTME: Verifies no event is read twice or skipped across a loan

package event

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(types ...Type) []Event {
	out := make([]Event, len(types))
	for i, t := range types {
		out[i] = New(t, map[string]any{"seq": i})
	}
	return out
}

func TestSliceStream_EndsWithEOF(t *testing.T) {
	s := NewSliceStream(seq(TypeStartOfAgent, TypeEndOfAgent)...)
	ctx := t.Context()

	e, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeStartOfAgent, e.Type)

	_, err = s.Next(ctx)
	require.NoError(t, err)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSliceStream_HonorsCancellation(t *testing.T) {
	s := NewSliceStream(seq(TypeMessage)...)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSliceStream_CloseStopsIteration(t *testing.T) {
	s := NewSliceStream(seq(TypeMessage)...)
	require.NoError(t, s.Close())

	_, err := s.Next(t.Context())
	assert.ErrorIs(t, err, io.EOF)
}

func TestCursor_HandOffPreservesOrder(t *testing.T) {
	events := seq(TypeStartOfWorkflow, TypeStartOfAgent, TypeEndOfAgent, TypeEndOfWorkflow, TypeStartOfAgent)
	cur := NewCursor(NewSliceStream(events...))
	ctx := t.Context()

	first, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeStartOfWorkflow, first.Type)

	loan, err := cur.Lend()
	require.NoError(t, err)

	var borrowed []Type
	for {
		e, err := loan.Next(ctx)
		require.NoError(t, err)
		borrowed = append(borrowed, e.Type)
		if e.Type == TypeEndOfWorkflow {
			break
		}
	}
	loan.Return()

	assert.Equal(t, []Type{TypeStartOfAgent, TypeEndOfAgent, TypeEndOfWorkflow}, borrowed)

	last, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeStartOfAgent, last.Type)
	assert.Equal(t, 4, last.Data["seq"])
	assert.Equal(t, 5, cur.Consumed())

	_, err = cur.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCursor_OwnerCannotPullWhileLent(t *testing.T) {
	cur := NewCursor(NewSliceStream(seq(TypeMessage, TypeMessage)...))

	loan, err := cur.Lend()
	require.NoError(t, err)

	_, err = cur.Next(t.Context())
	assert.ErrorIs(t, err, ErrCursorLent)

	_, err = cur.Lend()
	assert.ErrorIs(t, err, ErrCursorLent)

	// The failed owner pull consumed nothing
	assert.Equal(t, 0, cur.Consumed())

	loan.Return()
	_, err = cur.Next(t.Context())
	assert.NoError(t, err)
}

func TestLoan_UnusableAfterReturn(t *testing.T) {
	cur := NewCursor(NewSliceStream(seq(TypeMessage)...))
	loan, err := cur.Lend()
	require.NoError(t, err)

	require.NoError(t, loan.Close())
	loan.Return()

	_, err = loan.Next(t.Context())
	assert.ErrorIs(t, err, ErrLoanReturned)
}

func TestCursor_CancelledContextStopsPull(t *testing.T) {
	cur := NewCursor(NewSliceStream(seq(TypeMessage)...))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := cur.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cur.Consumed())
}

func TestSourceFunc(t *testing.T) {
	var got Request
	src := SourceFunc(func(_ context.Context, req Request) (Stream, error) {
		got = req
		return NewSliceStream(), nil
	})

	_, err := src.Open(t.Context(), Request{Options: Options{ConversationID: "s1"}})
	require.NoError(t, err)
	assert.Equal(t, "s1", got.Options.ConversationID)
}
