// ABOUTME: Tests for the conversation Store
// ABOUTME: Covers copy-on-write snapshots, replace-by-id, ordering of notifications and the turn guard

package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/turnstream/internal/messaging"
)

func TestStore_NewIsEmpty(t *testing.T) {
	s := NewStore(nil)
	snap := s.Get()

	assert.NotNil(t, snap.Messages)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Responding)
	assert.NotNil(t, snap.State.Messages)
}

func TestStore_AppendKeepsOrder(t *testing.T) {
	s := NewStore(nil)

	_, err := s.AppendMessage(messaging.NewTextMessage("u1", messaging.RoleUser, "hi"))
	require.NoError(t, err)
	_, err = s.AppendMessage(messaging.NewTextMessage("a1", messaging.RoleAssistant, ""))
	require.NoError(t, err)

	snap := s.Get()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "u1", snap.Messages[0].ID)
	assert.Equal(t, "a1", snap.Messages[1].ID)
}

func TestStore_AppendDuplicateIDFails(t *testing.T) {
	s := NewStore(nil)
	_, err := s.AppendMessage(messaging.NewTextMessage("u1", messaging.RoleUser, "hi"))
	require.NoError(t, err)

	_, err = s.AppendMessage(messaging.NewTextMessage("u1", messaging.RoleUser, "again"))
	assert.ErrorIs(t, err, ErrDuplicateMessage)
	assert.Len(t, s.Get().Messages, 1)
}

func TestStore_ReplaceKeepsPosition(t *testing.T) {
	s := NewStore(nil)
	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := s.AppendMessage(messaging.NewTextMessage(id, messaging.RoleAssistant, id))
		require.NoError(t, err)
	}

	ok := s.ReplaceMessageByID(messaging.Patch{ID: "m2", Content: messaging.TextContent{Body: "changed"}})
	require.True(t, ok)

	snap := s.Get()
	ids := []string{snap.Messages[0].ID, snap.Messages[1].ID, snap.Messages[2].ID}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
	body, _ := snap.Messages[1].Text()
	assert.Equal(t, "changed", body)
	body, _ = snap.Messages[0].Text()
	assert.Equal(t, "m1", body)
}

func TestStore_ReplaceUnknownIDIsNoop(t *testing.T) {
	s := NewStore(nil)
	_, err := s.AppendMessage(messaging.NewTextMessage("m1", messaging.RoleUser, "hi"))
	require.NoError(t, err)

	notified := 0
	unsubscribe := s.Subscribe(func(Snapshot) { notified++ })
	defer unsubscribe()

	before := s.Get()
	ok := s.ReplaceMessageByID(messaging.Patch{ID: "missing", Content: messaging.TextContent{Body: "x"}})
	after := s.Get()

	assert.False(t, ok)
	assert.Equal(t, before, after)
	assert.Zero(t, notified)
}

func TestStore_PublishedSnapshotsAreNotMutated(t *testing.T) {
	s := NewStore(nil)
	_, err := s.AppendMessage(messaging.NewTextMessage("a1", messaging.RoleAssistant, "Hel"))
	require.NoError(t, err)

	held := s.Get()
	s.ReplaceMessageByID(messaging.Patch{ID: "a1", Content: messaging.TextContent{Body: "Hello"}})
	_, err = s.AppendMessage(messaging.NewTextMessage("a2", messaging.RoleAssistant, ""))
	require.NoError(t, err)
	s.ClearMessages()

	require.Len(t, held.Messages, 1)
	body, _ := held.Messages[0].Text()
	assert.Equal(t, "Hel", body)
}

func TestStore_SetConversationStateCopies(t *testing.T) {
	s := NewStore(nil)
	in := []messaging.ChatMessage{{Role: messaging.RoleAssistant, Content: "done"}}

	s.SetConversationState(State{Messages: in})
	in[0].Content = "mutated"

	assert.Equal(t, "done", s.Get().State.Messages[0].Content)

	s.SetConversationState(State{})
	assert.NotNil(t, s.Get().State.Messages)
	assert.Empty(t, s.Get().State.Messages)
}

func TestStore_ClearMessagesKeepsState(t *testing.T) {
	s := NewStore(nil)
	_, err := s.AppendMessage(messaging.NewTextMessage("m1", messaging.RoleUser, "hi"))
	require.NoError(t, err)
	s.SetConversationState(State{Messages: []messaging.ChatMessage{{Role: messaging.RoleUser, Content: "hi"}}})

	s.ClearMessages()

	assert.Empty(t, s.Get().Messages)
	assert.Len(t, s.Get().State.Messages, 1)
}

func TestStore_SubscribeReceivesEveryMutationInOrder(t *testing.T) {
	s := NewStore(nil)

	var got []string
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		switch {
		case snap.Responding:
			got = append(got, "responding")
		case len(snap.Messages) > 0:
			body, _ := snap.Messages[len(snap.Messages)-1].Text()
			got = append(got, body)
		default:
			got = append(got, "idle")
		}
	})

	s.SetResponding(true)
	s.SetResponding(false)
	_, err := s.AppendMessage(messaging.NewTextMessage("a1", messaging.RoleAssistant, "H"))
	require.NoError(t, err)
	s.ReplaceMessageByID(messaging.Patch{ID: "a1", Content: messaging.TextContent{Body: "Hi"}})

	unsubscribe()
	s.ClearMessages()

	assert.Equal(t, []string{"responding", "idle", "H", "Hi"}, got)
}

func TestStore_ConcurrentMutationsNotifyInCommitOrder(t *testing.T) {
	s := NewStore(nil)

	var seen []int
	s.Subscribe(func(snap Snapshot) { seen = append(seen, len(snap.Messages)) })

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			_, err := s.AppendMessage(messaging.NewTextMessage(string(rune('A'+i)), messaging.RoleUser, ""))
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	require.Len(t, seen, 50)
	for i, n := range seen {
		assert.Equal(t, i+1, n)
	}
}

func TestStore_ListenerMayRead(t *testing.T) {
	s := NewStore(nil)
	var read Snapshot
	s.Subscribe(func(Snapshot) { read = s.Get() })

	s.SetResponding(true)
	assert.True(t, read.Responding)
}

func TestStore_BeginTurnIsSingleFlight(t *testing.T) {
	s := NewStore(nil)

	require.True(t, s.BeginTurn())
	assert.False(t, s.BeginTurn())
	assert.True(t, s.Get().Responding)

	s.EndTurn()
	assert.False(t, s.Get().Responding)
	assert.True(t, s.BeginTurn())
}

func TestStore_WatchReceivesSnapshots(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	ch := s.Watch(t.Context())
	s.SetResponding(true)

	select {
	case snap := <-ch:
		assert.True(t, snap.Responding)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestStore_WatchSlowReaderEndsOnLatestState(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	ch := s.Watch(t.Context())

	const n = 100
	require.True(t, s.BeginTurn())
	for i := range n {
		_, err := s.AppendMessage(messaging.NewTextMessage(fmt.Sprintf("m%d", i), messaging.RoleAssistant, "x"))
		require.NoError(t, err)
	}
	s.EndTurn()

	var last Snapshot
drain:
	for {
		select {
		case snap := <-ch:
			last = snap
		case <-time.After(100 * time.Millisecond):
			break drain
		}
	}

	assert.Len(t, last.Messages, n)
	assert.False(t, last.Responding, "feed ends on the finished turn")
}

func TestSnapshot_Message(t *testing.T) {
	snap := Snapshot{Messages: []messaging.Message{messaging.NewTextMessage("m1", messaging.RoleUser, "hi")}}

	m, ok := snap.Message("m1")
	require.True(t, ok)
	assert.Equal(t, "m1", m.ID)

	_, ok = snap.Message("missing")
	assert.False(t, ok)
}
