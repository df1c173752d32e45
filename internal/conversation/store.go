// ABOUTME: Observable conversation store holding messages, the responding flag and the planning state
// ABOUTME: Every mutation publishes an immutable snapshot to listeners in mutation order

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/turnstream/internal/messaging"
)

// State is the serializable planning state sent to the backend as context
// for the next turn.
type State struct {
	Messages []messaging.ChatMessage `json:"messages"`
}

// Snapshot is a point-in-time view of the store. Published snapshots are
// never modified by the store; readers must not modify them either.
type Snapshot struct {
	Messages   []messaging.Message `json:"messages"`
	Responding bool                `json:"responding"`
	State      State               `json:"state"`
}

// Message returns the message with the given ID.
func (s Snapshot) Message(id string) (messaging.Message, bool) {
	i := messaging.IndexOf(s.Messages, id)
	if i < 0 {
		return messaging.Message{}, false
	}
	return s.Messages[i], true
}

type listener struct {
	id string
	fn func(Snapshot)
}

// Store is the single shared mutable resource of a conversation. Each
// operation replaces whole fields under one lock; message slices are copied
// on write so earlier snapshots stay valid.
//
// Listeners registered with Subscribe run synchronously after each mutation,
// in mutation order. A listener may call Get but must not mutate the store
// or unsubscribe from inside the callback.
type Store struct {
	mu   sync.Mutex
	snap Snapshot

	// notifyMu serializes mutate-then-notify so listeners observe
	// snapshots in the order mutations were applied.
	notifyMu  sync.Mutex
	listeners []listener

	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		snap: Snapshot{
			Messages: []messaging.Message{},
			State:    State{Messages: []messaging.ChatMessage{}},
		},
		broadcaster: NewBroadcaster(logger),
		logger:      logger.With("component", "store"),
	}
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// AppendMessage inserts a copy of m at the tail and returns it. IDs are
// unique: appending an ID that is already present fails with
// ErrDuplicateMessage and leaves the store unchanged.
func (s *Store) AppendMessage(m messaging.Message) (messaging.Message, error) {
	var err error
	s.update(func(snap *Snapshot) bool {
		if messaging.IndexOf(snap.Messages, m.ID) >= 0 {
			err = fmt.Errorf("%w: %s", ErrDuplicateMessage, m.ID)
			return false
		}
		msgs := make([]messaging.Message, len(snap.Messages), len(snap.Messages)+1)
		copy(msgs, snap.Messages)
		snap.Messages = append(msgs, m.Clone())
		return true
	})
	if err != nil {
		return messaging.Message{}, err
	}
	return m, nil
}

// ReplaceMessageByID merges patch over the message with the same ID,
// keeping its position. It reports false, and changes nothing, when no
// such message exists.
func (s *Store) ReplaceMessageByID(patch messaging.Patch) bool {
	found := false
	s.update(func(snap *Snapshot) bool {
		i := messaging.IndexOf(snap.Messages, patch.ID)
		if i < 0 {
			return false
		}
		msgs := make([]messaging.Message, len(snap.Messages))
		copy(msgs, snap.Messages)
		msgs[i] = messaging.Merge(msgs[i], patch)
		snap.Messages = msgs
		found = true
		return true
	})
	if !found {
		s.logger.Debug("replace for unknown message ignored", "message_id", patch.ID)
	}
	return found
}

// SetResponding replaces the responding flag.
func (s *Store) SetResponding(responding bool) {
	s.update(func(snap *Snapshot) bool {
		snap.Responding = responding
		return true
	})
}

// ClearMessages removes every message.
func (s *Store) ClearMessages() {
	s.update(func(snap *Snapshot) bool {
		snap.Messages = []messaging.Message{}
		return true
	})
}

// SetConversationState replaces the planning state wholesale.
func (s *Store) SetConversationState(state State) {
	cp := State{Messages: messaging.CloneChatMessages(state.Messages)}
	s.update(func(snap *Snapshot) bool {
		snap.State = cp
		return true
	})
}

// BeginTurn sets responding if no turn is running and reports whether it
// did. It is the single-flight guard for turns.
func (s *Store) BeginTurn() bool {
	began := false
	s.update(func(snap *Snapshot) bool {
		if snap.Responding {
			return false
		}
		snap.Responding = true
		began = true
		return true
	})
	return began
}

// EndTurn clears responding.
func (s *Store) EndTurn() {
	s.SetResponding(false)
}

// Subscribe registers fn to receive every snapshot published after this
// call. The returned function unregisters it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	id := uuid.New().String()

	s.notifyMu.Lock()
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Watch streams snapshots on a buffered channel until ctx is cancelled.
// Unlike Subscribe it never blocks mutations. A slow reader loses the
// oldest queued snapshots, so the last value it reads is the latest state.
func (s *Store) Watch(ctx context.Context) <-chan Snapshot {
	ch, _ := s.broadcaster.Subscribe(ctx)
	return ch
}

// Close releases Watch subscribers.
func (s *Store) Close() {
	s.broadcaster.Close()
}

// update applies fn under the state lock and, if fn reports a change,
// notifies listeners with the new snapshot before the next mutation can
// start.
func (s *Store) update(fn func(*Snapshot) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := s.snap
	if !fn(&next) {
		s.mu.Unlock()
		return
	}
	s.snap = next
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.fn(next)
	}
	s.broadcaster.Publish(next)
}
