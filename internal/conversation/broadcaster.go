// ABOUTME: In-memory fan-out of store snapshots to channel subscribers
// ABOUTME: Non-blocking publish; slow subscribers lose their oldest queued snapshots

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Broadcaster provides asynchronous pub/sub for snapshots. It backs
// Store.Watch, where a consumer (an SSE handler, a terminal renderer) must
// never be able to block a running turn.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Snapshot // subID -> ch
	closed      bool
	done        chan struct{} // closed by Close
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Snapshot),
		done:        make(chan struct{}),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its channel and ID. The
// subscription is removed and the channel closed when ctx is cancelled or
// the broadcaster is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan Snapshot, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-b.done:
		}
	}()

	return ch, subID
}

// Publish sends snap to every subscriber without blocking. When a
// subscriber's buffer is full its oldest queued snapshot is discarded, so
// the newest snapshot is always delivered.
func (b *Broadcaster) Publish(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		if sendLatest(ch, snap) {
			b.logger.Debug("dropped oldest snapshot for slow subscriber", "sub_id", id)
		}
	}
}

// sendLatest queues snap on ch, discarding queued snapshots until it fits.
// It reports whether anything was discarded.
func sendLatest(ch chan Snapshot, snap Snapshot) (dropped bool) {
	for {
		select {
		case ch <- snap:
			return dropped
		default:
		}
		select {
		case <-ch:
			dropped = true
		default:
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels. Later subscriptions get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
	b.closed = true
	close(b.done)

	b.logger.Debug("broadcaster closed")
}
