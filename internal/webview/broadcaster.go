package webview

import (
	"sync"

	"github.com/kvsview/kvsview/internal/util"
)

// Message is one frame as pushed to preview clients: a JSON metadata
// record followed by the image bytes.
type Message struct {
	Meta  []byte
	Image []byte
	MIME  string
}

// Broadcaster fans frames out to preview subscribers. The latest frame is
// cached and handed to new subscribers immediately. A subscriber whose
// channel is full is dropped.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Message
	latest      Message
	hasLatest   bool
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]chan Message),
	}
}

// Subscribe adds a subscriber. The returned channel is closed on
// Unsubscribe, on Close, or when the subscriber falls behind.
func (b *Broadcaster) Subscribe(subscriberID string, bufferSize int) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Message)
		close(ch)
		return ch
	}

	if bufferSize < 1 {
		bufferSize = 1
	}
	ch := make(chan Message, bufferSize)
	b.subscribers[subscriberID] = ch

	if b.hasLatest {
		ch <- b.latest
	}

	util.GetLogger().Debug("Preview subscriber added", "id", subscriberID, "total", len(b.subscribers))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, exists := b.subscribers[subscriberID]; exists {
		close(ch)
		delete(b.subscribers, subscriberID)
		util.GetLogger().Debug("Preview subscriber removed", "id", subscriberID, "remaining", len(b.subscribers))
	}
}

// Broadcast caches msg as the latest frame and sends it to every subscriber.
func (b *Broadcaster) Broadcast(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.latest = msg
	b.hasLatest = true

	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			close(ch)
			delete(b.subscribers, id)
			util.GetLogger().Warn("Dropping preview subscriber due to full channel", "id", id)
		}
	}
}

// Latest returns the most recent frame, if any.
func (b *Broadcaster) Latest() (Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.hasLatest
}

// Close closes all subscriber channels; later Broadcasts are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[string]chan Message)
}

// SubscriberCount returns the current number of subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
