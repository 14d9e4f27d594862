// Package events delivers user-facing notifications about store commands
// (the toasts of the document screen) to any number of subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fruitsalade/kbdocs/internal/metrics"
)

const (
	EventSave          = "save"
	EventRename        = "rename"
	EventDelete        = "delete"
	EventDeleteRequest = "delete_request"
	EventUpload        = "upload"
	EventDownload      = "download"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Event reports the outcome of one command.
type Event struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	Project   string `json:"project"`
	Path      string `json:"path,omitempty"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// OK reports whether the event is a success notification.
func (e Event) OK() bool {
	return e.Status == StatusSuccess
}

// Broadcaster manages subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetSubscribersActive(int64(b.Count()))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
	metrics.SetSubscribersActive(int64(b.Count()))
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordNotification(event.Type, event.OK())
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
