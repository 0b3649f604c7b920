package conflict

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// EventKind identifies a state change of the manager.
type EventKind string

const (
	EventDetected     EventKind = "detected"
	EventResolved     EventKind = "resolved"
	EventAcknowledged EventKind = "acknowledged"
	EventCleared      EventKind = "cleared"
	EventPanel        EventKind = "panel"
)

// Event describes one state change. Sequence numbers increase strictly.
type Event struct {
	Kind         EventKind
	Paths        []string
	PanelVisible bool
	Sequence     uint64
	Timestamp    time.Time
}

// eventBus fans events out to buffered subscriber channels. Emit never
// blocks; a subscriber that falls behind loses events and the drop is
// counted.
type eventBus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	sequence    atomic.Uint64
	dropped     atomic.Uint64
}

func (b *eventBus) subscribe() <-chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

func (b *eventBus) unsubscribe(ch <-chan Event) {
	if ch == nil {
		return
	}
	target := reflect.ValueOf(ch).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if reflect.ValueOf(sub).Pointer() == target {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

func (b *eventBus) emit(ev Event) {
	ev.Sequence = b.sequence.Add(1)
	ev.Timestamp = time.Now()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}
