package presence

import "sync"

// EventKind classifies a presence change
type EventKind string

const (
	EventAvailable   EventKind = "available"
	EventUnavailable EventKind = "unavailable"
	EventDeleted     EventKind = "deleted"
)

// Event is emitted by the manager whenever it mutates presence state.
// Listeners receive it synchronously on the mutating goroutine.
type Event struct {
	Username string
	Kind     EventKind
}

// subscriberList is the manager-owned list of event listeners.
type subscriberList struct {
	mu  sync.RWMutex
	fns []func(Event)
}

func newSubscriberList() *subscriberList {
	return &subscriberList{}
}

func (l *subscriberList) add(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
}

func (l *subscriberList) emit(e Event) {
	l.mu.RLock()
	fns := l.fns
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
