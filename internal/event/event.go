// Package event delivers typed notifications from the hover selection engine
// and the configuration panel to registered listeners.
//
// Delivery is synchronous: Publish calls every matching listener on the
// publishing goroutine, in subscription order, after the notifier's lock is
// released. Listeners may subscribe or unsubscribe from inside a callback.
package event

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Event is implemented by every notification type.
type Event interface {
	// Name identifies the event type, e.g. "selection.completed".
	Name() string
}

// Names of engine events.
const (
	NameSelectionCompleted = "selection.completed"
	NameIndexesRebuilt     = "indexes.rebuilt"
	NameStateChanged       = "engine.state"
	NameSelectionCleared   = "selection.cleared"
)

// SelectionCompleted is published after every pipeline run, including runs
// that selected nothing.
type SelectionCompleted struct {
	Total    int
	Layers   int
	Duration time.Duration
}

func (SelectionCompleted) Name() string { return NameSelectionCompleted }

// IndexesRebuilt is published after the spatial index cache is rebuilt.
type IndexesRebuilt struct {
	Indexed  int
	Eligible int
}

func (IndexesRebuilt) Name() string { return NameIndexesRebuilt }

// StateChanged is published when the engine moves between states.
type StateChanged struct {
	From string
	To   string
}

func (StateChanged) Name() string { return NameStateChanged }

// SelectionCleared is published after every layer's selection was cleared.
type SelectionCleared struct {
	Count int
}

func (SelectionCleared) Name() string { return NameSelectionCleared }

// Handler receives events.
type Handler func(Event)

// Subscription is an active listener registration.
type Subscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

type listener struct {
	name    string // empty matches every event
	handler Handler
}

// Notifier fans events out to listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[uint64]listener
	nextID    uint64
	closed    bool
	dropped   atomic.Uint64
	recovered func(Event, any)
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithPanicHandler is called when a listener panics. The panic is always
// recovered; without a handler it is discarded.
func WithPanicHandler(fn func(Event, any)) Option {
	return func(n *Notifier) {
		n.recovered = fn
	}
}

// New creates a notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{listeners: make(map[uint64]listener)}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe registers h for every event.
func (n *Notifier) Subscribe(h Handler) *Subscription {
	return n.subscribe("", h)
}

// SubscribeTo registers h for events with the given name.
func (n *Notifier) SubscribeTo(name string, h Handler) *Subscription {
	return n.subscribe(name, h)
}

// SubscribeChan forwards events to ch without blocking. Events that do not
// fit in ch are dropped and counted by Dropped.
func (n *Notifier) SubscribeChan(ch chan<- Event) *Subscription {
	return n.subscribe("", func(e Event) {
		select {
		case ch <- e:
		default:
			n.dropped.Add(1)
		}
	})
}

func (n *Notifier) subscribe(name string, h Handler) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || h == nil {
		return &Subscription{}
	}
	n.nextID++
	n.listeners[n.nextID] = listener{name: name, handler: h}
	return &Subscription{id: n.nextID, notifier: n}
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, id)
}

// Publish delivers e to every matching listener.
func (n *Notifier) Publish(e Event) {
	if e == nil {
		return
	}

	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(n.listeners))
	for id, l := range n.listeners {
		if l.name == "" || l.name == e.Name() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = n.listeners[id].handler
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		n.deliver(h, e)
	}
}

func (n *Notifier) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil && n.recovered != nil {
			n.recovered(e, r)
		}
	}()
	h(e)
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Dropped returns the number of events discarded by full channels.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }

// Close removes every listener. Later Publish and Subscribe calls do
// nothing. Close is idempotent.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.listeners = make(map[uint64]listener)
}

// String describes an event for logs.
func String(e Event) string {
	switch ev := e.(type) {
	case SelectionCompleted:
		return fmt.Sprintf("%s total=%d layers=%d in %s", ev.Name(), ev.Total, ev.Layers, ev.Duration)
	case IndexesRebuilt:
		return fmt.Sprintf("%s indexed=%d eligible=%d", ev.Name(), ev.Indexed, ev.Eligible)
	case StateChanged:
		return fmt.Sprintf("%s %s -> %s", ev.Name(), ev.From, ev.To)
	case SelectionCleared:
		return fmt.Sprintf("%s count=%d", ev.Name(), ev.Count)
	case nil:
		return "<nil>"
	default:
		return e.Name()
	}
}
