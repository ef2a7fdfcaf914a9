package memhost

// listenerList keeps change callbacks in registration order. The owner
// guards it with its own lock.
type listenerList struct {
	nextID  uint64
	entries []listenerEntry
}

type listenerEntry struct {
	id uint64
	fn func()
}

func (l *listenerList) add(fn func()) uint64 {
	l.nextID++
	l.entries = append(l.entries, listenerEntry{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *listenerList) remove(id uint64) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listenerList) snapshot() []func() {
	out := make([]func(), len(l.entries))
	for i, e := range l.entries {
		out[i] = e.fn
	}
	return out
}
