package host

import "sync"

type registration struct {
	id     uint64
	target Target
	typ    EventType
	fn     Listener
}

// Bus is a listener registry hosts use to implement AddEventListener and
// Dispatch.
type Bus struct {
	mu        sync.Mutex
	seq       uint64
	listeners []*registration
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Add registers fn and returns its remover. The remover may be called any
// number of times, also after Reset.
func (b *Bus) Add(target Target, typ EventType, fn Listener) func() {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.listeners = append(b.listeners, &registration{id: id, target: target, typ: typ, fn: fn})
	b.mu.Unlock()

	return func() { b.remove(id) }
}

// Dispatch calls every listener registered for the event's target and type.
// A listener removed by an earlier listener of the same dispatch is skipped.
func (b *Bus) Dispatch(ev *Event) {
	b.mu.Lock()
	var matched []*registration
	for _, r := range b.listeners {
		if r.target == ev.Target && r.typ == ev.Type {
			matched = append(matched, r)
		}
	}
	b.mu.Unlock()

	for _, r := range matched {
		if !b.registered(r.id) {
			continue
		}
		r.fn(ev)
	}
}

// Reset drops every listener.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.listeners = nil
	b.mu.Unlock()
}

// DropElements drops the listeners of every target except the window, the
// way replacing the document's content detaches its element listeners.
func (b *Bus) DropElements() {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.listeners[:0]
	for _, r := range b.listeners {
		if r.target == Window {
			kept = append(kept, r)
		}
	}
	b.listeners = kept
}

// Count returns the number of listeners for target and type.
func (b *Bus) Count(target Target, typ EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.listeners {
		if r.target == target && r.typ == typ {
			n++
		}
	}
	return n
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.listeners {
		if r.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *Bus) registered(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.listeners {
		if r.id == id {
			return true
		}
	}
	return false
}
