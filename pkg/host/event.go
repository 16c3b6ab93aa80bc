package host

import (
	"net/url"
	"sync/atomic"
)

// Event is a dispatched event.
type Event struct {
	Type   EventType
	Target Target

	// Detail is the payload of custom events
	Detail string

	// State is the history state of the entry a popstate moved to
	State State

	// URL is the destination of a click
	URL *url.URL

	prevented atomic.Bool
}

// NewEvent creates a window event.
func NewEvent(typ EventType) *Event {
	return &Event{Type: typ, Target: Window}
}

// PreventDefault cancels the host's default action for the event.
func (e *Event) PreventDefault() {
	e.prevented.Store(true)
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e.prevented.Load()
}

// State is the object associated with a history entry.
type State map[string]any

// Marked reports whether the marker field is set to true.
func (s State) Marked(marker string) bool {
	v, ok := s[marker].(bool)
	return ok && v
}

// WithMarker returns a copy of s with the marker field set.
func (s State) WithMarker(marker string) State {
	out := make(State, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[marker] = true
	return out
}
