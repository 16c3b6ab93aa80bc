// Package host defines the capabilities freeze navigation needs from a page:
// content and title access, scrolling, deferred tasks, script loading,
// history manipulation and an event subscribe/dispatch pair.
//
// Implementations live in subpackages: memhost (an in-memory tab used by
// tests and tools) and rodhost (a real Chrome tab driven through go-rod).
package host

import (
	"context"
	"errors"
	"net/url"
)

// ErrScriptNotFound indicates a script identifier the host cannot load.
var ErrScriptNotFound = errors.New("script not found")

// EventType names an event. Custom broadcast signals use their own names.
type EventType string

const (
	// EventClick fires on an anchor before its default navigation.
	EventClick EventType = "click"

	// EventPopState fires on the window after a history traversal.
	EventPopState EventType = "popstate"

	// EventBeforeUnload fires on the window before the document is replaced.
	EventBeforeUnload EventType = "beforeunload"
)

// Target identifies an event target: the window or a single anchor.
type Target string

// Window is the global scope target.
const Window Target = "window"

// Listener handles a dispatched event.
type Listener func(ev *Event)

// Anchor is a link element of the live document.
type Anchor struct {
	// Target addresses the anchor in AddEventListener
	Target Target

	// Href is the resolved destination
	Href *url.URL

	// Text is the anchor's text content
	Text string
}

// Host is the page capability interface.
//
// Listeners registered through AddEventListener belong to the live document:
// a full load drops them. Dispatch runs listeners synchronously in
// registration order.
type Host interface {
	Location() (*url.URL, error)

	Content() (string, error)
	SetContent(markup string) error

	Title() (string, error)
	SetTitle(title string) error

	Scroll() (int, error)
	SetScroll(y int) error

	// Defer runs fn after the current task, once pending layout has happened.
	Defer(fn func())

	// StartScript begins loading the script identified by id and returns a
	// channel that receives the outcome once. Scripts started one after
	// another begin executing in start order.
	StartScript(ctx context.Context, id string) <-chan error

	HistoryState() (State, error)
	PushHistory(state State, u *url.URL) error
	ReplaceHistory(state State, u *url.URL) error

	// Navigate performs a default, network-backed navigation to u.
	Navigate(ctx context.Context, u *url.URL) error

	// Reload performs a network-backed reload of the current location.
	Reload(ctx context.Context) error

	BodyHasAttr(name string) bool
	Anchors(attr string) ([]Anchor, error)

	AddEventListener(target Target, typ EventType, fn Listener) (remove func())
	Dispatch(ev *Event)
}
