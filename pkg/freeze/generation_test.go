package freeze

import (
	"net/url"
	"testing"

	"github.com/Sternrassler/freeze-cache/pkg/host"
)

// busHost is a host.Host that only implements the listener pair.
type busHost struct {
	recordingHost
	bus *host.Bus
}

func newBusHost() *busHost {
	return &busHost{bus: host.NewBus()}
}

func (b *busHost) AddEventListener(target host.Target, typ host.EventType, fn host.Listener) func() {
	return b.bus.Add(target, typ, fn)
}

func (b *busHost) Dispatch(ev *host.Event) {
	b.bus.Dispatch(ev)
}

func TestGeneration_CancelRemovesListeners(t *testing.T) {
	h := newBusHost()
	live, _ := url.Parse("http://domain/a")
	g := newGeneration(live, nil)

	calls := 0
	g.Listen(h, host.Window, host.EventPopState, func(*host.Event) { calls++ })
	g.Listen(h, "anchor-1", host.EventClick, func(*host.Event) { calls++ })

	h.Dispatch(host.NewEvent(host.EventPopState))
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	g.Cancel()
	g.Cancel()

	h.Dispatch(host.NewEvent(host.EventPopState))
	h.Dispatch(&host.Event{Type: host.EventClick, Target: "anchor-1"})
	if calls != 1 {
		t.Errorf("cancelled listeners ran, calls = %d", calls)
	}
	if n := h.bus.Count(host.Window, host.EventPopState); n != 0 {
		t.Errorf("listeners left on host: %d", n)
	}
	if g.Active() {
		t.Error("cancelled generation reports active")
	}
}

func TestGeneration_ListenAfterCancel(t *testing.T) {
	h := newBusHost()
	g := newGeneration(nil, nil)
	g.Cancel()

	if g.Listen(h, host.Window, host.EventBeforeUnload, func(*host.Event) {}) {
		t.Error("Listen should refuse after Cancel")
	}
	if n := h.bus.Count(host.Window, host.EventBeforeUnload); n != 0 {
		t.Errorf("listener registered on cancelled generation: %d", n)
	}
}

func TestGeneration_SupersedeCancelsFirst(t *testing.T) {
	h := newBusHost()
	first := newGeneration(nil, []string{"s1"})
	first.Listen(h, host.Window, host.EventPopState, func(*host.Event) {})

	next, _ := url.Parse("http://domain/b")
	second := first.Supersede(next, []string{"s2"})

	if first.Active() {
		t.Error("superseded generation still active")
	}
	if !second.Active() || second.ID() == first.ID() {
		t.Errorf("second generation: active=%v id=%s", second.Active(), second.ID())
	}
	if second.Live().Path != "/b" {
		t.Errorf("Live = %s", second.Live())
	}
	if ids := second.Registry().IDs(); len(ids) != 1 || ids[0] != "s2" {
		t.Errorf("registry = %v, want [s2]", ids)
	}
	if n := h.bus.Count(host.Window, host.EventPopState); n != 0 {
		t.Errorf("superseded listeners remain: %d", n)
	}
}

func TestGeneration_LiveIsACopy(t *testing.T) {
	live, _ := url.Parse("http://domain/a")
	g := newGeneration(live, nil)
	live.Path = "/mutated"
	if g.Live().Path != "/a" {
		t.Errorf("Live = %s, want /a", g.Live())
	}
}
