package host

import "testing"

func TestBus_DispatchMatchesTargetAndType(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Add(Window, "infsub", func(ev *Event) { got = append(got, "window:"+ev.Detail) })
	bus.Add("anchor-1", EventClick, func(*Event) { got = append(got, "anchor-1") })
	bus.Add(Window, EventPopState, func(*Event) { got = append(got, "popstate") })

	bus.Dispatch(&Event{Type: "infsub", Target: Window, Detail: "s1"})
	bus.Dispatch(&Event{Type: EventClick, Target: "anchor-1"})
	bus.Dispatch(&Event{Type: EventClick, Target: "anchor-2"})

	want := []string{"window:s1", "anchor-1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_RemoveIsIdempotent(t *testing.T) {
	bus := NewBus()
	calls := 0
	remove := bus.Add(Window, EventBeforeUnload, func(*Event) { calls++ })

	remove()
	remove()
	bus.Reset()
	remove()

	bus.Dispatch(NewEvent(EventBeforeUnload))
	if calls != 0 {
		t.Errorf("removed listener called %d times", calls)
	}
	if n := bus.Count(Window, EventBeforeUnload); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestBus_ListenerRemovedDuringDispatchIsSkipped(t *testing.T) {
	bus := NewBus()
	secondCalled := false

	var removeSecond func()
	bus.Add(Window, EventPopState, func(*Event) { removeSecond() })
	removeSecond = bus.Add(Window, EventPopState, func(*Event) { secondCalled = true })

	bus.Dispatch(NewEvent(EventPopState))
	if secondCalled {
		t.Error("listener removed mid-dispatch should not run")
	}
}

func TestState_Marker(t *testing.T) {
	var s State
	if s.Marked("freeze") {
		t.Error("nil state should not be marked")
	}

	marked := s.WithMarker("freeze")
	if !marked.Marked("freeze") {
		t.Error("WithMarker should mark")
	}

	foreign := State{"freeze": "yes", "page": 2}
	if foreign.Marked("freeze") {
		t.Error("non-bool marker should not count")
	}
	if m := foreign.WithMarker("freeze"); m["page"] != 2 || !m.Marked("freeze") {
		t.Errorf("WithMarker lost fields: %v", m)
	}
	if foreign["freeze"] != "yes" {
		t.Error("WithMarker must not mutate the receiver")
	}
}

func TestEvent_PreventDefault(t *testing.T) {
	ev := NewEvent(EventClick)
	if ev.DefaultPrevented() {
		t.Fatal("new event should not be prevented")
	}
	ev.PreventDefault()
	if !ev.DefaultPrevented() {
		t.Error("PreventDefault not recorded")
	}
}

func TestBus_DropElementsKeepsWindow(t *testing.T) {
	bus := NewBus()
	bus.Add(Window, EventPopState, func(*Event) {})
	removeAnchor := bus.Add("anchor-1", EventClick, func(*Event) {})
	bus.Add("main", EventClick, func(*Event) {})

	bus.DropElements()

	if n := bus.Count(Window, EventPopState); n != 1 {
		t.Errorf("window listeners = %d, want 1", n)
	}
	if n := bus.Count("anchor-1", EventClick) + bus.Count("main", EventClick); n != 0 {
		t.Errorf("element listeners = %d, want 0", n)
	}
	removeAnchor()
}
