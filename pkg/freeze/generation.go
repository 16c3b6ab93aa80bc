package freeze

import (
	"net/url"
	"sync"

	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/google/uuid"
)

// Generation is the set of listeners armed for one live page, together with
// the page's location and subscription registry. Cancelling a generation
// removes all of its listeners synchronously.
type Generation struct {
	id       string
	live     *url.URL
	registry *Registry

	// capturing is set when the page opted in and capture listeners were armed
	capturing bool

	mu        sync.Mutex
	removers  []func()
	cancelled bool
}

func newGeneration(live *url.URL, seed []string) *Generation {
	return &Generation{
		id:       uuid.NewString(),
		live:     cloneURL(live),
		registry: NewRegistry(seed...),
	}
}

// ID returns the generation id used in logs.
func (g *Generation) ID() string {
	return g.id
}

// Live returns the location of the page the generation was armed for.
func (g *Generation) Live() *url.URL {
	return cloneURL(g.live)
}

// Capturing reports whether the generation was armed with capture listeners.
func (g *Generation) Capturing() bool {
	return g.capturing
}

// Registry returns the generation's subscription registry.
func (g *Generation) Registry() *Registry {
	return g.registry
}

// Active reports whether the generation has not been cancelled.
func (g *Generation) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.cancelled
}

// Listen registers fn on h under this generation. It returns false, and
// registers nothing, once the generation is cancelled.
func (g *Generation) Listen(h host.Host, target host.Target, typ host.EventType, fn host.Listener) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		return false
	}

	remove := h.AddEventListener(target, typ, func(ev *host.Event) {
		if g.Active() {
			fn(ev)
		}
	})
	g.removers = append(g.removers, remove)
	return true
}

// Listeners returns the number of listeners registered under the generation.
func (g *Generation) Listeners() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.removers)
}

// Cancel removes every listener of the generation. Calling it again is a
// no-op.
func (g *Generation) Cancel() {
	g.mu.Lock()
	if g.cancelled {
		g.mu.Unlock()
		return
	}
	g.cancelled = true
	removers := g.removers
	g.removers = nil
	g.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
}

// Supersede cancels g and returns the generation for the next live page.
func (g *Generation) Supersede(live *url.URL, seed []string) *Generation {
	g.Cancel()
	return newGeneration(live, seed)
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
