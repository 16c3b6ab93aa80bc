package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/Sternrassler/freeze-cache/pkg/fetch"
	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/Sternrassler/freeze-cache/pkg/host/memhost"
	"github.com/rs/zerolog"
)

// MainTarget addresses the page's main element in memhost listeners.
const MainTarget host.Target = "main"

// Console collects messages logged by fixture scripts.
type Console struct {
	mu       sync.Mutex
	messages []string
}

// Log appends msg.
func (c *Console) Log(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Drain returns the collected messages and clears them.
func (c *Console) Drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.messages
	c.messages = nil
	return out
}

// clickScript mirrors the demo click scripts: it announces itself and logs
// "clicked" when the main element is clicked.
func clickScript(console *Console, id string) memhost.ScriptFunc {
	return func(_ context.Context, tab *memhost.Tab) error {
		tab.AddEventListener(MainTarget, host.EventClick, func(*host.Event) {
			console.Log("clicked")
		})
		tab.Announce("infsub", id)
		return nil
	}
}

// Scripts returns the memhost behaviour of the demo scripts.
func Scripts(console *Console) map[string]memhost.ScriptFunc {
	return map[string]memhost.ScriptFunc{
		"/dynamic.js":   clickScript(console, "/dynamic.js"),
		"/increment.js": clickScript(console, "/increment.js"),
		"/infinite.js": func(_ context.Context, tab *memhost.Tab) error {
			tab.Announce("infsub", "/infinite.js")
			return nil
		},
	}
}

// NewTab creates a memhost tab that fetches from the network with a fast
// retrying fetch client and runs the demo scripts.
func NewTab(t *testing.T) (*memhost.Tab, *Console) {
	t.Helper()

	cfg := fetch.DefaultConfig("")
	cfg.Retry.MaxAttempts = 1
	client, err := fetch.New(cfg)
	if err != nil {
		t.Fatalf("fetch.New failed: %v", err)
	}

	console := &Console{}
	opts := []memhost.Option{memhost.WithLogger(zerolog.Nop())}
	for id, fn := range Scripts(console) {
		opts = append(opts, memhost.WithScript(id, fn))
	}
	return memhost.New(client, opts...), console
}

// ClickMain clicks the page's main element.
func ClickMain(tab *memhost.Tab) {
	tab.Dispatch(&host.Event{Type: host.EventClick, Target: MainTarget})
}
