// Package demo serves the fixture pages freeze navigation is exercised
// against: a static page, a page whose script binds a click handler, a page
// rendering a server-side load counter and an infinite list.
package demo

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
)

// Pages renders the fixture pages. The zero value is ready to use.
type Pages struct {
	increments atomic.Int64
	buttons    atomic.Int64
}

// Increments returns how many times the increment page was rendered.
func (p *Pages) Increments() int64 {
	return p.increments.Load()
}

// Routes mounts the fixture pages and their scripts on r.
func (p *Pages) Routes(r chi.Router) {
	r.Get("/", p.infinite)
	r.Get("/static.html", p.static)
	r.Get("/dynamic.html", p.dynamic)
	r.Get("/increment.html", p.increment)
	r.Get("/{script}.js", serveScript)
}

// Handler returns a router serving only the fixture pages.
func (p *Pages) Handler() http.Handler {
	r := chi.NewRouter()
	p.Routes(r)
	return r
}

const nav = `<nav>
<a href="/static.html" data-freeze-link>Static</a>
<a href="/dynamic.html" data-freeze-link>Dynamic</a>
<a href="/increment.html">Increment</a>
<a href="/" data-freeze-link>Infinite</a>
</nav>`

func page(title, head, body string) string {
	return "<!DOCTYPE html><html><head><title>" + title + "</title>" + head +
		"</head><body data-freeze>" + nav + body + "</body></html>"
}

func writeHTML(w http.ResponseWriter, markup string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(markup))
}

func (p *Pages) static(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, page("Static", "", `<main data-testid="main">Static</main>`))
}

func (p *Pages) dynamic(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, page("Dynamic",
		`<script src="/dynamic.js" type="module"></script>`,
		`<main data-testid="main">Dynamic</main>`))
}

func (p *Pages) increment(w http.ResponseWriter, _ *http.Request) {
	n := p.increments.Add(1)
	writeHTML(w, page("Increment",
		`<script src="/increment.js" type="module"></script>`,
		fmt.Sprintf(`<main data-testid="main">%d</main>`, n)))
}

func (p *Pages) infinite(w http.ResponseWriter, _ *http.Request) {
	var items strings.Builder
	for i := 0; i < 30; i++ {
		items.WriteString(p.button(i == 29))
	}
	writeHTML(w, page("Infinite",
		`<script src="/infinite.js" type="module"></script>`,
		`<ul data-infinite-root="mylist">`+items.String()+`</ul>`+
			`<a data-infinite-next="mylist" style="visibility: hidden; position: fixed;" href="/">Next</a>`))
}

func (p *Pages) button(trigger bool) string {
	height := rand.Intn(100) + 100
	attr := ""
	if trigger {
		attr = ` data-infinite-trigger="mylist"`
	}
	id := p.buttons.Add(1) - 1
	return fmt.Sprintf(`<li><button data-click-hello style="height: %dpx; width: %dpx"%s>ID: %d</button></li>`,
		height, height, attr, id)
}
