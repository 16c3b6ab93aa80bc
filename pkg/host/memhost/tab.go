// Package memhost implements host.Host as an in-memory browser tab.
//
// Documents are fetched through a Fetcher and parsed with golang.org/x/net/html.
// The tab keeps a history stack, a deferred task queue and a registry of
// script behaviours keyed by script identifier (the src attribute).
//
// A full load runs in this order: beforeunload (navigations and reloads
// only), fetch, listener reset, OnLoad hooks, then every <script src> of the
// new document in document order. Runtimes that must observe page scripts
// install themselves as OnLoad hooks.
//
// History traversal (Back, Forward) keeps the tab's listeners and dispatches
// popstate. If no listener prevents default, the tab loads the entry's URL
// from the network.
package memhost

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fetcher retrieves the markup of a location.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, u *url.URL) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, u *url.URL) (string, error) {
	return f(ctx, u)
}

// ScriptFunc is the behaviour of a script when it executes in the tab.
type ScriptFunc func(ctx context.Context, tab *Tab) error

type entry struct {
	url   *url.URL
	state host.State
}

// Tab is an in-memory browser tab. It is safe for concurrent use; listeners
// and scripts run without the tab lock held.
type Tab struct {
	fetcher Fetcher
	bus     *host.Bus
	logger  zerolog.Logger

	mu        sync.Mutex
	scripts   map[string]ScriptFunc
	onLoad    []func(ctx context.Context)
	doc       *html.Node
	body      *html.Node
	title     string
	scroll    int
	entries   []entry
	index     int
	anchorIDs map[*html.Node]host.Target
	anchorSeq int
	tasks     []func()
	loads     map[string]int
	fetches   int
}

// Option customises a Tab.
type Option func(*Tab)

// WithScript registers the behaviour for script id.
func WithScript(id string, fn ScriptFunc) Option {
	return func(t *Tab) { t.scripts[id] = fn }
}

// WithLogger sets the tab logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tab) { t.logger = logger }
}

// New creates an empty tab. Call Open to load the first document.
func New(fetcher Fetcher, opts ...Option) *Tab {
	if fetcher == nil {
		panic("memhost: fetcher cannot be nil")
	}
	t := &Tab{
		fetcher:   fetcher,
		bus:       host.NewBus(),
		logger:    log.With().Str("component", "memhost").Logger(),
		scripts:   make(map[string]ScriptFunc),
		anchorIDs: make(map[*html.Node]host.Target),
		loads:     make(map[string]int),
		index:     -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RegisterScript registers the behaviour for script id.
func (t *Tab) RegisterScript(id string, fn ScriptFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripts[id] = fn
}

// OnLoad registers a hook run after every full load, before page scripts.
func (t *Tab) OnLoad(fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLoad = append(t.onLoad, fn)
}

// Open loads raw as the first document of the tab.
func (t *Tab) Open(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("memhost: parse %q: %w", raw, err)
	}
	return t.load(ctx, u, loadPush)
}

// Location returns the URL of the current history entry.
func (t *Tab) Location() (*url.URL, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index < 0 {
		return nil, fmt.Errorf("memhost: no document loaded")
	}
	return cloneURL(t.entries[t.index].url), nil
}

// Content serialises the children of the body element.
func (t *Tab) Content() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.body == nil {
		return "", fmt.Errorf("memhost: no document loaded")
	}
	return renderChildren(t.body)
}

// SetContent replaces the children of the body element and drops element
// listeners. The body is left untouched if the markup cannot be parsed.
func (t *Tab) SetContent(markup string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.body == nil {
		return fmt.Errorf("memhost: no document loaded")
	}

	nodes, err := html.ParseFragment(strings.NewReader(markup), t.body)
	if err != nil {
		return fmt.Errorf("memhost: parse content: %w", err)
	}

	for c := t.body.FirstChild; c != nil; {
		next := c.NextSibling
		t.body.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		t.body.AppendChild(n)
	}
	t.bus.DropElements()
	return nil
}

// Title returns the document title.
func (t *Tab) Title() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title, nil
}

// SetTitle sets the document title and the <title> element, if any.
func (t *Tab) SetTitle(title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.title = title
	if el := findFirst(t.doc, atom.Title); el != nil {
		for c := el.FirstChild; c != nil; {
			next := c.NextSibling
			el.RemoveChild(c)
			c = next
		}
		el.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	}
	return nil
}

// Scroll returns the vertical scroll offset.
func (t *Tab) Scroll() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scroll, nil
}

// SetScroll scrolls the document. Negative offsets clamp to zero.
func (t *Tab) SetScroll(y int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if y < 0 {
		y = 0
	}
	t.scroll = y
	return nil
}

// Defer queues fn until RunTasks.
func (t *Tab) Defer(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks = append(t.tasks, fn)
}

// RunTasks runs queued tasks, including tasks queued while running, and
// returns how many ran.
func (t *Tab) RunTasks() int {
	ran := 0
	for {
		t.mu.Lock()
		if len(t.tasks) == 0 {
			t.mu.Unlock()
			return ran
		}
		fn := t.tasks[0]
		t.tasks = t.tasks[1:]
		t.mu.Unlock()

		fn()
		ran++
	}
}

// PendingTasks returns the number of queued tasks.
func (t *Tab) PendingTasks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// LoadScript executes the behaviour registered for id.
func (t *Tab) LoadScript(ctx context.Context, id string) error {
	t.mu.Lock()
	fn, ok := t.scripts[id]
	if ok {
		t.loads[id]++
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", host.ErrScriptNotFound, id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, t)
}

// StartScript runs the script before returning, so scripts started in
// sequence execute in that sequence.
func (t *Tab) StartScript(ctx context.Context, id string) <-chan error {
	done := make(chan error, 1)
	done <- t.LoadScript(ctx, id)
	return done
}

// ScriptLoads returns how many times id was executed.
func (t *Tab) ScriptLoads(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loads[id]
}

// Fetches returns how many documents were fetched from the network.
func (t *Tab) Fetches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetches
}

// Announce dispatches a custom window event carrying detail, the way page
// scripts broadcast signals.
func (t *Tab) Announce(name host.EventType, detail string) {
	t.Dispatch(&host.Event{Type: name, Target: host.Window, Detail: detail})
}

// AddEventListener registers fn on the live document.
func (t *Tab) AddEventListener(target host.Target, typ host.EventType, fn host.Listener) func() {
	return t.bus.Add(target, typ, fn)
}

// Dispatch runs the listeners for ev.
func (t *Tab) Dispatch(ev *host.Event) {
	t.bus.Dispatch(ev)
}

// ListenerCount returns the number of listeners for target and type.
func (t *Tab) ListenerCount(target host.Target, typ host.EventType) int {
	return t.bus.Count(target, typ)
}

// BodyHasAttr reports whether the body element carries the attribute.
func (t *Tab) BodyHasAttr(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.body == nil {
		return false
	}
	_, ok := attr(t.body, name)
	return ok
}

// Anchors returns the <a href> elements of the body carrying attr, in
// document order. An empty attr matches every anchor.
func (t *Tab) Anchors(attrName string) ([]host.Anchor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.body == nil {
		return nil, fmt.Errorf("memhost: no document loaded")
	}
	base := t.entries[t.index].url

	var out []host.Anchor
	walk(t.body, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			return
		}
		href, ok := attr(n, "href")
		if !ok {
			return
		}
		if attrName != "" {
			if _, ok := attr(n, attrName); !ok {
				return
			}
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		out = append(out, host.Anchor{
			Target: t.anchorTargetLocked(n),
			Href:   base.ResolveReference(ref),
			Text:   strings.TrimSpace(textContent(n)),
		})
	})
	return out, nil
}

// Click clicks the first body anchor whose trimmed text equals text. If no
// listener prevents default the tab navigates to the anchor's href.
func (t *Tab) Click(ctx context.Context, text string) error {
	anchors, err := t.Anchors("")
	if err != nil {
		return err
	}
	for _, a := range anchors {
		if a.Text != text {
			continue
		}
		ev := &host.Event{Type: host.EventClick, Target: a.Target, URL: cloneURL(a.Href)}
		t.Dispatch(ev)
		if ev.DefaultPrevented() {
			return nil
		}
		return t.Navigate(ctx, a.Href)
	}
	return fmt.Errorf("memhost: no anchor with text %q", text)
}

// HistoryState returns the state of the current entry.
func (t *Tab) HistoryState() (host.State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index < 0 {
		return nil, nil
	}
	return t.entries[t.index].state, nil
}

// PushHistory truncates forward entries and appends a new current entry.
// A nil u keeps the current URL.
func (t *Tab) PushHistory(state host.State, u *url.URL) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index < 0 {
		return fmt.Errorf("memhost: no document loaded")
	}
	t.pushLocked(entry{url: t.resolveLocked(u), state: state})
	return nil
}

// ReplaceHistory replaces the current entry. A nil u keeps the current URL.
func (t *Tab) ReplaceHistory(state host.State, u *url.URL) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index < 0 {
		return fmt.Errorf("memhost: no document loaded")
	}
	t.entries[t.index] = entry{url: t.resolveLocked(u), state: state}
	return nil
}

// HistoryLen returns the number of history entries.
func (t *Tab) HistoryLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// HistoryIndex returns the index of the current entry.
func (t *Tab) HistoryIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index
}

// Navigate fires beforeunload and loads u as a new history entry.
func (t *Tab) Navigate(ctx context.Context, u *url.URL) error {
	t.Dispatch(host.NewEvent(host.EventBeforeUnload))
	return t.load(ctx, u, loadPush)
}

// Reload fires beforeunload and reloads the current entry from the network.
func (t *Tab) Reload(ctx context.Context) error {
	loc, err := t.Location()
	if err != nil {
		return err
	}
	t.Dispatch(host.NewEvent(host.EventBeforeUnload))
	return t.load(ctx, loc, loadKeep)
}

// Back traverses one entry back. It returns false at the start of history.
func (t *Tab) Back(ctx context.Context) (bool, error) {
	return t.Go(ctx, -1)
}

// Forward traverses one entry forward. It returns false at the end of history.
func (t *Tab) Forward(ctx context.Context) (bool, error) {
	return t.Go(ctx, 1)
}

// Go moves the history pointer by delta and dispatches popstate. Unhandled
// traversals load the entry from the network.
func (t *Tab) Go(ctx context.Context, delta int) (bool, error) {
	t.mu.Lock()
	next := t.index + delta
	if delta == 0 || next < 0 || next >= len(t.entries) {
		t.mu.Unlock()
		return false, nil
	}
	t.index = next
	e := t.entries[next]
	t.mu.Unlock()

	ev := host.NewEvent(host.EventPopState)
	ev.State = e.state
	t.Dispatch(ev)
	if ev.DefaultPrevented() {
		return true, nil
	}

	t.logger.Debug().Str("url", e.url.String()).Msg("Unhandled traversal, loading entry")
	return true, t.load(ctx, e.url, loadKeep)
}

type loadMode int

const (
	loadPush loadMode = iota
	loadKeep
)

func (t *Tab) load(ctx context.Context, u *url.URL, mode loadMode) error {
	t.mu.Lock()
	target := t.resolveLocked(u)
	t.fetches++
	t.mu.Unlock()

	markup, err := t.fetcher.Fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("memhost: fetch %s: %w", target, err)
	}

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("memhost: parse %s: %w", target, err)
	}

	t.bus.Reset()

	t.mu.Lock()
	t.doc = doc
	t.body = findFirst(doc, atom.Body)
	t.title = ""
	if el := findFirst(doc, atom.Title); el != nil {
		t.title = textContent(el)
	}
	t.scroll = 0
	t.tasks = nil
	t.anchorIDs = make(map[*html.Node]host.Target)
	switch mode {
	case loadPush:
		t.pushLocked(entry{url: target})
	case loadKeep:
		t.entries[t.index].url = target
	}
	hooks := append([]func(context.Context){}, t.onLoad...)
	scripts := scriptSources(doc)
	t.mu.Unlock()

	t.logger.Debug().Str("url", target.String()).Int("scripts", len(scripts)).Msg("Document loaded")

	for _, hook := range hooks {
		hook(ctx)
	}
	for _, src := range scripts {
		if err := t.LoadScript(ctx, src); err != nil {
			t.logger.Warn().Err(err).Str("script", src).Msg("Page script failed")
		}
	}
	return nil
}

func (t *Tab) pushLocked(e entry) {
	t.entries = append(t.entries[:t.index+1], e)
	t.index = len(t.entries) - 1
}

func (t *Tab) resolveLocked(u *url.URL) *url.URL {
	if u == nil {
		return cloneURL(t.entries[t.index].url)
	}
	if t.index >= 0 && !u.IsAbs() {
		return t.entries[t.index].url.ResolveReference(u)
	}
	return cloneURL(u)
}

func (t *Tab) anchorTargetLocked(n *html.Node) host.Target {
	if id, ok := t.anchorIDs[n]; ok {
		return id
	}
	t.anchorSeq++
	id := host.Target(fmt.Sprintf("anchor-%d", t.anchorSeq))
	t.anchorIDs[n] = id
	return id
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
