// Package rodhost implements host.Host over a Chrome tab driven by go-rod.
//
// Page state is read and written with Runtime evaluations. Events flow back
// through a CDP binding: a bridge script installed on every new document
// forwards popstate, same-origin anchor clicks and configured custom events.
// Anchor clicks are always cancelled in the page and replayed on the Go side,
// so navigations the listeners do not prevent become Go-side Navigate calls
// that fire beforeunload first.
package rodhost

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

// Config holds the tab configuration.
type Config struct {
	// BindingName is the CDP binding the bridge script reports through
	BindingName string

	// Forward lists custom window events forwarded from the page
	Forward []host.EventType

	// NavigateTimeout bounds navigations and reloads
	NavigateTimeout time.Duration

	Logger zerolog.Logger
}

// DefaultConfig returns a configuration forwarding the given events.
func DefaultConfig(forward ...host.EventType) Config {
	return Config{
		BindingName:     "__freezeBinding",
		Forward:         forward,
		NavigateTimeout: 30 * time.Second,
		Logger:          log.With().Str("component", "rodhost").Logger(),
	}
}

type message struct {
	kind    string
	payload gson.JSON
}

// Tab is a host.Host backed by a rod page.
type Tab struct {
	page   *rod.Page
	cfg    Config
	bus    *host.Bus
	logger zerolog.Logger

	mu        sync.Mutex
	onLoad    []func(ctx context.Context)
	anchorGen int
	anchors   []host.Target

	imports atomic.Int64
	msgs    chan message
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New installs the bridge on page and starts the event loop. Close stops it.
func New(page *rod.Page, cfg Config) (*Tab, error) {
	if page == nil {
		panic("rod page cannot be nil")
	}
	if cfg.BindingName == "" {
		return nil, fmt.Errorf("binding name is required")
	}

	script, err := bridgeScript(cfg.BindingName, cfg.Forward)
	if err != nil {
		return nil, fmt.Errorf("build bridge: %w", err)
	}
	if err := (proto.RuntimeAddBinding{Name: cfg.BindingName}).Call(page); err != nil {
		return nil, fmt.Errorf("add binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument(script); err != nil {
		return nil, fmt.Errorf("install bridge: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tab{
		page:   page,
		cfg:    cfg,
		bus:    host.NewBus(),
		logger: cfg.Logger,
		msgs:   make(chan message, 256),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go t.listen()
	go t.loop()
	return t, nil
}

// Close stops the event loop. The page itself is left open.
func (t *Tab) Close() {
	t.cancel()
	<-t.done
}

// OnLoad registers fn to run after every document load, before custom events
// the page emitted while loading are dispatched.
func (t *Tab) OnLoad(fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLoad = append(t.onLoad, fn)
}

// Open loads raw without firing beforeunload.
func (t *Tab) Open(ctx context.Context, raw string) error {
	return t.goTo(ctx, raw)
}

func (t *Tab) listen() {
	t.page.Context(t.ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != t.cfg.BindingName {
				return
			}
			payload := gson.NewFrom(e.Payload)
			t.enqueue(message{kind: payload.Get("type").Str(), payload: payload})
		},
		func(e *proto.PageLoadEventFired) {
			t.enqueue(message{kind: "load"})
		},
	)()
}

func (t *Tab) enqueue(m message) {
	select {
	case t.msgs <- m:
	default:
		t.logger.Warn().Str("kind", m.kind).Msg("Event queue full, dropping page event")
	}
}

// loop handles page messages one at a time, like the page's event loop.
func (t *Tab) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.ctx.Done():
			return
		case m := <-t.msgs:
			t.handle(m)
		}
	}
}

func (t *Tab) handle(m message) {
	switch m.kind {
	case "load":
		t.booted()
	case "event":
		t.bus.Dispatch(&host.Event{
			Type:   host.EventType(m.payload.Get("name").Str()),
			Target: host.Window,
			Detail: m.payload.Get("detail").Str(),
		})
	case "popstate":
		ev := host.NewEvent(host.EventPopState)
		ev.State = toState(m.payload.Get("state"))
		t.bus.Dispatch(ev)
	case "click":
		t.click(m.payload.Get("index").Int(), m.payload.Get("href").Str())
	default:
		t.logger.Debug().Str("kind", m.kind).Msg("Unknown bridge message")
	}
}

func (t *Tab) booted() {
	t.bus.Reset()

	t.mu.Lock()
	hooks := append([]func(context.Context){}, t.onLoad...)
	t.anchors = nil
	t.mu.Unlock()

	for _, hook := range hooks {
		hook(t.ctx)
	}

	res, err := t.eval(t.ctx, jsBoot)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to flush early page events")
		return
	}
	for _, m := range res.Arr() {
		t.handle(message{kind: m.Get("type").Str(), payload: m})
	}
}

func (t *Tab) click(index int, href string) {
	u, err := url.Parse(href)
	if err != nil {
		t.logger.Warn().Err(err).Str("href", href).Msg("Bad anchor href")
		return
	}

	t.mu.Lock()
	var target host.Target
	if index >= 0 && index < len(t.anchors) {
		target = t.anchors[index]
	}
	t.mu.Unlock()

	if target != "" {
		ev := &host.Event{Type: host.EventClick, Target: target, URL: u}
		t.bus.Dispatch(ev)
		if ev.DefaultPrevented() {
			return
		}
	}
	if err := t.Navigate(t.ctx, u); err != nil {
		t.logger.Error().Err(err).Str("url", href).Msg("Navigation failed")
	}
}

func (t *Tab) eval(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	res, err := t.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

// Location returns the current URL.
func (t *Tab) Location() (*url.URL, error) {
	v, err := t.eval(t.ctx, jsLocation)
	if err != nil {
		return nil, fmt.Errorf("rodhost: location: %w", err)
	}
	return url.Parse(v.Str())
}

// Content returns the body's inner HTML.
func (t *Tab) Content() (string, error) {
	v, err := t.eval(t.ctx, jsContent)
	if err != nil {
		return "", fmt.Errorf("rodhost: content: %w", err)
	}
	if v.Nil() {
		return "", errors.New("rodhost: document has no body")
	}
	return v.Str(), nil
}

// SetContent replaces the body's inner HTML.
func (t *Tab) SetContent(markup string) error {
	if _, err := t.eval(t.ctx, jsSetContent, markup); err != nil {
		return fmt.Errorf("rodhost: set content: %w", err)
	}
	return nil
}

// Title returns the document title.
func (t *Tab) Title() (string, error) {
	v, err := t.eval(t.ctx, jsTitle)
	if err != nil {
		return "", fmt.Errorf("rodhost: title: %w", err)
	}
	return v.Str(), nil
}

// SetTitle sets the document title.
func (t *Tab) SetTitle(title string) error {
	if _, err := t.eval(t.ctx, jsSetTitle, title); err != nil {
		return fmt.Errorf("rodhost: set title: %w", err)
	}
	return nil
}

// Scroll returns the vertical scroll offset.
func (t *Tab) Scroll() (int, error) {
	v, err := t.eval(t.ctx, jsScroll)
	if err != nil {
		return 0, fmt.Errorf("rodhost: scroll: %w", err)
	}
	return v.Int(), nil
}

// SetScroll scrolls the window.
func (t *Tab) SetScroll(y int) error {
	if _, err := t.eval(t.ctx, jsSetScroll, y); err != nil {
		return fmt.Errorf("rodhost: set scroll: %w", err)
	}
	return nil
}

// Defer runs fn after the next animation frame has been laid out.
func (t *Tab) Defer(fn func()) {
	go func() {
		if _, err := t.eval(t.ctx, jsNextFrame); err != nil {
			t.logger.Warn().Err(err).Msg("Deferred task skipped")
			return
		}
		fn()
	}()
}

// StartScript issues the import of module id before returning and waits for
// it in the background. Every call evaluates the module again.
func (t *Tab) StartScript(ctx context.Context, id string) <-chan error {
	done := make(chan error, 1)

	n := t.imports.Add(1)
	if _, err := t.eval(ctx, jsImportStart, id, n); err != nil {
		done <- fmt.Errorf("rodhost: import %s: %w", id, err)
		return done
	}

	go func() {
		if _, err := t.eval(ctx, jsImportWait, n); err != nil {
			done <- fmt.Errorf("rodhost: import %s: %w", id, err)
			return
		}
		done <- nil
	}()
	return done
}

// LoadScript imports the module id and waits for it to finish.
func (t *Tab) LoadScript(ctx context.Context, id string) error {
	return <-t.StartScript(ctx, id)
}

// HistoryState returns the state object of the current entry.
func (t *Tab) HistoryState() (host.State, error) {
	v, err := t.eval(t.ctx, jsHistoryGet)
	if err != nil {
		return nil, fmt.Errorf("rodhost: history state: %w", err)
	}
	return toState(v), nil
}

// PushHistory adds an entry. A nil u keeps the current URL.
func (t *Tab) PushHistory(state host.State, u *url.URL) error {
	if _, err := t.eval(t.ctx, jsHistoryPush, stateArg(state), urlArg(u)); err != nil {
		return fmt.Errorf("rodhost: push history: %w", err)
	}
	return nil
}

// ReplaceHistory rewrites the current entry. A nil u keeps the current URL.
func (t *Tab) ReplaceHistory(state host.State, u *url.URL) error {
	if _, err := t.eval(t.ctx, jsHistoryRepl, stateArg(state), urlArg(u)); err != nil {
		return fmt.Errorf("rodhost: replace history: %w", err)
	}
	return nil
}

// Navigate fires beforeunload and loads u.
func (t *Tab) Navigate(ctx context.Context, u *url.URL) error {
	t.bus.Dispatch(host.NewEvent(host.EventBeforeUnload))

	target := u
	if !u.IsAbs() {
		loc, err := t.Location()
		if err != nil {
			return err
		}
		target = loc.ResolveReference(u)
	}
	return t.goTo(ctx, target.String())
}

// Reload fires beforeunload and reloads the page.
func (t *Tab) Reload(ctx context.Context) error {
	t.bus.Dispatch(host.NewEvent(host.EventBeforeUnload))

	ctx, cancel := context.WithTimeout(ctx, t.cfg.NavigateTimeout)
	defer cancel()
	page := t.page.Context(ctx)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("rodhost: reload: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		t.logger.Warn().Err(err).Msg("Wait load after reload failed")
	}
	return nil
}

func (t *Tab) goTo(ctx context.Context, raw string) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.NavigateTimeout)
	defer cancel()

	page := t.page.Context(ctx)
	if err := page.Navigate(raw); err != nil {
		return fmt.Errorf("rodhost: navigate %s: %w", raw, err)
	}
	if err := page.WaitLoad(); err != nil {
		t.logger.Warn().Err(err).Str("url", raw).Msg("Wait load failed")
	}
	return nil
}

// BodyHasAttr reports whether the body carries the attribute.
func (t *Tab) BodyHasAttr(name string) bool {
	v, err := t.eval(t.ctx, jsBodyHasAttr, name)
	if err != nil {
		t.logger.Warn().Err(err).Str("attr", name).Msg("Body attribute check failed")
		return false
	}
	return v.Bool()
}

// Anchors lists body anchors carrying attr, or all anchors when attr is
// empty. Each call assigns fresh targets; earlier targets stop receiving
// clicks.
func (t *Tab) Anchors(attr string) ([]host.Anchor, error) {
	sel := "a[href]"
	if attr != "" {
		sel = fmt.Sprintf("a[href][%s]", attr)
	}
	v, err := t.eval(t.ctx, jsAnchors, sel)
	if err != nil {
		return nil, fmt.Errorf("rodhost: anchors: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.anchorGen++
	t.anchors = t.anchors[:0]

	var out []host.Anchor
	for i, a := range v.Arr() {
		target := host.Target(fmt.Sprintf("anchor-%d-%d", t.anchorGen, i))
		t.anchors = append(t.anchors, target)

		href, err := url.Parse(a.Get("href").Str())
		if err != nil {
			continue
		}
		out = append(out, host.Anchor{Target: target, Href: href, Text: a.Get("text").Str()})
	}
	return out, nil
}

// AddEventListener registers fn for events reported by the page.
func (t *Tab) AddEventListener(target host.Target, typ host.EventType, fn host.Listener) func() {
	return t.bus.Add(target, typ, fn)
}

// Dispatch runs the Go listeners for ev. Custom window events are also
// dispatched in the page so page scripts observe them.
func (t *Tab) Dispatch(ev *host.Event) {
	t.bus.Dispatch(ev)

	switch ev.Type {
	case host.EventClick, host.EventPopState, host.EventBeforeUnload:
		return
	}
	if ev.Target != host.Window {
		return
	}
	if _, err := t.eval(t.ctx, jsDispatch, string(ev.Type), ev.Detail); err != nil {
		t.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Page dispatch failed")
	}
}

func toState(v gson.JSON) host.State {
	if v.Nil() {
		return nil
	}
	m, ok := v.Val().(map[string]interface{})
	if !ok {
		return nil
	}
	return host.State(m)
}

func stateArg(s host.State) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s
}

func urlArg(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

// Back traverses one entry back. The resulting popstate reaches listeners
// through the bridge.
func (t *Tab) Back(ctx context.Context) error {
	if err := t.page.Context(ctx).NavigateBack(); err != nil {
		return fmt.Errorf("rodhost: back: %w", err)
	}
	return nil
}

// Forward traverses one entry forward.
func (t *Tab) Forward(ctx context.Context) error {
	if err := t.page.Context(ctx).NavigateForward(); err != nil {
		return fmt.Errorf("rodhost: forward: %w", err)
	}
	return nil
}

// Click clicks the first anchor whose text matches text exactly.
func (t *Tab) Click(ctx context.Context, text string) error {
	el, err := t.page.Context(ctx).ElementR("a", "/^\\s*"+regexp.QuoteMeta(text)+"\\s*$/")
	if err != nil {
		return fmt.Errorf("rodhost: anchor %q: %w", text, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("rodhost: click %q: %w", text, err)
	}
	return nil
}
