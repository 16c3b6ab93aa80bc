package rodhost

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/freeze-cache/internal/testutil"
	"github.com/Sternrassler/freeze-cache/pkg/freeze"
	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// setupTab starts a headless browser and a fixture site. Tests skip when no
// browser binary is installed.
func setupTab(t *testing.T) (*Tab, *testutil.Site) {
	t.Helper()
	return setupTabWith(t, false)
}

func setupTabWith(t *testing.T, hide bool) (*Tab, *testutil.Site) {
	t.Helper()

	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome/Chromium binary available")
	}

	controlURL, err := launcher.New().Bin(bin).Headless(true).Launch()
	if err != nil {
		t.Skipf("Failed to launch browser: %v", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		t.Skipf("Failed to connect to browser: %v", err)
	}
	t.Cleanup(func() { _ = browser.Close() })

	page, err := OpenPage(browser, hide)
	if err != nil {
		t.Fatalf("Failed to open page: %v", err)
	}

	cfg := DefaultConfig("infsub")
	cfg.Logger = zerolog.Nop()
	cfg.NavigateTimeout = 10 * time.Second
	tab, err := New(page, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(tab.Close)

	site := testutil.NewSite()
	t.Cleanup(site.Close)
	return tab, site
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New should panic with nil page")
		}
	}()
	_, _ = New(nil, DefaultConfig())
}

func TestBridgeScript(t *testing.T) {
	js, err := bridgeScript("__b", []host.EventType{"infsub", "freeze:restored"})
	if err != nil {
		t.Fatalf("bridgeScript failed: %v", err)
	}
	if !strings.Contains(js, `const binding = "__b";`) {
		t.Error("binding name not embedded")
	}
	if !strings.Contains(js, `new Set(["infsub","freeze:restored"])`) {
		t.Error("forwarded events not embedded")
	}
}

func TestTab_PageAccess(t *testing.T) {
	tab, site := setupTab(t)
	ctx := context.Background()

	if err := tab.Open(ctx, site.URL("/static.html")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if title, _ := tab.Title(); title != "Static" {
		t.Errorf("Title = %q", title)
	}
	if loc, _ := tab.Location(); loc.Path != "/static.html" {
		t.Errorf("Location = %v", loc)
	}
	if !tab.BodyHasAttr("data-freeze") {
		t.Error("body should carry data-freeze")
	}

	if err := tab.SetContent(`<main data-testid="main">swapped</main>`); err != nil {
		t.Fatalf("SetContent failed: %v", err)
	}
	if content, _ := tab.Content(); content != `<main data-testid="main">swapped</main>` {
		t.Errorf("Content = %q", content)
	}
	if err := tab.SetTitle("Swapped"); err != nil {
		t.Fatalf("SetTitle failed: %v", err)
	}
	if title, _ := tab.Title(); title != "Swapped" {
		t.Errorf("Title = %q", title)
	}
}

func TestTab_History(t *testing.T) {
	tab, site := setupTab(t)
	ctx := context.Background()
	_ = tab.Open(ctx, site.URL("/static.html"))

	if err := tab.ReplaceHistory(host.State{"freeze": true}, nil); err != nil {
		t.Fatalf("ReplaceHistory failed: %v", err)
	}
	if err := tab.PushHistory(host.State{"freeze": true}, &url.URL{Path: "/dynamic.html"}); err != nil {
		t.Fatalf("PushHistory failed: %v", err)
	}
	if loc, _ := tab.Location(); loc.Path != "/dynamic.html" {
		t.Errorf("Location after push = %v", loc)
	}

	popped := make(chan host.State, 1)
	tab.AddEventListener(host.Window, host.EventPopState, func(ev *host.Event) {
		popped <- ev.State
	})
	if err := tab.Back(ctx); err != nil {
		t.Fatalf("Back failed: %v", err)
	}

	select {
	case state := <-popped:
		if !state.Marked("freeze") {
			t.Errorf("popstate state = %v", state)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("popstate not delivered")
	}
	if site.Requests("/static.html") != 1 {
		t.Errorf("same-document traversal should not fetch, requests = %d", site.Requests("/static.html"))
	}
}

func TestTab_EarlyEventsDeliveredAfterLoadHooks(t *testing.T) {
	tab, site := setupTab(t)

	got := make(chan string, 4)
	tab.OnLoad(func(context.Context) {
		tab.AddEventListener(host.Window, "infsub", func(ev *host.Event) { got <- ev.Detail })
	})
	if err := tab.Open(context.Background(), site.URL("/dynamic.html")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	select {
	case detail := <-got:
		if detail != "/dynamic.js" {
			t.Errorf("announced %q", detail)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("announcement not delivered")
	}
}

func TestTab_LoadScriptReruns(t *testing.T) {
	tab, site := setupTab(t)
	ctx := context.Background()

	var count int
	done := make(chan struct{}, 4)
	tab.OnLoad(func(context.Context) {
		tab.AddEventListener(host.Window, "infsub", func(*host.Event) {
			count++
			done <- struct{}{}
		})
	})
	_ = tab.Open(ctx, site.URL("/dynamic.html"))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("page script did not announce")
	}

	if err := tab.LoadScript(ctx, "/dynamic.js"); err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("re-run script did not announce")
	}
	if count != 2 {
		t.Errorf("announcements = %d, want 2", count)
	}

	if err := tab.LoadScript(ctx, "/missing-script.js"); err == nil {
		t.Error("expected error for missing module")
	}
}

func TestFreezer_RestoresInBrowser(t *testing.T) {
	tab, site := setupTab(t)
	ctx := context.Background()

	cfg := freeze.DefaultConfig()
	cfg.Logger = zerolog.Nop()
	store := snapshot.NewStore(snapshot.NewMemoryBackend(1<<20), cfg.StoreOptions()...)
	f, err := freeze.New(tab, store, cfg)
	if err != nil {
		t.Fatalf("freeze.New failed: %v", err)
	}
	tab.OnLoad(func(ctx context.Context) {
		if err := f.Boot(ctx); err != nil {
			t.Errorf("Boot failed: %v", err)
		}
	})

	if err := tab.Open(ctx, site.URL("/static.html")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := tab.Click(ctx, "Dynamic"); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	eventually(t, "dynamic page", func() bool {
		title, _ := tab.Title()
		return title == "Dynamic"
	})

	if err := tab.Click(ctx, "Static"); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	eventually(t, "restored static page", func() bool {
		title, _ := tab.Title()
		return title == "Static"
	})
	if n := site.Requests("/static.html"); n != 1 {
		t.Errorf("static page fetched %d times, want 1", n)
	}

	if err := tab.Back(ctx); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	eventually(t, "restored dynamic page", func() bool {
		content, _ := tab.Content()
		return strings.Contains(content, ">Dynamic</main>")
	})
	if n := site.Requests("/dynamic.html"); n != 1 {
		t.Errorf("dynamic page fetched %d times, want 1", n)
	}
}

func TestTab_RerunAfterSwapHandlesClickOnce(t *testing.T) {
	tab, site := setupTab(t)
	ctx := context.Background()

	if err := tab.Open(ctx, site.URL("/")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	content, err := tab.Content()
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := tab.SetContent(content); err != nil {
			t.Fatalf("SetContent failed: %v", err)
		}
		if err := tab.LoadScript(ctx, "/infinite.js"); err != nil {
			t.Fatalf("LoadScript failed: %v", err)
		}
	}

	var hellos atomic.Int32
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wait := tab.page.Context(cctx).EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		if len(e.Args) > 0 && e.Args[0].Value.Str() == "hello" {
			hellos.Add(1)
		}
	})
	go wait()

	if _, err := tab.eval(ctx, `() => document.querySelector("[data-click-hello]").click()`); err != nil {
		t.Fatalf("click failed: %v", err)
	}
	eventually(t, "hello logged", func() bool { return hellos.Load() > 0 })
	time.Sleep(200 * time.Millisecond)
	if n := hellos.Load(); n != 1 {
		t.Errorf("hello logged %d times, want 1", n)
	}
}

func TestOpenPage_Hidden(t *testing.T) {
	tab, site := setupTabWith(t, true)
	ctx := context.Background()

	if err := tab.Open(ctx, site.URL("/static.html")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	v, err := tab.eval(ctx, `() => navigator.webdriver === true`)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if v.Bool() {
		t.Error("navigator.webdriver should be hidden on a stealth page")
	}
	if title, _ := tab.Title(); title != "Static" {
		t.Errorf("Title = %q", title)
	}
}
