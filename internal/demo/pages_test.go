package demo

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestPages(t *testing.T) {
	p := &Pages{}
	h := p.Handler()

	tests := []struct {
		path     string
		contains []string
	}{
		{"/static.html", []string{`<main data-testid="main">Static</main>`, "<body data-freeze>", "data-freeze-link"}},
		{"/dynamic.html", []string{`<script src="/dynamic.js" type="module">`, ">Dynamic</main>"}},
		{"/increment.html", []string{`<main data-testid="main">1</main>`}},
		{"/", []string{`data-infinite-root="mylist"`, `data-infinite-trigger="mylist"`, "ID: 29"}},
		{"/dynamic.js", []string{`new CustomEvent("infsub"`, `console.log("clicked")`}},
		{"/infinite.js", []string{"IntersectionObserver"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := get(t, h, tt.path)
			if code != http.StatusOK {
				t.Fatalf("status = %d", code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(body, want) {
					t.Errorf("body missing %q", want)
				}
			}
		})
	}
}

func TestPages_IncrementCounts(t *testing.T) {
	p := &Pages{}
	h := p.Handler()

	get(t, h, "/increment.html")
	_, body := get(t, h, "/increment.html")
	if !strings.Contains(body, ">2</main>") {
		t.Errorf("second render should show 2: %s", body)
	}
	if p.Increments() != 2 {
		t.Errorf("Increments = %d, want 2", p.Increments())
	}
}

func TestPages_UnknownScript(t *testing.T) {
	code, _ := get(t, (&Pages{}).Handler(), "/nope.js")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

// Scripts run again after every restore; handlers on the document or the
// window would survive the swap and pile up.
func TestScripts_BindInsideBody(t *testing.T) {
	for path, src := range Scripts {
		t.Run(path, func(t *testing.T) {
			for _, global := range []string{"document.addEventListener", "window.addEventListener"} {
				if strings.Contains(src, global) {
					t.Errorf("%s binds %s", path, global)
				}
			}
		})
	}
}
