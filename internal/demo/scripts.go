package demo

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// announce is shared by every fixture script: it asks to be re-run when the
// page is restored from a snapshot.
const announce = `const self = new URL(import.meta.url).pathname;
window.dispatchEvent(new CustomEvent("infsub", { detail: self }));
`

const clickScript = announce + `document.querySelector('[data-testid="main"]')
  ?.addEventListener("click", () => console.log("clicked"));
`

const infiniteScript = announce + `const root = document.querySelector("[data-infinite-root]");
const next = document.querySelector("[data-infinite-next]");
let loading = false;

async function more(trigger) {
  if (loading || !root || !next) return;
  loading = true;
  trigger.removeAttribute("data-infinite-trigger");
  const res = await fetch(next.href);
  const doc = new DOMParser().parseFromString(await res.text(), "text/html");
  const items = doc.querySelector("[data-infinite-root]");
  if (items) {
    root.append(...items.children);
    observe();
  }
  loading = false;
}

const io = new IntersectionObserver((entries) => {
  for (const e of entries) {
    if (e.isIntersecting) {
      io.unobserve(e.target);
      more(e.target);
    }
  }
});

function observe() {
  const trigger = root?.querySelector("[data-infinite-trigger]");
  if (trigger) io.observe(trigger);
}

observe();
// Bound to the list, not the document: a restore replaces the list, so each
// run of this script leaves exactly one handler behind.
root?.addEventListener("click", (e) => {
  if (e.target instanceof Element && e.target.closest("[data-click-hello]")) {
    console.log("hello");
  }
});
`

// Scripts maps script paths to their source.
var Scripts = map[string]string{
	"/dynamic.js":   clickScript,
	"/increment.js": clickScript,
	"/infinite.js":  infiniteScript,
}

func serveScript(w http.ResponseWriter, r *http.Request) {
	src, ok := Scripts["/"+chi.URLParam(r, "script")+".js"]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write([]byte(src))
}
