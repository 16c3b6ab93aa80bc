package rodhost

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/freeze-cache/pkg/host"
)

// bridgeJS is installed on every new document before page scripts run. It
// forwards popstate, anchor clicks and the configured custom events to the
// binding, holding custom events back until the document has booted.
const bridgeJS = `(() => {
  if (window.__freezeBridge) return;
  window.__freezeBridge = true;
  const binding = %s;
  const forward = new Set(%s);
  const early = [];
  let booted = false;
  const emit = (msg) => {
    try { window[binding](JSON.stringify(msg)); } catch (_) {}
  };
  window.__freezeBoot = () => {
    booted = true;
    return early.splice(0);
  };
  for (const name of forward) {
    window.addEventListener(name, (e) => {
      if (e.__freezeFromHost) return;
      const msg = { type: "event", name, detail: e.detail == null ? "" : String(e.detail) };
      if (booted) emit(msg); else early.push(msg);
    });
  }
  window.addEventListener("popstate", (e) => emit({ type: "popstate", state: e.state }));
  document.addEventListener("click", (e) => {
    if (e.defaultPrevented || e.button !== 0 || e.metaKey || e.ctrlKey || e.shiftKey || e.altKey) return;
    const a = e.target instanceof Element ? e.target.closest("a[href]") : null;
    if (!a || a.origin !== location.origin || a.target) return;
    e.preventDefault();
    const targets = window.__freezeTargets || [];
    emit({ type: "click", index: targets.indexOf(a), href: a.href });
  });
})()`

func bridgeScript(binding string, forward []host.EventType) (string, error) {
	name, err := json.Marshal(binding)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(forward))
	for _, f := range forward {
		names = append(names, string(f))
	}
	list, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(bridgeJS, name, list), nil
}

const (
	jsLocation    = `() => location.href`
	jsContent     = `() => document.body ? document.body.innerHTML : null`
	jsSetContent  = `(markup) => { document.body.innerHTML = markup; }`
	jsTitle       = `() => document.title`
	jsSetTitle    = `(title) => { document.title = title; }`
	jsScroll      = `() => Math.round(window.scrollY)`
	jsSetScroll   = `(y) => { window.scrollTo(0, y); }`
	jsNextFrame   = `() => new Promise((r) => requestAnimationFrame(() => setTimeout(r, 0)))`
	jsHistoryGet  = `() => history.state`
	jsHistoryPush = `(state, u) => { history.pushState(state, "", u || location.href); }`
	jsHistoryRepl = `(state, u) => { history.replaceState(state, "", u || location.href); }`
	jsBodyHasAttr = `(name) => !!document.body && document.body.hasAttribute(name)`
	jsBoot        = `() => window.__freezeBoot ? window.__freezeBoot() : []`

	// A query parameter per load makes import() evaluate the module again.
	// The import is started synchronously and parked under n so later
	// starts queue behind it.
	jsImportStart = `(src, n) => {
  const u = new URL(src, location.href);
  u.searchParams.set("freeze", String(n));
  window.__freezeLoads = window.__freezeLoads || {};
  window.__freezeLoads[n] = import(u.href).then(() => null, (e) => String(e));
}`

	jsImportWait = `async (n) => {
  const loads = window.__freezeLoads || {};
  const p = loads[n];
  delete loads[n];
  if (!p) throw new Error("unknown load " + n);
  const failure = await p;
  if (failure) throw new Error(failure);
}`

	jsAnchors = `(sel) => {
  const list = Array.from(document.body ? document.body.querySelectorAll(sel) : []);
  window.__freezeTargets = list;
  return list.map((a) => ({ href: a.href, text: (a.textContent || "").trim() }));
}`

	jsDispatch = `(name, detail) => {
  const e = new CustomEvent(name, { detail });
  e.__freezeFromHost = true;
  window.dispatchEvent(e);
}`
)
