// Package freeze keeps rendered pages in a snapshot cache and restores them
// on link clicks and history traversal instead of loading them again.
//
// A Freezer attaches to a host.Host. Boot runs once per loaded document:
// it binds click listeners on marked anchors and, for pages whose body opts
// in, arms capture. Arming listens for script announcements, beforeunload
// and popstate under a single Generation; every restore cancels the live
// Generation before the swap and starts a new one after it.
//
// # Basic Usage
//
//	store := snapshot.NewStore(snapshot.NewMemoryBackend(5<<20), cfg.StoreOptions()...)
//	f, err := freeze.New(tab, store, cfg)
//	if err != nil {
//		return err
//	}
//	tab.OnLoad(func(ctx context.Context) { _ = f.Boot(ctx) })
//
// Scripts that must run again after a restore announce themselves:
//
//	window.dispatchEvent(new CustomEvent("infsub", {detail: "/js/widget.js"}))
//
// # Metrics
//
//   - freeze_boots_total{armed} - Documents booted
//   - freeze_captures_total{trigger,result} - Capture attempts
//   - freeze_restores_total{mode,result} - Restores by history mode
//   - freeze_restore_duration_seconds - Restore latency including script joins
//   - freeze_script_failures_total - Scripts that failed to load on restore
//   - freeze_reloads_total - Tracked traversals that fell back to a reload
package freeze
