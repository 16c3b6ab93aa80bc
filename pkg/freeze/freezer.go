package freeze

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/rs/zerolog"
)

// PopStateHandler handles traversals to entries freeze does not track.
type PopStateHandler func(ctx context.Context, ev *host.Event)

// Freezer intercepts navigation on a host and serves it from the snapshot
// store when it can.
type Freezer struct {
	cfg      Config
	host     host.Host
	store    *snapshot.Store
	capturer *Capturer
	restorer *Restorer
	logger   zerolog.Logger

	mu        sync.Mutex
	gen       *Generation
	fallbacks []PopStateHandler
}

// New creates a Freezer for h. The store should be created with
// cfg.StoreOptions() so both agree on the storage key.
func New(h host.Host, store *snapshot.Store, cfg Config) (*Freezer, error) {
	if h == nil {
		panic("host cannot be nil")
	}
	if store == nil {
		panic("snapshot store cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Freezer{
		cfg:      cfg,
		host:     h,
		store:    store,
		capturer: NewCapturer(h, store, cfg),
		restorer: NewRestorer(h, cfg),
		logger:   cfg.Logger,
	}, nil
}

// Generation returns the live generation, or nil before Boot.
func (f *Freezer) Generation() *Generation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

// AddFallback appends a handler for traversals to unmarked entries. Handlers
// run in order until one prevents default.
func (f *Freezer) AddFallback(fn PopStateHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks = append(f.fallbacks, fn)
}

// Capture snapshots the live page now, as if it were being left.
func (f *Freezer) Capture(ctx context.Context) error {
	g := f.Generation()
	if g == nil {
		return ErrNotBooted
	}
	if !f.capturer.Capture(ctx, g.Live(), g.Registry(), TriggerManual) {
		return fmt.Errorf("capture %s: not stored", g.Live())
	}
	return nil
}

// Boot arms a freshly loaded document. Anchors are always intercepted; capture
// is armed only when the body opts in. Call it once per full load, before the
// page's own scripts run.
func (f *Freezer) Boot(ctx context.Context) error {
	loc, err := f.host.Location()
	if err != nil {
		return fmt.Errorf("read location: %w", err)
	}

	optIn := f.host.BodyHasAttr(f.cfg.OptInAttr)
	g := f.arm(ctx, loc, optIn, nil)
	freezeBootsTotal.WithLabelValues(strconv.FormatBool(optIn)).Inc()

	f.logger.Debug().
		Str("generation", g.ID()).
		Str("url", loc.String()).
		Bool("armed", optIn).
		Int("listeners", g.Listeners()).
		Msg("Document booted")
	return nil
}

// Restore swaps snap into the live page and records it in history per mode.
// The live generation is cancelled before the swap and a new one, seeded with
// the snapshot's scripts, is armed after it. The restored event fires last.
//
// On ErrSwapFailed the page is unchanged and is re-armed for its own location
// the way it was armed before.
func (f *Freezer) Restore(ctx context.Context, snap *snapshot.Snapshot, target *url.URL, mode HistoryMode) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	start := time.Now()

	prev := f.Generation()
	if prev != nil {
		prev.Cancel()
	}

	applied, err := f.restorer.Apply(ctx, snap, target, mode)
	if err != nil {
		freezeRestoresTotal.WithLabelValues(mode.String(), "failed").Inc()
		if prev != nil {
			f.arm(ctx, prev.Live(), prev.Capturing(), prev.Registry().IDs())
		}
		return err
	}

	live := target
	if loc, err := f.host.Location(); err == nil {
		live = loc
	}
	g := f.arm(ctx, live, true, snap.Scripts)

	f.host.Dispatch(&host.Event{Type: f.cfg.RestoredEvent, Target: host.Window, Detail: snap.CacheKey})

	freezeRestoresTotal.WithLabelValues(mode.String(), "restored").Inc()
	freezeRestoreDuration.Observe(time.Since(start).Seconds())

	evt := f.logger.Info()
	if applied.ScriptErr != nil {
		evt = f.logger.Warn().Err(applied.ScriptErr)
	}
	evt.Str("key", snap.CacheKey).
		Str("mode", mode.String()).
		Str("generation", g.ID()).
		Int("scripts_loaded", len(applied.Loaded)).
		Int("scripts_recorded", len(snap.Scripts)).
		Dur("duration", time.Since(start)).
		Msg("Page restored")
	return nil
}

// arm supersedes the live generation with one for live. With capture set it
// also listens for announcements, beforeunload and popstate.
func (f *Freezer) arm(ctx context.Context, live *url.URL, capture bool, seed []string) *Generation {
	f.mu.Lock()
	var g *Generation
	if f.gen != nil {
		g = f.gen.Supersede(live, seed)
	} else {
		g = newGeneration(live, seed)
	}
	g.capturing = capture
	f.gen = g
	f.mu.Unlock()

	f.bindAnchors(ctx, g)
	if !capture {
		return g
	}

	g.Listen(f.host, host.Window, f.cfg.AnnounceEvent, func(ev *host.Event) {
		if g.Registry().Announce(ev.Detail) {
			f.logger.Debug().Str("script", ev.Detail).Str("generation", g.ID()).Msg("Script subscribed")
		}
	})
	g.Listen(f.host, host.Window, host.EventBeforeUnload, func(*host.Event) {
		f.capturer.Capture(ctx, g.Live(), g.Registry(), TriggerUnload)
	})
	g.Listen(f.host, host.Window, host.EventPopState, func(ev *host.Event) {
		f.onPopState(ctx, g, ev)
	})

	if f.cfg.MarkEntryOnArm {
		f.markEntry()
	}
	return g
}

func (f *Freezer) bindAnchors(ctx context.Context, g *Generation) {
	anchors, err := f.host.Anchors(f.cfg.LinkAttr)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Failed to list anchors")
		return
	}
	for _, a := range anchors {
		g.Listen(f.host, a.Target, host.EventClick, func(ev *host.Event) {
			f.onClick(ctx, g, a, ev)
		})
	}
}

// markEntry tags the current history entry so a later traversal back to it
// is recognised.
func (f *Freezer) markEntry() {
	state, err := f.host.HistoryState()
	if err != nil {
		f.logger.Warn().Err(err).Msg("Failed to read history state")
		return
	}
	if state.Marked(f.cfg.StateMarker) {
		return
	}
	if err := f.host.ReplaceHistory(state.WithMarker(f.cfg.StateMarker), nil); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to mark history entry")
	}
}

func (f *Freezer) onClick(ctx context.Context, g *Generation, a host.Anchor, ev *host.Event) {
	target := ev.URL
	if target == nil {
		target = a.Href
	}

	snap, err := f.store.Get(ctx, snapshot.Key(target))
	if err != nil {
		if !errors.Is(err, snapshot.ErrCacheMiss) {
			f.logger.Warn().Err(err).Str("url", target.String()).Msg("Snapshot lookup failed")
		}
		return
	}

	ev.PreventDefault()
	f.capturer.Capture(ctx, g.Live(), g.Registry(), TriggerNavigation)

	if err := f.Restore(ctx, snap, target, HistoryPush); err != nil {
		f.logger.Warn().Err(err).Str("url", target.String()).Msg("Restore failed, navigating")
		if nerr := f.host.Navigate(ctx, target); nerr != nil {
			f.logger.Error().Err(nerr).Str("url", target.String()).Msg("Fallback navigation failed")
		}
	}
}

func (f *Freezer) onPopState(ctx context.Context, g *Generation, ev *host.Event) {
	f.capturer.Capture(ctx, g.Live(), g.Registry(), TriggerTraversal)

	if !ev.State.Marked(f.cfg.StateMarker) {
		f.runFallbacks(ctx, ev)
		return
	}
	ev.PreventDefault()

	loc, err := f.host.Location()
	if err != nil {
		f.logger.Error().Err(err).Msg("Failed to read location after traversal")
		f.reload(ctx)
		return
	}

	snap, err := f.store.Get(ctx, snapshot.Key(loc))
	if err != nil {
		if !errors.Is(err, snapshot.ErrCacheMiss) {
			f.logger.Warn().Err(err).Str("url", loc.String()).Msg("Snapshot lookup failed")
		}
		f.reload(ctx)
		return
	}

	if err := f.Restore(ctx, snap, loc, HistoryReplace); err != nil {
		f.logger.Warn().Err(err).Str("url", loc.String()).Msg("Restore failed, reloading")
		f.reload(ctx)
	}
}

func (f *Freezer) runFallbacks(ctx context.Context, ev *host.Event) {
	f.mu.Lock()
	fallbacks := append([]PopStateHandler(nil), f.fallbacks...)
	f.mu.Unlock()

	for _, fn := range fallbacks {
		fn(ctx, ev)
		if ev.DefaultPrevented() {
			return
		}
	}
}

func (f *Freezer) reload(ctx context.Context) {
	freezeReloadsTotal.Inc()
	if err := f.host.Reload(ctx); err != nil {
		f.logger.Error().Err(err).Msg("Reload failed")
	}
}
