package freeze

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/rs/zerolog"
)

// Capture triggers, used as metric labels.
const (
	TriggerUnload     = "unload"
	TriggerTraversal  = "traversal"
	TriggerNavigation = "navigation"
	TriggerManual     = "manual"
)

// Capturer turns the live page into a snapshot and upserts it.
type Capturer struct {
	host      host.Host
	store     *snapshot.Store
	optInAttr string
	logger    zerolog.Logger
}

// NewCapturer creates a Capturer for h writing into store.
func NewCapturer(h host.Host, store *snapshot.Store, cfg Config) *Capturer {
	return &Capturer{
		host:      h,
		store:     store,
		optInAttr: cfg.OptInAttr,
		logger:    cfg.Logger.With().Str("component", "capture").Logger(),
	}
}

// Build reads content, title and scroll from the host and combines them with
// the registry's identifiers. The snapshot is keyed by loc, the page the
// content belongs to, which is not necessarily the host's current location.
func (c *Capturer) Build(loc *url.URL, reg *Registry) (*snapshot.Snapshot, error) {
	content, err := c.host.Content()
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	title, err := c.host.Title()
	if err != nil {
		return nil, fmt.Errorf("read title: %w", err)
	}
	scroll, err := c.host.Scroll()
	if err != nil {
		return nil, fmt.Errorf("read scroll: %w", err)
	}

	var scripts []string
	if reg != nil {
		scripts = reg.IDs()
	}

	return &snapshot.Snapshot{
		CacheKey:   snapshot.Key(loc),
		Content:    content,
		Title:      title,
		Scroll:     scroll,
		Scripts:    scripts,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// Capture snapshots the live page for loc. It skips pages whose body does not
// opt in. Failures are logged and reported through the return value only:
// capture never interrupts the navigation it runs ahead of.
func (c *Capturer) Capture(ctx context.Context, loc *url.URL, reg *Registry, trigger string) bool {
	if !c.host.BodyHasAttr(c.optInAttr) {
		freezeCapturesTotal.WithLabelValues(trigger, "skipped").Inc()
		return false
	}

	snap, err := c.Build(loc, reg)
	if err != nil {
		freezeCapturesTotal.WithLabelValues(trigger, "error").Inc()
		c.logger.Warn().Err(err).Str("trigger", trigger).Msg("Capture failed")
		return false
	}

	if err := c.store.Upsert(ctx, snap); err != nil {
		freezeCapturesTotal.WithLabelValues(trigger, "error").Inc()
		c.logger.Error().Err(err).Str("key", snap.CacheKey).Str("trigger", trigger).Msg("Snapshot store failed")
		return false
	}

	freezeCapturesTotal.WithLabelValues(trigger, "stored").Inc()
	c.logger.Debug().
		Str("key", snap.CacheKey).
		Str("trigger", trigger).
		Int("scripts", len(snap.Scripts)).
		Int("scroll", snap.Scroll).
		Msg("Page captured")
	return true
}
