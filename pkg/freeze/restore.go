package freeze

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/freeze-cache/pkg/host"
	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/rs/zerolog"
)

// HistoryMode selects how a restore records itself in session history.
type HistoryMode int

const (
	// HistoryPush adds a new entry. Used for link clicks.
	HistoryPush HistoryMode = iota

	// HistoryReplace rewrites the current entry. Used for traversals.
	HistoryReplace
)

// String returns the metric label of the mode.
func (m HistoryMode) String() string {
	switch m {
	case HistoryPush:
		return "push"
	case HistoryReplace:
		return "replace"
	default:
		return fmt.Sprintf("HistoryMode(%d)", int(m))
	}
}

// Applied describes a swap performed by Restorer.Apply.
type Applied struct {
	Key  string
	Mode HistoryMode

	// Loaded lists the scripts that ran, in snapshot order
	Loaded []string

	// ScriptErr joins the failures of scripts that did not run
	ScriptErr error
}

// Restorer swaps a snapshot into the live page. It does not touch listeners;
// Freezer.Restore wraps it with generation cancel and re-arm.
type Restorer struct {
	host          host.Host
	marker        string
	scriptTimeout time.Duration
	logger        zerolog.Logger
}

// NewRestorer creates a Restorer for h.
func NewRestorer(h host.Host, cfg Config) *Restorer {
	return &Restorer{
		host:          h,
		marker:        cfg.StateMarker,
		scriptTimeout: cfg.ScriptTimeout,
		logger:        cfg.Logger.With().Str("component", "restore").Logger(),
	}
}

// Apply replaces content and title with the snapshot's, defers the scroll
// position, re-runs the recorded scripts and updates history for target.
//
// Content and title change together: if either write fails the previous
// content is put back and ErrSwapFailed is returned. Script failures never
// fail the restore.
func (r *Restorer) Apply(ctx context.Context, snap *snapshot.Snapshot, target *url.URL, mode HistoryMode) (*Applied, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	prev, err := r.host.Content()
	if err != nil {
		return nil, fmt.Errorf("%w: read live content: %v", ErrSwapFailed, err)
	}
	if err := r.host.SetContent(snap.Content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
	}
	if err := r.host.SetTitle(snap.Title); err != nil {
		if rerr := r.host.SetContent(prev); rerr != nil {
			r.logger.Error().Err(rerr).Str("key", snap.CacheKey).Msg("Failed to put back content after title failure")
		}
		return nil, fmt.Errorf("%w: title: %v", ErrSwapFailed, err)
	}

	scroll := snap.Scroll
	r.host.Defer(func() {
		if err := r.host.SetScroll(scroll); err != nil {
			r.logger.Warn().Err(err).Int("scroll", scroll).Msg("Deferred scroll failed")
		}
	})

	loaded, scriptErr := r.runScripts(ctx, snap.Scripts)

	state := host.State{}.WithMarker(r.marker)
	switch mode {
	case HistoryReplace:
		err = r.host.ReplaceHistory(state, target)
	default:
		err = r.host.PushHistory(state, target)
	}
	if err != nil {
		// The swap is visible already; a missing entry only costs the
		// tracked traversal back to it.
		r.logger.Warn().Err(err).Str("key", snap.CacheKey).Str("mode", mode.String()).Msg("History update failed")
	}

	return &Applied{
		Key:       snap.CacheKey,
		Mode:      mode,
		Loaded:    loaded,
		ScriptErr: scriptErr,
	}, nil
}

// runScripts starts every load in recorded order, then waits for all of
// them. Each wait is bounded by the script timeout even if the host ignores
// ctx.
func (r *Restorer) runScripts(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctxs := make([]context.Context, len(ids))
	dones := make([]<-chan error, len(ids))
	for i, id := range ids {
		sctx, cancel := context.WithTimeout(ctx, r.scriptTimeout)
		defer cancel()
		ctxs[i] = sctx
		dones[i] = r.host.StartScript(sctx, id)
	}

	results := make([]error, len(ids))
	for i, id := range ids {
		results[i] = awaitScript(ctxs[i], id, dones[i])
	}

	var loaded []string
	var errs []error
	for i, err := range results {
		if err != nil {
			freezeScriptFailuresTotal.Inc()
			r.logger.Warn().Err(err).Str("script", ids[i]).Msg("Script failed on restore")
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, ids[i])
	}
	return loaded, errors.Join(errs...)
}

func awaitScript(sctx context.Context, id string, done <-chan error) error {
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrScriptLoad, id, err)
		}
		return nil
	case <-sctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrScriptLoad, id, sctx.Err())
	}
}
