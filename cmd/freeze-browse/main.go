// Command freeze-browse drives a headless Chrome tab with freeze navigation
// installed and walks it through a list of steps:
//
//	freeze-browse -base http://localhost:8080 goto:/ click:Static back dump
//
// Snapshots land in the backend selected by FREEZE_BACKEND, so a
// freeze-demo server sharing that backend shows them under /debug/snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/freeze-cache/internal/storage"
	"github.com/Sternrassler/freeze-cache/pkg/freeze"
	"github.com/Sternrassler/freeze-cache/pkg/host/rodhost"
	"github.com/Sternrassler/freeze-cache/pkg/logging"
	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"
)

func main() {
	base := flag.String("base", "http://localhost:8080", "site the steps navigate relative to")
	configFile := flag.String("config", "", "freeze configuration file (yaml)")
	headful := flag.Bool("headful", false, "show the browser window")
	hide := flag.Bool("stealth", false, "apply headless-detection evasions to the page")
	settle := flag.Duration("settle", 300*time.Millisecond, "pause after every step")
	flag.Parse()

	logging.Setup(logging.FromEnv())

	steps, err := parseSteps(flag.Args())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid steps")
	}
	baseURL, err := url.Parse(*base)
	if err != nil || !baseURL.IsAbs() {
		log.Fatal().Str("base", *base).Msg("Base must be an absolute URL")
	}

	cfg := freeze.DefaultConfig()
	if *configFile != "" {
		if cfg, err = freeze.LoadConfig(*configFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load freeze configuration")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, runConfig{
		base:    baseURL,
		freeze:  cfg,
		headful: *headful,
		hide:    *hide,
		settle:  *settle,
		steps:   steps,
	}); err != nil {
		log.Fatal().Err(err).Msg("Browse failed")
	}
}

type runConfig struct {
	base    *url.URL
	freeze  freeze.Config
	headful bool
	hide    bool
	settle  time.Duration
	steps   []step
}

func run(ctx context.Context, rc runConfig) error {
	storageCfg, err := storage.FromEnv()
	if err != nil {
		return err
	}
	backend, closeBackend, err := storage.Open(ctx, storageCfg)
	if err != nil {
		return err
	}
	defer closeBackend()
	store := snapshot.NewStore(backend, rc.freeze.StoreOptions()...)

	controlURL, err := launcher.New().Headless(!rc.headful).Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := rodhost.OpenPage(browser, rc.hide)
	if err != nil {
		return err
	}

	tabCfg := rodhost.DefaultConfig(rc.freeze.AnnounceEvent)
	tab, err := rodhost.New(page, tabCfg)
	if err != nil {
		return err
	}
	defer tab.Close()

	f, err := freeze.New(tab, store, rc.freeze)
	if err != nil {
		return err
	}
	tab.OnLoad(func(ctx context.Context) {
		if err := f.Boot(ctx); err != nil {
			log.Error().Err(err).Msg("Boot failed")
		}
	})

	for _, s := range rc.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := perform(ctx, tab, store, rc.base, s); err != nil {
			return fmt.Errorf("step %s: %w", s, err)
		}
		time.Sleep(rc.settle)
		report(tab, s)
	}
	return nil
}

func perform(ctx context.Context, tab *rodhost.Tab, store *snapshot.Store, base *url.URL, s step) error {
	switch s.kind {
	case stepGoto:
		ref, err := url.Parse(s.arg)
		if err != nil {
			return err
		}
		return tab.Open(ctx, base.ResolveReference(ref).String())
	case stepClick:
		return tab.Click(ctx, s.arg)
	case stepBack:
		return tab.Back(ctx)
	case stepForward:
		return tab.Forward(ctx)
	case stepWait:
		select {
		case <-time.After(s.wait):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case stepDump:
		return dump(ctx, store)
	}
	return fmt.Errorf("unhandled step %q", s.kind)
}

func report(tab *rodhost.Tab, s step) {
	title, _ := tab.Title()
	loc, err := tab.Location()
	event := log.Info().Str("step", s.String()).Str("title", title)
	if err == nil {
		event = event.Str("location", loc.String())
	}
	event.Msg("Step done")
}

func dump(ctx context.Context, store *snapshot.Store) error {
	snaps, err := store.All(ctx)
	if err != nil {
		return err
	}
	for i, s := range snaps {
		log.Info().
			Int("position", i).
			Str("key", s.CacheKey).
			Str("title", s.Title).
			Int("scroll", s.Scroll).
			Strs("scripts", s.Scripts).
			Int("bytes", len(s.Content)).
			Dur("age", time.Since(s.CapturedAt)).
			Msg("Snapshot")
	}
	return nil
}
