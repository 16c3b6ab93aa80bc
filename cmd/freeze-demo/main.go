// Command freeze-demo serves the fixture pages freeze navigation is
// exercised against, plus health, readiness, metrics and a debug view of the
// snapshot backend that browser runs write into.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/freeze-cache/internal/demo"
	"github.com/Sternrassler/freeze-cache/internal/storage"
	"github.com/Sternrassler/freeze-cache/pkg/logging"
	"github.com/Sternrassler/freeze-cache/pkg/metrics"
	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.Setup(logging.FromEnv())

	port := getEnv("PORT", "8080")
	storageKey := getEnv("FREEZE_STORAGE_KEY", snapshot.DefaultStorageKey)

	storageCfg, err := storage.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid storage configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := storage.Open(ctx, storageCfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", storageCfg.Kind).Msg("Failed to open snapshot backend")
	}
	defer closeBackend()

	store := snapshot.NewStore(backend,
		snapshot.WithStorageKey(storageKey),
		snapshot.WithLogger(logging.NewLogger("snapshot-store")))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(&demo.Pages{}, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("backend", storageCfg.Kind).
		Str("storage_key", storageKey).
		Msg("Starting freeze demo server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

func newRouter(pages *demo.Pages, store *snapshot.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(store))
	r.Handle("/metrics", metrics.Handler())
	r.Route("/debug/snapshots", func(r chi.Router) {
		r.Get("/", snapshotsHandler(store))
		r.Delete("/", clearHandler(store))
	})
	pages.Routes(r)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports ready once the snapshot backend answers a read.
func readyHandler(store *snapshot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := store.Len(ctx); err != nil {
			http.Error(w, fmt.Sprintf("snapshot backend unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

type snapshotSummary struct {
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	Scroll     int       `json:"scroll"`
	Scripts    []string  `json:"scripts"`
	Bytes      int       `json:"bytes"`
	CapturedAt time.Time `json:"capturedAt"`
}

// snapshotsHandler lists stored snapshots, oldest (next to be evicted) first.
func snapshotsHandler(store *snapshot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps, err := store.All(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("load snapshots: %v", err), http.StatusBadGateway)
			return
		}

		out := make([]snapshotSummary, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, snapshotSummary{
				Key:        s.CacheKey,
				Title:      s.Title,
				Scroll:     s.Scroll,
				Scripts:    s.Scripts,
				Bytes:      len(s.Content),
				CapturedAt: s.CapturedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Error().Err(err).Msg("Failed to write snapshot list")
		}
	}
}

func clearHandler(store *snapshot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Clear(r.Context()); err != nil {
			http.Error(w, fmt.Sprintf("clear snapshots: %v", err), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
