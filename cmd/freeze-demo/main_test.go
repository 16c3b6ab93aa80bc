package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/freeze-cache/internal/demo"
	"github.com/Sternrassler/freeze-cache/pkg/snapshot"
	"github.com/rs/zerolog"
)

type brokenBackend struct{}

func (brokenBackend) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenBackend) Save(context.Context, string, []byte) error { return errors.New("connection refused") }
func (brokenBackend) Delete(context.Context, string) error       { return errors.New("connection refused") }

func newTestServer(t *testing.T, backend snapshot.Backend) (*httptest.Server, *snapshot.Store) {
	t.Helper()
	store := snapshot.NewStore(backend, snapshot.WithLogger(zerolog.Nop()))
	srv := httptest.NewServer(newRouter(&demo.Pages{}, store))
	t.Cleanup(srv.Close)
	return srv, store
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv, _ := newTestServer(t, snapshot.NewMemoryBackend(1<<20))
		if status, body := get(t, srv, "/ready"); status != http.StatusOK || body != "OK" {
			t.Errorf("ready = %d %q", status, body)
		}
	})

	t.Run("not_ready_backend_down", func(t *testing.T) {
		srv, _ := newTestServer(t, brokenBackend{})
		if status, _ := get(t, srv, "/ready"); status != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", status)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, snapshot.NewMemoryBackend(1<<20))

	status, body := get(t, srv, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(body, "freeze_cache_entries") {
		t.Error("Expected metrics output to contain freeze_cache_entries")
	}
}

func TestSnapshotsEndpoint(t *testing.T) {
	srv, store := newTestServer(t, snapshot.NewMemoryBackend(1<<20))
	ctx := context.Background()

	for _, key := range []string{"/static.html", "/dynamic.html"} {
		err := store.Upsert(ctx, &snapshot.Snapshot{
			CacheKey:   key,
			Content:    "<main>" + key + "</main>",
			Title:      key,
			Scripts:    []string{"/dynamic.js"},
			CapturedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	status, body := get(t, srv, "/debug/snapshots")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var list []snapshotSummary
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0].Key != "/static.html" || list[1].Key != "/dynamic.html" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Bytes != len("<main>/static.html</main>") {
		t.Errorf("Bytes = %d", list[0].Bytes)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/debug/snapshots", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d", resp.StatusCode)
	}
	if n, _ := store.Len(ctx); n != 0 {
		t.Errorf("store holds %d snapshots after clear", n)
	}
}

func TestSnapshotsEndpoint_BackendDown(t *testing.T) {
	srv, _ := newTestServer(t, brokenBackend{})
	if status, _ := get(t, srv, "/debug/snapshots"); status != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", status)
	}
}

func TestDemoPagesMounted(t *testing.T) {
	srv, _ := newTestServer(t, snapshot.NewMemoryBackend(1<<20))

	status, body := get(t, srv, "/static.html")
	if status != http.StatusOK || !strings.Contains(body, "<title>Static</title>") {
		t.Errorf("static page = %d %q", status, body)
	}
	if status, _ := get(t, srv, "/dynamic.js"); status != http.StatusOK {
		t.Errorf("script status = %d", status)
	}
}
