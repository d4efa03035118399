package images

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"storefront/exporter/internal/config"
)

func testImagesConfig() config.ImagesConfig {
	return config.ImagesConfig{
		Timeout:             5,
		PreviewConcurrency:  2,
		PreviewDelayMs:      1,
		PreviewCacheSize:    200,
		ExportRetryAttempts: 3,
		ExportRetryDelayMs:  1,
	}
}

func newTestLoader(cfg config.ImagesConfig) *Loader {
	return NewLoader(cfg, nil, clock.New())
}

func TestExportBytes_RetriesRateLimitThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	l := newTestLoader(testImagesConfig())
	data, err := l.ExportBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("ExportBytes failed: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("data = %q", data)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}
}

func TestExportBytes_GivesUpAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	l := newTestLoader(testImagesConfig())
	_, err := l.ExportBytes(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want no more than 3", got)
	}
}

func TestExportBytes_NonRetryableFailsImmediately(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	l := newTestLoader(testImagesConfig())
	_, err := l.ExportBytes(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 for non-retryable failure", got)
	}
}

func TestWarmPreviews_CachesAndSkipsCached(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		fmt.Fprintf(w, "bytes-for-%s", r.URL.Path)
	}))
	defer server.Close()

	l := newTestLoader(testImagesConfig())
	urls := []string{server.URL + "/a", server.URL + "/b", server.URL + "/c"}

	if err := l.WarmPreviews(context.Background(), urls); err != nil {
		t.Fatalf("WarmPreviews failed: %v", err)
	}
	if got := fetches.Load(); got != 3 {
		t.Errorf("fetches = %d, want 3", got)
	}
	for _, u := range urls {
		if _, ok := l.Cached(u); !ok {
			t.Errorf("%s not cached", u)
		}
	}

	// Second pass finds everything cached and fetches nothing.
	if err := l.WarmPreviews(context.Background(), urls); err != nil {
		t.Fatalf("second WarmPreviews failed: %v", err)
	}
	if got := fetches.Load(); got != 3 {
		t.Errorf("fetches after rewarm = %d, want still 3", got)
	}
}

func TestWarmPreviews_DropsFailuresSilently(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	l := newTestLoader(testImagesConfig())
	err := l.WarmPreviews(context.Background(), []string{server.URL + "/bad", server.URL + "/good"})
	if err != nil {
		t.Fatalf("WarmPreviews must be best-effort: %v", err)
	}
	if _, ok := l.Cached(server.URL + "/bad"); ok {
		t.Error("failed fetch must not populate the cache")
	}
	if _, ok := l.Cached(server.URL + "/good"); !ok {
		t.Error("successful fetch missing from cache")
	}
}

func TestPreviewCacheEvictsOldestInsertion(t *testing.T) {
	cfg := testImagesConfig()
	cfg.PreviewCacheSize = 2
	l := newTestLoader(cfg)

	l.store("u1", []byte("1"))
	l.store("u2", []byte("2"))
	// Lookup must not refresh eviction order.
	l.Cached("u1")
	l.store("u3", []byte("3"))

	if _, ok := l.Cached("u1"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := l.Cached("u2"); !ok {
		t.Error("u2 should survive")
	}
	if _, ok := l.Cached("u3"); !ok {
		t.Error("u3 should survive")
	}
}

func TestPauseBlocksWarmUntilResume(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	l := newTestLoader(testImagesConfig())
	l.Pause()

	done := make(chan error, 1)
	go func() {
		done <- l.WarmPreviews(context.Background(), []string{server.URL + "/a"})
	}()

	select {
	case <-done:
		t.Fatal("WarmPreviews finished while paused")
	case <-time.After(50 * time.Millisecond):
	}
	if fetches.Load() != 0 {
		t.Fatal("fetched while paused")
	}

	l.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WarmPreviews failed after resume: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WarmPreviews did not resume")
	}
	if fetches.Load() != 1 {
		t.Errorf("fetches = %d, want 1", fetches.Load())
	}
}

func TestWarmPreviews_Cancellation(t *testing.T) {
	l := newTestLoader(testImagesConfig())
	l.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.WarmPreviews(ctx, []string{"https://img.example/a"})
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not unblock a paused warm")
	}
	l.Resume()
}
