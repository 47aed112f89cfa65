package downloads

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"forge/internal/config"
	"forge/internal/events"
	"forge/internal/queue"
)

func testStore(t *testing.T) *queue.Store {
	t.Helper()
	cfg := config.Default()
	cfg.DB.Path = t.TempDir() + "/forge.db"
	store, err := queue.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func waitForStatus(t *testing.T, c *Coordinator, id string, want queue.DownloadStatus) *queue.DownloadRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := c.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if rec.Status == want {
			return rec
		}
		if rec.Status == queue.DownloadFailed && want != queue.DownloadFailed {
			t.Fatalf("download failed unexpectedly: %s", rec.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s", want)
	return nil
}

func TestCoordinatorStartDownloadsFile(t *testing.T) {
	content := []byte("hello model weights")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			_, _ = w.Write([]byte(`{"siblings":[{"rfilename":"model.bin"}]}`))
			return
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	store := testStore(t)
	bus := events.New(16)
	dir := t.TempDir()
	c := New(store, bus, srv.URL, dir, 1, time.Second, nil)

	id, err := c.Start(context.Background(), "acme/widget", []string{"model.bin"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	rec := waitForStatus(t, c, id, queue.DownloadCompleted)
	if rec.BytesDownloaded != int64(len(content)) {
		t.Fatalf("bytes downloaded = %d, want %d", rec.BytesDownloaded, len(content))
	}

	data, err := os.ReadFile(filepath.Join(dir, "acme__widget", "model.bin"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("downloaded content = %q, want %q", data, content)
	}
}

func TestCoordinatorResumesFromExistingBytes(t *testing.T) {
	full := []byte("0123456789ABCDEF")
	prefix := full[:8]
	suffix := full[8:]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			_, _ = w.Write([]byte(`{"siblings":[{"rfilename":"model.bin"}]}`))
			return
		}
		rng := r.Header.Get("Range")
		if rng == "" {
			t.Errorf("expected Range header on resumed request")
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 8-15/%d", len(full)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(suffix)
	}))
	defer srv.Close()

	store := testStore(t)
	bus := events.New(16)
	dir := t.TempDir()

	destDir := filepath.Join(dir, "acme__widget")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "model.bin"), prefix, 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	c := New(store, bus, srv.URL, dir, 1, time.Second, nil)
	id, err := c.Start(context.Background(), "acme/widget", []string{"model.bin"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForStatus(t, c, id, queue.DownloadCompleted)

	data, err := os.ReadFile(filepath.Join(destDir, "model.bin"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != string(full) {
		t.Fatalf("resumed content = %q, want %q", data, full)
	}
}

func TestCoordinatorTreats416AsComplete(t *testing.T) {
	existing := []byte("already have it all")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			_, _ = w.Write([]byte(`{"siblings":[{"rfilename":"model.bin"}]}`))
			return
		}
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	store := testStore(t)
	bus := events.New(16)
	dir := t.TempDir()
	destDir := filepath.Join(dir, "acme__widget")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "model.bin"), existing, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	c := New(store, bus, srv.URL, dir, 1, time.Second, nil)
	id, err := c.Start(context.Background(), "acme/widget", []string{"model.bin"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForStatus(t, c, id, queue.DownloadCompleted)
}

func TestCoordinatorCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			_, _ = w.Write([]byte(`{"siblings":[{"rfilename":"model.bin"}]}`))
			return
		}
		w.Header().Set("Content-Length", "5000000")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		chunk := make([]byte, 64*1024)
		for i := 0; i < 200; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			select {
			case <-block:
				return
			case <-time.After(2 * time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	store := testStore(t)
	bus := events.New(16)
	dir := t.TempDir()
	c := New(store, bus, srv.URL, dir, 1, time.Second, nil)

	id, err := c.Start(context.Background(), "acme/widget", []string{"model.bin"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if !c.Cancel(id) {
		t.Fatalf("cancel returned false for in-flight download")
	}
	close(block)

	waitForStatus(t, c, id, queue.DownloadCancelled)
}

func TestCoordinatorStartRejectsUnknownRepo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := testStore(t)
	bus := events.New(16)
	c := New(store, bus, srv.URL, t.TempDir(), 1, time.Second, nil)

	if _, err := c.Start(context.Background(), "nope/nope", []string{"model.bin"}); !IsNetworkFailure(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
}

func TestCoordinatorCleanupRemovesOldTerminalRecords(t *testing.T) {
	content := []byte("tiny")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/models/") {
			_, _ = w.Write([]byte(`{"siblings":[{"rfilename":"model.bin"}]}`))
			return
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	store := testStore(t)
	bus := events.New(16)
	c := New(store, bus, srv.URL, t.TempDir(), 1, time.Second, nil)

	id, err := c.Start(context.Background(), "acme/widget", []string{"model.bin"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForStatus(t, c, id, queue.DownloadCompleted)

	removed, err := c.Cleanup(context.Background(), -time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("cleanup removed %d records, want 1", removed)
	}

	if _, err := c.Status(context.Background(), id); !IsNotFound(err) {
		t.Fatalf("expected not found after cleanup, got %v", err)
	}
}
