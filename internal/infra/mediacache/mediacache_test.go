package mediacache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFetchDownloadsAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("fake-image-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := New(dir)

	path1, err := c.Fetch(context.Background(), "msg123", srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Dir(path1) != dir {
		t.Errorf("expected file under %s, got %s", dir, path1)
	}
	if data, err := os.ReadFile(path1); err != nil || string(data) != "fake-image-bytes" {
		t.Fatalf("unexpected file contents: %v %q", err, data)
	}

	path2, err := c.Fetch(context.Background(), "msg123", srv.URL)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if path1 != path2 {
		t.Errorf("expected idempotent path, got %q vs %q", path1, path2)
	}
	if hits != 1 {
		t.Errorf("expected only 1 HTTP request (cache hit on second call), got %d", hits)
	}
}

func TestFetchRejectsEmptyURL(t *testing.T) {
	c := New(t.TempDir())
	if _, err := c.Fetch(context.Background(), "x", ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
