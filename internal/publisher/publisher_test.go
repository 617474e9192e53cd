package publisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"feedbot/internal/domain/post"
	"feedbot/internal/domain/queue"
	"feedbot/internal/infra/mediacache"
	"feedbot/internal/remoteapi"
)

func TestSliceIfLongerThan(t *testing.T) {
	if got := sliceIfLongerThan("hello", 10); got != "hello" {
		t.Errorf("short string should pass through unchanged, got %q", got)
	}
	got := sliceIfLongerThan("hello world", 8)
	if got != "hello..." {
		t.Errorf("sliceIfLongerThan(11 chars, 8) = %q, want %q", got, "hello...")
	}
}

func TestTruncateForLog(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	got := truncateForLog(long)
	if len(got) != 83 {
		t.Errorf("truncateForLog should cut to 80 chars + ellipsis, got len %d", len(got))
	}
}

// newFakeRemote starts a server that answers any request with a status
// JSON body carrying a fresh incrementing id, standing in for a live
// instance in tests that don't need to inspect the request itself.
func newFakeRemote(t *testing.T) (*httptest.Server, *remoteapi.Client) {
	t.Helper()
	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"` + itoa(n) + `","content":"ok"}`))
	}))
	client := remoteapi.New(srv.URL, "token", remoteapi.DialectMastodon, nil)
	return srv, client
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestPublishAllDryRunNeverCallsRemoteOrSaves(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	client := remoteapi.New(srv.URL, "token", remoteapi.DialectMastodon, nil)

	dir := t.TempDir()
	q := queue.New(filepath.Join(dir, "queue.yaml"))
	q.Append(post.QueuePost{ID: "1", Text: "hello", Action: post.NewAction(), PublishedAt: time.Now()})

	media := mediacache.New(dir)
	pub := New(q, client, media, Options{DryRun: true})

	if err := pub.PublishAll(context.Background()); err != nil {
		t.Fatalf("PublishAll: %v", err)
	}
	if called {
		t.Errorf("dry run must never call the remote API")
	}
	if !q.IsEmpty() {
		t.Errorf("PublishAll should still drain the in-memory queue in dry-run mode")
	}
}

func TestPublishAllReblogDrainsQueue(t *testing.T) {
	srv, client := newFakeRemote(t)
	defer srv.Close()

	dir := t.TempDir()
	q := queue.New(filepath.Join(dir, "queue.yaml"))
	q.Append(post.QueuePost{ID: "55", Action: post.ReblogAction("55"), PublishedAt: time.Now()})

	media := mediacache.New(dir)
	pub := New(q, client, media, Options{})

	if err := pub.PublishAll(context.Background()); err != nil {
		t.Fatalf("PublishAll: %v", err)
	}
	if !q.IsEmpty() {
		t.Errorf("expected queue to be drained")
	}
}

func TestPublishAllChainsInReplyToAcrossGroup(t *testing.T) {
	var n int
	var replyIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		replyIDs = append(replyIDs, r.FormValue("in_reply_to_id"))
		n++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"` + itoa(n) + `","content":"ok"}`))
	}))
	defer srv.Close()
	client := remoteapi.New(srv.URL, "token", remoteapi.DialectMastodon, nil)

	dir := t.TempDir()
	q := queue.New(filepath.Join(dir, "queue.yaml"))
	q.Append(post.QueuePost{ID: "1", Text: "first", Group: "g1", Action: post.NewAction(), PublishedAt: time.Now()})
	q.Append(post.QueuePost{ID: "2", Text: "second", Group: "g1", Action: post.NewAction(), PublishedAt: time.Now()})

	media := mediacache.New(dir)
	pub := New(q, client, media, Options{})

	if err := pub.PublishAll(context.Background()); err != nil {
		t.Fatalf("PublishAll: %v", err)
	}
	if !q.IsEmpty() {
		t.Errorf("expected queue to be drained")
	}
	if len(replyIDs) != 2 {
		t.Fatalf("expected 2 status-post requests, got %d", len(replyIDs))
	}
	if replyIDs[0] != "" {
		t.Errorf("first post in a group should carry no in_reply_to_id, got %q", replyIDs[0])
	}
	if replyIDs[1] != "1" {
		t.Errorf("second post's in_reply_to_id = %q, want %q (first post's returned status id)", replyIDs[1], "1")
	}
}

func TestPublishAllDiscardsPostAfterExhaustingRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ok-id","content":"ok"}`))
	}))
	defer srv.Close()
	client := remoteapi.New(srv.URL, "token", remoteapi.DialectMastodon, nil)

	dir := t.TempDir()
	q := queue.New(filepath.Join(dir, "queue.yaml"))
	q.Append(post.QueuePost{ID: "flaky", Text: "will fail", Action: post.NewAction(), PublishedAt: time.Now()})
	q.Append(post.QueuePost{ID: "ok", Text: "will succeed", Action: post.NewAction(), PublishedAt: time.Now()})

	media := mediacache.New(dir)
	pub := New(q, client, media, Options{MaxRetries: 2, SleepTime: time.Millisecond})

	if err := pub.PublishAll(context.Background()); err != nil {
		t.Fatalf("PublishAll: %v", err)
	}
	if !q.IsEmpty() {
		t.Errorf("expected both posts to be drained (the flaky one discarded, not left queued)")
	}
	if calls != 3 {
		t.Errorf("expected exactly MaxRetries (2) failed attempts for the flaky post, then 1 attempt for the next, got %d calls", calls)
	}
}

func TestPublishAllSkipsEmptyPost(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()
	client := remoteapi.New(srv.URL, "token", remoteapi.DialectMastodon, nil)

	dir := t.TempDir()
	q := queue.New(filepath.Join(dir, "queue.yaml"))
	q.Append(post.QueuePost{ID: "empty", Action: post.NewAction(), PublishedAt: time.Now()})

	media := mediacache.New(dir)
	pub := New(q, client, media, Options{})

	if err := pub.PublishAll(context.Background()); err != nil {
		t.Fatalf("PublishAll: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no remote calls for a post with no media and no text, got %d", calls)
	}
}
