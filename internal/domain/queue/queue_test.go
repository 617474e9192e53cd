package queue

import (
	"path/filepath"
	"testing"
	"time"

	"feedbot/internal/domain/post"
)

func mkPost(id string, t int64) post.QueuePost {
	return post.QueuePost{ID: id, Action: post.NewAction(), PublishedAt: time.Unix(t, 0).UTC()}
}

func TestSortIsIdempotent(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "queue.yaml"))
	q.Append(mkPost("c", 300))
	q.Append(mkPost("a", 100))
	q.Append(mkPost("b", 200))

	q.Sort()
	first := q.Snapshot()
	q.Sort()
	second := q.Snapshot()

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 posts, got %d / %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("sort not idempotent at index %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
	if first[0].ID != "a" || first[1].ID != "b" || first[2].ID != "c" {
		t.Fatalf("expected ascending order by published_at, got %v", idsOf(first))
	}
}

func TestDeduplicateIsIdempotentAndKeepsFirstOccurrence(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "queue.yaml"))
	first := mkPost("dup", 100)
	first.Text = "first"
	second := mkPost("dup", 200)
	second.Text = "second"
	q.Append(first)
	q.Append(second)
	q.Append(mkPost("other", 300))

	q.Deduplicate()
	afterOnce := q.Snapshot()
	q.Deduplicate()
	afterTwice := q.Snapshot()

	if len(afterOnce) != 2 || len(afterTwice) != 2 {
		t.Fatalf("expected 2 posts after dedup, got %d / %d", len(afterOnce), len(afterTwice))
	}
	if afterOnce[0].Text != "first" {
		t.Fatalf("expected first occurrence kept, got %q", afterOnce[0].Text)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.yaml")
	q := New(path)
	q.Append(mkPost("x", 100))
	q.Append(mkPost("y", 200))
	if err := q.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := New(path)
	n, err := reloaded.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 posts reloaded, got %d", n)
	}
}

func idsOf(posts []post.QueuePost) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
