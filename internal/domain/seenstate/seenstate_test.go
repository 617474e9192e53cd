package seenstate

import (
	"path/filepath"
	"testing"
)

func TestAlreadySeenIsMonotoneAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telegram.yaml")

	s1 := New(path)
	if s1.AlreadySeen("entity_1", "100") {
		t.Fatalf("expected id not seen initially")
	}
	if err := s1.MarkSeen("entity_1", []string{"100", "101"}); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if !s1.AlreadySeen("entity_1", "100") {
		t.Fatalf("expected id seen after MarkSeen")
	}

	// Simulate a process restart: a fresh Store over the same file must
	// still report the ids as seen.
	s2 := New(path)
	if !s2.AlreadySeen("entity_1", "100") || !s2.AlreadySeen("entity_1", "101") {
		t.Fatalf("expected ids to remain seen after reload")
	}
	if s2.AlreadySeen("entity_1", "999") {
		t.Fatalf("expected unrelated id to be unseen")
	}
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "feeds.yaml"))
	if err := s.MarkSeen("site", []string{"//a"}); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if err := s.MarkSeen("site", []string{"//a"}); err != nil {
		t.Fatalf("MarkSeen (repeat): %v", err)
	}
	if !s.AlreadySeen("site", "//a") {
		t.Fatalf("expected //a seen")
	}
}
