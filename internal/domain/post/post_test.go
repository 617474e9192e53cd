package post

import (
	"testing"
	"time"
)

func TestRoundTripPreservesPersistedFields(t *testing.T) {
	original := QueuePost{
		ID:          "https://example.com/a",
		Group:       "g1",
		Action:      NewAction(),
		Summary:     "A title",
		Text:        "Some body",
		Language:    "en",
		Media:       []QueuePostMedia{{URL: "https://example.com/img.png", AltText: "alt"}},
		PublishedAt: time.Unix(1700000000, 0).UTC(),
		Source:      SourceRef{Parser: "rss", Source: "example"},
		RawContent:  map[string]string{"title": "A title"},
		RawCombinedContent: "A title Some body",
	}

	round := FromRecord(original.ToRecord())

	if round.ID != original.ID || round.Group != original.Group || round.Text != original.Text ||
		round.Summary != original.Summary || round.Language != original.Language {
		t.Fatalf("round trip mismatch: got %+v", round)
	}
	if !round.PublishedAt.Equal(original.PublishedAt) {
		t.Fatalf("published_at mismatch: got %v want %v", round.PublishedAt, original.PublishedAt)
	}
	if len(round.Media) != 1 || round.Media[0].URL != original.Media[0].URL {
		t.Fatalf("media mismatch: got %+v", round.Media)
	}
	if round.RawContent != nil || round.RawCombinedContent != "" {
		t.Fatalf("expected raw fields to be nil after round trip, got %+v / %q", round.RawContent, round.RawCombinedContent)
	}
}

func TestReblogActionRoundTrip(t *testing.T) {
	original := QueuePost{
		ID:          "12345",
		Action:      ReblogAction("12345"),
		PublishedAt: time.Unix(1700000000, 0).UTC(),
	}
	round := FromRecord(original.ToRecord())
	if round.Action.Kind != ActionReblog || round.Action.RemoteID != "12345" {
		t.Fatalf("expected reblog action preserved, got %+v", round.Action)
	}
}

func TestKeyDedupIdentity(t *testing.T) {
	a := QueuePost{ID: "1", Action: NewAction()}
	b := QueuePost{ID: "1", Action: NewAction()}
	c := QueuePost{ID: "1", Action: ReblogAction("1")}
	if a.Key() != b.Key() {
		t.Fatalf("expected identical keys for same id+action")
	}
	if a.Key() == c.Key() {
		t.Fatalf("expected distinct keys for same id, different action")
	}
}
