package rss

import (
	"path/filepath"
	"testing"

	"feedbot/internal/domain/parser"
	"feedbot/internal/domain/post"
	"feedbot/internal/domain/seenstate"
)

func newTestParser(t *testing.T, maxLen int, merge bool) *Parser {
	sources := map[string]parser.SourceParams{
		"example": {Name: "example", URL: "https://example.invalid/feed.xml"},
	}
	store := seenstate.New(filepath.Join(t.TempDir(), "feeds.json"))
	return New(sources, store, maxLen, merge)
}

func TestTitleCaseIfShouting(t *testing.T) {
	if got := titleCaseIfShouting("HELLO WORLD"); got != "Hello World" {
		t.Errorf("titleCaseIfShouting(SHOUT) = %q", got)
	}
	if got := titleCaseIfShouting("Hello World"); got != "Hello World" {
		t.Errorf("titleCaseIfShouting(mixed) = %q, expected untouched", got)
	}
}

func TestCleanBodyStripsTagsAndWhitespace(t *testing.T) {
	got := cleanBody("<p>Hello   <b>World</b></p>\n\n\n")
	if got != "Hello World" {
		t.Errorf("cleanBody = %q, want %q", got, "Hello World")
	}
}

func TestFormatPostTruncatesToMaxLength(t *testing.T) {
	p := newTestParser(t, 40, false)
	qp := &post.QueuePost{
		RawContent: map[string]string{
			"url":   "https://example.invalid/a",
			"title": "Title",
			"body":  "this body is much longer than the configured max length allows for",
		},
	}
	if err := p.FormatPost("example", qp); err != nil {
		t.Fatalf("FormatPost: %v", err)
	}
	if len(qp.Text) == 0 {
		t.Fatalf("expected non-empty text")
	}
	if len(qp.Text) > 40 {
		t.Errorf("expected text within max length 40, got %d: %q", len(qp.Text), qp.Text)
	}
}

func TestFormatPostMergesContentWhenConfigured(t *testing.T) {
	p := newTestParser(t, 500, true)
	qp := &post.QueuePost{
		RawContent: map[string]string{
			"url":   "https://example.invalid/a",
			"title": "My Title",
			"body":  "My body",
		},
	}
	if err := p.FormatPost("example", qp); err != nil {
		t.Fatalf("FormatPost: %v", err)
	}
	if qp.Summary != "" {
		t.Errorf("expected empty summary when merging, got %q", qp.Summary)
	}
}

func TestStripSchemeDropsPrefix(t *testing.T) {
	if got := stripScheme("https://example.invalid/a"); got != "//example.invalid/a" {
		t.Errorf("stripScheme(https) = %q", got)
	}
	if got := stripScheme("http://example.invalid/a"); got != "//example.invalid/a" {
		t.Errorf("stripScheme(http) = %q", got)
	}
	if got := stripScheme("http://example.invalid/a"); got != stripScheme("https://example.invalid/a") {
		t.Errorf("a scheme migration must not change the dedup id")
	}
}

func TestParseMediaExtractsImages(t *testing.T) {
	p := newTestParser(t, 500, false)
	qp := &post.QueuePost{
		RawCombinedContent: `title <img src="https://example.invalid/pic.jpg" alt="a pic"> body`,
	}
	if err := p.ParseMedia(nil, qp); err != nil {
		t.Fatalf("ParseMedia: %v", err)
	}
	if len(qp.Media) != 1 || qp.Media[0].URL != "https://example.invalid/pic.jpg" {
		t.Fatalf("unexpected media: %+v", qp.Media)
	}
}
