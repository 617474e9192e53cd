package sourcesconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsEmptyMap(t *testing.T) {
	out, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty map for a missing file, got %v", out)
	}
}

func TestLoadIndexesByName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.json")
	doc := `[
		{"name": "blog", "url": "https://example.com/feed", "show_name": true, "toots": true},
		{"name": "news", "url": "https://news.example.com/feed", "keywords_filter_profile": "tech"}
	]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(out))
	}
	if out["blog"].URL != "https://example.com/feed" || !out["blog"].ShowName {
		t.Errorf("blog entry mismatch: %+v", out["blog"])
	}
	if out["news"].KeywordsFilterProfile != "tech" {
		t.Errorf("news entry mismatch: %+v", out["news"])
	}
}

func TestLoadMalformedJSONErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("expected an error for malformed JSON")
	}
}
