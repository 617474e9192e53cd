package remoteapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseDialectDefaultsToMastodon(t *testing.T) {
	cases := map[string]Dialect{
		"pleroma":  DialectPleroma,
		"firefish": DialectFirefish,
		"mastodon": DialectMastodon,
		"bogus":    DialectMastodon,
		"":         DialectMastodon,
	}
	for in, want := range cases {
		if got := ParseDialect(in); got != want {
			t.Errorf("ParseDialect(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToMastodonIDs(t *testing.T) {
	if got := toMastodonIDs(nil); got != nil {
		t.Errorf("toMastodonIDs(nil) = %v, want nil", got)
	}
	got := toMastodonIDs([]string{"1", "2"})
	if len(got) != 2 || string(got[0]) != "1" || string(got[1]) != "2" {
		t.Errorf("toMastodonIDs mismatch: %v", got)
	}
}

// newTestServer starts a mock Mastodon-compatible API recording whether
// the posted status carried a language parameter, so dialect branching
// can be verified without a live instance.
func newTestServer(t *testing.T, sawLanguage *bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err == nil {
			if _, ok := r.Form["language"]; ok {
				*sawLanguage = true
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"42","content":"hi"}`))
	}))
}

func TestStatusPostOmitsLanguageForFirefish(t *testing.T) {
	var sawLanguage bool
	srv := newTestServer(t, &sawLanguage)
	defer srv.Close()

	client := New(srv.URL, "token", DialectFirefish, nil)
	_, err := client.StatusPost(context.Background(), StatusPostRequest{Text: "hello", Language: "en"})
	if err != nil {
		t.Fatalf("StatusPost: %v", err)
	}
	if sawLanguage {
		t.Errorf("expected firefish dialect to omit language param")
	}
}

func TestStatusPostIncludesLanguageForMastodon(t *testing.T) {
	var sawLanguage bool
	srv := newTestServer(t, &sawLanguage)
	defer srv.Close()

	client := New(srv.URL, "token", DialectMastodon, nil)
	_, err := client.StatusPost(context.Background(), StatusPostRequest{Text: "hello", Language: "en"})
	if err != nil {
		t.Fatalf("StatusPost: %v", err)
	}
	if !sawLanguage {
		t.Errorf("expected mastodon dialect to include language param")
	}
}
