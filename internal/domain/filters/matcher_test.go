package filters

import "testing"

func TestContainsSmartWordBoundaries(t *testing.T) {
	cases := []struct {
		text, kw string
		want     bool
	}{
		{"foo-bar", "foo", true},
		{"foobar", "foo", false},
		{"Привет, мир", "привет", true},
		{"C++ guide", "C++", true},
	}
	for _, c := range cases {
		if got := ContainsSmart(c.text, c.kw); got != c.want {
			t.Errorf("ContainsSmart(%q, %q) = %v, want %v", c.text, c.kw, got, c.want)
		}
	}
}

func TestMatchTextPipeline(t *testing.T) {
	m := Match{
		KeywordsAll:        []string{"release"},
		KeywordsAny:        []string{"go", "rust"},
		ExcludeKeywordsAny: []string{"beta"},
	}

	if !MatchText("new release of the go toolchain", m).Matched {
		t.Fatalf("expected match")
	}
	if MatchText("new release of the rust beta", m).Matched {
		t.Fatalf("expected exclude to reject")
	}
	if MatchText("new release of python", m).Matched {
		t.Fatalf("expected keywordsAny miss to reject")
	}
}

func TestEngineAllowsUnconfiguredProfile(t *testing.T) {
	e := NewEngine("/nonexistent/profiles.json")
	if err := e.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !e.Allows("", "anything") {
		t.Fatalf("expected empty profile name to always allow")
	}
	if e.Allows("missing", "anything") {
		t.Fatalf("expected unknown profile to reject")
	}
}
