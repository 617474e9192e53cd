package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"feedbot/internal/domain/filters"
	"feedbot/internal/domain/parser"
	"feedbot/internal/domain/post"
	"feedbot/internal/domain/queue"
	"feedbot/internal/infra/janitor"
	"feedbot/internal/infra/mediacache"
	"feedbot/internal/publisher"
	"feedbot/internal/remoteapi"
)

// fakeParser is a minimal in-memory Parser used to exercise the
// orchestrator's filter chain and commit boundary without a real
// network-backed parser.
type fakeParser struct {
	name    string
	sources map[string]parser.SourceParams
	posts   map[string][]post.QueuePost
	seen    map[string]map[string]bool

	fetchErr error
}

func newFakeParser(name string, sources map[string]parser.SourceParams) *fakeParser {
	return &fakeParser{
		name:    name,
		sources: sources,
		posts:   map[string][]post.QueuePost{},
		seen:    map[string]map[string]bool{},
	}
}

func (f *fakeParser) Name() string                            { return f.name }
func (f *fakeParser) Sources() map[string]parser.SourceParams { return f.sources }

func (f *fakeParser) FetchRaw(ctx context.Context, source string) ([]post.QueuePost, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.posts[source], nil
}

func (f *fakeParser) AlreadySeen(source, id string) bool {
	return f.seen[source] != nil && f.seen[source][id]
}

func (f *fakeParser) MarkSeen(source string, ids []string) error {
	if f.seen[source] == nil {
		f.seen[source] = map[string]bool{}
	}
	for _, id := range ids {
		f.seen[source][id] = true
	}
	return nil
}

func (f *fakeParser) PostProcess(source string, posts []post.QueuePost) ([]post.QueuePost, error) {
	return posts, nil
}

func (f *fakeParser) ParseMedia(ctx context.Context, qp *post.QueuePost) error { return nil }

func (f *fakeParser) FormatPost(source string, qp *post.QueuePost) error {
	if qp.Text == "" {
		qp.Text = "formatted-" + qp.ID
	}
	return nil
}

func newTestOrchestrator(t *testing.T, parsers []parser.Parser) (*Orchestrator, *queue.Queue) {
	t.Helper()
	dir := t.TempDir()

	q := queue.New(filepath.Join(dir, "queue.yaml"))
	if _, err := q.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	filterEngine := filters.NewEngine(filepath.Join(dir, "filters.json"))
	if err := filterEngine.Load(); err != nil {
		t.Fatalf("Load filters: %v", err)
	}

	media := mediacache.New(dir)
	client := remoteapi.New("http://example.invalid", "token", remoteapi.DialectMastodon, nil)
	pub := publisher.New(q, client, media, publisher.Options{DryRun: true})

	o := New(parsers, filterEngine, q, pub, janitor.New(""), Options{AppName: "feedbot-test", MaxPostAgeMonths: 6})
	return o, q
}

func TestRunEnqueuesFreshPosts(t *testing.T) {
	sources := map[string]parser.SourceParams{
		"src1": {ID: "src1", Name: "Source One"},
	}
	fp := newFakeParser("fake", sources)
	fp.posts["src1"] = []post.QueuePost{
		{ID: "1", Action: post.NewAction(), PublishedAt: time.Now()},
		{ID: "2", Action: post.NewAction(), PublishedAt: time.Now()},
	}

	o, q := newTestOrchestrator(t, []parser.Parser{fp})
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := q.Length(); n != 0 {
		// Dry-run publish still drains the in-memory queue.
		t.Errorf("expected queue drained by dry-run publish, got %d remaining", n)
	}
	if !fp.AlreadySeen("src1", "1") || !fp.AlreadySeen("src1", "2") {
		t.Errorf("expected survivors marked seen")
	}
}

func TestRunDiscardsAlreadySeenPosts(t *testing.T) {
	sources := map[string]parser.SourceParams{"src1": {ID: "src1"}}
	fp := newFakeParser("fake", sources)
	fp.posts["src1"] = []post.QueuePost{{ID: "1", Action: post.NewAction(), PublishedAt: time.Now()}}
	fp.seen["src1"] = map[string]bool{"1": true}

	o, q := newTestOrchestrator(t, []parser.Parser{fp})
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := q.Length(); n != 0 {
		t.Errorf("expected nothing enqueued, got %d", n)
	}
}

func TestRunDiscardsOldPosts(t *testing.T) {
	sources := map[string]parser.SourceParams{"src1": {ID: "src1"}}
	fp := newFakeParser("fake", sources)
	fp.posts["src1"] = []post.QueuePost{
		{ID: "old", Action: post.NewAction(), PublishedAt: time.Now().AddDate(-1, 0, 0)},
		{ID: "new", Action: post.NewAction(), PublishedAt: time.Now()},
	}

	o, _ := newTestOrchestrator(t, []parser.Parser{fp})
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fp.AlreadySeen("src1", "old") {
		t.Errorf("a discarded-for-age post should never be marked seen")
	}
	if !fp.AlreadySeen("src1", "new") {
		t.Errorf("expected the recent post to be marked seen")
	}
}

func TestIsWithinMaxAgeTreatsZeroTimeAsAlwaysFresh(t *testing.T) {
	o := &Orchestrator{opts: Options{MaxPostAgeMonths: 6}}
	if !o.isWithinMaxAge(post.QueuePost{}) {
		t.Errorf("a post with no PublishedAt should never be discarded for age")
	}
}

func TestRunSkipsUnreachableSourceButContinues(t *testing.T) {
	sources := map[string]parser.SourceParams{"src1": {ID: "src1"}}
	fp := newFakeParser("fake", sources)
	fp.fetchErr = &parser.ErrSourceUnreachable{Source: "src1", Err: context.DeadlineExceeded}

	o, _ := newTestOrchestrator(t, []parser.Parser{fp})
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("a transient source failure must not abort the run: %v", err)
	}
}

func TestRunAbortsOnConfigError(t *testing.T) {
	sources := map[string]parser.SourceParams{"src1": {ID: "src1"}}
	fp := newFakeParser("fake", sources)
	fp.fetchErr = &parser.ErrConfig{Err: context.DeadlineExceeded}

	o, _ := newTestOrchestrator(t, []parser.Parser{fp})
	if err := o.Run(context.Background()); err == nil {
		t.Errorf("expected ErrConfig to abort the run")
	}
}
