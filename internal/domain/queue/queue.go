// Package queue implements the durable publication queue: an ordered,
// deduplicated sequence of post.QueuePost backed by a single YAML document
// file. Unlike the base repository's notifications.Queue (a
// worker-loop-driven delivery queue with urgent/regular channels and a
// debounced background persist), the syndication bot's queue is drained
// synchronously front-to-back by exactly one Publisher per run, so this
// package keeps the base repository's atomic-persistence discipline
// (storage.AtomicWriteFile via infra/storage.Document) but drops the
// worker loop entirely in favor of the spec's explicit
// Sort->Deduplicate->Save pipeline.
package queue

import (
	"sort"
	"sync"

	"feedbot/internal/domain/post"
	"feedbot/internal/infra/storage"
)

const documentKey = "queue"

// Queue is an ordered, deduplicated, persistent sequence of QueuePost.
type Queue struct {
	mu    sync.Mutex
	doc   *storage.Document
	posts []post.QueuePost
}

// New creates a Queue backed by the YAML document at path. Load must be
// called before the queue reflects on-disk state.
func New(path string) *Queue {
	return &Queue{doc: storage.NewDocument(path)}
}

// Load reads the backing document and returns the resulting length.
func (q *Queue) Load() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.doc.ReadFile(); err != nil {
		return 0, err
	}
	raw := q.doc.Get(documentKey)
	records := decodeRecords(raw)
	posts := make([]post.QueuePost, 0, len(records))
	for _, r := range records {
		posts = append(posts, post.FromRecord(r))
	}
	q.posts = posts
	return len(q.posts), nil
}

// Append adds p to the end of the queue, in memory only; callers persist
// explicitly via Save once they are done mutating the queue for this
// source/parser, matching the orchestrator's per-parser commit boundary.
func (q *Queue) Append(p post.QueuePost) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.posts = append(q.posts, p)
}

// PopFront removes and returns the first post, or false if the queue is
// empty.
func (q *Queue) PopFront() (post.QueuePost, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.posts) == 0 {
		return post.QueuePost{}, false
	}
	p := q.posts[0]
	q.posts = q.posts[1:]
	return p, true
}

// First returns the first post without removing it.
func (q *Queue) First() (post.QueuePost, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.posts) == 0 {
		return post.QueuePost{}, false
	}
	return q.posts[0], true
}

// PeekFront returns the current front post and whether the queue is
// non-empty, without mutating the queue. Provided for the Publisher's
// thread-linkage lookahead (checking the next post's group before popping).
func (q *Queue) PeekFront() (post.QueuePost, bool) {
	return q.First()
}

// Last returns the last post without removing it.
func (q *Queue) Last() (post.QueuePost, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.posts) == 0 {
		return post.QueuePost{}, false
	}
	return q.posts[len(q.posts)-1], true
}

// Length returns the number of posts currently queued.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.posts)
}

// IsEmpty reports whether the queue has no posts.
func (q *Queue) IsEmpty() bool { return q.Length() == 0 }

// Sort performs a stable sort by PublishedAt ascending. Stability is
// required: Sort(Sort(S)) = Sort(S) for all queue states S.
func (q *Queue) Sort() {
	q.mu.Lock()
	defer q.mu.Unlock()
	sort.SliceStable(q.posts, func(i, j int) bool {
		return q.posts[i].PublishedAt.Before(q.posts[j].PublishedAt)
	})
}

// Deduplicate keeps the first occurrence of each (id, action) pair in
// current order. Dedup(Dedup(S)) = Dedup(S) for all queue states S.
func (q *Queue) Deduplicate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[post.Key]struct{}, len(q.posts))
	out := q.posts[:0]
	for _, p := range q.posts {
		k := p.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	q.posts = out
}

// Snapshot returns a copy of the current in-memory posts, for callers that
// need to inspect queue contents without holding the lock (e.g. tests).
func (q *Queue) Snapshot() []post.QueuePost {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]post.QueuePost, len(q.posts))
	copy(out, q.posts)
	return out
}

// Save serializes all posts (dropping RawContent/RawCombinedContent via
// ToRecord) and atomically replaces the backing file.
func (q *Queue) Save() error {
	q.mu.Lock()
	records := make([]post.Record, 0, len(q.posts))
	for _, p := range q.posts {
		records = append(records, p.ToRecord())
	}
	q.mu.Unlock()

	q.doc.Set(documentKey, encodeRecords(records))
	return q.doc.WriteFile()
}

// encodeRecords converts Records to the plain-map shape the YAML document
// store round-trips, so WriteFile/ReadFile agree on representation.
func encodeRecords(records []post.Record) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		media := make([]map[string]any, 0, len(r.Media))
		for _, m := range r.Media {
			media = append(media, map[string]any{
				"url":       m.URL,
				"path":      m.Path,
				"mime_type": m.MimeType,
				"alt_text":  m.AltText,
			})
		}
		out = append(out, map[string]any{
			"id":           r.ID,
			"group":        r.Group,
			"action":       r.Action,
			"remote_id":    r.RemoteID,
			"summary":      r.Summary,
			"text":         r.Text,
			"language":     r.Language,
			"media":        media,
			"published_at": r.PublishedAt,
		})
	}
	return out
}

// decodeRecords is the reverse of encodeRecords, tolerant of both
// map[string]any (freshly written this run) and map[interface{}]interface{}
// (as produced by yaml.v2 after a real round trip through disk).
func decodeRecords(raw any) []post.Record {
	items, ok := raw.([]any)
	if !ok {
		if typed, ok2 := raw.([]map[string]any); ok2 {
			items = make([]any, len(typed))
			for i, m := range typed {
				items[i] = m
			}
		} else {
			return nil
		}
	}

	out := make([]post.Record, 0, len(items))
	for _, item := range items {
		m := toStringMap(item)
		if m == nil {
			continue
		}
		r := post.Record{
			ID:          toString(m["id"]),
			Group:       toString(m["group"]),
			Action:      toString(m["action"]),
			RemoteID:    toString(m["remote_id"]),
			Summary:     toString(m["summary"]),
			Text:        toString(m["text"]),
			Language:    toString(m["language"]),
			PublishedAt: toInt64(m["published_at"]),
		}
		for _, rawMedia := range toSlice(m["media"]) {
			mm := toStringMap(rawMedia)
			if mm == nil {
				continue
			}
			r.Media = append(r.Media, post.MediaRecord{
				URL:      toString(mm["url"]),
				Path:     toString(mm["path"]),
				MimeType: toString(mm["mime_type"]),
				AltText:  toString(mm["alt_text"]),
			})
		}
		out = append(out, r)
	}
	return out
}

func toStringMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out
	default:
		return nil
	}
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []map[string]any:
		out := make([]any, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out
	default:
		return nil
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
