// Package seenstate persists, per (parser, source), the set of upstream
// IDs already ingested. The set is monotone: it only grows, and once an ID
// is marked seen it must be reported seen forever after, regardless of
// intervening process restarts.
//
// The storage shape is grounded on
// adapters/telegram/core/state_storage.go's fileStorage from the base
// repository: a lazily-loaded, mutex-protected document with an
// ensure-on-load self-healing step, persisted atomically. That file kept
// one schema tied to gotd's updates.State; this one generalizes to an
// arbitrary string-keyed set-of-IDs document so RSS, Telegram and Mastodon
// parsers can all use it, backing the feeds.yaml, telegram.yaml and
// mastodon_seen.json state files (written as JSON whatever the extension).
package seenstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/go-faster/errors"

	"feedbot/internal/infra/logger"
	"feedbot/internal/infra/storage"
)

// Store tracks seen upstream IDs per (parser, source) key.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	seen   map[string]map[string]struct{}
}

// persisted is the on-disk schema: source key -> list of seen ids. Using a
// slice rather than a set on disk keeps the file diff-friendly; keys are the
// configured source names, e.g. {"<source name>": [message_id...]}.
type persisted map[string][]string

// New creates a Store bound to path. Loading is deferred to first use.
func New(path string) *Store {
	return &Store{path: path, seen: map[string]map[string]struct{}{}}
}

func ensureJSON(path string) (persisted, error) {
	clean := filepath.Clean(path)
	if err := storage.EnsureDir(clean); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(clean)
	if os.IsNotExist(err) || len(raw) == 0 {
		p := persisted{}
		if wErr := writeJSON(clean, p); wErr != nil {
			return nil, errors.Wrap(wErr, "init seen-state file")
		}
		return p, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read seen-state")
	}

	var p persisted
	if uErr := json.Unmarshal(raw, &p); uErr != nil {
		logger.Warnf("seenstate: failed to decode %s: %v; rewriting default", clean, uErr)
		p = persisted{}
		if wErr := writeJSON(clean, p); wErr != nil {
			return nil, errors.Wrap(wErr, "rewrite default seen-state")
		}
		return p, nil
	}
	if p == nil {
		p = persisted{}
	}
	return p, nil
}

func writeJSON(path string, p persisted) error {
	enc, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return storage.AtomicWriteFile(path, enc)
}

func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}
	p, err := ensureJSON(s.path)
	if err != nil {
		return err
	}
	s.seen = make(map[string]map[string]struct{}, len(p))
	for source, ids := range p {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		s.seen[source] = set
	}
	s.loaded = true
	return nil
}

func (s *Store) persistLocked() error {
	p := make(persisted, len(s.seen))
	for source, set := range s.seen {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		p[source] = ids
	}
	return writeJSON(s.path, p)
}

// AlreadySeen reports whether id has been marked seen for source.
func (s *Store) AlreadySeen(source, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		logger.Warnf("seenstate: load error: %v", err)
		return false
	}
	set, ok := s.seen[source]
	if !ok {
		return false
	}
	_, ok = set[id]
	return ok
}

// MarkSeen records ids as seen for source and persists before returning,
// so a crash immediately after MarkSeen never loses provenance.
func (s *Store) MarkSeen(source string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	set, ok := s.seen[source]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		s.seen[source] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return s.persistLocked()
}

// MaxSeenID returns the largest numeric id seen for source, or 0 if no
// numeric id is recorded; non-numeric ids are ignored. Telegram message ids are
// monotonically increasing integers, so this gives FetchRaw an offset_id
// equivalent without tracking it separately.
func (s *Store) MaxSeenID(source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		logger.Warnf("seenstate: load error: %v", err)
		return 0
	}
	set, ok := s.seen[source]
	if !ok {
		return 0
	}
	max := 0
	for id := range set {
		if n, err := strconv.Atoi(id); err == nil && n > max {
			max = n
		}
	}
	return max
}
