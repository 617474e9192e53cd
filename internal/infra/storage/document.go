// Package storage also provides Document: a dotted-path key-value store
// persisted as a single YAML file, backing the syndication bot's queue.yaml
// and accounts.yaml state files (the feeds/telegram seen-state files are
// written as JSON by seenstate instead). It mirrors original_source's pyxavi.storage.Storage and
// reuses this package's AtomicWriteFile/EnsureDir for crash-safe writes,
// plus the ensure-on-load self-healing idiom used by
// adapters/telegram/core/state_storage.go in the base repository.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-faster/errors"

	"feedbot/internal/infra/logger"

	"gopkg.in/yaml.v2"
)

// Document is a thread-safe, lazily-loaded YAML document store with dotted
// path access and atomic persistence.
type Document struct {
	path string

	mu     sync.RWMutex
	loaded bool
	data   map[string]any
}

// NewDocument creates a Document bound to path. Loading is deferred to the
// first Get/Set/ReadFile call.
func NewDocument(path string) *Document {
	return &Document{path: path, data: map[string]any{}}
}

// ReadFile forces a (re)load from disk. Tolerates an absent file, treating
// it as empty; a malformed file is logged and replaced with an empty
// default rather than failing the caller outright.
func (d *Document) ReadFile() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadLocked()
}

func (d *Document) loadLocked() error {
	clean := filepath.Clean(d.path)
	if err := EnsureDir(clean); err != nil {
		return err
	}

	raw, err := os.ReadFile(clean)
	if os.IsNotExist(err) || len(raw) == 0 {
		d.data = map[string]any{}
		d.loaded = true
		return nil
	}
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("read document %s", clean))
	}

	var parsed map[string]any
	if uErr := yaml.Unmarshal(raw, &parsed); uErr != nil {
		logger.Warnf("Document: failed to decode %s: %v; starting from empty document", clean, uErr)
		parsed = map[string]any{}
	}
	if parsed == nil {
		parsed = map[string]any{}
	}
	d.data = parsed
	d.loaded = true
	return nil
}

func (d *Document) ensureLoadedLocked() {
	if !d.loaded {
		if err := d.loadLocked(); err != nil {
			logger.Warnf("Document: load error for %s: %v", d.path, err)
			d.data = map[string]any{}
			d.loaded = true
		}
	}
}

// Get resolves a dotted path (e.g. "mastodon_parser.accounts") against the
// document. A missing intermediate key resolves to nil rather than an
// error.
func (d *Document) Get(path string) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureLoadedLocked()

	var cur any = d.data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// Set stores value at the dotted path, creating intermediate maps as
// needed.
func (d *Document) Set(path string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureLoadedLocked()

	parts := strings.Split(path, ".")
	cur := d.data
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = value
			return
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
}

// hashKey derives the fixed-width SHA-256 hex key used by GetHashed/
// SetHashed, so untrusted identifiers (URLs, handles) never collide with
// structured keys. Not a security property; purely a namespacing device.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GetHashed looks up a value stored under the SHA-256 hash of key.
func (d *Document) GetHashed(key string) any {
	return d.Get(hashKey(key))
}

// SetHashed stores value under the SHA-256 hash of key.
func (d *Document) SetHashed(key string, value any) {
	d.Set(hashKey(key), value)
}

// WriteFile serializes the current document to YAML and atomically
// replaces the file on disk.
func (d *Document) WriteFile() error {
	d.mu.RLock()
	data := d.data
	d.mu.RUnlock()

	enc, err := yaml.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}
	return AtomicWriteFile(d.path, enc)
}
