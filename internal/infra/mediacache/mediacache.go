// Package mediacache downloads remote media referenced by a QueuePost into
// a local directory, deterministically named so repeated runs over the
// same post are idempotent and a crash mid-download never leaves a file
// that looks complete but isn't.
//
// Naming is grounded on telegram_parser.py's _download_media: the media's
// own id (or, when the upstream supplies one, its original file name) plus
// an extension derived from the MIME type.
package mediacache

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feedbot/internal/domain/parser"
	"feedbot/internal/infra/logger"
	"feedbot/internal/infra/storage"
)

// Cache downloads and stores media under a configured root directory.
type Cache struct {
	dir    string
	client *http.Client
}

// New creates a Cache rooted at dir. dir is created lazily on first Fetch.
func New(dir string) *Cache {
	return &Cache{dir: dir, client: &http.Client{Timeout: 60 * time.Second}}
}

// Fetch downloads url into the cache directory under a name derived from
// id (falling back to the sanitized URL when id is empty) and returns the
// local path. If a complete file with that name already exists, the download
// is skipped and the existing path is returned, making repeated runs over
// the same post a no-op.
func (c *Cache) Fetch(ctx context.Context, id, url string) (string, error) {
	if url == "" {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: fmt.Errorf("empty media url")}
	}

	name := sanitizeName(id)
	if name == "" {
		name = sanitizeName(url)
	}
	if entries, err := os.ReadDir(c.dir); err == nil {
		for _, e := range entries {
			base := e.Name()
			if e.IsDir() || base != name+filepath.Ext(base) {
				continue
			}
			if info, err := e.Info(); err == nil && info.Size() > 0 {
				logger.Debugf("mediacache: %s already cached, skipping download", base)
				return filepath.Join(c.dir, base), nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	ext := extensionFor(resp.Header.Get("Content-Type"), url)
	path := filepath.Join(c.dir, name+ext)

	if info, statErr := os.Stat(path); statErr == nil && info.Size() > 0 {
		logger.Debugf("mediacache: %s already cached, skipping download", path)
		return path, nil
	}

	if err := storage.EnsureDir(path); err != nil {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: err}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: err}
	}
	if err := storage.AtomicWriteFile(path, data); err != nil {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: err}
	}
	return path, nil
}

// StoreBytes writes already-downloaded media (e.g. pulled over MTProto
// rather than plain HTTP) under the same deterministic naming and
// idempotency rules as Fetch.
func (c *Cache) StoreBytes(id string, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: fmt.Errorf("empty media payload")}
	}
	ext := extensionFor(mimeType, "")
	name := sanitizeName(id)
	path := filepath.Join(c.dir, name+ext)

	if info, statErr := os.Stat(path); statErr == nil && info.Size() > 0 {
		logger.Debugf("mediacache: %s already cached, skipping write", path)
		return path, nil
	}
	if err := storage.EnsureDir(path); err != nil {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: err}
	}
	if err := storage.AtomicWriteFile(path, data); err != nil {
		return "", &parser.ErrMediaUnavailable{Item: id, Err: err}
	}
	return path, nil
}

// extensionFor picks a file extension from the response's Content-Type,
// falling back to whatever extension (if any) the URL itself carries.
func extensionFor(contentType, url string) string {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
				return exts[0]
			}
		}
	}
	if ext := filepath.Ext(strings.SplitN(url, "?", 2)[0]); ext != "" {
		return ext
	}
	return ""
}

// sanitizeName strips characters that would be awkward or unsafe in a file
// name, keeping the result stable across runs for the same id.
func sanitizeName(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "?", "_", "*", "_", "\"", "_")
	return replacer.Replace(s)
}
