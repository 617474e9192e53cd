package telegram

import (
	"context"
	"os"
	"sync"

	"github.com/go-faster/errors"
	tdsession "github.com/gotd/td/session"

	"feedbot/internal/infra/storage"
)

// fileSessionStorage implements tdsession.Storage over a plain file,
// adapted from the base userbot's session.FileStorage: same atomic-write
// discipline, minus the live connection.Manager notification this batch
// bot has no use for.
type fileSessionStorage struct {
	path string
	mu   sync.Mutex
}

var _ tdsession.Storage = (*fileSessionStorage)(nil)

func (f *fileSessionStorage) LoadSession(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, tdsession.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}
	return data, nil
}

func (f *fileSessionStorage) StoreSession(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := storage.AtomicWriteFile(f.path, data); err != nil {
		return errors.Wrap(err, "atomic write session")
	}
	return nil
}
