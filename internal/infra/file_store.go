package infra

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

const recordExt = ".json"

// FileStore implements domain.RecordStore with one JSON file per key.
// Writes are atomic (write + rename); changes made by any process are
// delivered to watchers through fsnotify.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	watchers []*fsnotify.Watcher
}

// NewFileStore opens (or creates) a record directory.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the record directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Get reads the record file for key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set writes the record file for key atomically.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	// Unique per process so concurrent writers never share a temp file
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, value, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Watch streams changes to key until ctx is canceled or the store is closed.
// Consecutive identical contents are delivered once.
func (s *FileStore) Watch(ctx context.Context, key string) (<-chan domain.Change, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	last, _ := os.ReadFile(path)
	out := make(chan domain.Change, watchBuffer)

	go func() {
		defer close(out)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				data, err := os.ReadFile(path)
				if err != nil {
					// Removed between the event and the read
					continue
				}
				if bytes.Equal(data, last) {
					continue
				}
				last = data
				select {
				case out <- domain.Change{Key: key, Value: data}:
				case <-ctx.Done():
					return
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("record watcher error",
					zap.String("key", key),
					zap.Error(err))
			}
		}
	}()

	return out, nil
}

// Close stops every watcher opened by this store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchers {
		_ = w.Close()
	}
	s.watchers = nil
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid record key %q", key)
	}
	return filepath.Join(s.dir, key+recordExt), nil
}

// Ensure FileStore implements domain.RecordStore.
var _ domain.RecordStore = (*FileStore)(nil)
